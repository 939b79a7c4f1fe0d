package session

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/alfred/pkg/turns"
)

// Apology is what users see instead of the error when a run fails.
const Apology = "I apologize, but I encountered an error. Please try again."

// Reply is the outcome of one Manager.Chat call.
type Reply struct {
	SessionID string `json:"session_id"`
	RunID     string `json:"run_id"`
	// Turns holds the human turn followed by everything the run appended.
	Turns    turns.Conversation `json:"turns"`
	Answer   string             `json:"answer"`
	Complete bool               `json:"complete"`
}

// Manager loads a session from the store, runs one exchange and saves it
// back. Exchanges on the same session id are serialized.
type Manager struct {
	runner   Runner
	store    Store
	mws      []Middleware
	maxSteps int

	mu    sync.Mutex
	locks map[string]*sessionLock
}

// sessionLock is dropped from Manager.locks once nobody holds or waits on it.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

type ManagerOption func(*Manager)

func WithManagerMiddlewares(mws ...Middleware) ManagerOption {
	return func(m *Manager) { m.mws = append(m.mws, mws...) }
}

func WithManagerMaxSteps(n int) ManagerOption {
	return func(m *Manager) { m.maxSteps = n }
}

func NewManager(r Runner, store Store, opts ...ManagerOption) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	m := &Manager{
		runner: r,
		store:  store,
		locks:  map[string]*sessionLock{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// acquire blocks until the caller owns session id and returns the release func.
func (m *Manager) acquire(id string) func() {
	m.mu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &sessionLock{}
		m.locks[id] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, id)
		}
		m.mu.Unlock()
	}
}

// Chat sends text to session id, creating the session if needed. The history
// is saved even when the run fails, so the human turn is not lost; the error
// is returned alongside the partial reply.
func (m *Manager) Chat(ctx context.Context, id, userID, text string) (*Reply, error) {
	if id == "" {
		return nil, ErrSessionIDEmpty
	}
	defer m.acquire(id)()

	history, err := m.store.Load(ctx, id)
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}

	s := NewSession(m.runner,
		WithID(id),
		WithUserID(userID),
		WithHistory(history),
		WithMaxSteps(m.maxSteps),
		WithMiddlewares(m.mws...),
	)
	h, err := s.Start(ctx, text)
	if err != nil {
		return nil, err
	}
	out, runErr := h.Wait()

	if err := m.store.Save(context.WithoutCancel(ctx), id, out); err != nil {
		log.Error().Err(err).Str("session", id).Msg("session: save failed")
		if runErr == nil {
			return nil, errors.Wrap(err, "save session")
		}
	}

	reply := &Reply{SessionID: id, RunID: h.RunID, Turns: h.NewTurns()}
	reply.Answer, reply.Complete = out.FinalAnswer()
	return reply, runErr
}

func (m *Manager) History(ctx context.Context, id string) (turns.Conversation, error) {
	return m.store.Load(ctx, id)
}

func (m *Manager) Delete(ctx context.Context, id string) error {
	defer m.acquire(id)()
	return m.store.Delete(ctx, id)
}

func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}
