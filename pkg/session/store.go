package session

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/go-go-golems/alfred/pkg/turns"
)

var ErrSessionNotFound = errors.New("session not found")

// Store persists session histories between requests.
type Store interface {
	// Load returns ErrSessionNotFound for unknown ids.
	Load(ctx context.Context, id string) (turns.Conversation, error)
	Save(ctx context.Context, id string, conv turns.Conversation) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
}

type MemoryStore struct {
	mu    sync.RWMutex
	convs map[string]turns.Conversation
}

var _ Store = &MemoryStore{}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{convs: map[string]turns.Conversation{}}
}

func (m *MemoryStore) Load(_ context.Context, id string) (turns.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.convs[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return c.Clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, id string, conv turns.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.convs[id] = conv.Clone()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.convs, id)
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.convs))
	for id := range m.convs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
