// Package server exposes agent sessions, traces and metrics over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/alfred/pkg/inference/engine"
	"github.com/go-go-golems/alfred/pkg/render"
	"github.com/go-go-golems/alfred/pkg/session"
	"github.com/go-go-golems/alfred/pkg/tracing"
	"github.com/go-go-golems/alfred/pkg/turns"
)

type Server struct {
	sessions *session.Manager
	tracer   *tracing.Tracer
	metrics  http.Handler
}

type Option func(*Server)

// WithTracer enables the trace and feedback endpoints.
func WithTracer(t *tracing.Tracer) Option {
	return func(s *Server) { s.tracer = t }
}

// WithMetrics serves h on /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

func New(sessions *session.Manager, opts ...Option) *Server {
	s := &Server{sessions: sessions}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/sessions", s.listSessions)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Delete("/", s.deleteSession)
			r.Post("/messages", s.postMessage)
			r.Get("/export", s.exportSession)
		})
		r.Get("/traces", s.listTraces)
		r.Get("/traces/{id}", s.getTrace)
		r.Post("/traces/{id}/scores", s.postScore)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("server: listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("server: shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("server: request")
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("server: encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

type messageRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id,omitempty"`
}

type messageResponse struct {
	SessionID string             `json:"session_id"`
	RunID     string             `json:"run_id,omitempty"`
	Answer    string             `json:"answer"`
	Complete  bool               `json:"complete"`
	Turns     turns.Conversation `json:"turns,omitempty"`
	Error     string             `json:"error,omitempty"`
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body messageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Message == "" {
		writeError(w, http.StatusBadRequest, session.ErrEmptyMessage.Error())
		return
	}

	reply, err := s.sessions.Chat(r.Context(), id, body.UserID, body.Message)
	if err != nil {
		resp := messageResponse{SessionID: id, Answer: session.Apology}
		status := http.StatusInternalServerError
		var gwErr *engine.GatewayError
		if errors.As(err, &gwErr) {
			status = http.StatusBadGateway
			resp.Error = "gateway_error"
		}
		if reply != nil {
			resp.RunID = reply.RunID
		}
		log.Error().Err(err).Str("session", id).Msg("server: chat failed")
		writeJSON(w, status, resp)
		return
	}

	resp := messageResponse{
		SessionID: reply.SessionID,
		RunID:     reply.RunID,
		Answer:    reply.Answer,
		Complete:  reply.Complete,
		Turns:     reply.Turns,
	}
	if !reply.Complete {
		if last, ok := reply.Turns.Last(); ok {
			resp.Answer = last.Text
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) loadSession(w http.ResponseWriter, r *http.Request) (turns.Conversation, bool) {
	id := chi.URLParam(r, "id")
	history, err := s.sessions.History(r.Context(), id)
	if errors.Is(err, session.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	if err != nil {
		log.Error().Err(err).Str("session", id).Msg("server: load session")
		writeError(w, http.StatusInternalServerError, "could not load session")
		return nil, false
	}
	return history, true
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	history, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": chi.URLParam(r, "id"),
		"turns":      history,
	})
}

func (s *Server) exportSession(w http.ResponseWriter, r *http.Request) {
	history, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+render.ExportFileName(time.Now())+`"`)
	if err := render.Export(w, history); err != nil {
		log.Error().Err(err).Msg("server: export session")
	}
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.sessions.Delete(r.Context(), id); err != nil {
		log.Error().Err(err).Str("session", id).Msg("server: delete session")
		writeError(w, http.StatusInternalServerError, "could not delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.sessions.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("server: list sessions")
		writeError(w, http.StatusInternalServerError, "could not list sessions")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": ids})
}

func (s *Server) requireTracer(w http.ResponseWriter) bool {
	if s.tracer == nil {
		writeError(w, http.StatusNotImplemented, "tracing is disabled")
		return false
	}
	return true
}

func (s *Server) listTraces(w http.ResponseWriter, r *http.Request) {
	if !s.requireTracer(w) {
		return
	}
	opts := tracing.ListOptions{SessionID: r.URL.Query().Get("session_id")}
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		opts.Limit = n
	}
	traces, err := s.tracer.Store().ListTraces(r.Context(), opts)
	if err != nil {
		log.Error().Err(err).Msg("server: list traces")
		writeError(w, http.StatusInternalServerError, "could not list traces")
		return
	}
	if traces == nil {
		traces = []*tracing.Trace{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"traces": traces})
}

func (s *Server) getTrace(w http.ResponseWriter, r *http.Request) {
	if !s.requireTracer(w) {
		return
	}
	id := chi.URLParam(r, "id")
	tr, err := s.tracer.Store().GetTrace(r.Context(), id)
	if errors.Is(err, tracing.ErrTraceNotFound) {
		writeError(w, http.StatusNotFound, "trace not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("trace_id", id).Msg("server: get trace")
		writeError(w, http.StatusInternalServerError, "could not load trace")
		return
	}
	scores, err := s.tracer.Store().ListScores(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("trace_id", id).Msg("server: list scores")
		writeError(w, http.StatusInternalServerError, "could not load scores")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trace": tr, "scores": scores})
}

type scoreRequest struct {
	Rating int `json:"rating"`
}

func (s *Server) postScore(w http.ResponseWriter, r *http.Request) {
	if !s.requireTracer(w) {
		return
	}
	id := chi.URLParam(r, "id")
	var body scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Rating < 1 || body.Rating > 5 {
		writeError(w, http.StatusBadRequest, "rating must be between 1 and 5")
		return
	}
	sc, err := s.tracer.Feedback(r.Context(), id, body.Rating)
	if errors.Is(err, tracing.ErrTraceNotFound) {
		writeError(w, http.StatusNotFound, "trace not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("trace_id", id).Msg("server: record feedback")
		writeError(w, http.StatusInternalServerError, "could not record feedback")
		return
	}
	writeJSON(w, http.StatusCreated, sc)
}
