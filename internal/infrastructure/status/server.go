// Package status exposes liveness and the latest run over HTTP.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"FeedHighlights/internal/domain"
	"FeedHighlights/internal/ports"
)

// Server is the HTTP status endpoint of the scheduled bot.
type Server struct {
	addr   string
	runs   ports.RunRepository
	next   func() (time.Time, error)
	logger *slog.Logger
	router *chi.Mux
	http   *http.Server
}

// NewServer builds the router. runs and next may be nil.
func NewServer(addr string, runs ports.RunRepository, next func() (time.Time, error), logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{addr: addr, runs: runs, next: next, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Get("/healthz", s.handleHealth)
	r.Get("/runs/latest", s.handleLatestRun)
	s.router = r
	return s
}

// Handler returns the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.http = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening", "addr", s.addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("status server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown status server: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

type healthResponse struct {
	Status  string     `json:"status"`
	NextRun *time.Time `json:"next_run,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.next != nil {
		if next, err := s.next(); err == nil {
			resp.NextRun = &next
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type runResponse struct {
	ID             string           `json:"id"`
	StartedAt      time.Time        `json:"started_at"`
	FinishedAt     time.Time        `json:"finished_at"`
	Status         domain.RunStatus `json:"status"`
	SourceFeed     string           `json:"source_feed"`
	TargetFeed     string           `json:"target_feed"`
	SubmissionID   string           `json:"submission_id,omitempty"`
	Title          string           `json:"title,omitempty"`
	Candidates     int              `json:"candidates"`
	Selected       int              `json:"selected"`
	ReconcileState string           `json:"reconcile_state,omitempty"`
	Warnings       []string         `json:"warnings"`
}

func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run history is disabled"})
		return
	}

	run, err := s.runs.LatestRun(r.Context())
	switch {
	case errors.Is(err, ports.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no runs recorded"})
		return
	case err != nil:
		s.logger.Error("load latest run", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "storage failure"})
		return
	}

	warnings := run.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	writeJSON(w, http.StatusOK, runResponse{
		ID:             run.ID,
		StartedAt:      run.StartedAt,
		FinishedAt:     run.FinishedAt,
		Status:         run.Status,
		SourceFeed:     run.SourceFeed,
		TargetFeed:     run.TargetFeed,
		SubmissionID:   run.SubmissionID,
		Title:          run.Title,
		Candidates:     run.Candidates,
		Selected:       run.Selected,
		ReconcileState: run.ReconcileState,
		Warnings:       warnings,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
