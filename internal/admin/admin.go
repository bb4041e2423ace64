// Package admin serves the JSON administration API of the scheduler.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"owl_course/internal/model"
	"owl_course/internal/scheduler"
)

const (
	readTimeout     = 5 * time.Second
	shutdownTimeout = 5 * time.Second

	// Stop may wait for the loop to exit, so handlers get more than the read timeout.
	handlerTimeout = 10 * time.Second

	maxLogLimit = 500
)

// Service is the scheduler surface exposed over HTTP.
type Service interface {
	Start(ctx context.Context) scheduler.Result
	Stop(ctx context.Context) scheduler.Result
	Status(ctx context.Context) scheduler.Status
	UpdateHourlySettings(ctx context.Context, u scheduler.HourlySettings) error
	UpdateDailySettings(ctx context.Context, u scheduler.DailySettings) error
	SetAutoPost(ctx context.Context, enabled bool) error
	ExecutionLogs(ctx context.Context, kind string, limit int) []model.ExecutionLogEntry
	ClearOldLogs(ctx context.Context, daysToKeep int) int
}

// Server is the admin HTTP API.
type Server struct {
	svc Service
	log *slog.Logger
}

// New creates a Server over svc.
func New(svc Service, log *slog.Logger) *Server {
	return &Server{svc: svc, log: log}
}

// Routes returns the API handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)

	r.Route("/scheduler", func(r chi.Router) {
		r.Post("/start", s.handleStart)
		r.Post("/stop", s.handleStop)
	})
	r.Route("/schedules", func(r chi.Router) {
		r.Put("/hourly", s.handleHourly)
		r.Put("/daily", s.handleDaily)
	})
	r.Get("/logs", s.handleLogs)
	r.Delete("/logs", s.handleClearLogs)
	r.Put("/settings/auto-post", s.handleAutoPost)

	return r
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: readTimeout,
		ReadTimeout:       readTimeout,
		Handler:           http.TimeoutHandler(s.Routes(), handlerTimeout, ""),
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("admin api listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("admin api: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("admin api shutdown: %w", err)
	}
	s.log.Info("admin api stopped")
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.Status(r.Context()))
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.Start(r.Context()))
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.Stop(r.Context()))
}

func (s *Server) handleHourly(w http.ResponseWriter, r *http.Request) {
	var u scheduler.HourlySettings
	if err := decode(w, r, &u); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.svc.UpdateHourlySettings(r.Context(), u); err != nil {
		s.writeUpdateError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.svc.Status(r.Context()).Hourly)
}

func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request) {
	var u scheduler.DailySettings
	if err := decode(w, r, &u); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.svc.UpdateDailySettings(r.Context(), u); err != nil {
		s.writeUpdateError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.svc.Status(r.Context()).Daily)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	kind := q.Get("kind")
	if kind != "" && kind != model.ScraperTypeTelegram {
		if _, err := model.ParseJobKind(kind); err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	limit := 50
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxLogLimit {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("limit must be between 1 and %d", maxLogLimit))
			return
		}
		limit = n
	}

	logs := s.svc.ExecutionLogs(r.Context(), kind, limit)
	if logs == nil {
		logs = []model.ExecutionLogEntry{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (s *Server) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, errors.New("days must be a positive number"))
			return
		}
		days = n
	}
	deleted := s.svc.ClearOldLogs(r.Context(), days)
	s.writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted, "days": days})
}

func (s *Server) handleAutoPost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Enabled == nil {
		s.writeError(w, http.StatusBadRequest, errors.New("enabled is required"))
		return
	}
	if err := s.svc.SetAutoPost(r.Context(), *req.Enabled); err != nil {
		s.writeUpdateError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"auto_telegram_post": *req.Enabled})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *Server) writeUpdateError(w http.ResponseWriter, err error) {
	if errors.Is(err, scheduler.ErrNotSaved) {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	s.writeError(w, http.StatusBadRequest, err)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("write response", "error", err)
	}
}
