package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"magical-academy/internal/config"
	"magical-academy/internal/infra/logging"
	"magical-academy/internal/infra/metrics"
	"magical-academy/internal/usecase"
)

// HealthCheck reports whether one backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps are the use cases and optional collaborators the API serves. Nil
// Auth leaves /api/v1 open and nil Limiter disables throttling. Nil Stories
// or Jobs answer their routes with 501.
type Deps struct {
	Sessions  usecase.SessionUseCase
	Exercises usecase.ExerciseUseCase
	Stories   usecase.StoryUseCase
	Jobs      usecase.JobHistoryUseCase
	Auth      *AuthManager
	Limiter   Limiter
	Health    map[string]HealthCheck
}

type Server struct {
	cfg  config.HTTPConfig
	deps Deps
	log  *zerolog.Logger
}

func NewServer(cfg config.HTTPConfig, deps Deps, logger *zerolog.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	compLog := logger.With().Str("component", "HTTPServer").Logger()
	return &Server{cfg: cfg, deps: deps, log: &compLog}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Timeout(s.cfg.RequestTimeout))
		if s.deps.Auth != nil {
			r.Use(s.deps.Auth.Require())
		}
		if s.deps.Limiter != nil {
			r.Use(RateLimit(s.deps.Limiter, s.log))
		}

		r.Post("/exercises", s.handleGenerate)
		r.Post("/exercises/chat", s.handleGeneratePlainText)
		r.Post("/exercises/evaluate", s.handleEvaluate)
		r.Delete("/sessions/{sessionID}", s.handleResetSession)
		r.Get("/sessions/{sessionID}/jobs", s.handleListJobs)
		r.Get("/sessions/{sessionID}/jobs/{jobID}", s.handleGetJob)
		r.Post("/stories/image", s.handleIllustrate)
		r.Post("/stories/speech", s.handleNarrate)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests for up to 10 seconds.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", srv.Addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.log.Info().Msg("http server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{}
	healthy := true
	for name, check := range s.deps.Health {
		if err := check(ctx); err != nil {
			healthy = false
			status[name] = "down"
			logging.With(r.Context(), s.log).Warn().Err(err).Str("dependency", name).Msg("health check failed")
			continue
		}
		status[name] = "ok"
	}

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"ok": healthy, "dependencies": status})
}
