// Package api exposes the controller over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/rslogger/rsaudio/pkg/controller"
	"github.com/rslogger/rsaudio/pkg/wire"
)

// DefaultRequestTimeout bounds a single API request.
const DefaultRequestTimeout = 30 * time.Second

// Fleet is the controller surface served by the API.
type Fleet interface {
	ModuleStatus() map[string]controller.ModuleStatus
	Module(id string) (controller.ModuleStatus, bool)
	StartAll(ctx context.Context, opts controller.StartOptions) controller.BroadcastResult
	StopAll(ctx context.Context) controller.BroadcastResult
	Start(ctx context.Context, id string, opts controller.StartOptions) controller.Outcome
	Stop(ctx context.Context, id string) controller.Outcome
	Status(ctx context.Context, id string) controller.Outcome
	Configure(ctx context.Context, id string, override *wire.ConfigOverride, save bool) controller.Outcome
	Shutdown(ctx context.Context, id string) controller.Outcome
}

var _ Fleet = (*controller.Controller)(nil)

// Server serves the operator API.
type Server struct {
	Router *chi.Mux

	fleet  Fleet
	logger *slog.Logger
	http   *http.Server
}

// New builds the router.
func New(fleet Fleet, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		Router: chi.NewRouter(),
		fleet:  fleet,
		logger: logger.With("component", "api"),
	}

	r := s.Router
	r.Use(middleware.RequestID)
	r.Use(loggingMiddleware(s.logger))
	r.Use(middleware.Timeout(DefaultRequestTimeout))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "rsaudio-api")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/modules", s.listModules)
		r.Get("/modules/{id}", s.getModule)
		r.Post("/modules/{id}/start", s.startModule)
		r.Post("/modules/{id}/stop", s.moduleCommand(Fleet.Stop))
		r.Post("/modules/{id}/status", s.moduleCommand(Fleet.Status))
		r.Post("/modules/{id}/shutdown", s.moduleCommand(Fleet.Shutdown))
		r.Post("/modules/{id}/config", s.configureModule)
		r.Post("/recordings/start", s.startAll)
		r.Post("/recordings/stop", s.stopAll)
	})
	return s
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http api listening", "addr", addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)))
		})
	}
}
