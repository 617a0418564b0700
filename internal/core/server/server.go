package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/campus-geo/internal/core/health"
	middleware "github.com/mohammed-shakir/campus-geo/internal/core/middleware"
	"github.com/mohammed-shakir/campus-geo/internal/core/router"
)

// Ops are the operational endpoints served next to the API.
type Ops struct {
	Metrics http.Handler
	Ready   http.HandlerFunc
}

func Handler(logger *slog.Logger, api router.Deps, ops Ops) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	if ops.Ready != nil {
		r.Get("/readyz", ops.Ready)
	}
	if ops.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", ops.Metrics)
	}

	if api.Log == nil {
		api.Log = logger
	}
	router.Routes(r, api)
	return r
}

// Run serves h on addr until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, addr string, logger *slog.Logger, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
