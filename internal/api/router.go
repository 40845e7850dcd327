package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/glendonC/mallards/internal/httpx"
)

// Routes is implemented by each handler set mounted on a service router.
type Routes interface {
	Routes(r chi.Router)
}

// NewRouter builds the common service router: request IDs, panic recovery,
// /healthz and /metrics, then the given handler sets.
func NewRouter(service string, timeout time.Duration, sets ...Routes) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	if timeout > 0 {
		router.Use(middleware.Timeout(timeout))
	}

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "service": service})
	})
	router.Handle("/metrics", promhttp.Handler())
	for _, s := range sets {
		s.Routes(router)
	}
	return router
}

// ServeSidecar runs a health and metrics listener for services without an
// API of their own. It returns when ctx is cancelled.
func ServeSidecar(ctx context.Context, addr, service string, logger *slog.Logger) {
	server := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(service, 0),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server error", "err", err)
	}
}
