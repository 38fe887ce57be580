// Package health exposes the relay's operational surface: a liveness
// endpoint describing the running handler and a Prometheus scrape
// endpoint. It is optional; with no listen address configured the relay
// runs headless.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ConnectionStatus reports whether the upstream socket is established.
type ConnectionStatus interface {
	Connected() bool
}

// Server serves /healthz and /metrics for one relay process.
type Server struct {
	handlerName string
	topics      []string
	status      ConnectionStatus
	gatherer    prometheus.Gatherer
	logger      *zap.Logger
}

func NewServer(handlerName string, topics []string, status ConnectionStatus, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	return &Server{
		handlerName: handlerName,
		topics:      topics,
		status:      status,
		gatherer:    gatherer,
		logger:      logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(zapLoggerMiddleware(s.logger))

	r.Get("/healthz", s.healthzHandler)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return r
}

// Serve blocks until ctx is canceled, then shuts the listener down
// gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info("ops server listening", zap.String("addr", addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type healthResponse struct {
	Status    string   `json:"status"`
	Connected bool     `json:"connected"`
	Handler   string   `json:"handler"`
	Topics    []string `json:"topics"`
}

func (s *Server) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Connected: s.status.Connected(),
		Handler:   s.handlerName,
		Topics:    s.topics,
	}
	if !resp.Connected {
		resp.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("failed to write health response", zap.Error(err))
	}
}

func zapLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
			)
			next.ServeHTTP(w, r)
		})
	}
}
