package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ThomasGodWeb/WorkBot/internal/api/middleware"
	"github.com/ThomasGodWeb/WorkBot/internal/queue"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 10 * time.Second

type RouteRegistrar func(mux *http.ServeMux, s *APIServer)

type APIServer struct {
	listenAddr          string
	requestQueueManager *queue.RequestQueueManager
	routeRegistrars     []RouteRegistrar
	metrics             *metrics
	cors                middleware.CORSConfig
	log                 zerolog.Logger
}

// NewAPIServer registers its collectors on reg. A nil reg uses the default registry.
func NewAPIServer(listenAddr string, rqm *queue.RequestQueueManager, log zerolog.Logger, reg prometheus.Registerer, registrars ...RouteRegistrar) *APIServer {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	return &APIServer{
		listenAddr:          listenAddr,
		requestQueueManager: rqm,
		routeRegistrars:     registrars,
		metrics:             newMetrics(reg, listenAddr, rqm),
		cors:                middleware.ConsoleCORS(),
		log:                 log.With().Str("component", "http").Str("listen_addr", listenAddr).Logger(),
	}
}

// WithAllowedOrigins sets the origins allowed to call the API from a browser.
func (s *APIServer) WithAllowedOrigins(origins ...string) *APIServer {
	s.cors = middleware.ConsoleCORS(origins...)
	return s
}

// Handler builds the routed and instrumented handler.
func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()

	for _, reg := range s.routeRegistrars {
		reg(mux, s)
	}

	mux.Handle("/metrics", s.metrics.metricsHandler())

	return s.metrics.instrument(mux)
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *APIServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	s.log.Info().Msg("server listening")

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.log.Info().Msg("server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *APIServer) Log() zerolog.Logger {
	return s.log
}
