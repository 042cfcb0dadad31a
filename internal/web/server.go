// Package web serves the read-only facility lookup API.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kohde-resolver/internal/config"
	"github.com/kohde-resolver/internal/store"
	"github.com/kohde-resolver/internal/web/handlers"
	"github.com/kohde-resolver/internal/web/middleware"
)

// Server represents the web server
type Server struct {
	cfg        config.Server
	stores     store.Stores
	gatherer   prometheus.Gatherer
	log        *zap.Logger
	httpServer *http.Server
	router     *mux.Router
}

// NewServer creates a server over stores. gatherer backs /metrics; nil
// means the default registry.
func NewServer(cfg config.Server, stores store.Stores, gatherer prometheus.Gatherer, log *zap.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		cfg:      cfg,
		stores:   stores,
		gatherer: gatherer,
		log:      log,
	}
	s.setupRoutes()
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()

	facilities := &handlers.FacilityHandler{Stores: s.stores, Log: s.log}
	runs := &handlers.RunHandler{Runs: s.stores.Runs, Log: s.log}

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/facilities/{id:[0-9]+}", facilities.GetFacility).Methods("GET")
	api.HandleFunc("/facilities/{id:[0-9]+}/dependents", facilities.ListDependents).Methods("GET")
	api.HandleFunc("/buildings/{id:[0-9]+}/facilities", facilities.BuildingFacilities).Methods("GET")
	api.HandleFunc("/runs/latest", runs.Latest).Methods("GET")

	s.router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods("GET")
	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")

	s.router.Use(middleware.CORS())
	s.router.Use(middleware.RequestLogging(s.log))
}

// Start serves until ctx is cancelled, then shuts down within the
// configured timeout.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting server", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.log.Info("server stopped")
	return nil
}
