// Package server exposes the GraphQL API over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/99designs/gqlgen/graphql/playground"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.uber.org/zap"

	"github.com/tournevent/courier/internal/graphql"
)

// maxBodyBytes bounds GraphQL request bodies.
const maxBodyBytes = 1 << 20

// Server is the HTTP server for the shipping service.
type Server struct {
	port     int
	resolver *graphql.Resolver
	gatherer prometheus.Gatherer
	logger   *otelzap.Logger
}

// Config holds server configuration.
type Config struct {
	Port int
	// Gatherer serves /metrics. Nil uses the default Prometheus registry.
	Gatherer prometheus.Gatherer
}

// New creates a new server instance.
func New(cfg Config, resolver *graphql.Resolver, logger *otelzap.Logger) *Server {
	if logger == nil {
		logger = otelzap.New(zap.NewNop())
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		port:     cfg.Port,
		resolver: resolver,
		gatherer: gatherer,
		logger:   logger,
	}
}

// Handler returns the routes served by the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/playground", playground.Handler("Courier", "/graphql"))
	mux.HandleFunc("/graphql", s.handleGraphQL)
	return mux
}

// Run starts the HTTP server and blocks until context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", s.port),
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// Bookings can wait on several sequential carrier calls.
		WriteTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", zap.Int("port", s.port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrors(w, http.StatusMethodNotAllowed, "Method not allowed, use POST")
		return
	}

	var req graphql.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeErrors(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}

	resp := s.resolver.Execute(r.Context(), req)
	status := http.StatusOK
	if resp.Rejected() {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, resp)
}

func writeErrors(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, graphql.Response{
		Errors: gqlerror.List{{
			Message:    msg,
			Extensions: map[string]any{"code": graphql.CodeBadRequest},
		}},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
