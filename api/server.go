// Package api provides the HTTP REST API server for moexidx.
//
// It exposes endpoints to create and search custom indices, value them at
// today's prices, read their historical series with the benchmark, compute
// performance statistics and list the securities of a capitalization table.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/seenimoa/moexidx/internal/config"
	"github.com/seenimoa/moexidx/internal/errs"
	"github.com/seenimoa/moexidx/internal/index"
	"github.com/seenimoa/moexidx/pkg/models"
)

// Version is reported by the health endpoint; set by the binary.
var Version = "dev"

// IndexService is the index engine the API exposes.
type IndexService interface {
	Create(ctx context.Context, req index.CreateRequest) (index.Detail, error)
	Get(ctx context.Context, id int64) (index.Detail, error)
	List(ctx context.Context, query string) ([]models.Index, error)
	Value(ctx context.Context, id int64) (models.IndexValue, error)
	Series(ctx context.Context, id int64, from, till time.Time, withBenchmark bool) ([]models.IndexPoint, error)
	Stats(ctx context.Context, id int64, from, till time.Time) (models.Stats, error)
	Securities(ctx context.Context, year, quarter int) ([]models.Security, error)
}

// Pinger reports store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP API server.
type Server struct {
	router chi.Router
	cfg    *config.Config
	svc    IndexService
	store  Pinger
}

// NewServer creates a configured API server with all routes and middleware.
// store may be nil, in which case health does not check the database.
func NewServer(cfg *config.Config, svc IndexService, store Pinger) *Server {
	srv := &Server{cfg: cfg, svc: svc, store: store}
	srv.router = srv.buildRouter()
	return srv
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ListenAndServe starts the HTTP server with graceful shutdown.
func (s *Server) ListenAndServe(addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("api: listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-done:
	}
	log.Info().Msg("api: shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(ctx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(170 * time.Second))

	// CORS
	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", s.handleHealth)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Indices
		r.Post("/index", s.handleCreateIndex)
		r.Get("/index", s.handleListIndices)
		r.Route("/index/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetIndex)
			r.Get("/value", s.handleIndexValue)
			r.Get("/series", s.handleIndexSeries)
			r.Get("/stats", s.handleIndexStats)
		})

		// Capitalization tables
		r.Get("/securities", s.handleSecurities)

		// Config
		r.Get("/config", s.handleGetConfig)
		r.Get("/config/keys", s.handleGetConfigKeys)
	})

	return r
}

// ============================================================
// Response envelope
// ============================================================

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("api: failed to write JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}

// writeServiceError maps the error taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errs.IsValidation(err):
		status = http.StatusBadRequest
	case errors.Is(err, errs.ErrNotFound):
		status = http.StatusNotFound
	case errs.IsFetch(err):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).Msg("api: request failed")
	}
	writeError(w, status, err.Error())
}
