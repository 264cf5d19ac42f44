// Package api serves the read-only query surface plus the collector
// management endpoints.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/perpscan/perpscan/internal/cache"
	"github.com/perpscan/perpscan/internal/collector"
	"github.com/perpscan/perpscan/internal/metrics"
	"github.com/perpscan/perpscan/internal/sched"
	"github.com/perpscan/perpscan/internal/store"
)

// Deps collects everything the handlers read from.
type Deps struct {
	Markets *store.MarketsRepo
	Unified *store.UnifiedRepo
	MAs     *store.MARepo
	Arbs    *store.ArbRepo
	Status  *store.StatusRepo

	Manager   *collector.Manager
	Scheduler *sched.Scheduler

	Cache   cache.Cache
	Metrics *metrics.Registry
	Log     zerolog.Logger
}

// Config holds server listen parameters.
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns the local-only defaults.
func DefaultConfig() Config {
	return Config{
		Host:         "127.0.0.1",
		Port:         8090,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server is the HTTP front of the tracker.
type Server struct {
	deps   Deps
	router *mux.Router
	server *http.Server
	log    zerolog.Logger
}

// NewServer builds the router and the underlying http.Server.
func NewServer(cfg Config, deps Deps) *Server {
	s := &Server{
		deps:   deps,
		router: mux.NewRouter(),
		log:    deps.Log.With().Str("component", "api").Logger(),
	}
	s.routes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) routes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.timeoutMiddleware)
	s.router.Use(s.corsMiddleware)

	s.router.Handle("/metrics", s.deps.Metrics.Handler()).Methods("GET")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(jsonContentTypeMiddleware)

	api.HandleFunc("/markets", s.handleMarkets).Methods("GET")
	api.HandleFunc("/markets/{symbol}/compare", s.handleCompare).Methods("GET")
	api.HandleFunc("/markets/{symbol}/history", s.handleHistory).Methods("GET")

	api.HandleFunc("/funding/rates", s.handleFundingRates).Methods("GET")
	api.HandleFunc("/funding/apr", s.handleFundingAPR).Methods("GET")
	api.HandleFunc("/funding/summary", s.handleFundingSummary).Methods("GET")
	api.HandleFunc("/funding/ma", s.handleFundingMA).Methods("GET")
	api.HandleFunc("/funding/ma/latest", s.handleFundingMALatest).Methods("GET")
	api.HandleFunc("/funding/ma/bulk", s.handleFundingMABulk).Methods("GET")

	api.HandleFunc("/arbitrage", s.handleArbitrage).Methods("GET")

	api.HandleFunc("/collectors", s.handleCollectors).Methods("GET")
	api.HandleFunc("/collectors/{venue}", s.handleCollectorStatus).Methods("GET")
	api.HandleFunc("/collectors/{venue}/debug", s.handleCollectorDebug).Methods("GET")
	api.HandleFunc("/collectors/{venue}/start", s.handleCollectorStart).Methods("POST")
	api.HandleFunc("/collectors/{venue}/stop", s.handleCollectorStop).Methods("POST")

	api.HandleFunc("/status", s.handleStatus).Methods("GET")

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
}

// Start runs the listener until Shutdown or failure.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("HTTP server shutting down")
	return s.server.Shutdown(ctx)
}

// Router exposes the handler tree for tests.
func (s *Server) Router() http.Handler { return s.router }

type ctxKey string

const requestIDKey ctxKey = "request_id"

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)
		requestID, _ := r.Context().Value(requestIDKey).(string)
		s.log.Debug().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.status).
			Dur("took", duration).
			Msg("Request handled")

		s.deps.Metrics.RequestDuration.
			WithLabelValues(r.URL.Path, fmt.Sprintf("%d", wrapper.status)).
			Observe(duration.Seconds())
	})
}

func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
