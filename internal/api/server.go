package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"governance-sync/internal/parser"
	"governance-sync/internal/syncer"

	"github.com/sirupsen/logrus"
)

// Server exposes sync passes and the stored proposals over HTTP.
type Server struct {
	mux *http.ServeMux

	engine *syncer.Engine
	store  syncer.Store
	source syncer.LogSource
	parser *parser.Parser

	// runMu keeps a single pass touching the store at a time.
	runMu sync.Mutex

	mu   sync.RWMutex
	jobs map[string]*jobEntry
	// jobTTL is how long a job stays queryable after it reached a final status.
	jobTTL time.Duration
}

// DefaultJobTTL bounds how long finished jobs are kept in memory.
const DefaultJobTTL = time.Hour

type jobEntry struct {
	status *JobStatus
	cancel context.CancelFunc // allows cancellation via DELETE /jobs/{id}
}

// NewServer builds a server with basic logging and panic recovery middlewares.
func NewServer(engine *syncer.Engine, store syncer.Store, source syncer.LogSource, p *parser.Parser) *Server {
	s := &Server{
		mux:    http.NewServeMux(),
		engine: engine,
		store:  store,
		source: source,
		parser: p,
		jobs:   make(map[string]*jobEntry),
		jobTTL: DefaultJobTTL,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/sync", s.handleSync)           // POST /sync
	s.mux.HandleFunc("/jobs/", s.handleJobByID)       // GET/DELETE /jobs/{id}
	s.mux.HandleFunc("/state", s.handleState)         // GET /state
	s.mux.HandleFunc("/proposals", s.handleProposals) // GET /proposals
}

// Handler returns the routed handler wrapped with the middlewares.
func (s *Server) Handler() http.Handler {
	return s.recoveryMiddleware(s.loggingMiddleware(s.mux))
}

// Run starts the HTTP server on the provided address.
func (s *Server) Run(addr string) error {
	logrus.Infof("HTTP server running on %s", addr)
	return http.ListenAndServe(addr, s.Handler())
}

// Simple request logger middleware.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logrus.Infof("%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

// recoveryMiddleware catches panics and returns 500.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logrus.Errorf("panic recovered: %v", rec)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
