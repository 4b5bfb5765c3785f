// Package rest exposes questionnaire sessions over HTTP.
//
// Sessions live in memory. When a store is configured every submission is
// recorded, and a session missing from memory (e.g. after a restart) is
// rebuilt from its answer log on first access.
package rest

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/roach88/qflow/internal/catalog"
	"github.com/roach88/qflow/internal/engine"
	"github.com/roach88/qflow/internal/ir"
	"github.com/roach88/qflow/internal/store"
)

// Templates is the read-only template source the API serves from.
type Templates interface {
	Get(id string) (*ir.Template, error)
	All() ([]*ir.Template, error)
}

type catalogTemplates struct{}

func (catalogTemplates) Get(id string) (*ir.Template, error) { return catalog.Get(id) }
func (catalogTemplates) All() ([]*ir.Template, error)        { return catalog.All() }

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	templates Templates
	store     *store.Store
	logger    *slog.Logger
	policy    engine.HiddenAnswerPolicy
	now       func() time.Time
	idGen     engine.IDGenerator

	sessions *registry
}

// Option configures a Server.
type Option func(*Server)

// WithTemplates replaces the embedded catalog.
func WithTemplates(t Templates) Option {
	return func(s *Server) {
		s.templates = t
	}
}

// WithStore enables persistence and resume.
func WithStore(st *store.Store) Option {
	return func(s *Server) {
		s.store = st
	}
}

// WithLogger sets the logger for the server and its sessions.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithDefaultPolicy sets the hidden answer policy for sessions whose create
// request does not name one.
func WithDefaultPolicy(p engine.HiddenAnswerPolicy) Option {
	return func(s *Server) {
		s.policy = p
	}
}

// WithNow sets the wall clock handed to sessions.
func WithNow(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// WithIDGenerator sets the session id generator.
func WithIDGenerator(gen engine.IDGenerator) Option {
	return func(s *Server) {
		s.idGen = gen
	}
}

// NewServer creates a server. Without WithTemplates it serves the embedded
// catalog.
func NewServer(opts ...Option) *Server {
	s := &Server{
		templates: catalogTemplates{},
		logger:    slog.Default(),
		now:       time.Now,
		idGen:     engine.UUIDv7Generator{},
		sessions:  newRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/templates", s.listTemplates).Methods(http.MethodGet)
	v1.HandleFunc("/templates/{id}", s.getTemplate).Methods(http.MethodGet)
	v1.HandleFunc("/sessions", s.createSession).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}", s.getSession).Methods(http.MethodGet)
	v1.HandleFunc("/sessions/{id}/answers", s.submitAnswer).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}/progress", s.getProgress).Methods(http.MethodGet)
	v1.HandleFunc("/sessions/{id}/step", s.goToStep).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}/reset", s.resetSession).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}/groups/{group}", s.getGroup).Methods(http.MethodGet)
	v1.HandleFunc("/sessions/{id}/groups/{group}/instances", s.addGroupInstance).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}/groups/{group}/instances", s.removeGroupInstance).Methods(http.MethodDelete)

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
