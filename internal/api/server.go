// Package api serves jobs, rows and record validation over HTTP.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/datafixer/internal/model"
	"github.com/sells-group/datafixer/internal/store"
)

// Store is the subset of the job store the API reads and writes.
type Store interface {
	CreateJob(ctx context.Context, name string, schema model.Schema) (*model.Job, error)
	InsertRows(ctx context.Context, jobID string, records []model.Record) ([]model.Row, error)
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	ListJobs(ctx context.Context, limit int) ([]model.Job, error)
	GetRow(ctx context.Context, rowID string) (*model.Row, error)
	ListRows(ctx context.Context, jobID string, filter store.RowFilter) ([]model.Row, error)
}

// JobRunner reconciles every row of a job.
type JobRunner interface {
	RunJob(ctx context.Context, jobID string) (model.BatchResult, error)
}

// Server holds the API dependencies. Runs started through the API outlive
// the request and are bound to the server's base context.
type Server struct {
	store   Store
	runner  JobRunner
	origins []string
	metrics http.Handler

	baseCtx context.Context
	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithAllowedOrigins sets the CORS origins. Default: any.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

// WithMetricsHandler mounts h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// New returns a Server. baseCtx bounds asynchronous job runs.
func New(baseCtx context.Context, st Store, runner JobRunner, opts ...Option) *Server {
	s := &Server{
		store:   st,
		runner:  runner,
		origins: []string{"*"},
		baseCtx: baseCtx,
		running: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/validate", s.handleValidate)

		r.Get("/jobs", s.handleListJobs)
		r.Post("/jobs", s.handleCreateJob)
		r.Route("/jobs/{jobID}", func(r chi.Router) {
			r.Get("/", s.handleGetJob)
			r.Post("/run", s.handleRunJob)
			r.Get("/rows", s.handleListRows)
			r.Get("/rows/{rowID}", s.handleGetRow)
		})
	})
	return r
}

// Wait blocks until every run started through the API has returned.
func (s *Server) Wait() {
	s.wg.Wait()
}

// startRun launches jobID in the background unless it is already running.
func (s *Server) startRun(jobID string) bool {
	s.mu.Lock()
	if _, busy := s.running[jobID]; busy {
		s.mu.Unlock()
		return false
	}
	s.running[jobID] = struct{}{}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.running, jobID)
			s.mu.Unlock()
		}()

		res, err := s.runner.RunJob(s.baseCtx, jobID)
		if err != nil {
			zap.L().Error("api: job run failed", zap.String("job_id", jobID), zap.Error(err))
			return
		}
		zap.L().Info("api: job run complete",
			zap.String("job_id", jobID),
			zap.Int64("processed", res.Processed),
			zap.Int64("enriched", res.Enriched),
		)
	}()
	return true
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
