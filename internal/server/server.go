// Package server exposes the function catalog, stored samples and background
// collect jobs over HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cwbudde/surfaces/internal/catalog"
	"github.com/cwbudde/surfaces/internal/ml"
	"github.com/cwbudde/surfaces/internal/store"
	"github.com/cwbudde/surfaces/internal/surface"
)

// Server represents the HTTP server
type Server struct {
	jobManager   *JobManager
	store        store.Store
	defaults     CollectDefaults
	addr         string
	pingInterval time.Duration
	server       *http.Server

	// baseCtx parents every job context; cancelled by Shutdown.
	baseCtx    context.Context
	cancelJobs context.CancelFunc
}

// NewServer creates a new HTTP server writing collected samples to st.
func NewServer(addr string, st store.Store, defaults CollectDefaults) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		jobManager:   NewJobManager(),
		store:        st,
		defaults:     defaults,
		addr:         addr,
		pingInterval: 30 * time.Second,
		baseCtx:      ctx,
		cancelJobs:   cancel,
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/functions", s.handleListFunctions)
	mux.HandleFunc("POST /api/v1/functions/{name}/evaluate", s.handleEvaluate)
	mux.HandleFunc("GET /api/v1/functions/{name}/samples", s.handleGetSamples)

	mux.HandleFunc("POST /api/v1/jobs", s.handleCreateJob)
	mux.HandleFunc("GET /api/v1/jobs", s.handleListJobs)
	mux.HandleFunc("GET /api/v1/jobs/{id}", s.handleGetJob)
	mux.HandleFunc("DELETE /api/v1/jobs/{id}", s.handleDeleteJob)
	mux.HandleFunc("GET /api/v1/jobs/{id}/stream", s.handleJobStream)

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting HTTP server", "addr", s.addr, "store", s.store.Location())
	return s.server.ListenAndServe()
}

// Shutdown cancels running jobs and gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server", "running_jobs", len(s.jobManager.GetRunningJobs()))
	s.cancelJobs()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

type functionInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Math        bool           `json:"math"`
	Metric      surface.Metric `json:"metric"`
	Parameters  surface.Schema `json:"parameters"`
	GridSize    int            `json:"gridSize"`
}

// handleListFunctions handles GET /api/v1/functions
func (s *Server) handleListFunctions(w http.ResponseWriter, r *http.Request) {
	infos := make([]functionInfo, 0, len(catalog.Names()))
	for _, e := range catalog.Entries() {
		fn, err := e.New(catalog.Settings{})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		infos = append(infos, functionInfo{
			Name:        e.Name,
			Description: e.Description,
			Math:        e.Math,
			Metric:      fn.Metric(),
			Parameters:  fn.Schema(),
			GridSize:    fn.DefaultSpace().Size(),
		})
	}
	writeJSON(w, http.StatusOK, infos)
}

type evaluateRequest struct {
	Params  surface.Params `json:"params"`
	Metric  string         `json:"metric,omitempty"`
	NDim    int            `json:"ndim,omitempty"`
	Scoring string         `json:"scoring,omitempty"`
}

type evaluateResponse struct {
	Function string         `json:"function"`
	Metric   surface.Metric `json:"metric"`
	Params   surface.Params `json:"params"`
	Value    *float64       `json:"value"`
}

// handleEvaluate handles POST /api/v1/functions/{name}/evaluate
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	metric, err := surface.ParseMetric(req.Metric)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	fn, err := catalog.New(r.PathValue("name"), catalog.Settings{
		Metric:  metric,
		NDim:    req.NDim,
		Scoring: ml.Scoring(req.Scoring),
	})
	if err != nil {
		writeError(w, requestStatus(err), err)
		return
	}

	value, err := surface.EvaluateContext(r.Context(), fn, req.Params)
	if err != nil {
		writeError(w, requestStatus(err), err)
		return
	}

	writeJSON(w, http.StatusOK, evaluateResponse{
		Function: fn.Name(),
		Metric:   fn.Metric(),
		Params:   req.Params,
		Value:    finite(value),
	})
}

// handleGetSamples handles GET /api/v1/functions/{name}/samples
func (s *Server) handleGetSamples(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, err := catalog.Lookup(name); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	t, err := s.store.Load(r.Context(), name)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handleCreateJob handles POST /api/v1/jobs
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var config JobConfig
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if config.Function == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("function is required"))
		return
	}
	if config.Patience < 0 || config.RoundBudget < 0 || config.Concurrent < 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("patience, roundBudget and concurrent must be >= 0"))
		return
	}
	if _, _, _, err := resolveJob(config); err != nil {
		writeError(w, requestStatus(err), err)
		return
	}

	job, ctx, err := s.jobManager.CreateJob(s.baseCtx, config)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	go runJob(ctx, s.jobManager, s.store, s.defaults, job.ID)

	writeJSON(w, http.StatusCreated, job)
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobManager.ListJobs())
}

type jobStatus struct {
	Job
	Elapsed float64 `json:"elapsed"`
}

// handleGetJob handles GET /api/v1/jobs/{id}
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: %s", ErrJobNotFound, jobID))
		return
	}

	var elapsed time.Duration
	if job.EndTime != nil {
		elapsed = job.EndTime.Sub(job.StartTime)
	} else {
		elapsed = time.Since(job.StartTime)
	}
	writeJSON(w, http.StatusOK, jobStatus{Job: job, Elapsed: elapsed.Seconds()})
}

// handleDeleteJob handles DELETE /api/v1/jobs/{id}. Unfinished jobs are
// cancelled; finished jobs are removed.
func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	cancelled, err := s.jobManager.CancelJob(jobID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if cancelled {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if err := s.jobManager.RemoveJob(jobID); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requestStatus is statusFor with unclassified errors blamed on the request.
func requestStatus(err error) int {
	if status := statusFor(err); status != http.StatusInternalServerError {
		return status
	}
	return http.StatusBadRequest
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
