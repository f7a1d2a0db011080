package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/corpusd/corpusd/internal/ingest"
	"github.com/corpusd/corpusd/internal/jobstore"
	"github.com/corpusd/corpusd/internal/searcher"
	"github.com/corpusd/corpusd/internal/taskqueue"
	"github.com/corpusd/corpusd/pkg/types"
)

// Server exposes the ingestion and query surface over HTTP.
type Server struct {
	pipeline *ingest.Pipeline
	worker   *ingest.Worker
	merger   *ingest.Merger
	jobs     *jobstore.Store
	searcher *searcher.Searcher
}

// NewServer wires the HTTP surface from its collaborators.
func NewServer(pipeline *ingest.Pipeline, worker *ingest.Worker, merger *ingest.Merger,
	jobs *jobstore.Store, search *searcher.Searcher) *Server {
	return &Server{
		pipeline: pipeline,
		worker:   worker,
		merger:   merger,
		jobs:     jobs,
		searcher: search,
	}
}

// Router builds the request mux.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /ingest", s.handleIngest)
	mux.HandleFunc("POST /ingest-batch", s.handleIngestBatch)
	mux.HandleFunc("POST /merge-batches", s.handleMergeBatches)
	mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)
	mux.HandleFunc("GET /jobs", s.handleListJobs)
	mux.HandleFunc("POST /search", s.handleSearch)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	// Listing jobs exercises the store; an unreachable database makes
	// the process not ready.
	_, err := s.jobs.ListJobs(r.Context(), "", "", 1)
	if err != nil {
		log.Printf("httpapi: health check failed: %v", err)
		writeError(w, http.StatusServiceUnavailable, "job store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"time_utc": time.Now().UTC().Format(time.RFC3339),
		"sources":  s.pipeline.Sources(),
	})
}

type ingestRequest struct {
	Source string `json:"source"`
}

type ingestResponse struct {
	JobID          string `json:"job_id"`
	CollectionName string `json:"collection_name"`
	TotalBatches   int    `json:"total_batches"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Source == "" {
		writeError(w, http.StatusBadRequest, "source is required")
		return
	}

	parent, err := s.pipeline.Ingest(r.Context(), req.Source)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown source "+req.Source)
			return
		}
		if errors.Is(err, types.ErrAlreadyExists) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		log.Printf("httpapi: ingest %s failed: %v", req.Source, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, ingestResponse{
		JobID:          parent.ID,
		CollectionName: parent.CollectionName,
		TotalBatches:   parent.TotalBatches,
	})
}

type ingestBatchRequest struct {
	ParentJobID string   `json:"parent_job_id"`
	BatchIndex  int      `json:"batch_index"`
	Files       []string `json:"files"`
}

// handleIngestBatch runs one batch synchronously, the same path a queue
// worker takes. Handler errors come back 5xx so an external queue can
// redeliver.
func (s *Server) handleIngestBatch(w http.ResponseWriter, r *http.Request) {
	var req ingestBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ParentJobID == "" {
		writeError(w, http.StatusBadRequest, "parent_job_id is required")
		return
	}

	parent, err := s.jobs.GetJob(r.Context(), req.ParentJobID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown job "+req.ParentJobID)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	root, ok := s.pipeline.SourceRoot(parent.Source)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown source "+parent.Source)
		return
	}

	payload, err := json.Marshal(ingest.BatchTask{
		ParentJobID: req.ParentJobID,
		BatchIndex:  req.BatchIndex,
		Source:      parent.Source,
		SourceRoot:  root,
		Files:       req.Files,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.worker.Handle(r.Context(), &taskqueue.Task{Queue: ingest.QueueBatches, Payload: payload}); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		log.Printf("httpapi: batch %s/%d failed: %v", req.ParentJobID, req.BatchIndex, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}

type mergeRequest struct {
	ParentJobID string `json:"parent_job_id"`
}

func (s *Server) handleMergeBatches(w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ParentJobID == "" {
		writeError(w, http.StatusBadRequest, "parent_job_id is required")
		return
	}

	stats, err := s.merger.Finalize(r.Context(), req.ParentJobID)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrNotFound):
			writeError(w, http.StatusNotFound, "unknown job "+req.ParentJobID)
		case errors.Is(err, types.ErrMerge):
			// Not ready or not retryable yet; the job record carries the
			// detail
			writeError(w, http.StatusConflict, err.Error())
		default:
			log.Printf("httpapi: merge %s failed: %v", req.ParentJobID, err)
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

type jobResponse struct {
	*types.Job
	SubJobs []*types.Job `json:"sub_jobs,omitempty"`
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	job, err := s.jobs.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown job "+id)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := jobResponse{Job: job}
	if job.IsParent() {
		subs, err := s.jobs.ListSubJobs(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.SubJobs = subs
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	status := types.JobStatus(q.Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid status "+string(status))
		return
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	jobs, err := s.jobs.ListJobs(r.Context(), q.Get("source"), status, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

type searchRequest struct {
	Query    string   `json:"query"`
	Sources  []string `json:"sources"`
	NResults int      `json:"n_results"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	resp, err := s.searcher.Search(r.Context(), searcher.Request{
		Query:   req.Query,
		Sources: req.Sources,
		Limit:   req.NResults,
	})
	if err != nil {
		log.Printf("httpapi: search failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"results":   resp.Results,
		"cache_hit": resp.CacheHit,
	})
}

// Serve runs the HTTP server until ctx is canceled, then drains with a
// short shutdown grace period.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // batch endpoints do real work
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("httpapi: listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
