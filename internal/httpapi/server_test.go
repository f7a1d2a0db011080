package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpusd/corpusd/internal/chunker"
	"github.com/corpusd/corpusd/internal/embedder"
	"github.com/corpusd/corpusd/internal/ingest"
	"github.com/corpusd/corpusd/internal/jobstore"
	"github.com/corpusd/corpusd/internal/parser"
	"github.com/corpusd/corpusd/internal/searcher"
	"github.com/corpusd/corpusd/internal/storage"
	"github.com/corpusd/corpusd/internal/taskqueue"
	"github.com/corpusd/corpusd/internal/vectorstore"
	"github.com/corpusd/corpusd/pkg/types"
)

type apiEnv struct {
	server *httptest.Server
	broker taskqueue.Broker
	worker *ingest.Worker
	jobs   *jobstore.Store
	root   string
}

func newAPIEnv(t *testing.T, batchSize int) *apiEnv {
	t.Helper()

	db, err := storage.Open(filepath.Join(t.TempDir(), "corpus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	jobs := jobstore.New(db)
	vectors := vectorstore.NewMemoryStore()
	broker := taskqueue.NewMemoryBroker(taskqueue.Options{})
	emb, err := embedder.NewLocalProvider(nil)
	require.NoError(t, err)

	root := t.TempDir()
	parsers := parser.NewRegistry()
	merger := ingest.NewMerger(jobs, vectors)
	dispatcher := ingest.NewDispatcher(jobs, broker, merger, batchSize)
	worker := ingest.NewWorker(jobs, vectors, parsers, chunker.New(chunker.Config{}), emb, merger)
	pipeline := ingest.NewPipeline(jobs, vectors, dispatcher, parsers, merger,
		[]ingest.Source{{Name: "docs", Root: root}})

	search, err := searcher.New(vectors, emb, 0)
	require.NoError(t, err)

	srv := httptest.NewServer(NewServer(pipeline, worker, merger, jobs, search).Router())
	t.Cleanup(srv.Close)

	return &apiEnv{server: srv, broker: broker, worker: worker, jobs: jobs, root: root}
}

func (e *apiEnv) writeFiles(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		content := fmt.Sprintf("# %s\n\nBody text for %s.\n", name, name)
		require.NoError(t, os.WriteFile(filepath.Join(e.root, name), []byte(content), 0o644))
	}
}

// pump drains enqueued batch tasks, as the queue runner would.
func (e *apiEnv) pump(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for {
		task, err := e.broker.Claim(ctx, ingest.QueueBatches)
		require.NoError(t, err)
		if task == nil {
			return
		}
		require.NoError(t, e.worker.Handle(ctx, task))
		require.NoError(t, e.broker.Ack(ctx, task.ID))
	}
}

func (e *apiEnv) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(e.server.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func (e *apiEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.server.URL + path)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestIngestEndpoint(t *testing.T) {
	e := newAPIEnv(t, 2)
	e.writeFiles(t, "a.md", "b.md", "c.md")

	resp := e.post(t, "/ingest", map[string]string{"source": "docs"})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	body := decode[ingestResponse](t, resp)
	assert.NotEmpty(t, body.JobID)
	assert.Equal(t, "docs", body.CollectionName)
	assert.Equal(t, 2, body.TotalBatches)

	// The run is still in flight; a second request for the same source
	// is refused until it finalizes
	resp = e.post(t, "/ingest", map[string]string{"source": "docs"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	e.pump(t)

	resp = e.post(t, "/ingest", map[string]string{"source": "docs"})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()
}

func TestIngestEndpoint_Errors(t *testing.T) {
	e := newAPIEnv(t, 2)

	resp := e.post(t, "/ingest", map[string]string{"source": "nope"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = e.post(t, "/ingest", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	r, err := http.Post(e.server.URL+"/ingest", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, r.StatusCode)
	r.Body.Close()
}

func TestJobEndpoints(t *testing.T) {
	e := newAPIEnv(t, 2)
	e.writeFiles(t, "a.md", "b.md", "c.md")

	accepted := decode[ingestResponse](t, e.post(t, "/ingest", map[string]string{"source": "docs"}))
	e.pump(t)

	resp := e.get(t, "/jobs/"+accepted.JobID)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	job := decode[jobResponse](t, resp)
	assert.Equal(t, types.JobCompleted, job.Status)
	assert.Len(t, job.SubJobs, 2)
	assert.Equal(t, 3, job.Stats.ProcessedFiles)

	// Sub-jobs are fetchable but carry no rollup
	resp = e.get(t, "/jobs/"+job.SubJobs[0].ID)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	sub := decode[jobResponse](t, resp)
	assert.Empty(t, sub.SubJobs)

	resp = e.get(t, "/jobs/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	// Listing returns only parents
	list := decode[struct {
		Jobs []*types.Job `json:"jobs"`
	}](t, e.get(t, "/jobs?source=docs&status=COMPLETED"))
	require.Len(t, list.Jobs, 1)
	assert.Equal(t, accepted.JobID, list.Jobs[0].ID)

	resp = e.get(t, "/jobs?status=BOGUS")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = e.get(t, "/jobs?limit=-1")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestIngestBatchEndpoint(t *testing.T) {
	e := newAPIEnv(t, 10)
	e.writeFiles(t, "a.md", "b.md")

	accepted := decode[ingestResponse](t, e.post(t, "/ingest", map[string]string{"source": "docs"}))

	// Drive the single batch through the HTTP hook instead of the queue
	resp := e.post(t, "/ingest-batch", map[string]any{
		"parent_job_id": accepted.JobID,
		"batch_index":   0,
		"files":         []string{"a.md", "b.md"},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	job := decode[jobResponse](t, e.get(t, "/jobs/"+accepted.JobID))
	assert.Equal(t, types.JobCompleted, job.Status)
	assert.Equal(t, 2, job.Stats.TotalChunks)
}

func TestIngestBatchEndpoint_UnknownJob(t *testing.T) {
	e := newAPIEnv(t, 10)

	resp := e.post(t, "/ingest-batch", map[string]any{"parent_job_id": "ghost", "batch_index": 0})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestMergeBatchesEndpoint(t *testing.T) {
	e := newAPIEnv(t, 10)
	e.writeFiles(t, "a.md")

	accepted := decode[ingestResponse](t, e.post(t, "/ingest", map[string]string{"source": "docs"}))

	// Sub-jobs still pending: merge refused, not a server error
	resp := e.post(t, "/merge-batches", map[string]string{"parent_job_id": accepted.JobID})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	e.pump(t)

	// Re-running the merge on a finished parent returns its stats
	resp = e.post(t, "/merge-batches", map[string]string{"parent_job_id": accepted.JobID})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[struct {
		Stats types.JobStats `json:"stats"`
	}](t, resp)
	assert.Equal(t, 1, body.Stats.TotalChunks)

	resp = e.post(t, "/merge-batches", map[string]string{"parent_job_id": "ghost"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestSearchEndpoint(t *testing.T) {
	e := newAPIEnv(t, 10)
	e.writeFiles(t, "a.md", "b.md")

	e.post(t, "/ingest", map[string]string{"source": "docs"}).Body.Close()
	e.pump(t)

	resp := e.post(t, "/search", map[string]any{"query": "body text", "sources": []string{"docs"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[struct {
		Results  []types.SearchResult `json:"results"`
		CacheHit bool                 `json:"cache_hit"`
	}](t, resp)
	assert.Len(t, body.Results, 2)
	assert.False(t, body.CacheHit)

	resp = e.post(t, "/search", map[string]any{"query": "body text", "sources": []string{"docs"}})
	second := decode[struct {
		Results  []types.SearchResult `json:"results"`
		CacheHit bool                 `json:"cache_hit"`
	}](t, resp)
	assert.True(t, second.CacheHit)
	assert.Equal(t, body.Results, second.Results)

	resp = e.post(t, "/search", map[string]any{"query": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestHealthEndpoint(t *testing.T) {
	e := newAPIEnv(t, 10)

	resp := e.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[map[string]any](t, resp)
	assert.Equal(t, true, body["ok"])
}
