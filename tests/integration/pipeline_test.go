package integration

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
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/corpusd/corpusd/internal/chunker"
	"github.com/corpusd/corpusd/internal/embedder"
	"github.com/corpusd/corpusd/internal/httpapi"
	"github.com/corpusd/corpusd/internal/ingest"
	"github.com/corpusd/corpusd/internal/jobstore"
	"github.com/corpusd/corpusd/internal/parser"
	"github.com/corpusd/corpusd/internal/searcher"
	"github.com/corpusd/corpusd/internal/storage"
	"github.com/corpusd/corpusd/internal/taskqueue"
	"github.com/corpusd/corpusd/internal/vectorstore"
	"github.com/corpusd/corpusd/pkg/types"
)

// PipelineSuite runs the full service graph: SQLite-backed stores and
// queue, a live worker pool, and the search path on top.
type PipelineSuite struct {
	suite.Suite
	ctx    context.Context
	cancel context.CancelFunc

	db       *storage.DB
	jobs     *jobstore.Store
	vectors  vectorstore.Store
	worker   *ingest.Worker
	merger   *ingest.Merger
	pipeline *ingest.Pipeline
	searcher *searcher.Searcher

	runnerDone chan error
	root       string
}

func (s *PipelineSuite) SetupTest() {
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.root = s.T().TempDir()

	db, err := storage.Open(filepath.Join(s.T().TempDir(), "corpus.db"))
	s.Require().NoError(err)
	s.db = db

	s.jobs = jobstore.New(db)
	s.vectors = vectorstore.NewSQLiteStore(db)
	broker := taskqueue.NewSQLiteBroker(db, taskqueue.Options{})

	emb, err := embedder.NewLocalProvider(nil)
	s.Require().NoError(err)

	parsers := parser.NewRegistry()
	ch := chunker.New(chunker.Config{})

	s.merger = ingest.NewMerger(s.jobs, s.vectors)
	dispatcher := ingest.NewDispatcher(s.jobs, broker, s.merger, 2)
	s.worker = ingest.NewWorker(s.jobs, s.vectors, parsers, ch, emb, s.merger)
	s.pipeline = ingest.NewPipeline(s.jobs, s.vectors, dispatcher, parsers, s.merger,
		[]ingest.Source{{Name: "docs", Root: s.root}})

	s.searcher, err = searcher.New(s.vectors, emb, 0)
	s.Require().NoError(err)
	s.merger.OnFinalize(func(ctx context.Context, parent *types.Job) {
		if parent.Status == types.JobCompleted {
			s.searcher.InvalidateCache()
		}
	})

	runner := taskqueue.NewRunner(broker, 2, 10*time.Millisecond)
	runner.Register(ingest.QueueBatches, s.worker.Handle)
	s.runnerDone = make(chan error, 1)
	go func() { s.runnerDone <- runner.Run(s.ctx) }()
}

func (s *PipelineSuite) TearDownTest() {
	s.cancel()
	<-s.runnerDone
	s.Require().NoError(s.db.Close())
}

func (s *PipelineSuite) writeDoc(name, body string) {
	content := fmt.Sprintf("# %s\n\n%s\n", name, body)
	s.Require().NoError(os.WriteFile(filepath.Join(s.root, name), []byte(content), 0o644))
}

// waitForJob polls until the job reaches a terminal state.
func (s *PipelineSuite) waitForJob(id string) *types.Job {
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		job, err := s.jobs.GetJob(s.ctx, id)
		s.Require().NoError(err)
		if job.Status.Terminal() {
			return job
		}
		time.Sleep(20 * time.Millisecond)
	}
	s.Require().FailNow("job did not reach a terminal state", "job %s", id)
	return nil
}

func (s *PipelineSuite) TestIngestThenSearch() {
	s.writeDoc("storage.md", "Vector search retrieves documents by semantic similarity.")
	s.writeDoc("queue.md", "Batch ingestion splits a corpus into parallel chunks.")
	s.writeDoc("sync.md", "Incremental sync re-processes only changed files.")

	parent, err := s.pipeline.Ingest(s.ctx, "docs")
	s.Require().NoError(err)
	s.Equal(2, parent.TotalBatches, "three files at batch size two")

	done := s.waitForJob(parent.ID)
	s.Equal(types.JobCompleted, done.Status)
	s.Equal(3, done.Stats.ProcessedFiles)

	count, err := s.vectors.Count(s.ctx, "docs")
	s.Require().NoError(err)
	s.Equal(3, count)

	// Scratch collections are gone after the merge
	batches, err := s.vectors.ListCollections(s.ctx, types.BatchCollectionPrefix(parent.ID))
	s.Require().NoError(err)
	s.Empty(batches)

	resp, err := s.searcher.Search(s.ctx, searcher.Request{
		Query:   "vector similarity search",
		Sources: []string{"docs"},
		Limit:   3,
	})
	s.Require().NoError(err)
	s.NotEmpty(resp.Results)
	s.False(resp.CacheHit)

	resp, err = s.searcher.Search(s.ctx, searcher.Request{
		Query:   "vector similarity search",
		Sources: []string{"docs"},
		Limit:   3,
	})
	s.Require().NoError(err)
	s.True(resp.CacheHit)
}

func (s *PipelineSuite) TestReingestIsIdempotentAndInvalidatesCache() {
	s.writeDoc("a.md", "The scheduler assigns work to idle machines.")

	parent, err := s.pipeline.Ingest(s.ctx, "docs")
	s.Require().NoError(err)
	s.waitForJob(parent.ID)

	req := searcher.Request{Query: "work scheduling", Sources: []string{"docs"}, Limit: 5}
	_, err = s.searcher.Search(s.ctx, req)
	s.Require().NoError(err)

	// Plain directories are fully re-ingested; upserts keep the
	// canonical collection duplicate-free.
	parent, err = s.pipeline.Ingest(s.ctx, "docs")
	s.Require().NoError(err)
	s.waitForJob(parent.ID)

	count, err := s.vectors.Count(s.ctx, "docs")
	s.Require().NoError(err)
	s.Equal(1, count)

	resp, err := s.searcher.Search(s.ctx, req)
	s.Require().NoError(err)
	s.False(resp.CacheHit, "completed run must drop cached results")
}

func (s *PipelineSuite) TestHTTPRoundTrip() {
	s.writeDoc("api.md", "The HTTP surface accepts ingestion and search requests.")

	api := httpapi.NewServer(s.pipeline, s.worker, s.merger, s.jobs, s.searcher)
	ts := httptest.NewServer(api.Router())
	defer ts.Close()

	body, err := json.Marshal(map[string]string{"source": "docs"})
	s.Require().NoError(err)
	resp, err := http.Post(ts.URL+"/ingest", "application/json", bytes.NewReader(body))
	s.Require().NoError(err)
	s.Require().Equal(http.StatusAccepted, resp.StatusCode)

	var accepted struct {
		JobID string `json:"job_id"`
	}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&accepted))
	s.Require().NoError(resp.Body.Close())

	done := s.waitForJob(accepted.JobID)
	s.Equal(types.JobCompleted, done.Status)

	body, err = json.Marshal(map[string]any{"query": "ingestion requests", "sources": []string{"docs"}})
	s.Require().NoError(err)
	resp, err = http.Post(ts.URL+"/search", "application/json", bytes.NewReader(body))
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var search struct {
		Results []types.SearchResult `json:"results"`
	}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&search))
	s.NotEmpty(search.Results)
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}
