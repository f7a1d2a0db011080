package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpusd/corpusd/internal/embedder"
	"github.com/corpusd/corpusd/internal/jobstore"
	"github.com/corpusd/corpusd/internal/searcher"
	"github.com/corpusd/corpusd/internal/storage"
	"github.com/corpusd/corpusd/internal/vectorstore"
	"github.com/corpusd/corpusd/pkg/types"
)

func newTestServer(t *testing.T) (*Server, *jobstore.Store, vectorstore.Store) {
	t.Helper()

	db, err := storage.Open(filepath.Join(t.TempDir(), "corpus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	jobs := jobstore.New(db)
	vectors := vectorstore.NewMemoryStore()
	emb, err := embedder.NewLocalProvider(nil)
	require.NoError(t, err)

	search, err := searcher.New(vectors, emb, 0)
	require.NoError(t, err)

	return NewServer(search, jobs, []string{"docs", "wiki"}), jobs, vectors
}

func callRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// resultText extracts the text payload of a tool result.
func resultText(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotEmpty(t, result.Content)

	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok, "expected text content")

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &payload))
	return payload
}

func seedChunks(t *testing.T, vectors vectorstore.Store, collection string, contents ...string) {
	t.Helper()

	// The local provider is deterministic, so a fresh instance produces
	// the same vectors the server's searcher will query with.
	emb, err := embedder.NewLocalProvider(nil)
	require.NoError(t, err)

	chunks := make([]types.Chunk, len(contents))
	for i, content := range contents {
		vec, err := emb.GenerateEmbedding(context.Background(), embedder.EmbeddingRequest{Text: content})
		require.NoError(t, err)
		chunks[i] = types.Chunk{
			SourceName:  collection,
			SourcePath:  collection + "/doc.md",
			Content:     content,
			StartOffset: i * 100,
			EndOffset:   i*100 + len(content),
			Embedding:   vec.Vector,
		}
		chunks[i].ComputeID()
		chunks[i].ComputeTokenCount()
	}
	require.NoError(t, vectors.Add(context.Background(), collection, chunks))
}

func TestSearchCorpusTool(t *testing.T) {
	s, _, vectors := newTestServer(t)
	seedChunks(t, vectors, "docs", "how storage engines work", "btree internals")

	result, err := s.handleSearchCorpus(context.Background(), callRequest("search_corpus", map[string]interface{}{
		"query":     "storage engines",
		"sources":   []interface{}{"docs"},
		"n_results": float64(5),
	}))
	require.NoError(t, err)

	payload := resultText(t, result)
	assert.Equal(t, float64(2), payload["count"])
	assert.Equal(t, false, payload["cache_hit"])

	// Second call hits the query cache
	result, err = s.handleSearchCorpus(context.Background(), callRequest("search_corpus", map[string]interface{}{
		"query":     "storage engines",
		"sources":   []interface{}{"docs"},
		"n_results": float64(5),
	}))
	require.NoError(t, err)
	assert.Equal(t, true, resultText(t, result)["cache_hit"])
}

func TestSearchCorpusTool_Validation(t *testing.T) {
	s, _, _ := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleSearchCorpus(ctx, callRequest("search_corpus", map[string]interface{}{}))
	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrorCodeEmptyQuery, mcpErr.Code)

	_, err = s.handleSearchCorpus(ctx, callRequest("search_corpus", map[string]interface{}{
		"query":     "q",
		"n_results": float64(500),
	}))
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
}

func TestGetJobStatusTool(t *testing.T) {
	s, jobs, _ := newTestServer(t)
	ctx := context.Background()

	parent := &types.Job{
		ID:             "run-1",
		Source:         "docs",
		CollectionName: "docs",
		Status:         types.JobPending,
		TotalBatches:   1,
		Stats:          types.JobStats{TotalFiles: 2},
	}
	require.NoError(t, jobs.CreateJob(ctx, parent))
	sub := &types.Job{
		ID:             types.SubJobID(parent.ID, 0),
		ParentID:       parent.ID,
		Source:         "docs",
		CollectionName: types.BatchCollection(parent.ID, 0),
		Status:         types.JobPending,
		Stats:          types.JobStats{TotalFiles: 2},
	}
	require.NoError(t, jobs.CreateJob(ctx, sub))

	result, err := s.handleGetJobStatus(ctx, callRequest("get_job_status", map[string]interface{}{
		"job_id": "run-1",
	}))
	require.NoError(t, err)

	payload := resultText(t, result)
	assert.Equal(t, "run-1", payload["job_id"])
	assert.Equal(t, "PENDING", payload["status"])
	assert.Equal(t, float64(1), payload["total_batches"])

	subs, ok := payload["sub_jobs"].([]interface{})
	require.True(t, ok)
	assert.Len(t, subs, 1)
}

func TestGetJobStatusTool_NotFound(t *testing.T) {
	s, _, _ := newTestServer(t)

	_, err := s.handleGetJobStatus(context.Background(), callRequest("get_job_status", map[string]interface{}{
		"job_id": "ghost",
	}))
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrorCodeJobNotFound, mcpErr.Code)
}

func TestListSourcesTool(t *testing.T) {
	s, jobs, _ := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, jobs.PutPipelineState(ctx, &types.PipelineState{
		Source:         "docs",
		LastCommit:     "abc123",
		ProcessedFiles: []string{"a.md"},
		TotalChunks:    3,
	}))

	result, err := s.handleListSources(ctx, callRequest("list_sources", map[string]interface{}{}))
	require.NoError(t, err)

	payload := resultText(t, result)
	sources, ok := payload["sources"].([]interface{})
	require.True(t, ok)
	require.Len(t, sources, 2)

	docs := sources[0].(map[string]interface{})
	assert.Equal(t, "docs", docs["name"])
	assert.Equal(t, true, docs["ingested"])
	assert.Equal(t, "abc123", docs["last_commit"])

	wiki := sources[1].(map[string]interface{})
	assert.Equal(t, false, wiki["ingested"])
}
