package vectorstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpusd/corpusd/internal/storage"
	"github.com/corpusd/corpusd/pkg/types"
)

func testChunk(path string, offset int, vec []float32) types.Chunk {
	c := types.Chunk{
		SourcePath:     path,
		SourceName:     "docs",
		Content:        "content for " + path,
		SectionHeaders: []string{"Guide"},
		StartOffset:    offset,
		EndOffset:      offset + 20,
		Embedding:      vec,
	}
	c.ComputeID()
	c.ComputeTokenCount()
	return c
}

// Both implementations must satisfy the same contract.
func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Helper()

	t.Run("sqlite", func(t *testing.T) {
		db, err := storage.Open(filepath.Join(t.TempDir(), "vec.db"))
		require.NoError(t, err)
		defer db.Close()
		fn(t, NewSQLiteStore(db))
	})

	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
}

func TestStore_AddAndSearch(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		chunks := []types.Chunk{
			testChunk("a.md", 0, []float32{1, 0, 0}),
			testChunk("b.md", 0, []float32{0, 1, 0}),
			testChunk("c.md", 0, []float32{0.9, 0.1, 0}),
		}
		require.NoError(t, s.Add(ctx, "docs", chunks))

		results, err := s.Search(ctx, "docs", []float32{1, 0, 0}, 2)
		require.NoError(t, err)
		require.Len(t, results, 2)

		// Exact match first, near match second
		assert.Equal(t, chunks[0].ID, results[0].ChunkID)
		assert.Equal(t, chunks[2].ID, results[1].ChunkID)
		assert.InDelta(t, 1.0, results[0].Score, 1e-6)
		assert.Greater(t, results[0].Score, results[1].Score)
		assert.Equal(t, "docs", results[0].Source)
		assert.Equal(t, []string{"Guide"}, results[0].SectionHeaders)
	})
}

func TestStore_AddIsUpsert(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		chunk := testChunk("a.md", 0, []float32{1, 0, 0})
		require.NoError(t, s.Add(ctx, "docs", []types.Chunk{chunk}))

		// Same ID, new content: second write wins, no duplicate
		chunk.Content = "revised content"
		require.NoError(t, s.Add(ctx, "docs", []types.Chunk{chunk}))

		count, err := s.Count(ctx, "docs")
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		results, err := s.Search(ctx, "docs", []float32{1, 0, 0}, 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "revised content", results[0].Content)
	})
}

func TestStore_SearchMissingCollection(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		_, err := s.Search(context.Background(), "nope", []float32{1}, 5)
		assert.ErrorIs(t, err, types.ErrNotFound)
	})
}

func TestStore_SearchSkipsDimensionMismatch(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		require.NoError(t, s.Add(ctx, "docs", []types.Chunk{
			testChunk("a.md", 0, []float32{1, 0, 0}),
			testChunk("b.md", 0, []float32{1, 0}),
		}))

		results, err := s.Search(ctx, "docs", []float32{1, 0, 0}, 10)
		require.NoError(t, err)
		assert.Len(t, results, 1)
	})
}

func TestStore_CopyCollection(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		shared := testChunk("shared.md", 0, []float32{0, 1, 0})
		require.NoError(t, s.Add(ctx, "job1_batch_0000", []types.Chunk{
			testChunk("a.md", 0, []float32{1, 0, 0}),
			shared,
		}))

		// Canonical already holds an older version of the shared chunk
		stale := shared
		stale.Content = "stale"
		require.NoError(t, s.Add(ctx, "docs", []types.Chunk{stale}))

		require.NoError(t, s.CopyCollection(ctx, "job1_batch_0000", "docs"))

		count, err := s.Count(ctx, "docs")
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		// Copy overwrote the stale version
		results, err := s.Search(ctx, "docs", []float32{0, 1, 0}, 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, shared.Content, results[0].Content)
	})
}

func TestStore_CopyMissingSource(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		err := s.CopyCollection(context.Background(), "missing", "docs")
		assert.ErrorIs(t, err, types.ErrNotFound)
	})
}

func TestStore_DeleteCollection(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		require.NoError(t, s.Add(ctx, "docs", []types.Chunk{testChunk("a.md", 0, []float32{1})}))
		require.NoError(t, s.DeleteCollection(ctx, "docs"))

		_, err := s.Count(ctx, "docs")
		assert.ErrorIs(t, err, types.ErrNotFound)

		// Deleting again is fine
		assert.NoError(t, s.DeleteCollection(ctx, "docs"))
	})
}

func TestStore_DeleteByPath(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		require.NoError(t, s.Add(ctx, "docs", []types.Chunk{
			testChunk("a.md", 0, []float32{1}),
			testChunk("a.md", 40, []float32{1}),
			testChunk("b.md", 0, []float32{1}),
		}))

		require.NoError(t, s.DeleteByPath(ctx, "docs", "a.md"))

		count, err := s.Count(ctx, "docs")
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		// Missing path and missing collection are no-ops
		assert.NoError(t, s.DeleteByPath(ctx, "docs", "gone.md"))
		assert.NoError(t, s.DeleteByPath(ctx, "nope", "a.md"))
	})
}

func TestStore_ListCollectionsByPrefix(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		for _, name := range []string{"docs", "job1_batch_0000", "job1_batch_0001", "job2_batch_0000"} {
			require.NoError(t, s.EnsureCollection(ctx, name))
		}

		names, err := s.ListCollections(ctx, "job1_batch_")
		require.NoError(t, err)
		assert.Equal(t, []string{"job1_batch_0000", "job1_batch_0001"}, names)

		all, err := s.ListCollections(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 4)
	})
}

func TestStore_RejectsInvalidChunk(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		bad := types.Chunk{SourcePath: "a.md", Content: "x"} // no ID
		err := s.Add(context.Background(), "docs", []types.Chunk{bad})
		assert.Error(t, err)
	})
}

func TestVectorSerialization(t *testing.T) {
	vec := []float32{1.5, -2.25, 0, 3.14159}
	blob := SerializeVector(vec)
	assert.Len(t, blob, len(vec)*4)
	assert.Equal(t, vec, DeserializeVector(blob))
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Zero(t, CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}), "dimension mismatch")
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 0}), "zero vector")
}
