package vectorstore

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/corpusd/corpusd/pkg/types"
)

// Store is the collection-scoped vector storage interface.
type Store interface {
	// EnsureCollection creates the collection if it does not exist.
	EnsureCollection(ctx context.Context, name string) error

	// Add upserts chunks into the collection, keyed by chunk ID. The
	// collection is created if needed.
	Add(ctx context.Context, collection string, chunks []types.Chunk) error

	// Search returns the top-k chunks of the collection by cosine
	// similarity to the query vector. A missing collection yields
	// types.ErrNotFound.
	Search(ctx context.Context, collection string, vector []float32, limit int) ([]types.SearchResult, error)

	// CopyCollection upserts every chunk of src into dst.
	CopyCollection(ctx context.Context, src, dst string) error

	// DeleteCollection removes the collection and all its chunks.
	// Deleting a missing collection is not an error.
	DeleteCollection(ctx context.Context, name string) error

	// DeleteByPath removes every chunk of the collection that came from
	// the given source path. Used when incremental sync sees a deleted
	// file. Missing collections and paths are not an error.
	DeleteByPath(ctx context.Context, collection, sourcePath string) error

	// ListCollections returns collection names with the given prefix,
	// sorted. An empty prefix lists everything.
	ListCollections(ctx context.Context, prefix string) ([]string, error)

	// Count returns the number of chunks in the collection. A missing
	// collection yields types.ErrNotFound.
	Count(ctx context.Context, collection string) (int, error)
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// SerializeVector is an exported helper for testing
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector is an exported helper for testing
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

// CosineSimilarity is an exported helper for testing
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}
