package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrProviderFailed    = errors.New("embedding provider failed")
	ErrUnsupportedModel  = errors.New("unsupported model")
	ErrEmptyText         = errors.New("text cannot be empty")
	ErrBatchTooLarge     = errors.New("batch size exceeds limit")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
)

// Embedder turns text into vectors. Implementations wrap one provider
// and may share a content-hash Cache so identical chunks are never
// embedded twice.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error)
	GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error)

	// Dimension is fixed per provider and model. Vectors of different
	// dimensions cannot live in the same collection.
	Dimension() int
	Provider() string
	Model() string
	Close() error
}

// Embedding is one vector plus the provenance needed to tell whether a
// cached entry is still usable.
type Embedding struct {
	Vector    []float32
	Dimension int
	Provider  string
	Model     string
	Hash      string // sha256 of the source text, the cache key
}

// EmbeddingRequest asks for one vector. Model, when set, overrides the
// provider default.
type EmbeddingRequest struct {
	Text  string
	Model string
}

// BatchEmbeddingRequest asks for vectors for several texts in one
// provider round trip.
type BatchEmbeddingRequest struct {
	Texts []string
	Model string
}

// BatchEmbeddingResponse carries the vectors in input order.
type BatchEmbeddingResponse struct {
	Embeddings []*Embedding
	Provider   string
	Model      string
}

// ComputeHash derives the cache key for a piece of text.
func ComputeHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// ValidateRequest rejects requests with nothing to embed.
func ValidateRequest(req EmbeddingRequest) error {
	if req.Text == "" {
		return ErrEmptyText
	}
	return nil
}

// ValidateBatchRequest rejects empty batches and batches containing
// empty texts, which providers either error on or silently skip.
func ValidateBatchRequest(req BatchEmbeddingRequest) error {
	if len(req.Texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	}
	for i, text := range req.Texts {
		if text == "" {
			return fmt.Errorf("%w: text at index %d is empty", ErrInvalidInput, i)
		}
	}
	return nil
}

// Cache is an LRU of embeddings keyed by content hash. Safe for
// concurrent use.
type Cache struct {
	entries *lru.Cache[string, *Embedding]
}

const defaultCacheSize = 10000

// NewCache builds a cache holding at most maxLen embeddings; sizes
// below one fall back to a default.
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = defaultCacheSize
	}
	entries, _ := lru.New[string, *Embedding](maxLen)
	return &Cache{entries: entries}
}

// Get looks up an embedding by content hash. The returned value is a
// copy; callers may mutate it without corrupting the cache.
func (c *Cache) Get(hash string) (*Embedding, bool) {
	emb, ok := c.entries.Get(hash)
	if !ok {
		return nil, false
	}
	cp := *emb
	cp.Vector = append([]float32(nil), emb.Vector...)
	return &cp, true
}

// Set stores an embedding, evicting the least recently used entry when
// the cache is full.
func (c *Cache) Set(hash string, emb *Embedding) {
	c.entries.Add(hash, emb)
}

// Size reports the number of cached embeddings.
func (c *Cache) Size() int {
	return c.entries.Len()
}

// Clear drops every cached embedding.
func (c *Cache) Clear() {
	c.entries.Purge()
}
