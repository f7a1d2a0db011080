package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/corpusd/corpusd/internal/embedder"
	"github.com/corpusd/corpusd/internal/vectorstore"
	"github.com/corpusd/corpusd/pkg/types"
)

const (
	// SourcesAll selects every canonical collection.
	SourcesAll = "all"

	// DefaultCacheSize bounds the query cache.
	DefaultCacheSize = 100

	// DefaultLimit is the result count when the request leaves it unset.
	DefaultLimit = 10

	// MaxLimit caps the result count per request.
	MaxLimit = 100
)

// Request describes one multi-source search.
type Request struct {
	Query   string
	Sources []string // Source names, or a single "all" entry
	Limit   int
}

// Response carries merged search results and cache metadata.
type Response struct {
	Results  []types.SearchResult
	CacheHit bool
}

// Searcher answers similarity queries over canonical collections, with a
// bounded FIFO response cache in front of the vector store.
type Searcher struct {
	vectors  vectorstore.Store
	embedder embedder.Embedder

	mu    sync.Mutex
	cache *lru.Cache[[32]byte, []types.SearchResult]
}

// New creates a Searcher with the given cache capacity. A non-positive
// size falls back to DefaultCacheSize.
func New(vectors vectorstore.Store, emb embedder.Embedder, cacheSize int) (*Searcher, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[[32]byte, []types.SearchResult](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create query cache: %w", err)
	}
	return &Searcher{vectors: vectors, embedder: emb, cache: cache}, nil
}

// Search embeds the query, searches each named canonical collection,
// merges the per-source result lists by descending score, deduplicates by
// chunk id, and truncates to the requested limit.
//
// Sources that have not been ingested yet contribute nothing; they are
// not an error. Repeating a request returns the cached merged results
// without touching the store. The cache evicts in insertion order: reads
// never promote an entry, so a hot query ages out like any other.
func (s *Searcher) Search(ctx context.Context, req Request) (*Response, error) {
	if err := validateRequest(&req); err != nil {
		return nil, err
	}

	key := cacheKey(req)
	s.mu.Lock()
	// Peek, not Get: lookups must not refresh the entry's age
	cached, ok := s.cache.Peek(key)
	s.mu.Unlock()
	if ok {
		return &Response{Results: copyResults(cached), CacheHit: true}, nil
	}

	emb, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: req.Query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	sources, err := s.resolveSources(ctx, req.Sources)
	if err != nil {
		return nil, err
	}

	var merged []types.SearchResult
	for _, source := range sources {
		results, err := s.vectors.Search(ctx, source, emb.Vector, req.Limit)
		if err != nil {
			if errors.Is(err, types.ErrNotFound) {
				continue // Not ingested yet
			}
			return nil, fmt.Errorf("search %s: %w", source, err)
		}
		for i := range results {
			results[i].Source = source
		}
		merged = append(merged, results...)
	}

	merged = rank(merged, req.Limit)

	s.mu.Lock()
	s.cache.Add(key, copyResults(merged))
	s.mu.Unlock()

	return &Response{Results: merged}, nil
}

// InvalidateCache drops every cached response. Called after an ingestion
// run changes a canonical collection.
func (s *Searcher) InvalidateCache() {
	s.mu.Lock()
	s.cache.Purge()
	s.mu.Unlock()
}

// resolveSources expands the "all" selector into every canonical
// collection currently in the store.
func (s *Searcher) resolveSources(ctx context.Context, sources []string) ([]string, error) {
	if len(sources) != 1 || sources[0] != SourcesAll {
		return sources, nil
	}

	names, err := s.vectors.ListCollections(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}

	canonical := names[:0]
	for _, name := range names {
		// Batch collections are ingestion scratch space, never searched
		if strings.Contains(name, "_batch_") {
			continue
		}
		canonical = append(canonical, name)
	}
	return canonical, nil
}

// rank sorts by descending score, drops duplicate chunk ids, and
// truncates. Ties break on chunk id so identical inputs produce
// identical output.
func rank(results []types.SearchResult, limit int) []types.SearchResult {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	seen := make(map[string]bool, len(results))
	out := results[:0]
	for _, r := range results {
		if seen[r.ChunkID] {
			continue
		}
		seen[r.ChunkID] = true
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out
}

func validateRequest(req *Request) error {
	if req.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if len(req.Sources) == 0 {
		req.Sources = []string{SourcesAll}
	}
	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}
	return nil
}

// cacheKey hashes (query, sorted sources, limit) into a fixed-size key.
func cacheKey(req Request) [32]byte {
	sources := make([]string, len(req.Sources))
	copy(sources, req.Sources)
	sort.Strings(sources)

	var b strings.Builder
	b.WriteString(req.Query)
	b.WriteString("|")
	b.WriteString(strings.Join(sources, ","))
	b.WriteString("|")
	b.WriteString(strconv.Itoa(req.Limit))
	return sha256.Sum256([]byte(b.String()))
}

func copyResults(src []types.SearchResult) []types.SearchResult {
	out := make([]types.SearchResult, len(src))
	copy(out, src)
	for i := range out {
		if len(src[i].SectionHeaders) > 0 {
			out[i].SectionHeaders = append([]string(nil), src[i].SectionHeaders...)
		}
	}
	return out
}
