package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/corpusd/corpusd/pkg/types"
)

// MemoryStore is an in-memory Store for tests and ephemeral runs.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]types.Chunk
}

// NewMemoryStore creates an empty in-memory vector store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]types.Chunk),
	}
}

func (m *MemoryStore) EnsureCollection(_ context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("collection name cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[name]; !ok {
		m.collections[name] = make(map[string]types.Chunk)
	}
	return nil
}

func (m *MemoryStore) Add(ctx context.Context, collection string, chunks []types.Chunk) error {
	if err := m.EnsureCollection(ctx, collection); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, chunk := range chunks {
		if err := chunk.Validate(); err != nil {
			return fmt.Errorf("invalid chunk %s: %w", chunk.ID, err)
		}
		m.collections[collection][chunk.ID] = chunk
	}
	return nil
}

func (m *MemoryStore) Search(_ context.Context, collection string, vector []float32, limit int) ([]types.SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chunks, ok := m.collections[collection]
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", collection, types.ErrNotFound)
	}
	if limit <= 0 {
		return []types.SearchResult{}, nil
	}

	var results []types.SearchResult
	for _, chunk := range chunks {
		if len(chunk.Embedding) != len(vector) {
			continue
		}
		results = append(results, types.SearchResult{
			ChunkID:        chunk.ID,
			Source:         chunk.SourceName,
			SourcePath:     chunk.SourcePath,
			SectionHeaders: chunk.SectionHeaders,
			Content:        chunk.Content,
			Score:          cosineSimilarity(vector, chunk.Embedding),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *MemoryStore) CopyCollection(ctx context.Context, src, dst string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	srcChunks, ok := m.collections[src]
	if !ok {
		return fmt.Errorf("collection %s: %w", src, types.ErrNotFound)
	}
	if _, ok := m.collections[dst]; !ok {
		m.collections[dst] = make(map[string]types.Chunk)
	}
	for id, chunk := range srcChunks {
		m.collections[dst][id] = chunk
	}
	return nil
}

func (m *MemoryStore) DeleteByPath(_ context.Context, collection, sourcePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	chunks, ok := m.collections[collection]
	if !ok {
		return nil
	}
	for id, chunk := range chunks {
		if chunk.SourcePath == sourcePath {
			delete(chunks, id)
		}
	}
	return nil
}

func (m *MemoryStore) DeleteCollection(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections, name)
	return nil
}

func (m *MemoryStore) ListCollections(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for name := range m.collections {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryStore) Count(_ context.Context, collection string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chunks, ok := m.collections[collection]
	if !ok {
		return 0, fmt.Errorf("collection %s: %w", collection, types.ErrNotFound)
	}
	return len(chunks), nil
}
