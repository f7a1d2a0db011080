package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/corpusd/corpusd/internal/storage"
	"github.com/corpusd/corpusd/pkg/types"
)

// SQLiteStore implements Store on the shared SQLite database.
type SQLiteStore struct {
	db *storage.DB
}

// NewSQLiteStore creates a vector store backed by the given database.
func NewSQLiteStore(db *storage.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) EnsureCollection(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("collection name cannot be empty")
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO collections (name) VALUES (?)", name)
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	return nil
}

func (s *SQLiteStore) Add(ctx context.Context, collection string, chunks []types.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	if err := s.EnsureCollection(ctx, collection); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (collection, chunk_id, source_name, source_path, content,
		                    token_count, section_headers, start_offset, end_offset,
		                    embedding, dimension, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, chunk_id) DO UPDATE SET
			source_name = excluded.source_name,
			source_path = excluded.source_path,
			content = excluded.content,
			token_count = excluded.token_count,
			section_headers = excluded.section_headers,
			start_offset = excluded.start_offset,
			end_offset = excluded.end_offset,
			embedding = excluded.embedding,
			dimension = excluded.dimension,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now()
	for _, chunk := range chunks {
		if err := chunk.Validate(); err != nil {
			return fmt.Errorf("invalid chunk %s: %w", chunk.ID, err)
		}

		headers, err := json.Marshal(chunk.SectionHeaders)
		if err != nil {
			return fmt.Errorf("failed to marshal section headers: %w", err)
		}

		_, err = stmt.ExecContext(ctx,
			collection, chunk.ID, chunk.SourceName, chunk.SourcePath, chunk.Content,
			chunk.TokenCount, string(headers), chunk.StartOffset, chunk.EndOffset,
			serializeVector(chunk.Embedding), len(chunk.Embedding), now)
		if err != nil {
			return fmt.Errorf("failed to upsert chunk %s: %w", chunk.ID, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) Search(ctx context.Context, collection string, vector []float32, limit int) ([]types.SearchResult, error) {
	if err := s.requireCollection(ctx, collection); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []types.SearchResult{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, source_name, source_path, content, section_headers, embedding
		FROM chunks WHERE collection = ?`, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []types.SearchResult
	for rows.Next() {
		var (
			r          types.SearchResult
			headersRaw sql.NullString
			blob       []byte
		)
		if err := rows.Scan(&r.ChunkID, &r.Source, &r.SourcePath, &r.Content, &headersRaw, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}

		candidate := deserializeVector(blob)
		if len(candidate) != len(vector) {
			continue // Dimension mismatch, skip
		}

		if headersRaw.Valid && headersRaw.String != "" {
			if err := json.Unmarshal([]byte(headersRaw.String), &r.SectionHeaders); err != nil {
				return nil, fmt.Errorf("failed to unmarshal section headers: %w", err)
			}
		}

		r.Score = cosineSimilarity(vector, candidate)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *SQLiteStore) CopyCollection(ctx context.Context, src, dst string) error {
	if err := s.requireCollection(ctx, src); err != nil {
		return err
	}
	if err := s.EnsureCollection(ctx, dst); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chunks (collection, chunk_id, source_name, source_path, content,
		                    token_count, section_headers, start_offset, end_offset,
		                    embedding, dimension, updated_at)
		SELECT ?, chunk_id, source_name, source_path, content,
		       token_count, section_headers, start_offset, end_offset,
		       embedding, dimension, CURRENT_TIMESTAMP
		FROM chunks WHERE collection = ?
		ON CONFLICT(collection, chunk_id) DO UPDATE SET
			source_name = excluded.source_name,
			source_path = excluded.source_path,
			content = excluded.content,
			token_count = excluded.token_count,
			section_headers = excluded.section_headers,
			start_offset = excluded.start_offset,
			end_offset = excluded.end_offset,
			embedding = excluded.embedding,
			dimension = excluded.dimension,
			updated_at = excluded.updated_at
	`, dst, src)
	if err != nil {
		return fmt.Errorf("failed to copy collection %s to %s: %w", src, dst, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteByPath(ctx context.Context, collection, sourcePath string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM chunks WHERE collection = ? AND source_path = ?", collection, sourcePath)
	if err != nil {
		return fmt.Errorf("failed to delete %s from %s: %w", sourcePath, collection, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteCollection(ctx context.Context, name string) error {
	// ON DELETE CASCADE removes the chunks
	_, err := s.db.ExecContext(ctx, "DELETE FROM collections WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", name, err)
	}
	return nil
}

func (s *SQLiteStore) ListCollections(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name FROM collections WHERE name LIKE ? || '%' ORDER BY name", prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLiteStore) Count(ctx context.Context, collection string) (int, error) {
	if err := s.requireCollection(ctx, collection); err != nil {
		return 0, err
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM chunks WHERE collection = ?", collection).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) requireCollection(ctx context.Context, name string) error {
	var found string
	err := s.db.QueryRowContext(ctx,
		"SELECT name FROM collections WHERE name = ?", name).Scan(&found)
	if err == sql.ErrNoRows {
		return fmt.Errorf("collection %s: %w", name, types.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", name, err)
	}
	return nil
}
