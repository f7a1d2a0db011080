package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "corpus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpen_AppliesMigrations(t *testing.T) {
	db := openTestDB(t)

	var version string
	err := db.QueryRow("SELECT version FROM schema_version ORDER BY applied_at DESC LIMIT 1").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)

	// All domain tables exist
	for _, table := range []string{"collections", "chunks", "jobs", "pipeline_state", "tasks"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, "table %s missing", table)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corpus.db")

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Reopening must not re-run migrations
	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestChunks_CascadeOnCollectionDelete(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, "INSERT INTO collections (name) VALUES ('docs')")
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `
		INSERT INTO chunks (collection, chunk_id, source_name, source_path, content, token_count, start_offset, end_offset, embedding, dimension)
		VALUES ('docs', 'abc', 'docs', 'readme.md', 'hello', 1, 0, 5, X'00000000', 1)`)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, "DELETE FROM collections WHERE name = 'docs'")
	require.NoError(t, err)

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&count)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRollbackMigration(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, RollbackMigration(ctx, db.DB))

	var name string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='jobs'").Scan(&name)
	assert.Error(t, err)
}
