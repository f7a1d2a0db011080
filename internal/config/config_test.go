package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "corpusd.db", cfg.DatabasePath)
	assert.Equal(t, 100, cfg.Queue.BatchSize)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 100, cfg.Searcher.CacheSize)
}

func TestLoad_PartialFileGetsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
database_path: /tmp/corpus.db
sources:
  - name: docs
    root: /srv/docs
queue:
  batch_size: 10
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/corpus.db", cfg.DatabasePath)
	assert.Equal(t, 10, cfg.Queue.BatchSize)
	assert.Equal(t, 4, cfg.Queue.Concurrency, "unset fields still default")
	assert.Equal(t, 800, cfg.Chunker.TargetTokens)

	src, ok := cfg.Source("docs")
	require.True(t, ok)
	assert.Equal(t, "/srv/docs", src.Root)

	_, ok = cfg.Source("missing")
	assert.False(t, ok)
}

func TestLoad_RejectsInvalidSources(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty name", "sources:\n  - name: \"\"\n    root: /srv\n"},
		{"missing root", "sources:\n  - name: docs\n"},
		{"duplicate name", "sources:\n  - name: docs\n    root: /a\n  - name: docs\n    root: /b\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o644))

			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "config.yaml")

	cfg := Default()
	cfg.Sources = []SourceConfig{{Name: "docs", Root: "/srv/docs"}}
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
