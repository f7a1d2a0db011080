package types

import "errors"

// SearchResult is a single similarity-search hit across one or more
// canonical collections.
type SearchResult struct {
	ChunkID        string   `json:"chunk_id"`
	Source         string   `json:"source"`
	SourcePath     string   `json:"source_path"`
	SectionHeaders []string `json:"section_headers,omitempty"`
	Content        string   `json:"content"`
	Score          float64  `json:"score"`
}

// Validate checks if the search result is well formed.
func (sr *SearchResult) Validate() error {
	if sr.ChunkID == "" {
		return ErrInvalidChunkID
	}

	if sr.Content == "" {
		return ErrEmptyContent
	}

	return nil
}

// Result validation errors
var (
	ErrInvalidChunkID = errors.New("invalid chunk ID")
	ErrEmptyContent   = errors.New("content cannot be empty")
)
