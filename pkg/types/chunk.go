package types

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// TokensPerChar is the heuristic for estimating tokens (chars/4)
const TokensPerChar = 4

// Chunk represents a token-bounded slice of a document with positional and
// structural metadata. It is the unit of embedding and storage.
//
// A chunk is immutable once created. Its ID is deterministic from
// (SourcePath, StartOffset), so redelivered batch tasks overwrite rather
// than duplicate.
type Chunk struct {
	// Identification
	ID         string
	SourcePath string // Relative to the source root
	SourceName string // Named source this chunk belongs to

	// Content
	Content    string
	TokenCount int

	// Structural metadata
	SectionHeaders []string // Heading hierarchy, outermost first

	// Location (byte offsets into the original document text)
	StartOffset int
	EndOffset   int

	// Embedding vector, populated by the batch worker before storage
	Embedding []float32
}

// ComputeID derives the deterministic chunk ID from the source path and
// start offset.
func (c *Chunk) ComputeID() string {
	c.ID = ChunkID(c.SourcePath, c.StartOffset)
	return c.ID
}

// ChunkID computes the deterministic ID for a byte range of a source file.
func ChunkID(sourcePath string, startOffset int) string {
	key := fmt.Sprintf("%s:%d", sourcePath, startOffset)
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// ComputeTokenCount estimates the number of tokens in the chunk content.
// Uses a simple heuristic: characters / 4.
func (c *Chunk) ComputeTokenCount() int {
	c.TokenCount = EstimateTokens(c.Content)
	return c.TokenCount
}

// EstimateTokens estimates the number of tokens in a string.
func EstimateTokens(text string) int {
	return len(text) / TokensPerChar
}

// Validate performs validation of the chunk.
func (c *Chunk) Validate() error {
	if c.Content == "" {
		return errors.New("chunk content cannot be empty")
	}

	if c.SourcePath == "" {
		return errors.New("chunk source path is required")
	}

	if c.StartOffset < 0 || c.EndOffset < c.StartOffset {
		return errors.New("chunk offsets must satisfy 0 <= start <= end")
	}

	if c.ID == "" {
		return errors.New("chunk ID must be computed")
	}

	return nil
}
