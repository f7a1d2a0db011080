// Package chunker divides parsed documents into retrieval-sized chunks for
// embedding and search.
//
// Chunking is pure: identical input and parameters always produce the
// identical chunk sequence, including IDs, which makes re-runs and task
// redelivery idempotent.
//
// # Basic Usage
//
//	c := chunker.New(chunker.Config{TargetTokens: 800, OverlapTokens: 100})
//	chunks := c.Chunk(doc, "docs")
//
// # Chunking Strategy
//
// Chunks are packed from the parser's structural blocks:
//   - Boundaries preferentially align with headings; a heading always
//     starts a new chunk and contributes to SectionHeaders.
//   - Fenced code blocks are indivisible. A code block larger than the
//     token budget becomes its own oversized chunk rather than being split.
//   - When a section is split for size, consecutive chunks overlap by
//     OverlapTokens worth of the preceding chunk's tail.
//
// # Chunk Sizing
//
// Token counts use the chars/4 heuristic. Every chunk stays within
// TargetTokens except single indivisible blocks that exceed it on their
// own.
package chunker
