package chunker

import (
	"unicode/utf8"

	"github.com/corpusd/corpusd/pkg/types"
)

const (
	// DefaultTargetTokens is the default per-chunk token budget
	DefaultTargetTokens = 800

	// DefaultOverlapTokens is the default overlap between consecutive
	// chunks split from the same section
	DefaultOverlapTokens = 100

	// MinTargetTokens and MaxTargetTokens bound the configurable budget
	MinTargetTokens = 500
	MaxTargetTokens = 1000
)

// Config contains chunking parameters.
type Config struct {
	TargetTokens  int // Per-chunk token budget (clamped to [500, 1000])
	OverlapTokens int // Tail overlap carried into the next chunk of a section
}

// Chunker packs document blocks into token-bounded chunks.
type Chunker struct {
	targetTokens  int
	overlapTokens int
}

// New creates a Chunker, applying defaults and clamping the token budget.
func New(cfg Config) *Chunker {
	target := cfg.TargetTokens
	if target == 0 {
		target = DefaultTargetTokens
	}
	if target < MinTargetTokens {
		target = MinTargetTokens
	}
	if target > MaxTargetTokens {
		target = MaxTargetTokens
	}

	overlap := cfg.OverlapTokens
	if overlap <= 0 {
		overlap = DefaultOverlapTokens
	}
	if overlap >= target {
		overlap = target / 4
	}

	return &Chunker{
		targetTokens:  target,
		overlapTokens: overlap,
	}
}

// span tracks a contiguous byte range of the document being packed into
// one chunk, plus the heading context it started under.
type span struct {
	start   int
	end     int
	headers []string
	active  bool
}

// Chunk splits a parsed document into an ordered sequence of chunks.
// The result is deterministic for identical input and configuration.
func (c *Chunker) Chunk(doc *types.Document, sourceName string) []types.Chunk {
	if doc == nil || len(doc.Blocks) == 0 {
		return nil
	}

	var (
		chunks  []types.Chunk
		cur     span
		headers []string
	)

	flush := func() {
		if !cur.active {
			return
		}
		chunks = append(chunks, c.emit(doc, cur, sourceName))
		cur = span{}
	}

	// Size-driven flush: the next chunk of the same section begins with
	// the tail of the one just emitted.
	flushWithOverlap := func() {
		if !cur.active {
			return
		}
		prev := cur
		flush()

		overlapBytes := c.overlapTokens * types.TokensPerChar
		start := prev.end - overlapBytes
		if start < prev.start {
			start = prev.start
		}
		// Never start mid-rune
		for start < prev.end && !utf8.RuneStart(doc.Text[start]) {
			start++
		}
		cur = span{start: start, end: prev.end, headers: prev.headers, active: true}
	}

	for _, block := range doc.Blocks {
		switch block.Type {
		case types.BlockHeading:
			// Headings delimit sections: close the current chunk and
			// update the heading stack.
			flush()
			headers = truncateHeaders(headers, block.Level)
			headers = append(headers, block.Text)
			cur = span{start: block.StartOffset, end: block.EndOffset, headers: copyHeaders(headers), active: true}

		default:
			blockTokens := types.EstimateTokens(block.Text)

			if !cur.active {
				cur = span{start: block.StartOffset, end: block.EndOffset, headers: copyHeaders(headers), active: true}
				if blockTokens > c.targetTokens {
					// Oversized indivisible block stands alone
					flush()
				}
				continue
			}

			if blockTokens > c.targetTokens {
				// Oversized block becomes its own chunk; no overlap is
				// carried across it.
				flush()
				cur = span{start: block.StartOffset, end: block.EndOffset, headers: copyHeaders(headers), active: true}
				flush()
				continue
			}

			// Budget check on the prospective byte range, so the gap
			// bytes between blocks count too.
			if (block.EndOffset-cur.start)/types.TokensPerChar > c.targetTokens {
				flushWithOverlap()
			}

			cur.end = block.EndOffset
			if c.spanTokens(cur) > c.targetTokens {
				// Overlap plus block still exceeded the budget; start the
				// chunk at the block without the carried tail.
				cur.start = block.StartOffset
			}
		}
	}

	flush()
	return chunks
}

// spanTokens estimates the token count of the span's byte range.
func (c *Chunker) spanTokens(s span) int {
	return (s.end - s.start) / types.TokensPerChar
}

// emit materialises a span into a chunk with its deterministic ID.
func (c *Chunker) emit(doc *types.Document, s span, sourceName string) types.Chunk {
	end := s.end
	if end > len(doc.Text) {
		end = len(doc.Text)
	}

	chunk := types.Chunk{
		SourcePath:     doc.SourcePath,
		SourceName:     sourceName,
		Content:        doc.Text[s.start:end],
		SectionHeaders: s.headers,
		StartOffset:    s.start,
		EndOffset:      end,
	}
	chunk.ComputeID()
	chunk.ComputeTokenCount()
	return chunk
}

// truncateHeaders drops heading entries at or below the given level so a
// new level-N heading replaces its siblings but keeps its ancestors.
func truncateHeaders(headers []string, level int) []string {
	if level-1 < len(headers) {
		return headers[:level-1]
	}
	return headers
}

func copyHeaders(headers []string) []string {
	if len(headers) == 0 {
		return nil
	}
	out := make([]string, len(headers))
	copy(out, headers)
	return out
}
