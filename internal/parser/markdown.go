package parser

import (
	"regexp"
	"strings"

	"github.com/corpusd/corpusd/pkg/types"
)

var headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*$`)

// MarkdownParser extracts heading, paragraph, and fenced-code blocks from
// markdown content. Byte offsets are preserved so chunk IDs derived from
// them are stable across runs.
type MarkdownParser struct{}

// NewMarkdownParser creates a markdown parser.
func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{}
}

// Extensions returns the extensions handled by this parser.
func (p *MarkdownParser) Extensions() []string {
	return []string{".md", ".markdown"}
}

// Parse splits markdown content into structural blocks. Fenced code blocks
// are kept as single indivisible blocks, fences included, and are never
// split even when a fence is left unclosed at end of input.
func (p *MarkdownParser) Parse(sourcePath string, content []byte) (*types.Document, error) {
	text := string(content)
	lines := strings.Split(text, "\n")

	doc := &types.Document{
		SourcePath: sourcePath,
		Text:       text,
	}

	var (
		paraLines []string
		paraStart int
		offset    int
	)

	flushParagraph := func(end int) {
		if len(paraLines) == 0 {
			return
		}
		doc.Blocks = append(doc.Blocks, types.Block{
			Type:        types.BlockParagraph,
			Text:        strings.Join(paraLines, "\n"),
			StartOffset: paraStart,
			EndOffset:   end,
		})
		paraLines = nil
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		lineStart := offset
		offset += len(line)
		if i < len(lines)-1 {
			offset++ // Trailing newline
		}

		trimmed := strings.TrimSpace(line)

		// Fenced code block: consume until the closing fence
		if strings.HasPrefix(trimmed, "```") {
			flushParagraph(lineStart)

			fenceLines := []string{line}
			fenceStart := lineStart
			for i+1 < len(lines) {
				i++
				next := lines[i]
				offset += len(next)
				if i < len(lines)-1 {
					offset++
				}
				fenceLines = append(fenceLines, next)
				if strings.HasPrefix(strings.TrimSpace(next), "```") {
					break
				}
			}

			doc.Blocks = append(doc.Blocks, types.Block{
				Type:        types.BlockCode,
				Text:        strings.Join(fenceLines, "\n"),
				StartOffset: fenceStart,
				EndOffset:   offset,
			})
			continue
		}

		if m := headingPattern.FindStringSubmatch(line); m != nil {
			flushParagraph(lineStart)
			doc.Blocks = append(doc.Blocks, types.Block{
				Type:        types.BlockHeading,
				Level:       len(m[1]),
				Text:        m[2],
				StartOffset: lineStart,
				EndOffset:   offset,
			})
			continue
		}

		if trimmed == "" {
			flushParagraph(lineStart)
			continue
		}

		if len(paraLines) == 0 {
			paraStart = lineStart
		}
		paraLines = append(paraLines, line)
	}

	flushParagraph(offset)
	return doc, nil
}
