package parser

import (
	"strings"

	"github.com/corpusd/corpusd/pkg/types"
)

// PlaintextParser splits plain text into paragraph blocks at blank lines.
type PlaintextParser struct{}

// NewPlaintextParser creates a plaintext parser.
func NewPlaintextParser() *PlaintextParser {
	return &PlaintextParser{}
}

// Extensions returns the extensions handled by this parser.
func (p *PlaintextParser) Extensions() []string {
	return []string{".txt", ".text"}
}

// Parse splits content into paragraph blocks separated by blank lines.
func (p *PlaintextParser) Parse(sourcePath string, content []byte) (*types.Document, error) {
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

	for i, line := range lines {
		lineStart := offset
		offset += len(line)
		if i < len(lines)-1 {
			offset++
		}

		if strings.TrimSpace(line) == "" {
			if len(paraLines) > 0 {
				doc.Blocks = append(doc.Blocks, types.Block{
					Type:        types.BlockParagraph,
					Text:        strings.Join(paraLines, "\n"),
					StartOffset: paraStart,
					EndOffset:   lineStart,
				})
				paraLines = nil
			}
			continue
		}

		if len(paraLines) == 0 {
			paraStart = lineStart
		}
		paraLines = append(paraLines, line)
	}

	if len(paraLines) > 0 {
		doc.Blocks = append(doc.Blocks, types.Block{
			Type:        types.BlockParagraph,
			Text:        strings.Join(paraLines, "\n"),
			StartOffset: paraStart,
			EndOffset:   offset,
		})
	}

	return doc, nil
}
