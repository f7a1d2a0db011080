package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpusd/corpusd/pkg/types"
)

func TestRegistry_Supports(t *testing.T) {
	reg := NewRegistry()

	assert.True(t, reg.Supports("docs/guide.md"))
	assert.True(t, reg.Supports("notes.TXT"))
	assert.False(t, reg.Supports("report.pdf"))
	assert.False(t, reg.Supports("binary.bin"))
}

func TestRegistry_UnsupportedExtension(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Parse("report.docx", []byte("content"))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrParse)
}

func TestRegistry_InvalidUTF8(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Parse("bad.md", []byte{0xff, 0xfe, 0xfd})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrParse)
}

func TestMarkdownParser_Headings(t *testing.T) {
	content := `# Title

Some intro text.

## Section One

Body of section one.
`

	p := NewMarkdownParser()
	doc, err := p.Parse("guide.md", []byte(content))
	require.NoError(t, err)

	require.Len(t, doc.Blocks, 4)

	assert.Equal(t, types.BlockHeading, doc.Blocks[0].Type)
	assert.Equal(t, 1, doc.Blocks[0].Level)
	assert.Equal(t, "Title", doc.Blocks[0].Text)

	assert.Equal(t, types.BlockParagraph, doc.Blocks[1].Type)
	assert.Equal(t, "Some intro text.", doc.Blocks[1].Text)

	assert.Equal(t, types.BlockHeading, doc.Blocks[2].Type)
	assert.Equal(t, 2, doc.Blocks[2].Level)
	assert.Equal(t, "Section One", doc.Blocks[2].Text)

	assert.Equal(t, types.BlockParagraph, doc.Blocks[3].Type)
}

func TestMarkdownParser_CodeFence(t *testing.T) {
	content := "Intro.\n\n```go\nfunc main() {}\n```\n\nOutro."

	p := NewMarkdownParser()
	doc, err := p.Parse("code.md", []byte(content))
	require.NoError(t, err)

	require.Len(t, doc.Blocks, 3)
	assert.Equal(t, types.BlockCode, doc.Blocks[1].Type)
	assert.Contains(t, doc.Blocks[1].Text, "func main() {}")
	assert.Contains(t, doc.Blocks[1].Text, "```go")
}

func TestMarkdownParser_HeadingInsideFenceIgnored(t *testing.T) {
	content := "```\n# not a heading\n```\n"

	p := NewMarkdownParser()
	doc, err := p.Parse("fence.md", []byte(content))
	require.NoError(t, err)

	require.Len(t, doc.Blocks, 1)
	assert.Equal(t, types.BlockCode, doc.Blocks[0].Type)
}

func TestMarkdownParser_UnclosedFence(t *testing.T) {
	content := "```python\nprint('hi')\n"

	p := NewMarkdownParser()
	doc, err := p.Parse("open.md", []byte(content))
	require.NoError(t, err)

	require.Len(t, doc.Blocks, 1)
	assert.Equal(t, types.BlockCode, doc.Blocks[0].Type)
	assert.Contains(t, doc.Blocks[0].Text, "print('hi')")
}

func TestMarkdownParser_OffsetsMatchText(t *testing.T) {
	content := "# Head\n\nfirst para\n\nsecond para\n"

	p := NewMarkdownParser()
	doc, err := p.Parse("offsets.md", []byte(content))
	require.NoError(t, err)

	for _, b := range doc.Blocks {
		require.LessOrEqual(t, b.EndOffset, len(doc.Text))
		span := doc.Text[b.StartOffset:b.EndOffset]
		assert.Contains(t, span, b.Text[:min(len(b.Text), 4)])
	}
}

func TestPlaintextParser_Paragraphs(t *testing.T) {
	content := "para one\nstill para one\n\npara two\n"

	p := NewPlaintextParser()
	doc, err := p.Parse("notes.txt", []byte(content))
	require.NoError(t, err)

	require.Len(t, doc.Blocks, 2)
	assert.Equal(t, "para one\nstill para one", doc.Blocks[0].Text)
	assert.Equal(t, "para two", doc.Blocks[1].Text)
}

func TestPlaintextParser_Empty(t *testing.T) {
	p := NewPlaintextParser()
	doc, err := p.Parse("empty.txt", []byte(""))
	require.NoError(t, err)
	assert.Empty(t, doc.Blocks)
}
