package types

// BlockType classifies a structural unit of a parsed document
type BlockType string

const (
	BlockHeading   BlockType = "heading"
	BlockParagraph BlockType = "paragraph"
	BlockCode      BlockType = "code"
)

// Block is one structural unit of a parsed document. Offsets are byte
// positions into the document text.
type Block struct {
	Type        BlockType
	Level       int // Heading level (1-6); zero for non-headings
	Text        string
	StartOffset int
	EndOffset   int
}

// Document is the parser output: extracted text plus structural metadata.
// Code blocks are indivisible units for the chunker; headings delimit
// sections and contribute to SectionHeaders on resulting chunks.
type Document struct {
	SourcePath string
	Text       string
	Blocks     []Block
}
