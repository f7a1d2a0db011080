package parser

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/corpusd/corpusd/pkg/types"
)

// DocumentParser converts raw file bytes into a structured document.
type DocumentParser interface {
	// Parse extracts text and structural blocks from content.
	Parse(sourcePath string, content []byte) (*types.Document, error)

	// Extensions returns the file extensions this parser handles,
	// lowercase with leading dot.
	Extensions() []string
}

// Registry dispatches parsing by file extension.
type Registry struct {
	byExt map[string]DocumentParser
}

// NewRegistry creates a registry with the built-in parsers registered.
func NewRegistry() *Registry {
	r := &Registry{byExt: make(map[string]DocumentParser)}
	r.Register(NewMarkdownParser())
	r.Register(NewPlaintextParser())
	return r
}

// Register adds a parser for each extension it reports.
func (r *Registry) Register(p DocumentParser) {
	for _, ext := range p.Extensions() {
		r.byExt[ext] = p
	}
}

// Supports reports whether a parser is registered for the path's extension.
func (r *Registry) Supports(sourcePath string) bool {
	_, ok := r.byExt[strings.ToLower(filepath.Ext(sourcePath))]
	return ok
}

// Parse dispatches to the parser registered for the path's extension.
// Unsupported extensions and invalid UTF-8 fail with types.ErrParse.
func (r *Registry) Parse(sourcePath string, content []byte) (*types.Document, error) {
	ext := strings.ToLower(filepath.Ext(sourcePath))
	p, ok := r.byExt[ext]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported extension %q for %s", types.ErrParse, ext, sourcePath)
	}

	if !utf8.Valid(content) {
		return nil, fmt.Errorf("%w: %s is not valid UTF-8", types.ErrParse, sourcePath)
	}

	doc, err := p.Parse(sourcePath, content)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrParse, sourcePath, err)
	}

	return doc, nil
}
