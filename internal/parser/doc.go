// Package parser extracts text and structural metadata from raw document
// bytes.
//
// Parsers are registered per file extension. The registry dispatches on the
// extension and returns a types.Document whose Blocks carry the heading
// hierarchy and code-fence boundaries the chunker aligns to:
//
//	reg := parser.NewRegistry()
//	doc, err := reg.Parse("docs/guide.md", content)
//	if err != nil {
//	    // errors.Is(err, types.ErrParse) for unsupported or corrupt input
//	}
//
// Unsupported extensions and undecodable content fail with types.ErrParse.
// Callers record the file as failed and continue; a parse failure never
// aborts a batch.
package parser
