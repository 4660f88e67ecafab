package parser

import (
	"context"
	"path/filepath"
	"strings"
)

// Options carries per-task hints into a parser.
type Options struct {
	// Filename is the original file name, used for titles. May be empty.
	Filename string
	// TemplateType and TaskType are the task's classification strings.
	// Parsers may use them to shape output; unrecognized values are
	// rejected at submission, so parsers may treat them as trusted.
	TemplateType string
	TaskType     string
}

// Parser is a format-specific extraction capability.
type Parser interface {
	// Name identifies the parser in logs and format listings.
	Name() string
	// CanParse reports whether this parser claims the input, by file
	// extension when filename is non-empty, by magic bytes otherwise.
	CanParse(filename string, sniff []byte) bool
	// Parse extracts structured content from data. Failures are
	// *ParseError values.
	Parse(ctx context.Context, data []byte, opts Options) (*Document, error)
}

// Registry holds the closed set of registered parsers. It is built at
// process start and read-only thereafter.
//
// Registration order is a deliberate priority order: the first parser
// to claim an input wins. The default order is pdf, docx, xlsx, image;
// in particular docx precedes xlsx so a bare OOXML (zip) signature
// with no usable extension resolves to docx.
type Registry struct {
	parsers []Parser
}

func NewRegistry(parsers ...Parser) *Registry {
	return &Registry{parsers: parsers}
}

// DefaultRegistry returns the registry with all built-in parsers in
// their documented priority order.
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewPDFParser(),
		NewDocxParser(),
		NewXlsxParser(),
		NewImageParser(),
	)
}

// Select picks the parser for an input. The file extension is
// consulted first; only when no parser claims the extension does
// selection fall back to content-signature sniffing.
func (r *Registry) Select(filename string, sniff []byte) (Parser, error) {
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		for _, p := range r.parsers {
			if p.CanParse(filename, nil) {
				return p, nil
			}
		}
	}
	for _, p := range r.parsers {
		if p.CanParse("", sniff) {
			return p, nil
		}
	}
	return nil, ErrUnsupportedFormat
}

// SupportedFormats lists the registered parser names in priority order.
func (r *Registry) SupportedFormats() []string {
	names := make([]string, len(r.parsers))
	for i, p := range r.parsers {
		names[i] = p.Name()
	}
	return names
}

func hasExt(filename string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

func hasMagic(sniff []byte, magic string) bool {
	return len(sniff) >= len(magic) && string(sniff[:len(magic)]) == magic
}
