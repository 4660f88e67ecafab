package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"testing"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

const docxBody = `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"
            xmlns:m="http://schemas.openxmlformats.org/officeDocument/2006/math">
  <w:body>
    <w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>
    <w:p><w:r><w:t></w:t></w:r></w:p>
    <w:tbl>
      <w:tr><w:tc><w:p><w:r><w:t>a1</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>b1</w:t></w:r></w:p></w:tc></w:tr>
      <w:tr><w:tc><w:p><w:r><w:t>a2</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>b2</w:t></w:r></w:p></w:tc></w:tr>
    </w:tbl>
    <w:p><m:oMath><m:r><m:t>E=mc^2</m:t></m:r></m:oMath></w:p>
    <w:p><w:r><w:t>Second </w:t></w:r><w:r><w:t>paragraph.</w:t></w:r></w:p>
  </w:body>
</w:document>`

func TestDocxParse(t *testing.T) {
	data := buildZip(t, map[string]string{"word/document.xml": docxBody})

	doc, err := NewDocxParser().Parse(context.Background(), data, Options{Filename: "report.docx"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Title != "report" {
		t.Errorf("title = %q, want report", doc.Title)
	}

	var texts, tables, formulas []Chunk
	for _, c := range doc.Chunks {
		switch c.Type {
		case ChunkText:
			texts = append(texts, c)
		case ChunkTable:
			tables = append(tables, c)
		case ChunkFormula:
			formulas = append(formulas, c)
		}
	}

	if len(texts) != 2 {
		t.Fatalf("text chunks = %d, want 2 (empty paragraph skipped)", len(texts))
	}
	if texts[0].Content != "First paragraph." {
		t.Errorf("first paragraph = %q", texts[0].Content)
	}
	if texts[1].Content != "Second paragraph." {
		t.Errorf("second paragraph = %q", texts[1].Content)
	}

	if len(tables) != 1 {
		t.Fatalf("table chunks = %d, want 1", len(tables))
	}
	if tables[0].Content != "a1\tb1\na2\tb2" {
		t.Errorf("table content = %q", tables[0].Content)
	}

	if len(formulas) != 1 {
		t.Fatalf("formula chunks = %d, want 1", len(formulas))
	}
	if formulas[0].Content != "E=mc^2" {
		t.Errorf("formula content = %q", formulas[0].Content)
	}
}

func TestDocxParseNotAZip(t *testing.T) {
	_, err := NewDocxParser().Parse(context.Background(), []byte("not a zip"), Options{})
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if pe.Kind != KindCorruptInput {
		t.Errorf("kind = %q, want corrupt_input", pe.Kind)
	}
}

func TestDocxParseMissingDocument(t *testing.T) {
	data := buildZip(t, map[string]string{"other.xml": "<x/>"})
	_, err := NewDocxParser().Parse(context.Background(), data, Options{})
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if pe.Kind != KindCorruptInput {
		t.Errorf("kind = %q, want corrupt_input", pe.Kind)
	}
}

func TestDocxParseLegacyDoc(t *testing.T) {
	data := append([]byte("\xd0\xcf\x11\xe0"), make([]byte, 64)...)
	_, err := NewDocxParser().Parse(context.Background(), data, Options{Filename: "legacy.doc"})
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if pe.Kind != KindUnsupportedFeature {
		t.Errorf("kind = %q, want unsupported_feature", pe.Kind)
	}
}
