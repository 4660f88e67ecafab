package parser

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"testing"
)

const sharedStringsXML = `<?xml version="1.0"?>
<sst xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" count="2" uniqueCount="2">
  <si><t>name</t></si>
  <si><t>score</t></si>
</sst>`

const sheet1XML = `<?xml version="1.0"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
  <sheetData>
    <row r="1">
      <c r="A1" t="s"><v>0</v></c>
      <c r="B1" t="s"><v>1</v></c>
    </row>
    <row r="2">
      <c r="A2" t="inlineStr"><is><t>alice</t></is></c>
      <c r="B2"><v>42</v></c>
    </row>
  </sheetData>
</worksheet>`

func TestXlsxParse(t *testing.T) {
	data := buildZip(t, map[string]string{
		"xl/sharedStrings.xml":    sharedStringsXML,
		"xl/worksheets/sheet1.xml": sheet1XML,
	})

	doc, err := NewXlsxParser().Parse(context.Background(), data, Options{Filename: "data.xlsx"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(doc.Chunks) != 1 {
		t.Fatalf("chunks = %d, want 1", len(doc.Chunks))
	}
	c := doc.Chunks[0]
	if c.Type != ChunkTable {
		t.Errorf("chunk type = %q, want table", c.Type)
	}
	if c.Name != "sheet1" {
		t.Errorf("chunk name = %q, want sheet1", c.Name)
	}
	if c.Content != "name\tscore\nalice\t42" {
		t.Errorf("content = %q", c.Content)
	}
}

func TestXlsxParseNoWorksheets(t *testing.T) {
	data := buildZip(t, map[string]string{"xl/sharedStrings.xml": sharedStringsXML})
	_, err := NewXlsxParser().Parse(context.Background(), data, Options{})
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if pe.Kind != KindCorruptInput {
		t.Errorf("kind = %q, want corrupt_input", pe.Kind)
	}
}

func TestResolveCell(t *testing.T) {
	shared := []string{"alpha", "beta"}
	tests := []struct {
		cellType, raw, want string
	}{
		{"s", "0", "alpha"},
		{"s", "1", "beta"},
		{"s", "9", "9"},     // out of range: raw passes through
		{"s", "x", "x"},     // unparseable index
		{"", "3.14", "3.14"},
		{"inlineStr", "hi", "hi"},
	}
	for _, tt := range tests {
		if got := resolveCell(tt.cellType, tt.raw, shared); got != tt.want {
			t.Errorf("resolveCell(%q, %q) = %q, want %q", tt.cellType, tt.raw, got, tt.want)
		}
	}
}

func TestImageParse(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 4))); err != nil {
		t.Fatalf("encode png: %v", err)
	}

	doc, err := NewImageParser().Parse(context.Background(), buf.Bytes(), Options{Filename: "figure.png"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(doc.Chunks) != 1 {
		t.Fatalf("chunks = %d, want 1", len(doc.Chunks))
	}
	c := doc.Chunks[0]
	if c.Type != ChunkImage {
		t.Errorf("chunk type = %q, want image", c.Type)
	}
	if c.Description != "png 8x4" {
		t.Errorf("description = %q, want \"png 8x4\"", c.Description)
	}
}

func TestImageParseCorrupt(t *testing.T) {
	_, err := NewImageParser().Parse(context.Background(), []byte("\x89PNG but not really"), Options{})
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if pe.Kind != KindCorruptInput {
		t.Errorf("kind = %q, want corrupt_input", pe.Kind)
	}
}
