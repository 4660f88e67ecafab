package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	zipMagic = "PK\x03\x04"
	oleMagic = "\xd0\xcf\x11\xe0"
)

// DocxParser extracts paragraphs, tables, and formulas from OOXML word
// documents. Legacy binary .doc files are recognized but rejected as
// an unsupported feature.
type DocxParser struct{}

func NewDocxParser() *DocxParser {
	return &DocxParser{}
}

func (p *DocxParser) Name() string {
	return "docx"
}

func (p *DocxParser) CanParse(filename string, sniff []byte) bool {
	if filename != "" {
		return hasExt(filename, ".docx", ".doc")
	}
	return hasMagic(sniff, zipMagic)
}

func (p *DocxParser) Parse(ctx context.Context, data []byte, opts Options) (*Document, error) {
	start := time.Now()

	if hasMagic(data, oleMagic) {
		return nil, unsupportedFeature(p.Name(), fmt.Errorf("legacy binary .doc is not supported, convert to .docx"))
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, corruptInput(p.Name(), err)
	}

	var docFile *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return nil, corruptInput(p.Name(), fmt.Errorf("archive has no word/document.xml"))
	}

	rc, err := docFile.Open()
	if err != nil {
		return nil, corruptInput(p.Name(), err)
	}
	defer rc.Close()

	chunks, err := extractDocxChunks(rc)
	if err != nil {
		return nil, corruptInput(p.Name(), err)
	}

	return &Document{
		Title:     titleFromFilename(opts.Filename),
		Chunks:    chunks,
		ElapsedMs: time.Since(start).Milliseconds(),
	}, nil
}

// extractDocxChunks walks word/document.xml. Namespace prefixes are
// ignored: w:t and m:t both arrive with local name "t"; the formula
// depth counter routes m:t text into the current formula.
func extractDocxChunks(r io.Reader) ([]Chunk, error) {
	dec := xml.NewDecoder(r)

	var chunks []Chunk
	var para, cell, formula strings.Builder
	var table [][]string
	var row []string
	tableDepth := 0
	formulaDepth := 0
	inText := false
	paraN, tableN, formulaN := 0, 0, 0

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "t":
				inText = true
			case "tbl":
				tableDepth++
				if tableDepth == 1 {
					table = nil
				}
			case "tr":
				if tableDepth == 1 {
					row = nil
				}
			case "tc":
				if tableDepth == 1 {
					cell.Reset()
				}
			case "oMath":
				formulaDepth++
				if formulaDepth == 1 {
					formula.Reset()
				}
			}
		case xml.CharData:
			if !inText {
				continue
			}
			switch {
			case formulaDepth > 0:
				formula.Write(el)
			case tableDepth > 0:
				cell.Write(el)
			default:
				para.Write(el)
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				if tableDepth == 0 && formulaDepth == 0 {
					if text := strings.TrimSpace(para.String()); text != "" {
						paraN++
						chunks = append(chunks, Chunk{
							Type:    ChunkText,
							Name:    fmt.Sprintf("paragraph_%d", paraN),
							Content: text,
						})
					}
					para.Reset()
				}
			case "tc":
				if tableDepth == 1 {
					row = append(row, cell.String())
				}
			case "tr":
				if tableDepth == 1 {
					table = append(table, row)
				}
			case "tbl":
				tableDepth--
				if tableDepth == 0 && len(table) > 0 {
					tableN++
					chunks = append(chunks, Chunk{
						Type:        ChunkTable,
						Name:        fmt.Sprintf("table_%d", tableN),
						Content:     renderTable(table),
						Description: fmt.Sprintf("%d rows", len(table)),
					})
				}
			case "oMath":
				formulaDepth--
				if formulaDepth == 0 {
					if text := strings.TrimSpace(formula.String()); text != "" {
						formulaN++
						chunks = append(chunks, Chunk{
							Type:    ChunkFormula,
							Name:    fmt.Sprintf("formula_%d", formulaN),
							Content: text,
						})
					}
				}
			}
		}
	}

	return chunks, nil
}

func renderTable(rows [][]string) string {
	var b strings.Builder
	for i, row := range rows {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strings.Join(row, "\t"))
	}
	return b.String()
}
