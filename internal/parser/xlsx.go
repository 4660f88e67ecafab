package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

// XlsxParser extracts one table chunk per worksheet from OOXML
// spreadsheets.
type XlsxParser struct{}

func NewXlsxParser() *XlsxParser {
	return &XlsxParser{}
}

func (p *XlsxParser) Name() string {
	return "xlsx"
}

func (p *XlsxParser) CanParse(filename string, sniff []byte) bool {
	if filename != "" {
		return hasExt(filename, ".xlsx")
	}
	return hasMagic(sniff, zipMagic)
}

func (p *XlsxParser) Parse(ctx context.Context, data []byte, opts Options) (*Document, error) {
	start := time.Now()

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, corruptInput(p.Name(), err)
	}

	shared, err := readSharedStrings(zr)
	if err != nil {
		return nil, corruptInput(p.Name(), err)
	}

	var sheetFiles []*zip.File
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "xl/worksheets/") && strings.HasSuffix(f.Name, ".xml") {
			sheetFiles = append(sheetFiles, f)
		}
	}
	if len(sheetFiles) == 0 {
		return nil, corruptInput(p.Name(), fmt.Errorf("archive has no worksheets"))
	}
	sort.Slice(sheetFiles, func(i, j int) bool { return sheetFiles[i].Name < sheetFiles[j].Name })

	doc := &Document{
		Title:  titleFromFilename(opts.Filename),
		Chunks: make([]Chunk, 0, len(sheetFiles)),
	}

	for _, f := range sheetFiles {
		if err := ctx.Err(); err != nil {
			return nil, internalError(p.Name(), err)
		}
		rc, err := f.Open()
		if err != nil {
			return nil, corruptInput(p.Name(), err)
		}
		rows, err := readSheetRows(rc, shared)
		rc.Close()
		if err != nil {
			return nil, corruptInput(p.Name(), fmt.Errorf("%s: %w", f.Name, err))
		}

		name := strings.TrimSuffix(path.Base(f.Name), ".xml")
		doc.Chunks = append(doc.Chunks, Chunk{
			Type:        ChunkTable,
			Name:        name,
			Content:     renderTable(rows),
			Description: fmt.Sprintf("%d rows", len(rows)),
		})
	}

	doc.ElapsedMs = time.Since(start).Milliseconds()
	return doc, nil
}

func readSharedStrings(zr *zip.Reader) ([]string, error) {
	var ssFile *zip.File
	for _, f := range zr.File {
		if f.Name == "xl/sharedStrings.xml" {
			ssFile = f
			break
		}
	}
	if ssFile == nil {
		return nil, nil // sheets with only inline/numeric cells
	}

	rc, err := ssFile.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	dec := xml.NewDecoder(rc)
	var shared []string
	var cur strings.Builder
	inText := false

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
			case "si":
				cur.Reset()
			case "t":
				inText = true
			}
		case xml.CharData:
			if inText {
				cur.Write(el)
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "si":
				shared = append(shared, cur.String())
			}
		}
	}
	return shared, nil
}

func readSheetRows(r io.Reader, shared []string) ([][]string, error) {
	dec := xml.NewDecoder(r)

	var rows [][]string
	var row []string
	var val strings.Builder
	cellType := ""
	capture := false

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
			case "row":
				row = nil
			case "c":
				cellType = ""
				val.Reset()
				for _, attr := range el.Attr {
					if attr.Name.Local == "t" {
						cellType = attr.Value
					}
				}
			case "v", "t":
				capture = true
			}
		case xml.CharData:
			if capture {
				val.Write(el)
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "v", "t":
				capture = false
			case "c":
				row = append(row, resolveCell(cellType, val.String(), shared))
			case "row":
				rows = append(rows, row)
			}
		}
	}
	return rows, nil
}

// resolveCell maps a shared-string cell ("s") through the shared table;
// everything else passes through as its raw value.
func resolveCell(cellType, raw string, shared []string) string {
	if cellType != "s" {
		return raw
	}
	idx, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || idx < 0 || idx >= len(shared) {
		return raw
	}
	return shared[idx]
}
