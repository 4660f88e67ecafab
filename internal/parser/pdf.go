package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

const pdfMagic = "%PDF-"

// PDFParser extracts per-page content streams from PDF documents via
// pdfcpu.
type PDFParser struct {
	conf *pdfmodel.Configuration
}

func NewPDFParser() *PDFParser {
	conf := pdfmodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfmodel.ValidationRelaxed
	return &PDFParser{conf: conf}
}

func (p *PDFParser) Name() string {
	return "pdf"
}

func (p *PDFParser) CanParse(filename string, sniff []byte) bool {
	if filename != "" {
		return hasExt(filename, ".pdf")
	}
	return hasMagic(sniff, pdfMagic)
}

func (p *PDFParser) Parse(ctx context.Context, data []byte, opts Options) (*Document, error) {
	start := time.Now()

	rs := bytes.NewReader(data)
	if err := api.Validate(rs, p.conf); err != nil {
		return nil, corruptInput(p.Name(), err)
	}

	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, internalError(p.Name(), err)
	}
	pageCount, err := api.PageCount(rs, p.conf)
	if err != nil {
		return nil, corruptInput(p.Name(), err)
	}

	doc := &Document{
		Title:  titleFromFilename(opts.Filename),
		Chunks: make([]Chunk, 0, pageCount),
	}

	for page := 1; page <= pageCount; page++ {
		if err := ctx.Err(); err != nil {
			return nil, internalError(p.Name(), err)
		}
		if _, err := rs.Seek(0, io.SeekStart); err != nil {
			return nil, internalError(p.Name(), err)
		}
		content, err := api.ExtractPageContent(rs, page, p.conf)
		if err != nil {
			return nil, internalError(p.Name(), fmt.Errorf("page %d: %w", page, err))
		}
		var buf bytes.Buffer
		if content != nil {
			if _, err := io.Copy(&buf, content); err != nil {
				return nil, internalError(p.Name(), fmt.Errorf("page %d: %w", page, err))
			}
		}
		doc.Chunks = append(doc.Chunks, Chunk{
			Type:        ChunkText,
			Name:        fmt.Sprintf("page_%d", page),
			Content:     buf.String(),
			Description: "raw page content stream",
		})
	}

	doc.ElapsedMs = time.Since(start).Milliseconds()
	return doc, nil
}

func titleFromFilename(filename string) string {
	if filename == "" {
		return ""
	}
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
