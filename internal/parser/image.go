package parser

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

var imageMagics = []string{
	"\x89PNG\r\n\x1a\n",
	"\xff\xd8\xff",
	"GIF87a",
	"GIF89a",
}

// ImageParser produces a single image chunk describing the picture's
// format and dimensions. Pixel-level extraction (OCR) is a downstream
// concern.
type ImageParser struct{}

func NewImageParser() *ImageParser {
	return &ImageParser{}
}

func (p *ImageParser) Name() string {
	return "image"
}

func (p *ImageParser) CanParse(filename string, sniff []byte) bool {
	if filename != "" {
		return hasExt(filename, ".png", ".jpg", ".jpeg", ".gif")
	}
	for _, magic := range imageMagics {
		if hasMagic(sniff, magic) {
			return true
		}
	}
	return false
}

func (p *ImageParser) Parse(ctx context.Context, data []byte, opts Options) (*Document, error) {
	start := time.Now()

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, corruptInput(p.Name(), err)
	}

	name := titleFromFilename(opts.Filename)
	if name == "" {
		name = "image"
	}

	return &Document{
		Title: titleFromFilename(opts.Filename),
		Chunks: []Chunk{{
			Type:        ChunkImage,
			Name:        name,
			Description: fmt.Sprintf("%s %dx%d", format, cfg.Width, cfg.Height),
		}},
		ElapsedMs: time.Since(start).Milliseconds(),
	}, nil
}
