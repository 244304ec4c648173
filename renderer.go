package main

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/gen2brain/go-fitz"
)

// renderDPI is twice the 72 DPI native page scale. Fixed policy constant:
// downstream OCR wants the extra resolution, and a fixed scale keeps output
// deterministic across re-runs of the same job.
const renderDPI = 144

// Document is an open PDF ready for page rasterization.
type Document interface {
	PageCount() int
	// RenderPage renders page i (0-based) to lossless PNG bytes.
	RenderPage(i int) ([]byte, error)
	Close() error
}

// Renderer opens PDF files for rasterization.
type Renderer interface {
	Open(path string) (Document, error)
}

// fitzRenderer rasterizes with MuPDF via go-fitz.
type fitzRenderer struct{}

func (fitzRenderer) Open(path string) (Document, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	return &fitzDocument{doc: doc}, nil
}

type fitzDocument struct {
	doc *fitz.Document
}

func (d *fitzDocument) PageCount() int { return d.doc.NumPage() }

func (d *fitzDocument) RenderPage(i int) ([]byte, error) {
	img, err := d.doc.ImageDPI(i, renderDPI)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", i+1, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode page %d: %w", i+1, err)
	}
	return buf.Bytes(), nil
}

func (d *fitzDocument) Close() error { return d.doc.Close() }
