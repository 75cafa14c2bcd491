// Package extract turns uploaded question and answer documents into plain text.
//
// PDFs are rasterized page by page and each page image is handed to a
// PageRecognizer. Which recognizer runs depends on the ExtractionMode: printed
// question sheets use a block-of-text OCR pass, handwritten answer sheets use
// an engine that returns loose text fragments. Plain-text uploads bypass OCR.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"hwgrader/internal/models"
)

var (
	ErrUnsupportedMedia = errors.New("unsupported document type")
	ErrInvalidText      = errors.New("text document is not valid UTF-8")
	ErrEmptyDocument    = errors.New("document is empty")
	ErrNoRecognizer     = errors.New("no recognizer configured for mode")
)

// PageRecognizer runs OCR on one PNG-encoded page and returns the recognized
// text fragments in reading order.
type PageRecognizer interface {
	Name() string
	Recognize(ctx context.Context, page []byte) ([]string, error)
}

// Rasterizer renders every page of a PDF to PNG, in page order.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdf []byte) ([][]byte, error)
}

// TextLayerReader returns the embedded text of each PDF page, if any.
type TextLayerReader interface {
	PageTexts(pdf []byte) ([]string, error)
}

// Options wires the engines an Extractor dispatches to.
type Options struct {
	Printed     PageRecognizer
	Handwriting PageRecognizer
	Rasterizer  Rasterizer
	// TextLayer, when set together with PreferTextLayer, lets printed PDFs
	// that already carry text skip OCR entirely.
	TextLayer       TextLayerReader
	PreferTextLayer bool
	Logger          *slog.Logger
}

// Extractor converts documents to text. Engines are constructed once by the
// caller and shared read-only; pages are processed sequentially.
type Extractor struct {
	printed         PageRecognizer
	handwriting     PageRecognizer
	raster          Rasterizer
	textLayer       TextLayerReader
	preferTextLayer bool
	log             *slog.Logger
}

func New(opts Options) *Extractor {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{
		printed:         opts.Printed,
		handwriting:     opts.Handwriting,
		raster:          opts.Rasterizer,
		textLayer:       opts.TextLayer,
		preferTextLayer: opts.PreferTextLayer,
		log:             log,
	}
}

// Extract returns the trimmed text of doc. Plain text is decoded as UTF-8;
// PDFs and images go through the recognizer selected by mode.
func (e *Extractor) Extract(ctx context.Context, doc *models.Document, mode models.ExtractionMode) (string, error) {
	if doc == nil || len(doc.Data) == 0 {
		return "", ErrEmptyDocument
	}
	kind, err := ResolveKind(doc)
	if err != nil {
		return "", err
	}
	switch kind {
	case KindText:
		return DecodeText(doc.Data)
	case KindPDF:
		return e.extractPDF(ctx, doc, mode)
	case KindImage:
		return e.extractImage(ctx, doc, mode)
	default:
		return "", ErrUnsupportedMedia
	}
}

// DecodeText decodes a plain-text upload.
func DecodeText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", ErrInvalidText
	}
	return strings.TrimSpace(string(data)), nil
}

func (e *Extractor) recognizer(mode models.ExtractionMode) (PageRecognizer, error) {
	var r PageRecognizer
	switch mode {
	case models.ModePrinted:
		r = e.printed
	case models.ModeHandwritten:
		r = e.handwriting
	}
	if r == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoRecognizer, mode)
	}
	return r, nil
}

func (e *Extractor) extractPDF(ctx context.Context, doc *models.Document, mode models.ExtractionMode) (string, error) {
	if mode == models.ModePrinted && e.preferTextLayer && e.textLayer != nil {
		pages, err := e.textLayer.PageTexts(doc.Data)
		if err != nil {
			e.log.Warn("text layer unreadable, falling back to OCR", "file", doc.FileName, "err", err)
		} else if text := joinPages(pages); text != "" {
			e.log.Debug("using embedded text layer", "file", doc.FileName, "pages", len(pages))
			return text, nil
		}
	}

	rec, err := e.recognizer(mode)
	if err != nil {
		return "", err
	}
	if e.raster == nil {
		return "", fmt.Errorf("%w: no rasterizer configured", ErrRasterize)
	}
	images, err := e.raster.Rasterize(ctx, doc.Data)
	if err != nil {
		return "", err
	}
	e.log.Debug("rasterized pdf", "file", doc.FileName, "pages", len(images), "engine", rec.Name())
	return e.recognizePages(ctx, rec, images)
}

func (e *Extractor) extractImage(ctx context.Context, doc *models.Document, mode models.ExtractionMode) (string, error) {
	rec, err := e.recognizer(mode)
	if err != nil {
		return "", err
	}
	page, err := NormalizeImage(doc.Data)
	if err != nil {
		return "", err
	}
	return e.recognizePages(ctx, rec, [][]byte{page})
}

func (e *Extractor) recognizePages(ctx context.Context, rec PageRecognizer, images [][]byte) (string, error) {
	pages := make([]string, 0, len(images))
	for idx, img := range images {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		fragments, err := rec.Recognize(ctx, img)
		if err != nil {
			return "", fmt.Errorf("recognize page %d with %s: %w", idx+1, rec.Name(), err)
		}
		pages = append(pages, strings.Join(fragments, " "))
	}
	return joinPages(pages), nil
}

// joinPages strips form feeds, trims each page and joins them one per line.
func joinPages(pages []string) string {
	var b strings.Builder
	for _, p := range pages {
		p = strings.TrimSpace(strings.ReplaceAll(p, "\f", ""))
		b.WriteString(p)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
