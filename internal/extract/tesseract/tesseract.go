// Package tesseract provides the gosseract-backed page recognizers used for
// printed question sheets and handwritten answers.
package tesseract

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// Options configures both engines.
type Options struct {
	Languages      []string
	TessdataPrefix string
	DPI            int
}

// Engine recognizes one page per call with a fresh gosseract client, so a
// single Engine is safe to share between requests.
type Engine struct {
	name          string
	opts          Options
	mode          gosseract.PageSegMode
	lines         bool
	clientFactory func() *gosseract.Client
}

// NewPrinted returns an engine that reads a page as one uniform block of
// text (page segmentation mode 6) and yields a single fragment.
func NewPrinted(opts Options) *Engine {
	return &Engine{
		name:          "tesseract-printed",
		opts:          opts,
		mode:          gosseract.PSM_SINGLE_BLOCK,
		clientFactory: gosseract.NewClient,
	}
}

// NewHandwriting returns an engine that lets tesseract segment the page on
// its own and yields one fragment per detected text line.
func NewHandwriting(opts Options) *Engine {
	return &Engine{
		name:          "tesseract-handwriting",
		opts:          opts,
		mode:          gosseract.PSM_AUTO,
		lines:         true,
		clientFactory: gosseract.NewClient,
	}
}

func (e *Engine) Name() string { return e.name }

func (e *Engine) Recognize(ctx context.Context, page []byte) ([]string, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	c := e.clientFactory()
	defer c.Close()

	if e.opts.TessdataPrefix != "" {
		c.SetTessdataPrefix(e.opts.TessdataPrefix)
	}
	if len(e.opts.Languages) > 0 {
		if err := c.SetLanguage(e.opts.Languages...); err != nil {
			return nil, fmt.Errorf("set languages: %w", err)
		}
	}
	if err := c.SetPageSegMode(e.mode); err != nil {
		return nil, fmt.Errorf("set page segmentation: %w", err)
	}
	if e.opts.DPI > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(e.opts.DPI)); err != nil {
			return nil, fmt.Errorf("set dpi: %w", err)
		}
	}
	if err := c.SetImageFromBytes(page); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}

	text, err := c.Text()
	if err != nil {
		return nil, fmt.Errorf("recognize text: %w", err)
	}
	if !e.lines {
		return []string{strings.TrimSpace(strings.ReplaceAll(text, "\f", ""))}, nil
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil || len(boxes) == 0 {
		return splitLines(text), nil
	}
	fragments := make([]string, 0, len(boxes))
	for _, b := range boxes {
		if w := strings.TrimSpace(b.Word); w != "" {
			fragments = append(fragments, w)
		}
	}
	return fragments, nil
}

func splitLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(strings.ReplaceAll(line, "\f", "")); line != "" {
			out = append(out, line)
		}
	}
	return out
}
