package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

var ErrRasterize = errors.New("pdf rasterization failed")

// PopplerRasterizer renders pages with the pdftoppm binary from poppler-utils.
type PopplerRasterizer struct {
	Binary string
	DPI    int
}

func NewPopplerRasterizer(binary string, dpi int) *PopplerRasterizer {
	if binary == "" {
		binary = "pdftoppm"
	}
	if dpi <= 0 {
		dpi = 200
	}
	return &PopplerRasterizer{Binary: binary, DPI: dpi}
}

// Available reports whether the pdftoppm binary can be found.
func (r *PopplerRasterizer) Available() bool {
	_, err := exec.LookPath(r.Binary)
	return err == nil
}

func (r *PopplerRasterizer) Rasterize(ctx context.Context, data []byte) ([][]byte, error) {
	pageCount, err := CountPages(data)
	if err != nil {
		return nil, err
	}
	if pageCount == 0 {
		return nil, nil
	}

	dir, err := os.MkdirTemp("", "hwgrader-pages-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(input, data, 0o600); err != nil {
		return nil, fmt.Errorf("write temp pdf: %w", err)
	}

	prefix := filepath.Join(dir, "page")
	cmd := exec.CommandContext(ctx, r.Binary, "-r", strconv.Itoa(r.DPI), "-png", input, prefix)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %v: %s", ErrRasterize, err, strings.TrimSpace(stderr.String()))
	}

	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRasterize, err)
	}
	sort.Slice(matches, func(i, j int) bool {
		return pageNumber(matches[i]) < pageNumber(matches[j])
	})

	pages := make([][]byte, 0, len(matches))
	for _, path := range matches {
		img, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read page image: %w", err)
		}
		pages = append(pages, img)
	}
	return pages, nil
}

// pageNumber parses the numeric suffix pdftoppm appends, e.g. page-07.png.
func pageNumber(path string) int {
	base := strings.TrimSuffix(filepath.Base(path), ".png")
	idx := strings.LastIndex(base, "-")
	if idx < 0 {
		return 0
	}
	n, err := strconv.Atoi(base[idx+1:])
	if err != nil {
		return 0
	}
	return n
}

func openPDF(data []byte) (r *pdf.Reader, err error) {
	// the parser panics on some malformed inputs
	defer func() {
		if rec := recover(); rec != nil {
			r, err = nil, fmt.Errorf("%w: malformed pdf: %v", ErrRasterize, rec)
		}
	}()
	r, err = pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRasterize, err)
	}
	return r, nil
}

// CountPages validates data as a PDF and returns its page count.
func CountPages(data []byte) (int, error) {
	r, err := openPDF(data)
	if err != nil {
		return 0, err
	}
	return r.NumPage(), nil
}

// PDFTextLayer reads the text already embedded in a PDF.
type PDFTextLayer struct{}

func (PDFTextLayer) PageTexts(data []byte) (texts []string, err error) {
	r, err := openPDF(data)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rec := recover(); rec != nil {
			texts, err = nil, fmt.Errorf("read text layer: %v", rec)
		}
	}()
	total := r.NumPage()
	texts = make([]string, 0, total)
	for i := 1; i <= total; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			texts = append(texts, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		texts = append(texts, text)
	}
	return texts, nil
}
