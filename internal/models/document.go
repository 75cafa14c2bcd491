package models

// ExtractionMode selects which OCR pipeline handles a PDF or image upload.
type ExtractionMode string

const (
	ModePrinted     ExtractionMode = "printed"
	ModeHandwritten ExtractionMode = "handwritten"
)

// Document is an uploaded question or answer file, consumed once by extraction.
type Document struct {
	FileName  string `json:"file_name"`
	MediaType string `json:"media_type"`
	Data      []byte `json:"-"`
}

// Size returns the number of raw bytes in the upload.
func (d *Document) Size() int64 {
	if d == nil {
		return 0
	}
	return int64(len(d.Data))
}
