package extract

import (
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"hwgrader/internal/models"
)

// Kind is the coarse document family an upload belongs to.
type Kind int

const (
	KindUnknown Kind = iota
	KindPDF
	KindText
	KindImage
)

func (k Kind) String() string {
	switch k {
	case KindPDF:
		return "pdf"
	case KindText:
		return "text"
	case KindImage:
		return "image"
	default:
		return "unknown"
	}
}

var imageTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/gif":  {},
	"image/bmp":  {},
	"image/tiff": {},
	"image/webp": {},
}

var extensionKinds = map[string]Kind{
	".pdf":  KindPDF,
	".txt":  KindText,
	".text": KindText,
	".png":  KindImage,
	".jpg":  KindImage,
	".jpeg": KindImage,
	".gif":  KindImage,
	".bmp":  KindImage,
	".tif":  KindImage,
	".tiff": KindImage,
	".webp": KindImage,
}

// ResolveKind classifies doc using, in order, its declared media type, the
// sniffed content type and finally the file extension.
func ResolveKind(doc *models.Document) (Kind, error) {
	if k := kindFromMediaType(doc.MediaType); k != KindUnknown {
		return k, nil
	}
	if k := kindFromMediaType(http.DetectContentType(doc.Data)); k != KindUnknown {
		return k, nil
	}
	if k, ok := extensionKinds[strings.ToLower(filepath.Ext(doc.FileName))]; ok {
		return k, nil
	}
	return KindUnknown, fmt.Errorf("%w: %q (%s)", ErrUnsupportedMedia, doc.FileName, doc.MediaType)
}

func kindFromMediaType(value string) Kind {
	if value == "" {
		return KindUnknown
	}
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		return KindUnknown
	}
	switch {
	case mediaType == "application/pdf":
		return KindPDF
	case mediaType == "text/plain":
		return KindText
	}
	if _, ok := imageTypes[mediaType]; ok {
		return KindImage
	}
	return KindUnknown
}
