// Package extract turns source files into indexable content: plain text from
// PDFs, base64 payloads from images. File kind is inferred from the extension
// so callers can route a mixed batch without sniffing bytes.
package extract

import (
	"errors"
	"path/filepath"
	"strings"
)

// Kind classifies a source file for the ingestion pipeline.
type Kind string

const (
	KindPDF     Kind = "pdf"
	KindImage   Kind = "image"
	KindDoc     Kind = "doc"
	KindUnknown Kind = "unknown"
)

// ErrNoText is returned when a document parses cleanly but yields no
// extractable text, e.g. a scanned PDF with no text layer.
var ErrNoText = errors.New("extract: document contains no extractable text")

// imageExtensions lists the raster formats the vision model accepts.
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
}

// InferKind classifies a file by its extension.
func InferKind(path string) Kind {
	switch ext := strings.ToLower(filepath.Ext(path)); {
	case ext == ".pdf":
		return KindPDF
	case imageExtensions[ext]:
		return KindImage
	case ext == ".doc" || ext == ".docx":
		return KindDoc
	default:
		return KindUnknown
	}
}
