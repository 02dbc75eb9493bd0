package extract

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// ImagePayload is a base64-encoded image ready to attach to a vision request.
type ImagePayload struct {
	// Base64 is the standard-encoded image bytes.
	Base64 string
	// MIME is the content type inferred from the extension (e.g. "image/png").
	MIME string
}

// mimeByExtension maps supported image extensions to their content types.
var mimeByExtension = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
}

// ImageBase64 reads an image file and returns its base64 payload. The MIME
// type comes from the extension when it is a known image extension, otherwise
// from content sniffing — callers may force files with arbitrary extensions
// through the image path.
func ImageBase64(path string) (*ImagePayload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("extract: read image %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("extract: image %s is empty", path)
	}

	mime, ok := mimeByExtension[strings.ToLower(filepath.Ext(path))]
	if !ok {
		mime = http.DetectContentType(data)
	}

	return &ImagePayload{
		Base64: base64.StdEncoding.EncodeToString(data),
		MIME:   mime,
	}, nil
}
