package extract

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFText extracts the plain text of a PDF file. maxPages bounds how many
// pages are read; 0 means all pages. Pages whose text layer fails to parse
// are skipped rather than failing the whole document — a single damaged page
// should not block indexing the rest.
func PDFText(path string, maxPages int) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("extract: open pdf %s: %w", path, err)
	}
	defer f.Close()

	total := r.NumPage()
	if maxPages > 0 && total > maxPages {
		total = maxPages
	}

	var text strings.Builder
	for i := 1; i <= total; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text.WriteString(content)
		text.WriteString("\n")
	}

	out := strings.TrimSpace(text.String())
	if out == "" {
		return "", fmt.Errorf("%w: %s", ErrNoText, path)
	}
	return out, nil
}
