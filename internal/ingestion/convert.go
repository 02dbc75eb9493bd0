package ingestion

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Converter turns office documents into PDF so the rest of the pipeline only
// ever parses one document format.
type Converter interface {
	// ToPDF converts the document at path, writing the PDF into outDir, and
	// returns the path of the converted file.
	ToPDF(ctx context.Context, path, outDir string) (string, error)
}

// SofficeConverter implements Converter by executing the LibreOffice binary
// found on PATH. It is the default converter used in production.
type SofficeConverter struct{}

// NewSofficeConverter returns a new SofficeConverter. It verifies that the
// soffice binary is available on PATH at construction time.
func NewSofficeConverter() (*SofficeConverter, error) {
	if _, err := exec.LookPath("soffice"); err != nil {
		return nil, fmt.Errorf("ingestion: soffice binary not found on PATH — install LibreOffice to ingest .doc/.docx files")
	}
	return &SofficeConverter{}, nil
}

// ToPDF runs `soffice --headless --convert-to pdf` and returns the path of
// the produced PDF.
func (c *SofficeConverter) ToPDF(ctx context.Context, path, outDir string) (string, error) {
	cmd := exec.CommandContext(ctx, "soffice",
		"--headless",
		"--convert-to", "pdf",
		"--outdir", outDir,
		path,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("ingestion: convert %s: %w: %s", path, err, strings.TrimSpace(stderr.String()))
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	out := filepath.Join(outDir, base+".pdf")
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("ingestion: soffice reported success but %s is missing: %w", out, err)
	}
	return out, nil
}
