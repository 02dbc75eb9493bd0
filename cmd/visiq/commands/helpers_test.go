package commands

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestModelOptionsFromEnv(t *testing.T) {
	t.Setenv("MODEL_MAX_TOKENS", "512")
	t.Setenv("MODEL_TEMPERATURE", "0.2")
	t.Setenv("MODEL_TOP_P", "0.85")
	t.Setenv("MODEL_TOP_K", "20")

	opts := modelOptionsFromEnv()
	if opts.NumPredict != 512 {
		t.Errorf("expected 512 max tokens, got %d", opts.NumPredict)
	}
	if opts.Temperature != 0.2 {
		t.Errorf("expected temperature 0.2, got %v", opts.Temperature)
	}
	if opts.TopP != 0.85 {
		t.Errorf("expected top_p 0.85, got %v", opts.TopP)
	}
	if opts.TopK != 20 {
		t.Errorf("expected top_k 20, got %d", opts.TopK)
	}
}

func TestModelOptionsFromEnv_UnsetStaysZero(t *testing.T) {
	t.Setenv("MODEL_MAX_TOKENS", "")
	t.Setenv("MODEL_TEMPERATURE", "")
	t.Setenv("MODEL_TOP_P", "")
	t.Setenv("MODEL_TOP_K", "")

	opts := modelOptionsFromEnv()
	if opts.NumPredict != 0 || opts.Temperature != 0 || opts.TopP != 0 || opts.TopK != 0 {
		t.Errorf("unset env must leave options zero for downstream defaults: %+v", opts)
	}
}

func TestIngestConfigFromEnv(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "800")
	t.Setenv("CHUNK_OVERLAP", "200")
	t.Setenv("PDF_MAX_PAGES", "15")

	cfg := ingestConfigFromEnv()
	if cfg.ChunkSize != 800 {
		t.Errorf("expected chunk size 800, got %d", cfg.ChunkSize)
	}
	if cfg.ChunkOverlap != 200 {
		t.Errorf("expected chunk overlap 200, got %d", cfg.ChunkOverlap)
	}
	if cfg.MaxPages != 15 {
		t.Errorf("expected max pages 15, got %d", cfg.MaxPages)
	}
}

func TestGetEnvFloat32(t *testing.T) {
	t.Setenv("VISIQ_TEST_FLOAT", "0.45")
	if got := getEnvFloat32("VISIQ_TEST_FLOAT", 0.9); got != 0.45 {
		t.Errorf("expected 0.45, got %v", got)
	}

	t.Setenv("VISIQ_TEST_FLOAT", "not-a-number")
	if got := getEnvFloat32("VISIQ_TEST_FLOAT", 0.9); got != 0.9 {
		t.Errorf("invalid value should fall back to default, got %v", got)
	}

	t.Setenv("VISIQ_TEST_FLOAT", "")
	if got := getEnvFloat32("VISIQ_TEST_FLOAT", 0.9); got != 0.9 {
		t.Errorf("unset value should fall back to default, got %v", got)
	}
}

func TestResolvePaths_FiltersUnknownKinds(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	for _, name := range []string{"report.pdf", "data.csv"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	paths, err := resolvePaths([]string{filepath.Join(dir, "*")}, false, testLogger())
	if err != nil {
		t.Fatalf("resolvePaths: %v", err)
	}
	if len(paths) != 1 || filepath.Base(paths[0]) != "report.pdf" {
		t.Errorf("expected only report.pdf, got %v", paths)
	}
}

func TestResolvePaths_AnyKindKeepsUnknownExtensions(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	scan := filepath.Join(dir, "scan.dat")
	if err := os.WriteFile(scan, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	// A literal unknown-extension path is an error under inference but
	// accepted when the caller forces the kind.
	if _, err := resolvePaths([]string{scan}, false, testLogger()); err == nil {
		t.Error("expected error for unknown extension without a forced kind")
	}

	paths, err := resolvePaths([]string{scan}, true, testLogger())
	if err != nil {
		t.Fatalf("resolvePaths: %v", err)
	}
	if len(paths) != 1 || paths[0] != scan {
		t.Errorf("expected %q kept, got %v", scan, paths)
	}
}
