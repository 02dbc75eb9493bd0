// Package ingestion implements the document indexing pipeline. It extracts
// text from PDFs, describes images with the vision model, chunks the content,
// embeds each chunk, and upserts the results into the vector store. Results
// are cached by file fingerprint so unchanged files are skipped on re-runs.
// This pipeline is invoked by the `visiq index` CLI command and the upload
// endpoints.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Mihir-M112/VisiQ-GPT/internal/cache"
	"github.com/Mihir-M112/VisiQ-GPT/internal/chunker"
	"github.com/Mihir-M112/VisiQ-GPT/internal/extract"
	"github.com/Mihir-M112/VisiQ-GPT/internal/logging"
	"github.com/Mihir-M112/VisiQ-GPT/internal/rag"
)

// Analyzer describes an image with the vision model. Satisfied by
// *vision.Client; narrowed to an interface so tests can substitute a fake.
type Analyzer interface {
	AnalyzeImage(ctx context.Context, base64Image string) (string, error)
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// ChunkSize is the maximum number of characters per document chunk.
	// Defaults to chunker.DefaultChunkSize if zero.
	ChunkSize int

	// ChunkOverlap is the number of characters to overlap between consecutive
	// chunks. Defaults to chunker.DefaultOverlap if zero; a negative value
	// disables overlap entirely.
	ChunkOverlap int

	// MaxPages bounds how many PDF pages are extracted per file. 0 = all.
	MaxPages int

	// Kind forces every file to be treated as this kind instead of inferring
	// it from the extension. Empty or KindUnknown infers per file.
	Kind extract.Kind

	// Concurrency is how many files are processed in parallel by Ingest.
	// Defaults to 4 if zero.
	Concurrency int
}

// FileResult summarises the ingestion of one file.
type FileResult struct {
	// Source is the origin file path.
	Source string
	// Kind is the detected file kind.
	Kind extract.Kind
	// Chunks is how many chunks were indexed for the file.
	Chunks int
	// Cached is true when the file was served from the extraction cache and
	// no model calls were made.
	Cached bool
}

// Pipeline orchestrates the extract → analyze → chunk → embed → upsert flow.
type Pipeline struct {
	// embedder converts text chunks into dense vector embeddings.
	embedder rag.Embedder

	// store persists the embedded chunks.
	store rag.VectorStore

	// analyzer turns images into searchable descriptions. May be nil, in
	// which case image files are rejected.
	analyzer Analyzer

	// cache short-circuits re-ingestion of unchanged files. May be nil to
	// disable caching.
	cache *cache.Cache

	// converter turns .doc/.docx files into PDFs. May be nil, in which case
	// office documents are rejected.
	converter Converter

	// splitter produces sentence-aligned chunks.
	splitter *chunker.Chunker

	// cfg holds the resolved pipeline configuration.
	cfg *Config
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
// embedder and store are required; analyzer, cache, and converter are
// optional and disable their corresponding capability when nil.
func NewPipeline(embedder rag.Embedder, store rag.VectorStore, analyzer Analyzer, docCache *cache.Cache, converter Converter, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	splitter, err := chunker.New(&chunker.Config{
		ChunkSize: cfg.ChunkSize,
		Overlap:   cfg.ChunkOverlap,
	})
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		embedder:  embedder,
		store:     store,
		analyzer:  analyzer,
		cache:     docCache,
		converter: converter,
		splitter:  splitter,
		cfg:       cfg,
	}, nil
}

// Ingest processes all paths concurrently and returns one result per input,
// ordered like the input. Progress is reported via the optional callback,
// which is invoked serially so callers need no locking of their own.
// The first file error cancels the remaining work.
func (p *Pipeline) Ingest(ctx context.Context, paths []string, progress func(msg string)) ([]FileResult, error) {
	if progress == nil {
		progress = func(string) {}
	}

	results := make([]FileResult, len(paths))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)

	for i, path := range paths {
		g.Go(func() error {
			res, err := p.IngestFile(ctx, path)
			if err != nil {
				return err
			}

			mu.Lock()
			results[i] = *res
			if res.Cached {
				progress(fmt.Sprintf("%s unchanged, %d chunks cached", path, res.Chunks))
			} else {
				progress(fmt.Sprintf("%s indexed as %d chunks", path, res.Chunks))
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// IngestFile processes a single file end to end. The configured Kind override
// wins over extension inference when set.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (*FileResult, error) {
	kind := p.cfg.Kind
	if kind == "" || kind == extract.KindUnknown {
		kind = extract.InferKind(path)
	}
	if kind == extract.KindUnknown {
		return nil, fmt.Errorf("ingestion: unsupported file type: %s", path)
	}

	fingerprint := ""
	if p.cache != nil {
		fp, err := cache.Fingerprint(path)
		if err != nil {
			return nil, err
		}
		fingerprint = fp

		if entry, ok, err := p.cache.Get(fingerprint); err != nil {
			logging.FromContext(ctx).Warn("ingestion: cache lookup failed, re-indexing",
				slog.String("path", path),
				slog.Any("error", err),
			)
		} else if ok {
			return &FileResult{
				Source: path,
				Kind:   extract.Kind(entry.Kind),
				Chunks: len(entry.ChunkIDs),
				Cached: true,
			}, nil
		}
	}

	text, err := p.extractText(ctx, path, kind)
	if err != nil {
		return nil, err
	}

	chunks := p.splitter.Split(text, path)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s", extract.ErrNoText, path)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	embeddings, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("ingestion: embedding failed for %s: %w", path, err)
	}

	docs := make([]rag.Document, 0, len(chunks))
	chunkIDs := make([]string, 0, len(chunks))
	for _, c := range chunks {
		docs = append(docs, rag.Document{
			ID:      c.ID,
			Content: c.Text,
			Source:  path,
			Metadata: map[string]string{
				"kind":        string(kind),
				"chunk_index": strconv.Itoa(c.Index),
			},
		})
		chunkIDs = append(chunkIDs, c.ID)
	}

	if err := p.store.Upsert(ctx, docs, embeddings); err != nil {
		return nil, fmt.Errorf("ingestion: upsert failed for %s: %w", path, err)
	}

	if p.cache != nil {
		err := p.cache.Put(&cache.Entry{
			Fingerprint: fingerprint,
			Source:      path,
			Kind:        string(kind),
			Text:        text,
			ChunkIDs:    chunkIDs,
		})
		if err != nil {
			// A failed cache write costs a re-index later, nothing more.
			logging.FromContext(ctx).Warn("ingestion: cache write failed",
				slog.String("path", path),
				slog.Any("error", err),
			)
		}
	}

	return &FileResult{Source: path, Kind: kind, Chunks: len(chunks)}, nil
}

// extractText produces the indexable text for a file according to its kind.
// Office documents are converted to PDF first; images are described by the
// vision model so their content is searchable with a text embedding model.
func (p *Pipeline) extractText(ctx context.Context, path string, kind extract.Kind) (string, error) {
	switch kind {
	case extract.KindPDF:
		return extract.PDFText(path, p.cfg.MaxPages)

	case extract.KindDoc:
		if p.converter == nil {
			return "", fmt.Errorf("ingestion: no converter configured for %s — install LibreOffice", path)
		}
		outDir, err := os.MkdirTemp("", "visiq-convert-*")
		if err != nil {
			return "", fmt.Errorf("ingestion: create temp dir: %w", err)
		}
		defer os.RemoveAll(outDir)

		converted, err := p.converter.ToPDF(ctx, path, outDir)
		if err != nil {
			return "", err
		}
		return extract.PDFText(converted, p.cfg.MaxPages)

	case extract.KindImage:
		if p.analyzer == nil {
			return "", fmt.Errorf("ingestion: no vision model configured, cannot index image %s", path)
		}
		payload, err := extract.ImageBase64(path)
		if err != nil {
			return "", err
		}
		return p.analyzer.AnalyzeImage(ctx, payload.Base64)

	default:
		return "", fmt.Errorf("ingestion: unsupported file kind %q", kind)
	}
}

// IsNoText reports whether err means the file had no extractable content.
// Callers surface this differently from infrastructure failures.
func IsNoText(err error) bool {
	return errors.Is(err, extract.ErrNoText)
}
