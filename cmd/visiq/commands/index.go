package commands

import (
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Mihir-M112/VisiQ-GPT/internal/extract"
	"github.com/Mihir-M112/VisiQ-GPT/internal/ingestion"
	"github.com/Mihir-M112/VisiQ-GPT/internal/logging"
)

// NewIndexCmd constructs the `visiq index` command, which extracts, chunks,
// embeds, and stores documents in the vector store.
func NewIndexCmd() *cobra.Command {
	var chunkSize int
	var chunkOverlap int
	var maxPages int
	var concurrency int
	var noCache bool
	var kindName string

	cmd := &cobra.Command{
		Use:   "index [path|glob ...]",
		Short: "Index documents and images into the vector store",
		Long: `Index local documents into the Qdrant vector store for retrieval.

Supported file types:
  .pdf                 text is extracted per page
  .doc, .docx          converted to PDF via LibreOffice (soffice), then extracted
  .png, .jpg, .jpeg,   described by the vision model; the description is
  .gif, .bmp, .webp    embedded so visual content is searchable by text

Unchanged files are skipped using a content-fingerprint cache, so re-running
index over the same directory is cheap.

Arguments may be plain paths or doublestar globs:

Examples:
  visiq index report.pdf
  visiq index ./docs/**/*.pdf
  visiq index "scans/**/*.{png,jpg}" notes.docx`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			var kind extract.Kind
			if kindName != "" {
				kind = extract.Kind(kindName)
				switch kind {
				case extract.KindPDF, extract.KindImage, extract.KindDoc:
				default:
					return fmt.Errorf("index: invalid --kind %q (expected pdf, image, or doc)", kindName)
				}
			}

			paths, err := resolvePaths(args, kind != "", log)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			if len(paths) == 0 {
				return fmt.Errorf("index: no supported files matched")
			}

			client := buildVisionClient()

			deps, closeStore, err := buildIngestDeps(ctx, log)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			defer closeStore()

			var docCache = deps.docCache
			if noCache {
				docCache = nil
			}
			if docCache != nil {
				defer docCache.Close()
			}

			var converter ingestion.Converter
			if soffice, sofficeErr := ingestion.NewSofficeConverter(); sofficeErr == nil {
				converter = soffice
			} else {
				// Only fatal if a doc file is actually in the batch.
				needsDoc := kind == extract.KindDoc
				if kind == "" {
					for _, p := range paths {
						if extract.InferKind(p) == extract.KindDoc {
							needsDoc = true
							break
						}
					}
				}
				if needsDoc {
					return fmt.Errorf("index: %w", sofficeErr)
				}
			}

			cfg := ingestConfigFromEnv()
			if chunkSize > 0 {
				cfg.ChunkSize = chunkSize
			}
			if cmd.Flags().Changed("chunk-overlap") {
				cfg.ChunkOverlap = chunkOverlap
				if chunkOverlap == 0 {
					// An explicit zero means no overlap at all, which the
					// chunker spells as a negative value.
					cfg.ChunkOverlap = -1
				}
			}
			if maxPages > 0 {
				cfg.MaxPages = maxPages
			}
			cfg.Kind = kind
			cfg.Concurrency = concurrency

			pipeline, err := ingestion.NewPipeline(deps.embedder, deps.store, client, docCache, converter, cfg)
			if err != nil {
				return fmt.Errorf("index: failed to create pipeline: %w", err)
			}

			log.Info("starting indexing", slog.Int("files", len(paths)))

			bar := progressbar.Default(int64(len(paths)), "indexing")
			results, err := pipeline.Ingest(ctx, paths, func(msg string) {
				bar.Add(1) //nolint:errcheck // progress display only
				log.Debug(msg)
			})
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			bar.Finish() //nolint:errcheck // progress display only

			var chunks, cached int
			for _, r := range results {
				chunks += r.Chunks
				if r.Cached {
					cached++
				}
			}
			fmt.Printf("indexed %d files (%d chunks, %d unchanged)\n", len(results), chunks, cached)
			return nil
		},
	}

	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Maximum characters per chunk (default: 400)")
	cmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", 0, "Characters overlapped between chunks; 0 disables overlap (default: 100)")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "Maximum PDF pages to extract per file (0 = all)")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "Files processed in parallel (default: 4)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Re-index files even if unchanged")
	cmd.Flags().StringVar(&kindName, "kind", "", "Force the file kind for all inputs: pdf, image, or doc")

	return cmd
}

// resolvePaths expands glob patterns, deduplicates, and filters the matches
// down to supported file types. Unsupported matches are logged and skipped;
// an explicitly named unsupported file is an error. With anyKind set the
// extension filter is bypassed, for callers that force the kind themselves.
func resolvePaths(args []string, anyKind bool, log *slog.Logger) ([]string, error) {
	seen := map[string]bool{}
	var paths []string

	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}

	for _, arg := range args {
		matches, err := doublestar.FilepathGlob(arg)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", arg, err)
		}

		if matches == nil {
			// Not a pattern match — treat as a literal path.
			if _, statErr := os.Stat(arg); statErr != nil {
				return nil, fmt.Errorf("no files match %q", arg)
			}
			if !anyKind && extract.InferKind(arg) == extract.KindUnknown {
				return nil, fmt.Errorf("unsupported file type: %s", arg)
			}
			add(arg)
			continue
		}

		for _, m := range matches {
			info, statErr := os.Stat(m)
			if statErr != nil || info.IsDir() {
				continue
			}
			if !anyKind && extract.InferKind(m) == extract.KindUnknown {
				log.Debug("skipping unsupported file", slog.String("path", m))
				continue
			}
			add(m)
		}
	}

	sort.Strings(paths)
	return paths, nil
}
