package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Mihir-M112/VisiQ-GPT/internal/extract"
	"github.com/Mihir-M112/VisiQ-GPT/internal/ingestion"
	"github.com/Mihir-M112/VisiQ-GPT/internal/logging"
	"github.com/Mihir-M112/VisiQ-GPT/internal/rag"
	"github.com/Mihir-M112/VisiQ-GPT/internal/responder"
)

// NewAskCmd constructs the `visiq ask` command, which answers a single
// question over the indexed documents and streams the reply to stdout.
func NewAskCmd() *cobra.Command {
	var sessionID string
	var imagePath string
	var filePath string
	var topK int
	var maxTokens int

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about your indexed documents",
		Long: `Ask a natural language question answered from your indexed documents.

The most relevant chunks are retrieved from the vector store, re-ranked by
the vision model, and included as context. Pass --session to continue a
conversation: the last few exchanges are replayed so follow-up questions
work naturally.

With --image the question is answered about the attached image directly,
without consulting the index. With --file the named document is indexed
first (a no-op if unchanged), then the question is answered over it.

Examples:
  visiq ask "what were the Q3 revenue figures?"
  visiq ask --session 7f3a... "and how does that compare to Q2?"
  visiq ask --image chart.png "what trend does this chart show?"
  visiq ask --file report.pdf "summarise the key findings"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			client := buildVisionClient()
			if err := client.EnsureModel(ctx); err != nil {
				return fmt.Errorf("ask: vision model unavailable: %w", err)
			}

			var images []string
			if imagePath != "" {
				if extract.InferKind(imagePath) != extract.KindImage {
					return fmt.Errorf("ask: --image must be an image file, got %s", imagePath)
				}
				payload, err := extract.ImageBase64(imagePath)
				if err != nil {
					return fmt.Errorf("ask: %w", err)
				}
				images = []string{payload.Base64}
			}

			var retriever rag.Retriever
			if filePath != "" {
				// The named document must be indexed before it can be asked about.
				deps, closeStore, depsErr := buildIngestDeps(ctx, log)
				if depsErr != nil {
					return fmt.Errorf("ask: %w", depsErr)
				}
				defer closeStore()
				if deps.docCache != nil {
					defer deps.docCache.Close()
				}

				var converter ingestion.Converter
				if soffice, sofficeErr := ingestion.NewSofficeConverter(); sofficeErr == nil {
					converter = soffice
				} else if extract.InferKind(filePath) == extract.KindDoc {
					return fmt.Errorf("ask: %w", sofficeErr)
				}

				pipeline, pipeErr := ingestion.NewPipeline(deps.embedder, deps.store, client, deps.docCache, converter, nil)
				if pipeErr != nil {
					return fmt.Errorf("ask: %w", pipeErr)
				}
				res, ingErr := pipeline.IngestFile(ctx, filePath)
				if ingErr != nil {
					return fmt.Errorf("ask: indexing %s: %w", filePath, ingErr)
				}
				log.Info("file indexed",
					slog.String("path", filePath),
					slog.Int("chunks", res.Chunks),
					slog.Bool("cached", res.Cached),
				)

				inner, retErr := rag.NewRetriever(deps.embedder, deps.store, topK)
				if retErr != nil {
					return fmt.Errorf("ask: %w", retErr)
				}
				retriever = rag.NewRerankedRetriever(inner, rag.NewVisionReranker(client), 0)
			} else {
				// An unreachable vector store degrades to a plain model answer.
				r, closeRetriever, retErr := buildRetriever(ctx, client, topK, log)
				if retErr != nil {
					log.Warn("retrieval unavailable, answering without document context", slog.Any("error", retErr))
					closeRetriever = func() {}
				} else {
					retriever = r
				}
				defer closeRetriever()
			}

			sessions := openSessions(log)
			if sessions != nil {
				defer sessions.Close()

				if sessionID == "" {
					id, err := sessions.Create(ctx)
					if err != nil {
						return fmt.Errorf("ask: %w", err)
					}
					sessionID = id
				} else if err := sessions.Ensure(ctx, sessionID); err != nil {
					return fmt.Errorf("ask: %w", err)
				}
			}

			opts := modelOptionsFromEnv()
			if maxTokens > 0 {
				opts.NumPredict = maxTokens
			}
			if opts.NumPredict <= 0 {
				opts.NumPredict = 300
			}

			answers, err := responder.New(client, retriever, sessions, &responder.Config{
				SystemPrompt: os.Getenv("MODEL_SYSTEM_PROMPT"),
				TopK:         topK,
				Options:      opts,
			})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			resp, err := answers.RespondStream(ctx, &responder.Request{
				SessionID: sessionID,
				Query:     args[0],
				Images:    images,
			}, os.Stdout)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			fmt.Println()

			if len(resp.Sources) > 0 {
				fmt.Println("\nsources:")
				for _, src := range resp.Sources {
					fmt.Printf("  %s (%.2f)\n", src.Source, src.Score)
				}
			}
			if sessionID != "" {
				fmt.Printf("\nsession: %s\n", sessionID)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session ID to continue a conversation")
	cmd.Flags().StringVarP(&imagePath, "image", "i", "", "Image file to ask about directly")
	cmd.Flags().StringVarP(&filePath, "file", "f", "", "Document to index before asking")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 3, "Number of document chunks to retrieve")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Maximum tokens in the answer (default: MODEL_MAX_TOKENS or 300)")

	return cmd
}
