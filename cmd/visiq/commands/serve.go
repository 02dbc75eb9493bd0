package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/Mihir-M112/VisiQ-GPT/internal/ingestion"
	"github.com/Mihir-M112/VisiQ-GPT/internal/logging"
	"github.com/Mihir-M112/VisiQ-GPT/internal/rag"
	"github.com/Mihir-M112/VisiQ-GPT/internal/responder"
	"github.com/Mihir-M112/VisiQ-GPT/internal/server"
)

// NewServeCmd constructs the `visiq serve` command, which starts the HTTP
// server exposing the query and ingestion pipelines.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the VisiQ-GPT HTTP server",
		Long: `Start the VisiQ-GPT HTTP server on localhost.

The server exposes a REST/SSE API for querying indexed documents, analysing
images, and uploading new files for ingestion. Protected endpoints require a
Bearer token when VISIQ_API_KEY is set.

Endpoints:
  POST   /api/generate      answer a question (JSON response)
  POST   /api/query         answer a question (SSE token stream)
  POST   /api/analyze       answer a question about an uploaded image
  POST   /api/ingest        upload and index a document
  DELETE /api/session/{id}  delete a conversation session
  GET    /api/health        liveness probe
  GET    /api/ready         readiness probe (checks Ollama and Qdrant)
  GET    /metrics           Prometheus metrics

Examples:
  visiq serve
  visiq serve --port 9090
  VISIQ_API_KEY=secret visiq serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			client := buildVisionClient()
			if err := client.EnsureModel(ctx); err != nil {
				log.Warn("vision model not ready, queries will fail until it is pulled", slog.Any("error", err))
			}

			deps, closeStore, err := buildIngestDeps(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer closeStore()
			if deps.docCache != nil {
				defer deps.docCache.Close()
			}

			inner, err := rag.NewRetriever(deps.embedder, deps.store, 0)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			retriever := rag.NewRerankedRetriever(inner, rag.NewVisionReranker(client), 0)

			sessions := openSessions(log)
			if sessions != nil {
				defer sessions.Close()
			}

			defaults := modelOptionsFromEnv()
			answers, err := responder.New(client, retriever, sessions, &responder.Config{
				SystemPrompt: os.Getenv("MODEL_SYSTEM_PROMPT"),
				Options:      defaults,
			})
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			var converter ingestion.Converter
			if soffice, sofficeErr := ingestion.NewSofficeConverter(); sofficeErr == nil {
				converter = soffice
			} else {
				log.Warn("soffice not found, .doc/.docx uploads will be rejected", slog.Any("error", sofficeErr))
			}

			pipeline, err := ingestion.NewPipeline(deps.embedder, deps.store, client, deps.docCache, converter, ingestConfigFromEnv())
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			srv, err := server.New(answers, pipeline, sessions, prometheus.NewRegistry(), &server.Config{
				Host:   host,
				Port:   port,
				Logger: log,
				Pingers: []server.Pinger{
					server.NewOllamaPinger(client),
					server.NewQdrantPinger(deps.store.Client()),
				},
				APIKey:   os.Getenv("VISIQ_API_KEY"),
				Defaults: defaults,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8000, "TCP port to listen on")

	return cmd
}
