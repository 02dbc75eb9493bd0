package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Mihir-M112/VisiQ-GPT/internal/ingestion"
	"github.com/Mihir-M112/VisiQ-GPT/internal/rag"
	"github.com/Mihir-M112/VisiQ-GPT/internal/responder"
	"github.com/Mihir-M112/VisiQ-GPT/internal/session"
	"github.com/Mihir-M112/VisiQ-GPT/internal/vision"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8000).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// UploadDir is where uploaded files are stored before ingestion.
	// Defaults to a visiq-uploads directory under the OS temp dir.
	UploadDir string
	// MaxUploadBytes caps the size of one uploaded file. Defaults to 50 MiB.
	MaxUploadBytes int64
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Defaults are the sampling parameters applied when a request omits them.
	// Zero fields fall back to the built-in defaults.
	Defaults *vision.Options
}

// answerer is the interface the query handlers call to generate a response.
// *responder.Responder satisfies it; tests inject a fake.
type answerer interface {
	Respond(ctx context.Context, req *responder.Request) (*responder.Response, error)
	RespondStream(ctx context.Context, req *responder.Request, w io.Writer) (*responder.Response, error)
}

// ingester is the interface the upload handler calls to index a file.
// *ingestion.Pipeline satisfies it; tests inject a fake.
type ingester interface {
	IngestFile(ctx context.Context, path string) (*ingestion.FileResult, error)
}

// Server is the HTTP server that exposes the query and ingestion pipelines.
type Server struct {
	// answerer generates answers for query requests.
	answerer answerer
	// ingester indexes uploaded files.
	ingester ingester
	// sessions tracks per-session state and history.
	sessions session.Store
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds this server's Prometheus metrics.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// generateRequest is the JSON body for POST /api/generate and /api/query.
type generateRequest struct {
	// Query is the user's question.
	Query string `json:"query"`
	// SessionID selects an existing session; empty creates a new one.
	SessionID string `json:"session_id,omitempty"`
	// MaxTokens caps the generated answer length (default: 300).
	MaxTokens int `json:"max_tokens,omitempty"`
	// Temperature controls randomness (default: 0.7).
	Temperature float32 `json:"temperature,omitempty"`
	// TopP is the nucleus sampling cutoff (default: 0.9).
	TopP float32 `json:"top_p,omitempty"`
	// TopK limits sampling to the k most likely tokens (default: 40).
	TopK int `json:"top_k,omitempty"`
}

// sourceRef points a response at one retrieved document.
type sourceRef struct {
	// Source is the origin file path of the document.
	Source string `json:"source"`
	// Score is the relevance score assigned during retrieval.
	Score float32 `json:"score"`
}

// generateResponse is the JSON body returned by POST /api/generate.
type generateResponse struct {
	// Answer is the model's reply.
	Answer string `json:"answer"`
	// SessionID identifies the session the exchange was recorded in.
	SessionID string `json:"session_id"`
	// Sources lists the documents that informed the answer, best-first.
	Sources []sourceRef `json:"sources"`
}

// analyzeResponse is the JSON body returned by POST /api/analyze.
type analyzeResponse struct {
	// Answer is the model's description of or answer about the image.
	Answer string `json:"answer"`
	// SessionID identifies the session the exchange was recorded in.
	SessionID string `json:"session_id"`
}

// ingestResponse is the JSON body returned by POST /api/ingest.
type ingestResponse struct {
	// Source is the stored path of the uploaded file.
	Source string `json:"source"`
	// Kind is the detected file kind.
	Kind string `json:"kind"`
	// Chunks is how many chunks were indexed.
	Chunks int `json:"chunks"`
	// Cached is true when the file was already indexed and unchanged.
	Cached bool `json:"cached"`
	// SessionID identifies the session whose current file was updated.
	SessionID string `json:"session_id,omitempty"`
}

// toSourceRefs converts retrieved documents into their response form.
func toSourceRefs(docs []rag.Document) []sourceRef {
	refs := make([]sourceRef, 0, len(docs))
	for _, d := range docs {
		refs = append(refs, sourceRef{Source: d.Source, Score: d.Score})
	}
	return refs
}
