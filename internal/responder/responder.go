// Package responder composes answers to user queries. It assembles the model
// message slice from the session history, the retrieved document context, and
// the current question (optionally with an image attachment), enforces the
// context token budget, calls the vision model, and persists the exchange
// back to the session.
package responder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/Mihir-M112/VisiQ-GPT/internal/logging"
	"github.com/Mihir-M112/VisiQ-GPT/internal/rag"
	"github.com/Mihir-M112/VisiQ-GPT/internal/session"
	"github.com/Mihir-M112/VisiQ-GPT/internal/vision"
)

// Chatter is the slice of the vision client the responder needs.
// Narrowed to an interface so tests can substitute a fake.
type Chatter interface {
	Chat(ctx context.Context, msgs []vision.Message, opts *vision.Options) (string, error)
	ChatStream(ctx context.Context, msgs []vision.Message, opts *vision.Options, w io.Writer) (string, error)
}

// Config holds responder settings. Zero values take the defaults.
type Config struct {
	// SystemPrompt steers the answer style. Defaults to vision.DefaultSystemPrompt.
	SystemPrompt string

	// MaxContextTokens bounds the assembled input context.
	// Defaults to DefaultMaxContextTokens.
	MaxContextTokens int

	// TopK is how many documents to retrieve per query. Defaults to 3.
	TopK int

	// MinScore drops retrieved documents scoring below this threshold.
	// 0 disables the gate.
	MinScore float32

	// Options are the default sampling parameters for answer generation.
	Options *vision.Options
}

// Request is one user query.
type Request struct {
	// SessionID selects the session whose history frames the answer.
	// Empty disables history.
	SessionID string

	// Query is the user's question.
	Query string

	// Images carries base64-encoded attachments to answer about directly.
	Images []string

	// Options override the responder's default sampling parameters.
	Options *vision.Options
}

// Response is the generated answer plus the documents that informed it.
type Response struct {
	// Answer is the model's reply.
	Answer string

	// Sources are the retrieved documents included in the context, best-first.
	Sources []rag.Document
}

// Responder generates answers. Safe for concurrent use.
type Responder struct {
	client    Chatter
	retriever rag.Retriever
	sessions  session.Store
	cfg       *Config
}

// New constructs a Responder. client is required; retriever and sessions are
// optional and disable retrieval and history respectively when nil.
func New(client Chatter, retriever rag.Retriever, sessions session.Store, cfg *Config) (*Responder, error) {
	if client == nil {
		return nil, fmt.Errorf("responder: client must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = vision.DefaultSystemPrompt
	}
	if cfg.MaxContextTokens <= 0 {
		cfg.MaxContextTokens = DefaultMaxContextTokens
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	return &Responder{
		client:    client,
		retriever: retriever,
		sessions:  sessions,
		cfg:       cfg,
	}, nil
}

// Respond answers the request and persists the exchange.
func (r *Responder) Respond(ctx context.Context, req *Request) (*Response, error) {
	msgs, sources, err := r.buildMessages(ctx, req)
	if err != nil {
		return nil, err
	}

	answer, err := r.client.Chat(ctx, msgs, r.options(req))
	if err != nil {
		return nil, fmt.Errorf("responder: generation failed: %w", err)
	}

	r.persist(ctx, req, answer)
	return &Response{Answer: answer, Sources: sources}, nil
}

// RespondStream answers the request, writing answer deltas to w as they
// arrive, and persists the completed exchange.
func (r *Responder) RespondStream(ctx context.Context, req *Request, w io.Writer) (*Response, error) {
	msgs, sources, err := r.buildMessages(ctx, req)
	if err != nil {
		return nil, err
	}

	answer, err := r.client.ChatStream(ctx, msgs, r.options(req), w)
	if err != nil {
		return nil, fmt.Errorf("responder: generation failed: %w", err)
	}

	r.persist(ctx, req, answer)
	return &Response{Answer: answer, Sources: sources}, nil
}

// options resolves the per-request sampling override against the defaults.
func (r *Responder) options(req *Request) *vision.Options {
	if req.Options != nil {
		return req.Options
	}
	return r.cfg.Options
}

// buildMessages assembles the full message slice:
//
//	system prompt (+ retrieved context) → trimmed history → user query
//
// Retrieval failure is non-fatal: the model answers without context rather
// than the query failing outright.
func (r *Responder) buildMessages(ctx context.Context, req *Request) ([]vision.Message, []rag.Document, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, nil, fmt.Errorf("responder: query must not be empty")
	}

	log := logging.FromContext(ctx)

	var sources []rag.Document
	if r.retriever != nil {
		docs, err := r.retriever.Retrieve(ctx, req.Query, r.cfg.TopK)
		if err != nil {
			log.Warn("responder: retrieval failed, answering without context",
				slog.Any("error", err),
			)
		} else {
			sources = r.gate(docs)
		}
	}

	system := r.cfg.SystemPrompt
	if block := contextBlock(sources); block != "" {
		system = system + "\n\n" + block
	}

	fixed := []vision.Message{
		{Role: vision.RoleSystem, Content: system},
		{Role: vision.RoleUser, Content: req.Query, Images: req.Images},
	}

	var history []vision.Message
	if r.sessions != nil && req.SessionID != "" {
		stored, err := r.sessions.Recent(ctx, req.SessionID)
		if err != nil {
			log.Warn("responder: loading session history failed",
				slog.String("session_id", req.SessionID),
				slog.Any("error", err),
			)
		}
		for _, m := range stored {
			history = append(history, vision.Message{Role: string(m.Role), Content: m.Content})
		}
	}
	history = trimHistory(fixed, history, r.cfg.MaxContextTokens)

	msgs := make([]vision.Message, 0, len(history)+2)
	msgs = append(msgs, fixed[0])
	msgs = append(msgs, history...)
	msgs = append(msgs, fixed[1])
	return msgs, sources, nil
}

// gate drops documents scoring below the configured threshold.
func (r *Responder) gate(docs []rag.Document) []rag.Document {
	if r.cfg.MinScore <= 0 {
		return docs
	}
	kept := docs[:0:0]
	for _, d := range docs {
		if d.Score >= r.cfg.MinScore {
			kept = append(kept, d)
		}
	}
	return kept
}

// contextBlock renders retrieved documents for injection into the system
// prompt. Empty when nothing was retrieved.
func contextBlock(docs []rag.Document) string {
	if len(docs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Use the following retrieved context to answer when relevant:\n")
	for _, d := range docs {
		fmt.Fprintf(&b, "\n[source: %s]\n%s\n", d.Source, d.Content)
	}
	return b.String()
}

// persist appends the exchange to the session. A persistence failure loses
// one turn of history, so it is logged rather than failing the answer.
func (r *Responder) persist(ctx context.Context, req *Request, answer string) {
	if r.sessions == nil || req.SessionID == "" {
		return
	}
	if err := r.sessions.AppendExchange(ctx, req.SessionID, req.Query, answer); err != nil {
		logging.FromContext(ctx).Warn("responder: persisting exchange failed",
			slog.String("session_id", req.SessionID),
			slog.Any("error", err),
		)
	}
}
