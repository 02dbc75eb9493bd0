package server

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/Mihir-M112/VisiQ-GPT/internal/vision"
)

// OllamaPinger probes the Ollama server with a zero-cost /api/tags request.
// It satisfies the Pinger interface and is used by GET /api/ready.
type OllamaPinger struct {
	// client is the vision client whose host is probed.
	client *vision.Client
}

// NewOllamaPinger constructs an OllamaPinger for the given vision client.
func NewOllamaPinger(client *vision.Client) *OllamaPinger {
	return &OllamaPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *OllamaPinger) Name() string { return "ollama" }

// Ping checks the Ollama server is reachable. No tokens are consumed.
func (p *OllamaPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// QdrantPinger probes a Qdrant instance using its native HealthCheck RPC.
// It satisfies the Pinger interface and is used by GET /api/ready.
type QdrantPinger struct {
	// client is the Qdrant gRPC client to probe.
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
// Returns nil if Qdrant is reachable, or a descriptive error otherwise.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	_, err := p.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}
