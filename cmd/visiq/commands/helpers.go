package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Mihir-M112/VisiQ-GPT/internal/cache"
	"github.com/Mihir-M112/VisiQ-GPT/internal/embedder"
	"github.com/Mihir-M112/VisiQ-GPT/internal/ingestion"
	"github.com/Mihir-M112/VisiQ-GPT/internal/rag"
	"github.com/Mihir-M112/VisiQ-GPT/internal/session"
	"github.com/Mihir-M112/VisiQ-GPT/internal/vision"
)

// getEnvOrDefault returns the value of the env var, or def if unset.
func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getEnvInt returns the env var parsed as int, or def if unset or invalid.
func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// getEnvFloat32 returns the env var parsed as float32, or def if unset or invalid.
func getEnvFloat32(key string, def float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return def
}

// modelOptionsFromEnv resolves the MODEL_* sampling environment into vision
// options. Unset keys stay zero so downstream defaults apply.
func modelOptionsFromEnv() *vision.Options {
	return &vision.Options{
		NumPredict:  getEnvInt("MODEL_MAX_TOKENS", 0),
		Temperature: getEnvFloat32("MODEL_TEMPERATURE", 0),
		TopP:        getEnvFloat32("MODEL_TOP_P", 0),
		TopK:        getEnvInt("MODEL_TOP_K", 0),
	}
}

// ingestConfigFromEnv resolves the CHUNK_* and PDF_MAX_PAGES environment into
// a pipeline config. Unset keys stay zero so pipeline defaults apply.
func ingestConfigFromEnv() *ingestion.Config {
	return &ingestion.Config{
		ChunkSize:    getEnvInt("CHUNK_SIZE", 0),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 0),
		MaxPages:     getEnvInt("PDF_MAX_PAGES", 0),
	}
}

// buildVisionClient constructs the Ollama vision client from the environment.
func buildVisionClient() *vision.Client {
	return vision.NewClient(&vision.Config{
		Host:  os.Getenv("OLLAMA_HOST"),
		Model: os.Getenv("OLLAMA_MODEL"),
	})
}

// buildStore connects to Qdrant using the QDRANT_* environment variables and
// ensures the target collection exists. The vector size is derived from the
// configured embedding backend so the collection always matches the embedder.
func buildStore(ctx context.Context) (*rag.QdrantStore, error) {
	host := getEnvOrDefault("QDRANT_HOST", "localhost")
	port := getEnvInt("QDRANT_PORT", 6334)

	store, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
		Host:       host,
		Port:       port,
		Collection: getEnvOrDefault("QDRANT_COLLECTION", "visiq-docs"),
		VectorSize: uint64(embedder.DefaultDimensions(embedder.Backend())), //nolint:gosec // dimensions are bounded
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
	}
	return store, nil
}

// buildRetriever assembles the retrieval stack: embedder, Qdrant store, and a
// vision-model reranker on top. The returned close function releases the
// Qdrant connection.
func buildRetriever(ctx context.Context, client *vision.Client, topK int, log *slog.Logger) (rag.Retriever, func(), error) {
	if err := embedder.Validate(log); err != nil {
		return nil, nil, err
	}

	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}

	store, err := buildStore(ctx)
	if err != nil {
		return nil, nil, err
	}

	inner, err := rag.NewRetriever(emb, store, topK)
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	retriever := rag.NewRerankedRetriever(inner, rag.NewVisionReranker(client), 0)
	return retriever, func() { store.Close() }, nil
}

// ingestDeps bundles the dependencies the indexing pipeline needs.
type ingestDeps struct {
	embedder rag.Embedder
	store    *rag.QdrantStore
	docCache *cache.Cache
}

// buildIngestDeps assembles the embedder, Qdrant store, and extraction cache
// for indexing. The returned close function releases the Qdrant connection.
func buildIngestDeps(ctx context.Context, log *slog.Logger) (*ingestDeps, func(), error) {
	if err := embedder.Validate(log); err != nil {
		return nil, nil, err
	}

	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}

	store, err := buildStore(ctx)
	if err != nil {
		return nil, nil, err
	}

	return &ingestDeps{
		embedder: emb,
		store:    store,
		docCache: openCache(log),
	}, func() { store.Close() }, nil
}

// openCache opens the extraction cache. CACHE_PATH overrides the default
// (~/.visiq/cache.db); "disabled" turns caching off and returns nil.
func openCache(log *slog.Logger) *cache.Cache {
	path := os.Getenv("CACHE_PATH")
	if path == "disabled" {
		log.Info("cache: disabled via CACHE_PATH=disabled")
		return nil
	}
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Warn("cache: could not resolve home directory, disabling", slog.Any("error", err))
			return nil
		}
		path = filepath.Join(home, ".visiq", "cache.db")
	}

	ttl := cache.DefaultTTL
	if raw := os.Getenv("CACHE_TTL"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			log.Warn("cache: invalid CACHE_TTL, using default", slog.String("value", raw))
		} else {
			ttl = parsed
		}
	}

	c, err := cache.Open(path, ttl)
	if err != nil {
		log.Warn("cache: failed to open, disabling", slog.String("path", path), slog.Any("error", err))
		return nil
	}
	log.Info("cache: opened", slog.String("path", path), slog.Duration("ttl", ttl))
	return c
}

// openSessions opens the session store. VISIQ_SESSION_DB overrides the default
// path (~/.visiq/sessions.db); "disabled" turns session history off and
// returns nil.
func openSessions(log *slog.Logger) session.Store {
	path := os.Getenv("VISIQ_SESSION_DB")
	if path == "disabled" {
		log.Info("sessions: disabled via VISIQ_SESSION_DB=disabled")
		return nil
	}
	if path == "" {
		p, err := session.DefaultDBPath()
		if err != nil {
			log.Warn("sessions: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil
		}
		path = p
	}

	s, err := session.Open(path)
	if err != nil {
		log.Warn("sessions: failed to open store, disabling", slog.String("path", path), slog.Any("error", err))
		return nil
	}
	log.Info("sessions: store opened", slog.String("path", path))
	return s
}
