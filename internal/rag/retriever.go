package rag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Mihir-M112/VisiQ-GPT/internal/logging"
)

// DefaultRetriever implements the Retriever interface by combining an Embedder
// and a VectorStore. It embeds the query at retrieval time and delegates
// similarity search to the store.
type DefaultRetriever struct {
	// embedder converts query text to a dense vector.
	embedder Embedder

	// store performs the vector similarity search.
	store VectorStore

	// defaultTopK is the number of results to return when the caller passes 0.
	defaultTopK int
}

// NewRetriever constructs a DefaultRetriever from the given Embedder and VectorStore.
// defaultTopK sets the fallback result count when Retrieve is called with topK=0.
func NewRetriever(embedder Embedder, store VectorStore, defaultTopK int) (*DefaultRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	if defaultTopK <= 0 {
		defaultTopK = 3
	}
	return &DefaultRetriever{
		embedder:    embedder,
		store:       store,
		defaultTopK: defaultTopK,
	}, nil
}

// Retrieve embeds the query and returns the top-k most relevant documents.
// If topK is 0 the defaultTopK configured at construction time is used.
// An empty slice means nothing relevant is indexed — not an error.
func (r *DefaultRetriever) Retrieve(ctx context.Context, query string, topK int) ([]Document, error) {
	if topK <= 0 {
		topK = r.defaultTopK
	}

	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query failed: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("rag: embedder returned empty result for query")
	}

	docs, err := r.store.Search(ctx, embeddings[0], topK)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}

	return docs, nil
}

// RerankedRetriever wraps a Retriever and refines its results with a
// cross-encoder style Reranker. It over-fetches candidateK documents from the
// inner retriever, scores each (query, candidate) pair jointly, and returns
// the topK best. A reranker failure degrades to the vector-search order
// rather than failing the query.
type RerankedRetriever struct {
	// inner produces the candidate set from vector similarity.
	inner Retriever

	// reranker scores (query, candidate) pairs. May be nil, in which case
	// this wrapper only truncates.
	reranker Reranker

	// candidateK is how many candidates to fetch for re-ranking.
	// Must exceed the final topK for re-ranking to have any effect.
	candidateK int
}

// NewRerankedRetriever wraps inner with re-ranking over candidateK candidates.
func NewRerankedRetriever(inner Retriever, reranker Reranker, candidateK int) *RerankedRetriever {
	if candidateK <= 0 {
		candidateK = 10
	}
	return &RerankedRetriever{
		inner:      inner,
		reranker:   reranker,
		candidateK: candidateK,
	}
}

// Retrieve fetches candidateK documents, re-ranks them, and returns the topK
// most relevant with their re-ranked scores.
func (r *RerankedRetriever) Retrieve(ctx context.Context, query string, topK int) ([]Document, error) {
	if topK <= 0 {
		topK = 3
	}

	candidates, err := r.inner.Retrieve(ctx, query, r.candidateK)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	if r.reranker == nil {
		return truncate(candidates, topK), nil
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Content
	}

	ranked, err := r.reranker.Rerank(ctx, query, texts)
	if err != nil {
		// Re-ranking is a refinement, not a requirement.
		logging.FromContext(ctx).Warn("rag: re-ranking failed, keeping vector order",
			slog.Any("error", err),
		)
		return truncate(candidates, topK), nil
	}

	results := make([]Document, 0, min(topK, len(ranked)))
	for i := 0; i < min(topK, len(ranked)); i++ {
		idx := ranked[i].Index
		if idx < 0 || idx >= len(candidates) {
			continue
		}
		doc := candidates[idx]
		doc.Score = float32(ranked[i].Score)
		results = append(results, doc)
	}

	return results, nil
}

// truncate returns at most k documents.
func truncate(docs []Document, k int) []Document {
	if len(docs) > k {
		return docs[:k]
	}
	return docs
}
