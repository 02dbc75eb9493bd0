package rag

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeEmbedder struct {
	embedding []float32
	err       error
	calls     int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.embedding
	}
	return out, nil
}

type fakeStore struct {
	docs     []Document
	err      error
	gotTopK  int
	upserted []Document
}

func (f *fakeStore) Upsert(_ context.Context, docs []Document, _ [][]float32) error {
	f.upserted = append(f.upserted, docs...)
	return f.err
}

func (f *fakeStore) Search(_ context.Context, _ []float32, topK int) ([]Document, error) {
	f.gotTopK = topK
	if f.err != nil {
		return nil, f.err
	}
	if len(f.docs) > topK {
		return f.docs[:topK], nil
	}
	return f.docs, nil
}

func (f *fakeStore) Delete(_ context.Context, _ []string) error { return f.err }
func (f *fakeStore) Close() error                               { return nil }

type fakeReranker struct {
	results []RankedResult
	err     error
}

func (f *fakeReranker) Rerank(_ context.Context, _ string, _ []string) ([]RankedResult, error) {
	return f.results, f.err
}

func makeDocs(n int) []Document {
	docs := make([]Document, n)
	for i := range docs {
		docs[i] = Document{
			ID:      fmt.Sprintf("doc-%d", i),
			Content: fmt.Sprintf("content %d", i),
			Score:   float32(n-i) / float32(n),
		}
	}
	return docs
}

// ---------------------------------------------------------------------------
// DefaultRetriever
// ---------------------------------------------------------------------------

func TestNewRetriever_NilDeps(t *testing.T) {
	t.Parallel()
	if _, err := NewRetriever(nil, &fakeStore{}, 3); err == nil {
		t.Error("expected error for nil embedder")
	}
	if _, err := NewRetriever(&fakeEmbedder{}, nil, 3); err == nil {
		t.Error("expected error for nil store")
	}
}

func TestDefaultRetriever_Retrieve(t *testing.T) {
	t.Parallel()
	store := &fakeStore{docs: makeDocs(5)}
	r, err := NewRetriever(&fakeEmbedder{embedding: []float32{0.1, 0.2}}, store, 3)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}

	docs, err := r.Retrieve(context.Background(), "what is in the report?", 2)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(docs) != 2 {
		t.Errorf("expected 2 docs, got %d", len(docs))
	}
	if store.gotTopK != 2 {
		t.Errorf("expected store topK 2, got %d", store.gotTopK)
	}
}

func TestDefaultRetriever_DefaultTopK(t *testing.T) {
	t.Parallel()
	store := &fakeStore{docs: makeDocs(5)}
	r, err := NewRetriever(&fakeEmbedder{embedding: []float32{0.1}}, store, 3)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}

	if _, err := r.Retrieve(context.Background(), "query", 0); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if store.gotTopK != 3 {
		t.Errorf("expected fallback topK 3, got %d", store.gotTopK)
	}
}

func TestDefaultRetriever_EmbedError(t *testing.T) {
	t.Parallel()
	r, err := NewRetriever(&fakeEmbedder{err: errors.New("model offline")}, &fakeStore{}, 3)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}
	if _, err := r.Retrieve(context.Background(), "query", 3); err == nil {
		t.Error("expected error when embedding fails")
	}
}

func TestDefaultRetriever_EmptyIndex(t *testing.T) {
	t.Parallel()
	r, err := NewRetriever(&fakeEmbedder{embedding: []float32{0.1}}, &fakeStore{}, 3)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}
	docs, err := r.Retrieve(context.Background(), "query", 3)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("expected no docs from empty index, got %d", len(docs))
	}
}

// ---------------------------------------------------------------------------
// RerankedRetriever
// ---------------------------------------------------------------------------

func TestRerankedRetriever_ReordersByScore(t *testing.T) {
	t.Parallel()
	store := &fakeStore{docs: makeDocs(5)}
	inner, err := NewRetriever(&fakeEmbedder{embedding: []float32{0.1}}, store, 3)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}

	// The reranker promotes the last vector-search candidate to first.
	reranker := &fakeReranker{results: []RankedResult{
		{Index: 4, Score: 0.95},
		{Index: 0, Score: 0.60},
		{Index: 2, Score: 0.40},
	}}
	r := NewRerankedRetriever(inner, reranker, 5)

	docs, err := r.Retrieve(context.Background(), "query", 2)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 docs, got %d", len(docs))
	}
	if docs[0].ID != "doc-4" || docs[1].ID != "doc-0" {
		t.Errorf("unexpected order: %s, %s", docs[0].ID, docs[1].ID)
	}
	if docs[0].Score != 0.95 {
		t.Errorf("expected reranked score 0.95, got %v", docs[0].Score)
	}
	if store.gotTopK != 5 {
		t.Errorf("expected candidateK 5 passed to store, got %d", store.gotTopK)
	}
}

func TestRerankedRetriever_FallsBackOnRerankError(t *testing.T) {
	t.Parallel()
	store := &fakeStore{docs: makeDocs(5)}
	inner, err := NewRetriever(&fakeEmbedder{embedding: []float32{0.1}}, store, 3)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}

	r := NewRerankedRetriever(inner, &fakeReranker{err: errors.New("model offline")}, 5)
	docs, err := r.Retrieve(context.Background(), "query", 2)
	if err != nil {
		t.Fatalf("expected vector-order fallback, got error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 docs, got %d", len(docs))
	}
	if docs[0].ID != "doc-0" {
		t.Errorf("expected vector order preserved, got %s first", docs[0].ID)
	}
}

func TestRerankedRetriever_NilRerankerTruncates(t *testing.T) {
	t.Parallel()
	store := &fakeStore{docs: makeDocs(5)}
	inner, err := NewRetriever(&fakeEmbedder{embedding: []float32{0.1}}, store, 3)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}

	r := NewRerankedRetriever(inner, nil, 5)
	docs, err := r.Retrieve(context.Background(), "query", 3)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(docs) != 3 {
		t.Errorf("expected 3 docs after truncation, got %d", len(docs))
	}
}

func TestRerankedRetriever_EmptyCandidates(t *testing.T) {
	t.Parallel()
	inner, err := NewRetriever(&fakeEmbedder{embedding: []float32{0.1}}, &fakeStore{}, 3)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}

	r := NewRerankedRetriever(inner, &fakeReranker{}, 5)
	docs, err := r.Retrieve(context.Background(), "query", 3)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("expected no docs, got %d", len(docs))
	}
}
