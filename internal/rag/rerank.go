package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/Mihir-M112/VisiQ-GPT/internal/vision"
)

// generator is the slice of the vision client the VisionReranker needs.
// Narrowed to an interface so tests can substitute a fake.
type generator interface {
	Generate(ctx context.Context, req *vision.GenerateRequest) (string, error)
}

// VisionReranker scores (query, candidate) pairs jointly with the local
// language model in a single call. Unlike vector similarity, the model sees
// query and candidate together, which catches relevance that cosine distance
// misses.
type VisionReranker struct {
	client generator
}

// NewVisionReranker constructs a VisionReranker over the given vision client.
func NewVisionReranker(client *vision.Client) *VisionReranker {
	return &VisionReranker{client: client}
}

const rerankSystemPrompt = `You are a relevance scoring engine. Given a query and a numbered list of passages, score how relevant each passage is to the query on a scale from 0.0 (irrelevant) to 1.0 (directly answers the query). Respond with ONLY a JSON array of objects with "index" and "score" fields, one per passage, nothing else.`

// Rerank asks the model to score every candidate against the query in one
// request and returns the candidates ordered by descending score.
func (r *VisionReranker) Rerank(ctx context.Context, query string, candidates []string) ([]RankedResult, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Query: %s\n\nPassages:\n", query)
	for i, c := range candidates {
		fmt.Fprintf(&prompt, "[%d] %s\n\n", i, c)
	}

	raw, err := r.client.Generate(ctx, &vision.GenerateRequest{
		Prompt: prompt.String(),
		System: rerankSystemPrompt,
		Options: &vision.Options{
			// Scoring should be deterministic, not creative.
			Temperature: 0.0,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("rag: rerank generation failed: %w", err)
	}

	results, err := parseRankedResults(raw, len(candidates))
	if err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results, nil
}

// parseRankedResults extracts the JSON array from the model output. Models
// sometimes wrap JSON in code fences or prose, so we slice out the outermost
// brackets before decoding.
func parseRankedResults(raw string, n int) ([]RankedResult, error) {
	start := strings.IndexByte(raw, '[')
	end := strings.LastIndexByte(raw, ']')
	if start < 0 || end < start {
		return nil, fmt.Errorf("rag: no JSON array in rerank response")
	}

	var decoded []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &decoded); err != nil {
		return nil, fmt.Errorf("rag: malformed rerank response: %w", err)
	}

	results := make([]RankedResult, 0, len(decoded))
	seen := make(map[int]bool, len(decoded))
	for _, d := range decoded {
		if d.Index < 0 || d.Index >= n || seen[d.Index] {
			continue
		}
		seen[d.Index] = true
		results = append(results, RankedResult{Index: d.Index, Score: d.Score})
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("rag: rerank response contained no valid entries")
	}
	return results, nil
}

// TermOverlapReranker scores candidates by the fraction of query terms they
// contain. It needs no model call, so it serves as the fallback when the
// language model is unavailable or as a cheap default for small corpora.
type TermOverlapReranker struct{}

// NewTermOverlapReranker constructs a TermOverlapReranker.
func NewTermOverlapReranker() *TermOverlapReranker {
	return &TermOverlapReranker{}
}

// Rerank scores each candidate by query-term overlap and returns candidates
// ordered by descending score. Ties keep the input order, which preserves the
// vector-search ranking for equally scored candidates.
func (r *TermOverlapReranker) Rerank(_ context.Context, query string, candidates []string) ([]RankedResult, error) {
	queryTerms := tokenize(query)

	results := make([]RankedResult, len(candidates))
	for i, c := range candidates {
		results[i] = RankedResult{Index: i, Score: termOverlap(queryTerms, tokenize(c))}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results, nil
}

// tokenize lowercases the text and splits it into terms, dropping anything
// shorter than three characters so stopwords like "a" and "of" carry no weight.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= 3 {
			terms = append(terms, f)
		}
	}
	return terms
}

// termOverlap returns the fraction of query terms present in the candidate.
func termOverlap(queryTerms, candidateTerms []string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	set := make(map[string]bool, len(candidateTerms))
	for _, t := range candidateTerms {
		set[t] = true
	}
	matched := 0
	for _, t := range queryTerms {
		if set[t] {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTerms))
}
