package search

import (
	"context"
)

// RerankResult is one document's cross-encoder score, keyed back to its
// position in the Rerank call's input slice so the caller can recover
// whatever identifier (chunk id, mirror_hash:seq, ...) it used to build
// that slice.
type RerankResult struct {
	// Index is the position in the documents slice passed to Rerank.
	Index int
	// Score is the cross-encoder relevance score, higher is more relevant.
	Score float64
	// Document is the text that was scored, echoed back for convenience.
	Document string
}

// Reranker is the cross-encoder rerank port behind §4.13's fusion/rerank
// blend. A cross-encoder jointly encodes (query, document) pairs, which
// scores relevance more accurately than the bi-encoder vectors behind
// search_nearest, at the cost of one inference call per candidate — so it
// only ever runs over the fused candidate pool, never the full corpus.
//
// §7's propagation policy treats a Reranker failure as non-fatal: the
// caller catches the error, logs it, and falls back to ranking by RRFNorm
// alone rather than aborting the query.
type Reranker interface {
	// Rerank scores documents against query and returns them sorted by
	// Score descending. topK truncates the result; 0 returns every input
	// document reranked.
	Rerank(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error)

	// Available reports whether the underlying model/service can currently
	// serve Rerank calls, so a caller can skip straight to pure RRF instead
	// of paying for a round-trip that's going to fail anyway.
	Available(ctx context.Context) bool

	Close() error
}

// NoOpReranker is the Reranker used when no cross-encoder is configured, or
// when one just failed and the query is degrading to pure RRF order (§7).
// It reproduces the fused pool's existing rank as a descending score
// sequence, so BlendRerank's formula (final = α·rerank + (1-α)·rrfNorm)
// still holds: rerank and rrfNorm agree on ordering here, so blending a
// NoOpReranker score in changes no document's relative rank.
type NoOpReranker struct{}

// Rerank assigns decreasing scores in input order: 1.0, 0.99, 0.98, ...
func (n *NoOpReranker) Rerank(_ context.Context, _ string, documents []string, topK int) ([]RerankResult, error) {
	results := make([]RerankResult, len(documents))
	for i, doc := range documents {
		results[i] = RerankResult{
			Index:    i,
			Score:    1.0 - float64(i)*0.01,
			Document: doc,
		}
	}

	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}

	return results, nil
}

// Available is always true: NoOpReranker has no backing service to fail.
func (n *NoOpReranker) Available(_ context.Context) bool {
	return true
}

func (n *NoOpReranker) Close() error {
	return nil
}

var _ Reranker = (*NoOpReranker)(nil)
