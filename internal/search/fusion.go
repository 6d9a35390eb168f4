// Package search implements the read path: query expansion (C10), BM25 and
// vector retrieval (C11, C12), and reciprocal-rank fusion with cross-encoder
// reranking (C13).
package search

import "sort"

// DefaultRRFConstant is the RRF smoothing constant (k=60 is the value used
// by most production hybrid-search deployments).
const DefaultRRFConstant = 60

// DefaultCandidatePoolSize is how many fused candidates are kept before
// reranking.
const DefaultCandidatePoolSize = 20

// DefaultRerankWeight is alpha in the rerank/RRF blend.
const DefaultRerankWeight = 0.7

// RankedList is one ranked source list going into fusion: IDs in rank order
// (best first), each with its own source-native score for tie-breaking and
// display.
type RankedList struct {
	Weight  float64
	IDs     []string
	Scores  map[string]float64
}

// FusedResult is one document's outcome after RRF (and, when a reranker ran,
// after the rerank blend).
type FusedResult struct {
	ID       string
	RRFScore float64 // raw RRF sum before min-max normalization
	RRFNorm  float64 // min-max normalized RRF score across the candidate set
	Rank     int     // 1-based rank after fusion, used as the primary tie-break
	Final    float64 // rerank/RRF blend, or RRFNorm when no reranker ran
}

// Fuse combines any number of ranked lists by reciprocal rank fusion. Ties in
// RRFScore are broken by the order IDs were first seen (stable), and finally
// by ID ascending, so output is deterministic regardless of map iteration
// order.
func Fuse(lists []RankedList, k int) []*FusedResult {
	if k <= 0 {
		k = DefaultRRFConstant
	}

	scores := make(map[string]float64)
	order := make([]string, 0)
	seen := make(map[string]bool)

	for _, list := range lists {
		weight := list.Weight
		if weight == 0 {
			weight = 1
		}
		for rank, id := range list.IDs {
			if !seen[id] {
				seen[id] = true
				order = append(order, id)
			}
			scores[id] += weight / float64(k+rank+1)
		}
	}

	results := make([]*FusedResult, 0, len(order))
	for _, id := range order {
		results = append(results, &FusedResult{ID: id, RRFScore: scores[id]})
	}

	firstSeen := make(map[string]int, len(order))
	for i, id := range order {
		firstSeen[id] = i
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.RRFScore != b.RRFScore {
			return a.RRFScore > b.RRFScore
		}
		if firstSeen[a.ID] != firstSeen[b.ID] {
			return firstSeen[a.ID] < firstSeen[b.ID]
		}
		return a.ID < b.ID
	})

	normalizeRRF(results)
	for i, r := range results {
		r.Rank = i + 1
		r.Final = r.RRFNorm
	}
	return results
}

// normalizeRRF min-max scales RRFScore into RRFNorm across the whole
// candidate set. A single-candidate (or all-equal) set normalizes to 1.0.
func normalizeRRF(results []*FusedResult) {
	if len(results) == 0 {
		return
	}
	min, max := results[0].RRFScore, results[0].RRFScore
	for _, r := range results {
		if r.RRFScore < min {
			min = r.RRFScore
		}
		if r.RRFScore > max {
			max = r.RRFScore
		}
	}
	span := max - min
	for _, r := range results {
		if span == 0 {
			r.RRFNorm = 1
			continue
		}
		r.RRFNorm = (r.RRFScore - min) / span
	}
}

// RerankScore is a single candidate's cross-encoder relevance score, keyed by
// the same ID used in the fused lists.
type RerankScore struct {
	ID    string
	Score float64
}

// BlendRerank applies the §4.13 rerank/RRF blend to the top pool candidates
// of an already-fused, already-ranked result set: final = alpha*rerank +
// (1-alpha)*rrf_norm. Candidates the reranker didn't score (because they
// fell outside the pool passed to it) keep Final = RRFNorm. Re-sorts the
// full slice by Final, breaking ties by the pre-blend Rank and then ID.
func BlendRerank(fused []*FusedResult, rerank []RerankScore, alpha float64) {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultRerankWeight
	}
	byID := make(map[string]float64, len(rerank))
	for _, r := range rerank {
		byID[r.ID] = r.Score
	}
	for _, f := range fused {
		if s, ok := byID[f.ID]; ok {
			f.Final = alpha*s + (1-alpha)*f.RRFNorm
		}
	}
	sort.SliceStable(fused, func(i, j int) bool {
		a, b := fused[i], fused[j]
		if a.Final != b.Final {
			return a.Final > b.Final
		}
		if a.Rank != b.Rank {
			return a.Rank < b.Rank
		}
		return a.ID < b.ID
	})
}

// Pool returns the top n fused results by Final score, for handing to a
// reranker. n<=0 returns the full slice.
func Pool(fused []*FusedResult, n int) []*FusedResult {
	if n <= 0 || n >= len(fused) {
		return fused
	}
	return fused[:n]
}
