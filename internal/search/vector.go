package search

import (
	"context"
	"math"
	"sort"

	"github.com/gastoncampana/gno/internal/store"
)

// NearestStore is the subset of the Store the vector searcher needs
// (§4.12).
type NearestStore interface {
	SearchNearest(ctx context.Context, queryVec []float32, k int, filters store.NearestFilters) ([]store.NearestResult, error)
}

// Embedder turns text into a single embedding vector. The model runtime
// collaborator is expected to be the same one the backlog processor
// batches against, but called one variant at a time here (§4.12).
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorHit is one semantic match.
type VectorHit struct {
	MirrorHash string
	Seq        int
	Distance   float32
	Similarity float64 // 1 - distance, clamped to [0,1]
}

func (h VectorHit) ID() string { return chunkID(h.MirrorHash, h.Seq) }

// VectorSearcher runs the semantic half of the read path (§4.12).
type VectorSearcher struct {
	store    NearestStore
	embedder Embedder
}

func NewVectorSearcher(s NearestStore, e Embedder) *VectorSearcher {
	return &VectorSearcher{store: s, embedder: e}
}

// Search embeds each query variant (and, when present, the HyDE passage)
// independently, unit-normalizes each, and merges the nearest-neighbor
// results, keeping the closest distance per chunk when the same chunk
// surfaces from more than one variant.
func (v *VectorSearcher) Search(ctx context.Context, expanded ExpandedQuery, filters store.NearestFilters, k int) (VectorHits, error) {
	variants := make([]string, 0, len(expanded.VectorQueries)+1)
	variants = append(variants, expanded.VectorQueries...)
	if expanded.HydePassage != "" {
		variants = append(variants, expanded.HydePassage)
	}
	if len(variants) == 0 {
		return nil, nil
	}

	best := make(map[string]store.NearestResult)
	for _, text := range variants {
		vec, err := v.embedder.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		normalizeInPlace(vec)

		rows, err := v.store.SearchNearest(ctx, vec, k, filters)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			key := chunkID(r.MirrorHash, r.Seq)
			cur, ok := best[key]
			if !ok || r.Distance < cur.Distance {
				best[key] = r
			}
		}
	}

	hits := make(VectorHits, 0, len(best))
	for _, r := range best {
		hits = append(hits, VectorHit{
			MirrorHash: r.MirrorHash,
			Seq:        r.Seq,
			Distance:   r.Distance,
			Similarity: clamp01(1 - float64(r.Distance)),
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ID() < hits[j].ID()
	})
	return hits, nil
}

// VectorHits is Search's result type; it also converts to a Fuse input.
type VectorHits []VectorHit

func (hits VectorHits) RankedList(weight float64) RankedList {
	ids := make([]string, len(hits))
	scores := make(map[string]float64, len(hits))
	for i, h := range hits {
		ids[i] = h.ID()
		scores[h.ID()] = h.Similarity
	}
	return RankedList{Weight: weight, IDs: ids, Scores: scores}
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func normalizeInPlace(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range v {
		v[i] /= norm
	}
}
