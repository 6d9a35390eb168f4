package engine

import (
	"context"
	"strconv"

	"github.com/gastoncampana/gno/internal/search"
	"github.com/gastoncampana/gno/internal/store"
)

// QueryOptions bounds a query/search_bm25/search_vector call (§6).
type QueryOptions struct {
	Collection string
	Limit      int
	Expand     bool
	Rerank     bool
	Threshold  float64 // search_vector only; 0 means "no filtering"
}

// QueryHit is one ranked, hydrated result, common to all three read
// operations (§6).
type QueryHit struct {
	Docid      string
	URI        string
	Title      string
	Collection string
	MirrorHash string
	Seq        int
	Text       string
	Score      float64
}

const defaultLimit = 10

// SearchBM25 runs a single lexical query with no expansion (§6).
func (e *Engine) SearchBM25(ctx context.Context, q string, opts QueryOptions) ([]QueryHit, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	hits, err := e.bm25.Search(ctx, []string{q}, opts.Collection, limit)
	if err != nil {
		return nil, err
	}
	out := make([]QueryHit, len(hits))
	for i, h := range hits {
		out[i] = QueryHit{
			Docid: h.Docid, URI: h.URI, Title: h.Title, Collection: h.Collection,
			MirrorHash: h.MirrorHash, Seq: h.Seq, Text: h.Text, Score: h.ScoreNorm,
		}
	}
	return out, nil
}

// SearchVector runs a single semantic query with no expansion (§6).
func (e *Engine) SearchVector(ctx context.Context, q string, opts QueryOptions) ([]QueryHit, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	hits, err := e.vector.Search(ctx, search.ExpandedQuery{VectorQueries: []string{q}},
		store.NearestFilters{Collection: opts.Collection, Model: e.model}, amplifiedK(limit))
	if err != nil {
		return nil, err
	}

	filtered := hits[:0]
	for _, h := range hits {
		if opts.Threshold > 0 && h.Similarity < opts.Threshold {
			continue
		}
		filtered = append(filtered, h)
	}
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}

	byID, err := e.hydratePool(ctx, nil, vectorHitsToSkeletons(filtered))
	if err != nil {
		return nil, err
	}
	out := make([]QueryHit, len(filtered))
	for i, h := range filtered {
		hit := byID[h.ID()]
		hit.Score = h.Similarity
		out[i] = hit
	}
	return out, nil
}

// Query runs the full read path (§2, §4.10-§4.13): optional expansion,
// BM25 + vector retrieval, RRF fusion, and an optional cross-encoder rerank
// blend that degrades to pure RRF ordering on reranker failure.
func (e *Engine) Query(ctx context.Context, q string, opts QueryOptions) ([]QueryHit, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	expanded := search.Identity(q)
	if opts.Expand {
		expanded = e.expander.Expand(ctx, q)
	}

	bm25Hits, err := e.bm25.Search(ctx, expanded.LexicalQueries, opts.Collection, search.DefaultCandidatePoolSize)
	if err != nil {
		return nil, err
	}
	vecHits, err := e.vector.Search(ctx, expanded,
		store.NearestFilters{Collection: opts.Collection, Model: e.model}, amplifiedK(search.DefaultCandidatePoolSize))
	if err != nil {
		return nil, err
	}

	fused := search.Fuse([]search.RankedList{bm25Hits.RankedList(1), vecHits.RankedList(1)}, search.DefaultRRFConstant)
	pool := search.Pool(fused, search.DefaultCandidatePoolSize)

	skeletons := mergeSkeletons(bm25HitsToSkeletons(bm25Hits), vectorHitsToSkeletons(vecHits))
	poolHits, err := e.hydratePool(ctx, pool, skeletons)
	if err != nil {
		return nil, err
	}

	if opts.Rerank && e.reranker.Available(ctx) {
		e.rerankPool(ctx, q, pool, poolHits)
	}

	out := make([]QueryHit, len(pool))
	for i, f := range pool {
		hit := poolHits[f.ID]
		hit.Score = f.Final
		out[i] = hit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// rerankPool scores each pool candidate's text against q via the
// cross-encoder port and blends the result into pool's Final score in
// place. Any reranker error leaves pool's existing RRF-derived order
// untouched (§4.13, §7 — non-fatal).
func (e *Engine) rerankPool(ctx context.Context, q string, pool []*search.FusedResult, hits map[string]QueryHit) {
	texts := make([]string, len(pool))
	for i, f := range pool {
		texts[i] = hits[f.ID].Text
	}

	results, err := e.reranker.Rerank(ctx, q, texts, 0)
	if err != nil {
		return
	}

	scores := make([]search.RerankScore, 0, len(results))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(pool) {
			continue
		}
		scores = append(scores, search.RerankScore{ID: pool[r.Index].ID, Score: r.Score})
	}
	search.BlendRerank(pool, scores, search.DefaultRerankWeight)
}

func amplifiedK(limit int) int {
	k := limit * 20
	if k > 200 {
		k = 200
	}
	if k < limit {
		k = limit
	}
	return k
}

// hitSkeleton is whatever metadata a candidate ID already carries from the
// searcher that produced it, before hydration fills in the rest.
type hitSkeleton struct {
	QueryHit
}

func bm25HitsToSkeletons(hits search.BM25Hits) map[string]hitSkeleton {
	out := make(map[string]hitSkeleton, len(hits))
	for _, h := range hits {
		out[h.ID()] = hitSkeleton{QueryHit{
			Docid: h.Docid, URI: h.URI, Title: h.Title, Collection: h.Collection,
			MirrorHash: h.MirrorHash, Seq: h.Seq, Text: h.Text,
		}}
	}
	return out
}

func vectorHitsToSkeletons(hits search.VectorHits) map[string]hitSkeleton {
	out := make(map[string]hitSkeleton, len(hits))
	for _, h := range hits {
		out[h.ID()] = hitSkeleton{QueryHit{MirrorHash: h.MirrorHash, Seq: h.Seq}}
	}
	return out
}

func mergeSkeletons(a, b map[string]hitSkeleton) map[string]hitSkeleton {
	for id, s := range b {
		if _, ok := a[id]; !ok {
			a[id] = s
		}
	}
	return a
}

// hydrate fills in document metadata and chunk text for a flat set of
// skeleton hits, looking each distinct mirror hash up once regardless of
// how many hits share one (see hydratePool).
func (e *Engine) hydrate(ctx context.Context, skeletons map[string]hitSkeleton) ([]QueryHit, error) {
	out := make([]QueryHit, 0, len(skeletons))
	ids := make([]string, 0, len(skeletons))
	for id := range skeletons {
		ids = append(ids, id)
	}

	filled, err := e.hydratePool(ctx, nil, skeletons)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		out = append(out, filled[id])
	}
	return out, nil
}

// hydratePool resolves every skeleton's missing docid/title/collection
// (via one GetDocumentsByMirrorHash call per distinct mirror hash) and
// missing chunk text (via a single GetChunksBatch call), returning a map
// keyed by candidate ID. pool is accepted only to centralize the one
// hydration path Query and the single-source searches share; it is not
// otherwise consulted here.
func (e *Engine) hydratePool(ctx context.Context, _ []*search.FusedResult, skeletons map[string]hitSkeleton) (map[string]QueryHit, error) {
	hashes := make([]string, 0, len(skeletons))
	seen := make(map[string]bool)
	for _, s := range skeletons {
		if !seen[s.MirrorHash] {
			seen[s.MirrorHash] = true
			hashes = append(hashes, s.MirrorHash)
		}
	}

	chunksByHash, err := e.store.GetChunksBatch(ctx, hashes)
	if err != nil {
		return nil, err
	}
	textOf := make(map[string]string, len(chunksByHash))
	for hash, chunks := range chunksByHash {
		for _, c := range chunks {
			textOf[chunkKey(hash, c.Seq)] = c.Text
		}
	}

	docsByMirror := make(map[string][]store.Document, len(hashes))
	for _, hash := range hashes {
		docs, err := e.store.GetDocumentsByMirrorHash(ctx, hash)
		if err != nil {
			return nil, err
		}
		docsByMirror[hash] = docs
	}

	out := make(map[string]QueryHit, len(skeletons))
	for id, s := range skeletons {
		hit := s.QueryHit
		if hit.Text == "" {
			hit.Text = textOf[chunkKey(hit.MirrorHash, hit.Seq)]
		}
		if hit.Docid == "" {
			if docs := docsByMirror[hit.MirrorHash]; len(docs) > 0 {
				hit.Docid, hit.URI, hit.Title, hit.Collection = docs[0].Docid, docs[0].URI, docs[0].Title, docs[0].Collection
			}
		}
		out[id] = hit
	}
	return out, nil
}

func chunkKey(mirrorHash string, seq int) string {
	return mirrorHash + ":" + strconv.Itoa(seq)
}
