package search

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/gastoncampana/gno/internal/store"
)

// FTSStore is the subset of the Store the BM25 searcher needs (§4.11).
type FTSStore interface {
	SearchFTS(ctx context.Context, query string, opts store.FTSSearchOptions) ([]store.FTSResult, error)
	GetChunksBatch(ctx context.Context, hashes []string) (map[string][]store.Chunk, error)
}

// BM25Hit is one lexical match, hydrated with its chunk text.
type BM25Hit struct {
	MirrorHash string
	Seq        int
	Docid      string
	URI        string
	Title      string
	Collection string
	Text       string
	ScoreRaw   float64 // SQLite FTS5 bm25() convention: more negative is better
	ScoreNorm  float64 // sigmoid-normalized into [0,1], monotone increasing with quality
}

// ID is the RRF candidate key for a BM25 hit: the chunk it matched.
func (h BM25Hit) ID() string { return chunkID(h.MirrorHash, h.Seq) }

func chunkID(mirrorHash string, seq int) string {
	return fmt.Sprintf("%s:%d", mirrorHash, seq)
}

// SplitChunkID reverses chunkID, for callers (the engine's hydration step)
// that only have the RRF candidate key.
func SplitChunkID(id string) (mirrorHash string, seq int, ok bool) {
	i := strings.LastIndexByte(id, ':')
	if i < 0 {
		return "", 0, false
	}
	mirrorHash = id[:i]
	n, err := strconv.Atoi(id[i+1:])
	if err != nil {
		return "", 0, false
	}
	return mirrorHash, n, true
}

// BM25Searcher runs the lexical half of the read path (§4.11).
type BM25Searcher struct {
	store FTSStore
}

func NewBM25Searcher(s FTSStore) *BM25Searcher {
	return &BM25Searcher{store: s}
}

// Search issues search_fts once per query variant and returns the union,
// best-scoring variant per chunk, hydrated via a single batched
// get_chunks_batch call regardless of how many variants or hits were
// involved (the N+1 guard in §4.11). Results are sorted best-first.
func (b *BM25Searcher) Search(ctx context.Context, variants []string, collection string, limit int) (BM25Hits, error) {
	if len(variants) == 0 {
		return nil, nil
	}

	best := make(map[string]store.FTSResult)
	for _, q := range variants {
		rows, err := b.store.SearchFTS(ctx, q, store.FTSSearchOptions{Collection: collection, Limit: limit})
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			key := chunkID(r.MirrorHash, r.Seq)
			cur, ok := best[key]
			if !ok || r.Score < cur.Score {
				best[key] = r
			}
		}
	}
	if len(best) == 0 {
		return nil, nil
	}

	hashes := make([]string, 0, len(best))
	seenHash := make(map[string]bool)
	for _, r := range best {
		if !seenHash[r.MirrorHash] {
			seenHash[r.MirrorHash] = true
			hashes = append(hashes, r.MirrorHash)
		}
	}

	chunksByHash, err := b.store.GetChunksBatch(ctx, hashes)
	if err != nil {
		return nil, err
	}
	textOf := make(map[string]string, len(best))
	for hash, chunks := range chunksByHash {
		for _, c := range chunks {
			textOf[chunkID(hash, c.Seq)] = c.Text
		}
	}

	hits := make(BM25Hits, 0, len(best))
	for key, r := range best {
		hits = append(hits, BM25Hit{
			MirrorHash: r.MirrorHash,
			Seq:        r.Seq,
			Docid:      r.Docid,
			URI:        r.URI,
			Title:      r.Title,
			Collection: r.Collection,
			Text:       textOf[key],
			ScoreRaw:   r.Score,
			ScoreNorm:  normalizeBM25(r.Score),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].ScoreRaw != hits[j].ScoreRaw {
			return hits[i].ScoreRaw < hits[j].ScoreRaw
		}
		return hits[i].ID() < hits[j].ID()
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// RankedList converts Search's output into a Fuse input, in the order
// Search already sorted them (best first).
func (hits BM25Hits) RankedList(weight float64) RankedList {
	ids := make([]string, len(hits))
	scores := make(map[string]float64, len(hits))
	for i, h := range hits {
		ids[i] = h.ID()
		scores[h.ID()] = h.ScoreNorm
	}
	return RankedList{Weight: weight, IDs: ids, Scores: scores}
}

// BM25Hits is a convenience alias so Search's result can expose RankedList.
type BM25Hits []BM25Hit

// normalizeBM25 converts the SQLite FTS5 bm25() convention (more negative is
// better, unbounded) into [0,1] via the sigmoid fixed by §4.11:
// score_norm = 1 - 1/(1+e^-raw).
func normalizeBM25(raw float64) float64 {
	return 1 - 1/(1+math.Exp(-raw))
}
