// Package backlog implements the embedding backlog processor (C8):
// producing vectors for unembedded chunks in monotonic-cursor batches,
// keyed by model.
package backlog

import (
	"context"

	"github.com/gastoncampana/gno/internal/store"
)

// Cursor is the monotonic (mirror_hash, seq) pagination marker. Run always
// advances it to the last item of the batch it just processed, even when
// that batch failed, to guarantee forward progress (§4.8).
type Cursor struct {
	MirrorHash string
	Seq        int
}

// BacklogItem is one chunk with no vector yet for the active model.
type BacklogItem struct {
	MirrorHash string
	Seq        int
	Title      string
	Text       string
}

// StatsPort is the collaborator that enumerates unembedded chunks. A real
// implementation backs this with a Store query filtering chunks with no
// matching vectors row for the model, ordered by (mirror_hash, seq).
type StatsPort interface {
	GetBacklog(ctx context.Context, model string, limit int, after *Cursor) ([]BacklogItem, error)
}

// Embedder is the model-runtime collaborator's batch embedding port
// (§1: "Model runtime... embed_batch(texts) -> vectors").
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorSink is the subset of the Store (C9) the processor needs: durable
// vector upsert plus the dirty side-index bookkeeping.
type VectorSink interface {
	UpsertVectors(ctx context.Context, vectors []store.Vector) (store.VectorUpsertResult, error)
	SyncVecIndex(ctx context.Context) error
	VecDirty() bool
}

// Config tunes the processor. This module owns its own default rather than
// taking one from an external loader (§7.1).
type Config struct {
	BatchSize int
}

// DefaultConfig returns the spec's default batch size (§4.8).
func DefaultConfig() Config {
	return Config{BatchSize: 32}
}

func (c Config) batchSize() int {
	if c.BatchSize <= 0 {
		return 32
	}
	return c.BatchSize
}

// Result reports one Run's outcome. Cursor is the caller's responsibility
// to persist and pass back as `after` on the next Run for the same model —
// this module holds no state between calls.
type Result struct {
	Embedded  int
	Errors    int
	SyncError error
	Cursor    *Cursor
}

// Processor drives the backlog loop for a single model.
type Processor struct {
	stats    StatsPort
	embedder Embedder
	vectors  VectorSink
	cfg      Config
}

// New builds a Processor. cfg may be the zero value; DefaultConfig's
// BatchSize applies.
func New(stats StatsPort, embedder Embedder, vectors VectorSink, cfg Config) *Processor {
	return &Processor{stats: stats, embedder: embedder, vectors: vectors, cfg: cfg}
}

// Run embeds backlog items for modelURI starting after the given cursor,
// batch by batch, until the backlog is exhausted or ctx is cancelled
// between batches. A batch whose embed call errors, or whose returned
// vector count doesn't match the batch size, counts every item in that
// batch as an error and still advances the cursor past it — it is never
// retried within this Run (§4.8, §7). At the end, if the vector side-index
// is dirty, sync_vec_index is attempted exactly once.
func (p *Processor) Run(ctx context.Context, modelURI string, after *Cursor) (Result, error) {
	result := Result{Cursor: after}
	cursor := after
	batchSize := p.cfg.batchSize()

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		items, err := p.stats.GetBacklog(ctx, modelURI, batchSize, cursor)
		if err != nil {
			return result, err
		}
		if len(items) == 0 {
			break
		}

		last := items[len(items)-1]
		cursor = &Cursor{MirrorHash: last.MirrorHash, Seq: last.Seq}
		result.Cursor = cursor

		texts := make([]string, len(items))
		for i, it := range items {
			texts[i] = formatForEmbedding(it)
		}

		vectors, embedErr := p.embedder.EmbedBatch(ctx, texts)
		if embedErr != nil || len(vectors) != len(items) {
			result.Errors += len(items)
			continue
		}

		rows := make([]store.Vector, len(items))
		for i, it := range items {
			rows[i] = store.Vector{MirrorHash: it.MirrorHash, Seq: it.Seq, Model: modelURI, Data: vectors[i]}
		}
		if _, err := p.vectors.UpsertVectors(ctx, rows); err != nil {
			result.Errors += len(items)
			continue
		}
		result.Embedded += len(items)
	}

	if p.vectors.VecDirty() {
		if err := p.vectors.SyncVecIndex(ctx); err != nil {
			result.SyncError = err
			return result, nil
		}
	}
	return result, nil
}

// formatForEmbedding applies the §4.8 contextual formatting: "title +
// \n\n + text" when a title exists, else text alone.
func formatForEmbedding(it BacklogItem) string {
	if it.Title == "" {
		return it.Text
	}
	return it.Title + "\n\n" + it.Text
}
