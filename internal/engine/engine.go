// Package engine wires C1-C14 behind the public operations surface (§6):
// convert, ingest, embed_backlog, search_bm25, search_vector, query,
// get_links, get_backlinks, get_similar.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path"
	"time"

	"github.com/gastoncampana/gno/internal/backlog"
	"github.com/gastoncampana/gno/internal/chunk"
	"github.com/gastoncampana/gno/internal/convert"
	gnoerrors "github.com/gastoncampana/gno/internal/errors"
	"github.com/gastoncampana/gno/internal/graph"
	"github.com/gastoncampana/gno/internal/links"
	"github.com/gastoncampana/gno/internal/mime"
	"github.com/gastoncampana/gno/internal/search"
	"github.com/gastoncampana/gno/internal/store"
)

// Embedder is the model-runtime collaborator the engine needs for both the
// backlog processor (batch) and the vector searcher (single).
type Embedder interface {
	backlog.Embedder
	search.Embedder
}

// Config assembles an Engine's collaborators. Store, Pipeline, Chunker, and
// Embedder are required; Generator and Reranker are optional (expansion and
// reranking degrade gracefully without them, per §4.10 and §4.13).
type Config struct {
	Store          store.Store
	Pipeline       *convert.Pipeline
	Chunker        chunk.Chunker
	Embedder       Embedder
	Generator      search.Generator
	Reranker       search.Reranker
	EmbeddingModel string
	Backlog        backlog.Config
}

// Engine is the process-facing entry point for every public operation.
type Engine struct {
	store    store.Store
	pipeline *convert.Pipeline
	chunker  chunk.Chunker
	embedder Embedder
	model    string

	expander *search.Expander
	reranker search.Reranker
	bm25     *search.BM25Searcher
	vector   *search.VectorSearcher
	graph    *graph.Accessor
	backlog  *backlog.Processor
}

func New(cfg Config) *Engine {
	reranker := cfg.Reranker
	if reranker == nil {
		reranker = &search.NoOpReranker{}
	}

	e := &Engine{
		store:    cfg.Store,
		pipeline: cfg.Pipeline,
		chunker:  cfg.Chunker,
		embedder: cfg.Embedder,
		model:    cfg.EmbeddingModel,
		expander: search.NewExpander(cfg.Generator),
		reranker: reranker,
		bm25:     search.NewBM25Searcher(cfg.Store),
		vector:   search.NewVectorSearcher(cfg.Store, cfg.Embedder),
		graph:    graph.New(cfg.Store),
	}
	e.backlog = backlog.New(&backlogStats{store: cfg.Store}, cfg.Embedder, cfg.Store, cfg.Backlog)
	return e
}

// Convert runs a single file through the conversion pipeline without
// touching the store (§6: convert).
func (e *Engine) Convert(ctx context.Context, data []byte, mimeType, ext string, limits convert.Limits) (convert.Artifact, error) {
	if mimeType == "" {
		mimeType = mime.Detect(data, ext).MIME
	}
	return e.pipeline.Convert(ctx, convert.Input{Bytes: data, MIME: mimeType, Ext: ext, Limits: limits})
}

// Ingest runs the full write path for one file: convert, store the
// document/content, chunk, store chunks+FTS, extract and store links
// (§2's write path; §6: ingest). A file whose source bytes are unchanged
// from the last successful ingest is a no-op, keyed by source_hash.
func (e *Engine) Ingest(ctx context.Context, collection, relPath string, data []byte, mtime time.Time, size int64) (*store.Document, error) {
	sourceHash := sha256Hex(data)

	existing, err := e.store.GetDocument(ctx, collection, relPath)
	if err != nil && gnoerrors.GetKind(err) != gnoerrors.KindNotFound {
		return nil, err
	}
	if existing != nil && existing.Active && existing.SourceHash == sourceHash && existing.LastErrorCode == "" {
		return existing, nil
	}

	ext := path.Ext(relPath)
	det := mime.Detect(data, ext)

	artifact, convErr := e.pipeline.ConvertCoalesced(ctx, sourceHash, convert.Input{
		Path: relPath, Bytes: data, MIME: det.MIME, Ext: ext,
	})
	if convErr != nil {
		gerr := asGNOError(convErr)
		_ = e.store.RecordIngestError(ctx, store.IngestError{
			Collection: collection, RelPath: relPath, OccurredAt: time.Now(),
			Code: string(gerr.Kind), Message: gerr.Message,
		})
		_, _ = e.store.UpsertDocument(ctx, store.DocumentInput{
			Collection: collection, RelPath: relPath,
			SourceHash: sourceHash, SourceMIME: det.MIME, SourceExt: ext,
			SourceSize: size, SourceMtime: mtime,
			LastErrorCode: string(gerr.Kind), LastErrorMessage: gerr.Message,
		})
		return nil, convErr
	}

	if err := e.store.UpsertContent(ctx, artifact.MirrorHash, artifact.CanonicalMarkdown); err != nil {
		return nil, err
	}

	title := artifact.Title
	if title == "" {
		title = path.Base(relPath)
	}

	doc, err := e.store.UpsertDocument(ctx, store.DocumentInput{
		Collection: collection, RelPath: relPath,
		SourceHash: sourceHash, SourceMIME: det.MIME, SourceExt: ext,
		SourceSize: size, SourceMtime: mtime,
		MirrorHash: artifact.MirrorHash, Title: title,
		ConverterID: artifact.ConverterID, ConverterVersion: artifact.ConverterVersion,
		LanguageHint: artifact.LanguageHint,
	})
	if err != nil {
		return nil, err
	}

	chunks, err := e.chunker.Chunk(ctx, &chunk.FileInput{
		Path: relPath, Content: []byte(artifact.CanonicalMarkdown), Language: artifact.LanguageHint,
	})
	if err != nil {
		return nil, err
	}
	if err := e.store.PutChunks(ctx, artifact.MirrorHash, chunk.ToStoreChunks(artifact.CanonicalMarkdown, chunks)); err != nil {
		return nil, err
	}

	extracted := links.Extract(artifact.CanonicalMarkdown)
	storeLinks := make([]store.Link, len(extracted))
	for i, l := range extracted {
		storeLinks[i] = store.Link{
			TargetRef: l.TargetRef, TargetRefNorm: l.TargetRefNorm, TargetAnchor: l.TargetAnchor,
			TargetCollection: l.TargetCollection, LinkType: l.LinkType, LinkText: l.LinkText,
			StartLine: l.StartLine, StartCol: l.StartCol, EndLine: l.EndLine, EndCol: l.EndCol,
			Source: store.LinkSourceParsed,
		}
	}
	if err := e.store.PutLinks(ctx, doc.ID, storeLinks); err != nil {
		return nil, err
	}

	return doc, nil
}

// EmbedBacklog drives the embedding backlog processor for one model (§6).
func (e *Engine) EmbedBacklog(ctx context.Context, after *backlog.Cursor) (backlog.Result, error) {
	return e.backlog.Run(ctx, e.model, after)
}

func (e *Engine) GetLinks(ctx context.Context, docid, linkType string) ([]store.Link, error) {
	return e.graph.GetLinks(ctx, docid, linkType)
}

func (e *Engine) GetBacklinks(ctx context.Context, docid string) ([]graph.Backlink, error) {
	return e.graph.GetBacklinks(ctx, docid)
}

func (e *Engine) GetSimilar(ctx context.Context, docid string, limit int, threshold float64, crossCollection bool) ([]graph.SimilarDoc, error) {
	return e.graph.GetSimilar(ctx, docid, e.model, limit, threshold, crossCollection)
}

func asGNOError(err error) *gnoerrors.Error {
	if gerr, ok := err.(*gnoerrors.Error); ok {
		return gerr
	}
	return gnoerrors.Wrap(gnoerrors.KindInternal, err)
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// backlogStats adapts the store's unembedded-chunk query to backlog's
// StatsPort, translating between the store's plain cursor pair and
// backlog.Cursor.
type backlogStats struct {
	store store.Store
}

func (b *backlogStats) GetBacklog(ctx context.Context, model string, limit int, after *backlog.Cursor) ([]backlog.BacklogItem, error) {
	afterHash, afterSeq := "", 0
	if after != nil {
		afterHash, afterSeq = after.MirrorHash, after.Seq
	}
	rows, err := b.store.GetUnembeddedChunks(ctx, model, limit, afterHash, afterSeq)
	if err != nil {
		return nil, err
	}
	items := make([]backlog.BacklogItem, len(rows))
	for i, r := range rows {
		items[i] = backlog.BacklogItem{MirrorHash: r.MirrorHash, Seq: r.Seq, Title: r.Title, Text: r.Text}
	}
	return items, nil
}
