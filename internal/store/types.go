// Package store implements the embedded relational store: document/content/
// chunk/link metadata, an FTS5 full-text index, and an HNSW vector
// side-index, all over a single pure-Go SQLite connection.
package store

import (
	"context"
	"fmt"
	"time"
)

// ContentType classifies a chunk's source material for chunker tuning.
type ContentType string

const (
	ContentTypeMarkdown ContentType = "markdown"
	ContentTypeText     ContentType = "text"
)

// CurrentSchemaVersion is the current database schema version. Migrations
// run forward-only, in order; open() refuses to run against a newer schema
// than it knows (a downgrade).
const CurrentSchemaVersion = 1

// Document is a source-file identity within a collection. Keyed by
// (collection, rel_path); docid is a derived short identifier that never
// changes once issued.
type Document struct {
	ID       int64
	Collection string
	RelPath  string
	Docid    string // 8-hex, derived from SHA256(collection + "\x00" + rel_path)
	URI      string // gno://<collection>/<rel_path>

	SourceHash  string // SHA-256 of raw bytes
	SourceMIME  string
	SourceExt   string
	SourceSize  int64
	SourceMtime time.Time

	MirrorHash       string // "" until content is materialized
	Title            string
	ConverterID      string
	ConverterVersion string
	LanguageHint     string

	Active bool

	LastErrorCode    string
	LastErrorMessage string
	LastErrorAt      time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DocumentInput is the upsert_document command payload.
type DocumentInput struct {
	Collection  string
	RelPath     string
	SourceHash  string
	SourceMIME  string
	SourceExt   string
	SourceSize  int64
	SourceMtime time.Time

	MirrorHash       string
	Title            string
	ConverterID      string
	ConverterVersion string
	LanguageHint     string

	LastErrorCode    string
	LastErrorMessage string
}

// Content is the content-addressed mirror shared by every document whose
// canonical text hashes to the same mirror_hash.
type Content struct {
	MirrorHash string
	Markdown   string
	CreatedAt  time.Time
}

// Chunk is a positional unit of a Content, keyed by (mirror_hash, seq).
type Chunk struct {
	MirrorHash string
	Seq        int // starts at 0, contiguous, strictly increasing

	Pos        int // byte offset into canonical markdown
	Text       string
	StartLine  int // 1-based inclusive
	EndLine    int // 1-based inclusive
	Language   string
	TokenCount int
}

// Vector is an embedding of a chunk for a specific model.
type Vector struct {
	MirrorHash string
	Seq        int
	Model      string
	Data       []float32 // little-endian on the wire; []float32 in memory
	EmbeddedAt time.Time
}

// LinkType distinguishes wiki-style links from standard markdown links.
type LinkType string

const (
	LinkTypeWiki     LinkType = "wiki"
	LinkTypeMarkdown LinkType = "markdown"
)

// LinkSource records how a link row came to exist.
type LinkSource string

const (
	LinkSourceParsed    LinkSource = "parsed"
	LinkSourceUser      LinkSource = "user"
	LinkSourceSuggested LinkSource = "suggested"
)

// Link is a parsed reference from one document to another.
type Link struct {
	SourceDocID      int64
	TargetRef        string
	TargetRefNorm    string
	TargetAnchor     string
	TargetCollection string
	LinkType         LinkType
	LinkText         string
	StartLine        int
	StartCol         int
	EndLine          int
	EndCol           int
	Source           LinkSource
}

// UnembeddedChunk is one row of the embedding backlog: a chunk with no
// vector yet for a given model, carrying its best-known document title for
// contextual embedding formatting (§4.8).
type UnembeddedChunk struct {
	Chunk
	Title string
}

// IngestError is an append-only diagnostic row.
type IngestError struct {
	Collection string
	RelPath    string
	OccurredAt time.Time
	Code       string
	Message    string
	DetailsJSON string
}

// FTSSearchOptions bounds a search_fts call.
type FTSSearchOptions struct {
	Collection string
	Limit      int
}

// FTSResult is one row of a search_fts call. Score follows the SQLite
// FTS5 bm25() convention directly: more negative is a better match, and
// results come back pre-sorted ascending.
type FTSResult struct {
	MirrorHash string
	Seq        int
	Score      float64
	Docid      string
	URI        string
	Title      string
	Collection string
	RelPath    string
}

// NearestFilters bounds a search_nearest call.
type NearestFilters struct {
	Collection string
	Model      string
}

// NearestResult is one row of a search_nearest call. Distance is cosine
// distance, ascending (smaller is closer).
type NearestResult struct {
	MirrorHash string
	Seq        int
	Distance   float32
}

// VectorUpsertResult reports whether each row also made it into the ANN
// side-index, per §4.9.
type VectorUpsertResult struct {
	SideIndexOK bool
}

// Store is the persistence layer's public surface (§4.5). Every operation
// is meant to be read as a result variant in spirit — on failure it
// returns an *errors.Error from package internal/errors rather than a bare
// error, so callers can branch on Kind.
type Store interface {
	UpsertDocument(ctx context.Context, in DocumentInput) (*Document, error)
	GetDocument(ctx context.Context, collection, relPath string) (*Document, error)
	GetDocumentByDocid(ctx context.Context, docid string) (*Document, error)
	GetDocumentByID(ctx context.Context, id int64) (*Document, error)
	GetDocumentsByMirrorHash(ctx context.Context, mirrorHash string) ([]Document, error)
	DeactivateDocument(ctx context.Context, collection, relPath string) error

	UpsertContent(ctx context.Context, mirrorHash, markdown string) error
	GetContent(ctx context.Context, mirrorHash string) (*Content, error)

	PutChunks(ctx context.Context, mirrorHash string, chunks []Chunk) error
	GetChunksBatch(ctx context.Context, hashes []string) (map[string][]Chunk, error)
	GetUnembeddedChunks(ctx context.Context, model string, limit int, afterMirrorHash string, afterSeq int) ([]UnembeddedChunk, error)

	SearchFTS(ctx context.Context, query string, opts FTSSearchOptions) ([]FTSResult, error)
	NeedsFTSRebuild(ctx context.Context) (bool, error)

	UpsertVectors(ctx context.Context, vectors []Vector) (VectorUpsertResult, error)
	GetVectorsForMirror(ctx context.Context, mirrorHash, model string) ([]Vector, error)
	DeleteVectorsForMirror(ctx context.Context, mirrorHash, model string) error
	SyncVecIndex(ctx context.Context) error
	RebuildVecIndex(ctx context.Context) error
	SearchNearest(ctx context.Context, queryVec []float32, k int, filters NearestFilters) ([]NearestResult, error)
	VecDirty() bool
	SearchAvailable() bool

	PutLinks(ctx context.Context, sourceDocID int64, links []Link) error
	GetLinksForDoc(ctx context.Context, docID int64) ([]Link, error)
	GetBacklinksForDoc(ctx context.Context, docID int64) ([]Link, error)

	RecordIngestError(ctx context.Context, e IngestError) error

	CleanupOrphans(ctx context.Context) error

	Close() error
}

// VectorStoreConfig configures the HNSW side-index that backs
// SearchNearest. Dimensions/model identify what's currently loaded so a
// mismatched embedder can be detected before it corrupts the graph.
type VectorStoreConfig struct {
	// Model is the embedding model this side-index is bound to (§4.9:
	// "model: string"). Empty means unbound — a legacy/permissive mode
	// that accepts vectors from any model into the same graph; binding a
	// model is what lets upsert/sync/search reject cross-model rows
	// instead of silently mixing incompatible embeddings into one index.
	Model string

	// Dimensions is the vector dimension for the bound embedding model.
	Dimensions int

	// Metric is the distance metric: "cos" (cosine) or "l2" (euclidean).
	Metric string

	// M is HNSW max connections per layer (default: 16).
	M int

	// EfSearch is HNSW query-time search width (default: 20).
	EfSearch int
}

// DefaultVectorStoreConfig returns sensible defaults for the given
// embedding model and dimension.
func DefaultVectorStoreConfig(model string, dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Model:      model,
		Dimensions: dimensions,
		Metric:     "cos",
		M:          16,
		EfSearch:   20,
	}
}

// VectorResult is a single HNSW side-index search hit, keyed by the same
// "mirror_hash:seq" string id used to add the vector.
type VectorResult struct {
	ID       string
	Distance float32
	Score    float32
}

// ErrDimensionMismatch indicates a query or upsert vector's dimension
// doesn't match the side-index's bound model dimension.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// vectorKey is the HNSW side-index's string identifier for a (mirror_hash,
// seq) pair.
func vectorKey(mirrorHash string, seq int) string {
	return fmt.Sprintf("%s:%d", mirrorHash, seq)
}
