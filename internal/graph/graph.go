// Package graph implements the document-graph accessor (C14): outgoing
// links, backlinks, and embedding-similarity lookups over documents already
// ingested into the store.
package graph

import (
	"context"
	"math"
	"sort"

	gnoerrors "github.com/gastoncampana/gno/internal/errors"
	"github.com/gastoncampana/gno/internal/store"
)

// Store is the subset of the persistence layer the graph accessor needs.
type Store interface {
	GetDocumentByDocid(ctx context.Context, docid string) (*store.Document, error)
	GetDocumentByID(ctx context.Context, id int64) (*store.Document, error)
	GetDocumentsByMirrorHash(ctx context.Context, mirrorHash string) ([]store.Document, error)
	GetLinksForDoc(ctx context.Context, docID int64) ([]store.Link, error)
	GetBacklinksForDoc(ctx context.Context, docID int64) ([]store.Link, error)
	GetVectorsForMirror(ctx context.Context, mirrorHash, model string) ([]store.Vector, error)
	SearchNearest(ctx context.Context, queryVec []float32, k int, filters store.NearestFilters) ([]store.NearestResult, error)
	SearchAvailable() bool
}

// Accessor implements C14 over a Store.
type Accessor struct {
	store Store
}

func New(s Store) *Accessor {
	return &Accessor{store: s}
}

// Backlink pairs a link row with the document it originated from, since
// links only carry an internal source_doc_id.
type Backlink struct {
	store.Link
	SourceDocid string
	SourceURI   string
}

// GetLinks returns docid's outgoing links sorted by (start_line, start_col)
// ascending, optionally filtered to one link type.
func (a *Accessor) GetLinks(ctx context.Context, docid string, linkType string) ([]store.Link, error) {
	if linkType != "" && linkType != string(store.LinkTypeWiki) && linkType != string(store.LinkTypeMarkdown) {
		return nil, gnoerrors.Validation("unknown link_type: "+linkType, nil)
	}

	doc, err := a.store.GetDocumentByDocid(ctx, docid)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, gnoerrors.NotFound("document not found: "+docid, nil)
	}

	links, err := a.store.GetLinksForDoc(ctx, doc.ID)
	if err != nil {
		return nil, err
	}

	if linkType != "" {
		filtered := links[:0]
		for _, l := range links {
			if string(l.LinkType) == linkType {
				filtered = append(filtered, l)
			}
		}
		links = filtered
	}

	sort.SliceStable(links, func(i, j int) bool {
		if links[i].StartLine != links[j].StartLine {
			return links[i].StartLine < links[j].StartLine
		}
		return links[i].StartCol < links[j].StartCol
	})
	return links, nil
}

// GetBacklinks returns every link elsewhere in the corpus that resolves to
// docid, hydrated with the linking document's URI, sorted by (source_uri,
// start_line, start_col).
func (a *Accessor) GetBacklinks(ctx context.Context, docid string) ([]Backlink, error) {
	doc, err := a.store.GetDocumentByDocid(ctx, docid)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, gnoerrors.NotFound("document not found: "+docid, nil)
	}

	links, err := a.store.GetBacklinksForDoc(ctx, doc.ID)
	if err != nil {
		return nil, err
	}

	docByID := make(map[int64]*store.Document)
	out := make([]Backlink, 0, len(links))
	for _, l := range links {
		src, ok := docByID[l.SourceDocID]
		if !ok {
			src, err = a.store.GetDocumentByID(ctx, l.SourceDocID)
			if err != nil {
				return nil, err
			}
			docByID[l.SourceDocID] = src
		}
		bl := Backlink{Link: l}
		if src != nil {
			bl.SourceDocid = src.Docid
			bl.SourceURI = src.URI
		}
		out = append(out, bl)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SourceURI != out[j].SourceURI {
			return out[i].SourceURI < out[j].SourceURI
		}
		if out[i].StartLine != out[j].StartLine {
			return out[i].StartLine < out[j].StartLine
		}
		return out[i].StartCol < out[j].StartCol
	})
	return out, nil
}

// SimilarDoc is one embedding-similarity neighbor.
type SimilarDoc struct {
	Docid      string
	URI        string
	Similarity float64
}

const (
	defaultSimilarLimit     = 10
	defaultSimilarThreshold = 0.5
	amplifiedKCap           = 200
	amplifiedKFactor        = 20
)

// GetSimilar computes the mean of docid's stored chunk embeddings for
// model, L2-normalizes it, and searches the vector index for neighbors,
// excluding docid itself and deduplicating by docid (a mirror hash can
// back several documents). limit<=0 uses the default; threshold<=0 uses
// the default 0.5. crossCollection disables the same-collection filter.
func (a *Accessor) GetSimilar(ctx context.Context, docid, model string, limit int, threshold float64, crossCollection bool) ([]SimilarDoc, error) {
	if !a.store.SearchAvailable() {
		return nil, gnoerrors.VecUnavailable("vector search unavailable", nil)
	}
	if limit <= 0 {
		limit = defaultSimilarLimit
	}
	if threshold <= 0 {
		threshold = defaultSimilarThreshold
	}

	doc, err := a.store.GetDocumentByDocid(ctx, docid)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, gnoerrors.NotFound("document not found: "+docid, nil)
	}
	if doc.MirrorHash == "" {
		return nil, nil
	}

	vectors, err := a.store.GetVectorsForMirror(ctx, doc.MirrorHash, model)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	mean := meanVector(vectors)
	normalizeL2(mean)

	k := limit * amplifiedKFactor
	if k > amplifiedKCap {
		k = amplifiedKCap
	}

	filters := store.NearestFilters{Model: model}
	if !crossCollection {
		filters.Collection = doc.Collection
	}

	nearest, err := a.store.SearchNearest(ctx, mean, k, filters)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{docid: true}
	docsByMirror := make(map[string][]store.Document)
	out := make([]SimilarDoc, 0, len(nearest))

	for _, n := range nearest {
		docs, ok := docsByMirror[n.MirrorHash]
		if !ok {
			docs, err = a.store.GetDocumentsByMirrorHash(ctx, n.MirrorHash)
			if err != nil {
				return nil, err
			}
			docsByMirror[n.MirrorHash] = docs
		}

		similarity := clamp01(1 - float64(n.Distance))
		if similarity < threshold {
			continue
		}

		for _, d := range docs {
			if seen[d.Docid] {
				continue
			}
			if !crossCollection && d.Collection != doc.Collection {
				continue
			}
			seen[d.Docid] = true
			out = append(out, SimilarDoc{Docid: d.Docid, URI: d.URI, Similarity: similarity})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func meanVector(vectors []store.Vector) []float32 {
	dim := len(vectors[0].Data)
	mean := make([]float32, dim)
	for _, v := range vectors {
		for i, x := range v.Data {
			mean[i] += x
		}
	}
	n := float32(len(vectors))
	for i := range mean {
		mean[i] /= n
	}
	return mean
}

func normalizeL2(v []float32) {
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

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
