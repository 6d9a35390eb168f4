package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gnoerrors "github.com/gastoncampana/gno/internal/errors"
	"github.com/gastoncampana/gno/internal/store"
)

type fakeStore struct {
	docsByDocid  map[string]*store.Document
	docsByID     map[int64]*store.Document
	docsByMirror map[string][]store.Document
	linksOf      map[int64][]store.Link
	backlinksOf  map[int64][]store.Link
	vectorsOf    map[string][]store.Vector
	nearest      []store.NearestResult
	available    bool
}

func (f *fakeStore) GetDocumentByDocid(_ context.Context, docid string) (*store.Document, error) {
	return f.docsByDocid[docid], nil
}
func (f *fakeStore) GetDocumentByID(_ context.Context, id int64) (*store.Document, error) {
	return f.docsByID[id], nil
}
func (f *fakeStore) GetDocumentsByMirrorHash(_ context.Context, mirrorHash string) ([]store.Document, error) {
	return f.docsByMirror[mirrorHash], nil
}
func (f *fakeStore) GetLinksForDoc(_ context.Context, docID int64) ([]store.Link, error) {
	return f.linksOf[docID], nil
}
func (f *fakeStore) GetBacklinksForDoc(_ context.Context, docID int64) ([]store.Link, error) {
	return f.backlinksOf[docID], nil
}
func (f *fakeStore) GetVectorsForMirror(_ context.Context, mirrorHash, _ string) ([]store.Vector, error) {
	return f.vectorsOf[mirrorHash], nil
}
func (f *fakeStore) SearchNearest(_ context.Context, _ []float32, _ int, _ store.NearestFilters) ([]store.NearestResult, error) {
	return f.nearest, nil
}
func (f *fakeStore) SearchAvailable() bool { return f.available }

func TestGetLinks_SortsByPositionAndFilters(t *testing.T) {
	fs := &fakeStore{
		docsByDocid: map[string]*store.Document{"#aaa": {ID: 1, Docid: "#aaa"}},
		linksOf: map[int64][]store.Link{1: {
			{LinkType: store.LinkTypeMarkdown, StartLine: 5, StartCol: 1},
			{LinkType: store.LinkTypeWiki, StartLine: 2, StartCol: 3},
			{LinkType: store.LinkTypeWiki, StartLine: 2, StartCol: 1},
		}},
	}
	a := New(fs)

	links, err := a.GetLinks(context.Background(), "#aaa", "")
	require.NoError(t, err)
	require.Len(t, links, 3)
	assert.Equal(t, 2, links[0].StartLine)
	assert.Equal(t, 1, links[0].StartCol)

	wikiOnly, err := a.GetLinks(context.Background(), "#aaa", string(store.LinkTypeWiki))
	require.NoError(t, err)
	assert.Len(t, wikiOnly, 2)
}

func TestGetLinks_UnknownDocument(t *testing.T) {
	a := New(&fakeStore{docsByDocid: map[string]*store.Document{}})
	_, err := a.GetLinks(context.Background(), "#missing", "")
	require.Error(t, err)
	assert.Equal(t, gnoerrors.KindNotFound, gnoerrors.GetKind(err))
}

func TestGetLinks_InvalidLinkType(t *testing.T) {
	a := New(&fakeStore{docsByDocid: map[string]*store.Document{"#aaa": {ID: 1}}})
	_, err := a.GetLinks(context.Background(), "#aaa", "bogus")
	require.Error(t, err)
	assert.Equal(t, gnoerrors.KindValidation, gnoerrors.GetKind(err))
}

func TestGetBacklinks_SortsBySourceURIThenPosition(t *testing.T) {
	fs := &fakeStore{
		docsByDocid: map[string]*store.Document{"#target": {ID: 9, Docid: "#target"}},
		docsByID: map[int64]*store.Document{
			1: {ID: 1, Docid: "#b", URI: "gno://notes/b.md"},
			2: {ID: 2, Docid: "#a", URI: "gno://notes/a.md"},
		},
		backlinksOf: map[int64][]store.Link{9: {
			{SourceDocID: 1, StartLine: 1, StartCol: 1},
			{SourceDocID: 2, StartLine: 1, StartCol: 1},
		}},
	}
	a := New(fs)

	backlinks, err := a.GetBacklinks(context.Background(), "#target")
	require.NoError(t, err)
	require.Len(t, backlinks, 2)
	assert.Equal(t, "gno://notes/a.md", backlinks[0].SourceURI)
	assert.Equal(t, "#a", backlinks[0].SourceDocid)
}

func TestGetSimilar_VecUnavailable(t *testing.T) {
	a := New(&fakeStore{available: false})
	_, err := a.GetSimilar(context.Background(), "#aaa", "model-a", 10, 0.5, false)
	require.Error(t, err)
	assert.Equal(t, gnoerrors.KindVecUnavailable, gnoerrors.GetKind(err))
}

func TestGetSimilar_ExcludesSelfDedupesAndFiltersByThreshold(t *testing.T) {
	fs := &fakeStore{
		available: true,
		docsByDocid: map[string]*store.Document{
			"#self": {ID: 1, Docid: "#self", Collection: "notes", MirrorHash: "hself"},
		},
		vectorsOf: map[string][]store.Vector{
			"hself": {{Seq: 0, Data: []float32{1, 0}}},
		},
		nearest: []store.NearestResult{
			{MirrorHash: "hself", Seq: 0, Distance: 0}, // self, excluded
			{MirrorHash: "hgood", Seq: 0, Distance: 0.1},
			{MirrorHash: "hweak", Seq: 0, Distance: 0.9}, // below threshold
		},
		docsByMirror: map[string][]store.Document{
			"hself": {{ID: 1, Docid: "#self", Collection: "notes"}},
			"hgood": {{ID: 2, Docid: "#good", Collection: "notes", URI: "gno://notes/good.md"}},
			"hweak": {{ID: 3, Docid: "#weak", Collection: "notes", URI: "gno://notes/weak.md"}},
		},
	}
	a := New(fs)

	similar, err := a.GetSimilar(context.Background(), "#self", "model-a", 10, 0.5, false)
	require.NoError(t, err)
	require.Len(t, similar, 1)
	assert.Equal(t, "#good", similar[0].Docid)
	assert.InDelta(t, 0.9, similar[0].Similarity, 1e-9)
}

func TestGetSimilar_NoVectorsReturnsEmpty(t *testing.T) {
	fs := &fakeStore{
		available:   true,
		docsByDocid: map[string]*store.Document{"#aaa": {ID: 1, Docid: "#aaa", MirrorHash: "h1"}},
	}
	a := New(fs)
	similar, err := a.GetSimilar(context.Background(), "#aaa", "model-a", 10, 0.5, false)
	require.NoError(t, err)
	assert.Empty(t, similar)
}

func TestMeanVectorAndNormalizeL2(t *testing.T) {
	vectors := []store.Vector{{Data: []float32{2, 0}}, {Data: []float32{0, 2}}}
	mean := meanVector(vectors)
	assert.Equal(t, []float32{1, 1}, mean)

	normalizeL2(mean)
	assert.InDelta(t, 1.0, float64(mean[0]*mean[0]+mean[1]*mean[1]), 1e-6)
}
