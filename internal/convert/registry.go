package convert

import (
	"sort"
	"sync"

	gnoerrors "github.com/gastoncampana/gno/internal/errors"
)

// Registry dispatches an Input to the first registered Converter willing to
// handle its MIME/extension. Registration order is preserved, so the
// built-in converters are tried before anything registered later — the
// same first-match-wins shape the teacher's parser registry uses.
type Registry struct {
	mu         sync.RWMutex
	converters []Converter
}

// NewRegistry returns an empty registry. Use NewDefaultRegistry to get one
// pre-populated with the built-in converters.
func NewRegistry() *Registry {
	return &Registry{}
}

// NewDefaultRegistry returns a Registry with the built-in converters
// registered in priority order: structured formats before the permissive
// plaintext fallback.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewMarkdownConverter())
	r.Register(NewPDFConverter())
	r.Register(NewDOCXConverter())
	r.Register(NewPPTXConverter())
	r.Register(NewXLSXConverter())
	r.Register(NewPlaintextConverter())
	return r
}

// Register appends a converter to the dispatch list.
func (r *Registry) Register(c Converter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.converters = append(r.converters, c)
}

// Resolve returns the first converter willing to handle mime/ext, or an
// UNSUPPORTED error (§7) if none claims it.
func (r *Registry) Resolve(mime, ext string) (Converter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.converters {
		if c.CanHandle(mime, ext) {
			return c, nil
		}
	}
	return nil, gnoerrors.Unsupported("no converter handles this input", nil).
		WithDetail("mime", mime).WithDetail("ext", ext)
}

// IDs returns the registered converter IDs sorted alphabetically (not in
// dispatch order), for diagnostics and tests.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, len(r.converters))
	for i, c := range r.converters {
		ids[i] = c.ID()
	}
	sort.Strings(ids)
	return ids
}
