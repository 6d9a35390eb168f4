package convert

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	gnoerrors "github.com/gastoncampana/gno/internal/errors"
)

var (
	defaultOnce sync.Once
	defaultReg  *Registry
	defaultSF   singleflight.Group
)

// defaultRegistry returns the process-wide default Registry, built once and
// shared across callers. Building the registry is cheap, but sync.Once
// still collapses concurrent first-callers into one initialization so
// Convert never races two copies into existence.
func defaultRegistry() *Registry {
	defaultOnce.Do(func() {
		defaultReg = NewDefaultRegistry()
	})
	return defaultReg
}

// ResetDefaultRegistry discards the process-wide default registry so the
// next Convert call rebuilds it. Tests use this to install a fresh registry
// between cases without leaking converter state across them.
func ResetDefaultRegistry() {
	defaultOnce = sync.Once{}
	defaultReg = nil
}

// Pipeline runs one file through converter selection, extraction, and
// canonicalization (C3): exactly one call per file.
type Pipeline struct {
	registry *Registry
}

// NewPipeline builds a Pipeline around a specific Registry. Pass nil to use
// the shared process-wide default.
func NewPipeline(registry *Registry) *Pipeline {
	return &Pipeline{registry: registry}
}

func (p *Pipeline) registryOrDefault() *Registry {
	if p.registry != nil {
		return p.registry
	}
	return defaultRegistry()
}

// Convert selects a converter for in.MIME/in.Ext, extracts markdown, and
// canonicalizes the result into a content-addressed Artifact. Oversized
// inputs are rejected before any converter runs.
func (p *Pipeline) Convert(ctx context.Context, in Input) (Artifact, error) {
	limits := in.Limits
	if limits.MaxBytes <= 0 && limits.TimeoutMS <= 0 {
		limits = DefaultLimits()
	}
	if limits.MaxBytes > 0 && int64(len(in.Bytes)) > limits.MaxBytes {
		return Artifact{}, tooLarge(in.Path, int64(len(in.Bytes)), limits.MaxBytes)
	}

	conv, err := p.registryOrDefault().Resolve(in.MIME, in.Ext)
	if err != nil {
		return Artifact{}, err
	}

	cctx, cancel := context.WithTimeout(ctx, limits.timeout())
	defer cancel()

	// Race the converter against the deadline. A converter that ignores
	// cctx keeps running in the background after the TIMEOUT is returned.
	type convResult struct {
		out Output
		err error
	}
	done := make(chan convResult, 1)
	go func() {
		o, e := conv.Convert(cctx, in)
		done <- convResult{out: o, err: e}
	}()

	var out Output
	select {
	case r := <-done:
		if r.err != nil {
			return Artifact{}, r.err
		}
		out = r.out
	case <-cctx.Done():
		return Artifact{}, gnoerrors.Timeout("conversion exceeded timeout", cctx.Err()).WithDetail("path", in.Path)
	}

	return finalize(out, conv.ID(), conv.Version(), in.MIME), nil
}

// singleflightKey lets callers coalesce concurrent conversions of the same
// bytes (e.g. two ingest paths racing on the same file) into one extraction.
// Only ConvertCoalesced uses it; Pipeline.Convert itself does not, since
// callers may convert distinct inputs concurrently and coalescing would be
// incorrect there.
func singleflightKey(mirrorKey string) string { return mirrorKey }

// ConvertCoalesced is like Convert but deduplicates concurrent calls that
// share the same key (typically the source file's content hash), so a
// burst of requests for the same bytes only runs the converter once.
func (p *Pipeline) ConvertCoalesced(ctx context.Context, key string, in Input) (Artifact, error) {
	v, err, _ := defaultSF.Do(singleflightKey(key), func() (interface{}, error) {
		return p.Convert(ctx, in)
	})
	if err != nil {
		return Artifact{}, err
	}
	return v.(Artifact), nil
}
