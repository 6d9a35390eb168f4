// Package convert implements the converter registry (C2) and conversion
// pipeline (C3): dispatching raw bytes to a format-specific converter and
// producing a canonical, content-addressed ConversionArtifact.
package convert

import (
	"context"
	"time"

	"github.com/gastoncampana/gno/internal/canon"
	gnoerrors "github.com/gastoncampana/gno/internal/errors"
)

// Limits bounds a single conversion call.
type Limits struct {
	MaxBytes  int64
	TimeoutMS int64
}

// DefaultLimits mirrors the teacher's conservative defaults for
// single-file extraction work.
func DefaultLimits() Limits {
	return Limits{MaxBytes: 64 << 20, TimeoutMS: 30_000}
}

func (l Limits) timeout() time.Duration {
	if l.TimeoutMS <= 0 {
		return 30 * time.Second
	}
	return time.Duration(l.TimeoutMS) * time.Millisecond
}

// Input carries everything a converter needs to produce markdown.
type Input struct {
	Path   string // absolute or caller-relative path, for diagnostics only
	Bytes  []byte
	MIME   string
	Ext    string
	Limits Limits
}

// Output is what a converter produces before canonicalization. Converters
// must not canonicalize — that happens once in the pipeline so every
// converter hashes compatibly (§4.2).
type Output struct {
	Markdown      string
	Title         string
	LanguageHint  string
	Warnings      []string
}

// Converter dispatches on MIME/extension and extracts markdown from bytes.
type Converter interface {
	ID() string
	Version() string
	CanHandle(mime, ext string) bool
	Convert(ctx context.Context, in Input) (Output, error)
}

// Artifact is the transient product of the conversion pipeline (C3).
type Artifact struct {
	CanonicalMarkdown string
	MirrorHash        string
	Title             string
	LanguageHint      string
	ConverterID       string
	ConverterVersion  string
	SourceMIME        string
	Warnings          []string
}

// finalize canonicalizes out.Markdown and assembles the Artifact,
// asserting the §4.1 invariant mirror_hash == SHA256(canonical_markdown).
func finalize(out Output, converterID, converterVersion, sourceMIME string) Artifact {
	canonical, hash := canon.MirrorHash(out.Markdown)
	return Artifact{
		CanonicalMarkdown: canonical,
		MirrorHash:        hash,
		Title:             out.Title,
		LanguageHint:      out.LanguageHint,
		ConverterID:       converterID,
		ConverterVersion:  converterVersion,
		SourceMIME:        sourceMIME,
		Warnings:          out.Warnings,
	}
}

func tooLarge(path string, size, max int64) error {
	return gnoerrors.TooLarge(
		"input exceeds max_bytes limit",
		nil,
	).WithDetail("path", path).WithDetail("size", itoa(size)).WithDetail("max_bytes", itoa(max))
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
