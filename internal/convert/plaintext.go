package convert

import (
	"context"
	"path/filepath"
	"strings"
)

// PlaintextConverter is the catch-all converter: any byte stream that no
// structured converter claims is passed through as-is, with a title hint
// derived from the filename. It always matches, so it must be registered
// last in the dispatch order.
type PlaintextConverter struct{}

func NewPlaintextConverter() *PlaintextConverter { return &PlaintextConverter{} }

func (c *PlaintextConverter) ID() string      { return "plaintext" }
func (c *PlaintextConverter) Version() string { return "1.0.0" }

func (c *PlaintextConverter) CanHandle(mime, ext string) bool { return true }

func (c *PlaintextConverter) Convert(ctx context.Context, in Input) (Output, error) {
	base := filepath.Base(in.Path)
	title := strings.TrimSuffix(base, filepath.Ext(base))
	return Output{
		Markdown: string(in.Bytes),
		Title:    title,
	}, nil
}
