// Package chunk implements the markdown chunker (C6): splitting canonical
// markdown into ordered, positionally annotated chunks that never split a
// code fence.
package chunk

import (
	"context"
	"time"
)

// Chunk size defaults, owned by this component per §7.1 (no external config
// loader; a complete implementation still needs sane constructor defaults).
const (
	DefaultMaxChunkTokens = 512 // Optimal for 85-90% recall
	DefaultOverlapTokens  = 64  // ~12.5% overlap
	MinChunkTokens        = 100 // Minimum viable chunk
	TokensPerChar         = 4   // Rough approximation: 4 chars = 1 token
)

// ContentType classifies a chunk's source material for chunker tuning.
type ContentType string

const (
	ContentTypeMarkdown ContentType = "markdown"
	ContentTypeText     ContentType = "text"
)

// Chunk is a retrievable unit of content produced by a Chunker, before
// sequencing and byte-offset assignment (see ToStoreChunks).
type Chunk struct {
	ID          string // hex SHA256(file_path + "\x00" + content)[:16]
	FilePath    string // Relative to project root
	Content     string
	ContentType ContentType
	Language    string
	StartLine   int // 1-indexed
	EndLine     int // Inclusive
	Metadata    map[string]string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FileInput is input for the Chunker interface.
type FileInput struct {
	Path     string // Relative path
	Content  []byte // File content (canonical markdown)
	Language string
}

// Chunker is the interface for splitting a file into semantic chunks.
type Chunker interface {
	Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error)
	SupportedExtensions() []string
}
