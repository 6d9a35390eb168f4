package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/gastoncampana/gno/internal/store"
)

// estimateTokens approximates a token count from byte length when no
// tokenizer is bound (§4.6: "may be estimated... must be non-negative").
func estimateTokens(s string) int {
	if s == "" {
		return 0
	}
	n := len(s) / TokensPerChar
	if n == 0 {
		n = 1
	}
	return n
}

// generateChunkID derives a stable identifier for a chunk from its source
// path and content, used only as a diagnostic label (not a storage key —
// storage keys are (mirror_hash, seq), assigned by ToStoreChunks).
func generateChunkID(filePath, content string) string {
	sum := sha256.Sum256([]byte(filePath + "\x00" + content))
	return hex.EncodeToString(sum[:])[:16]
}

// ToStoreChunks sequences a Chunker's output against the canonical markdown
// it was derived from, assigning the contiguous 0-based seq and byte pos
// the Store's schema requires (§3 Chunk invariants). Chunks are expected in
// document order, which every Chunker in this package preserves; pos is
// found by scanning forward from the previous chunk's end so repeated
// content (e.g. an identical code block) doesn't jump backward.
func ToStoreChunks(canonicalMarkdown string, chunks []*Chunk) []store.Chunk {
	out := make([]store.Chunk, 0, len(chunks))
	cursor := 0
	for seq, c := range chunks {
		pos := strings.Index(canonicalMarkdown[cursor:], c.Content)
		if pos < 0 {
			pos = cursor
		} else {
			pos += cursor
		}
		cursor = pos + len(c.Content)

		tokenCount := estimateTokens(c.Content)
		if tokenCount < 0 {
			tokenCount = 0
		}

		out = append(out, store.Chunk{
			Seq:        seq,
			Pos:        pos,
			Text:       c.Content,
			StartLine:  c.StartLine,
			EndLine:    c.EndLine,
			Language:   c.Language,
			TokenCount: tokenCount,
		})
	}
	return out
}
