package chunk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToStoreChunks_ContiguousSeqAndPos(t *testing.T) {
	chunker := NewMarkdownChunker()
	content := "# Title\n\nIntro text.\n\n## Section 1\n\nBody one.\n\n## Section 2\n\nBody two.\n"

	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Path:    "doc.md",
		Content: []byte(content),
	})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	storeChunks := ToStoreChunks(content, chunks)
	require.Len(t, storeChunks, len(chunks))

	for i, c := range storeChunks {
		assert.Equal(t, i, c.Seq)
		assert.GreaterOrEqual(t, c.TokenCount, 0)
		assert.Equal(t, content[c.Pos:c.Pos+len(c.Text)], c.Text)
		if i > 0 {
			assert.GreaterOrEqual(t, c.Pos, storeChunks[i-1].Pos)
		}
	}
}

func TestToStoreChunks_Empty(t *testing.T) {
	assert.Empty(t, ToStoreChunks("", nil))
}
