package convert

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkdownConverter_CanHandle(t *testing.T) {
	c := NewMarkdownConverter()
	assert.True(t, c.CanHandle("text/markdown", ".md"))
	assert.True(t, c.CanHandle("", ".markdown"))
	assert.False(t, c.CanHandle("text/plain", ".txt"))
}

func TestMarkdownConverter_Convert_Passthrough(t *testing.T) {
	c := NewMarkdownConverter()
	out, err := c.Convert(context.Background(), Input{Bytes: []byte("# Hi\n\nbody")})
	require.NoError(t, err)
	assert.Equal(t, "# Hi\n\nbody", out.Markdown)
	assert.Equal(t, "Hi", out.Title)
}

func TestFirstHeading_ATX(t *testing.T) {
	assert.Equal(t, "Hello", firstHeading("intro\n# Hello\nbody"))
}

func TestFirstHeading_Setext(t *testing.T) {
	assert.Equal(t, "Hello", firstHeading("Hello\n=====\nbody"))
}

func TestFirstHeading_SkipsFencedCode(t *testing.T) {
	got := firstHeading("```\n# not a heading\n```\n# Real Heading\n")
	assert.Equal(t, "Real Heading", got)
}

func TestFirstHeading_NoneFound(t *testing.T) {
	assert.Equal(t, "", firstHeading("just text\nmore text"))
}
