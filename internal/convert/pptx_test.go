package convert

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildPPTX(t *testing.T, slides map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, xml := range slides {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(xml))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

const slideXML = `<?xml version="1.0"?>
<p:sld xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main">
  <p:cSld><p:spTree><p:sp><p:txBody><a:p><a:r><a:t>Welcome</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld>
</p:sld>`

func TestPPTXConverter_CanHandle(t *testing.T) {
	c := NewPPTXConverter()
	assert.True(t, c.CanHandle("", ".pptx"))
}

func TestPPTXConverter_ExtractsSlideText(t *testing.T) {
	c := NewPPTXConverter()
	data := buildPPTX(t, map[string]string{"ppt/slides/slide1.xml": slideXML})
	out, err := c.Convert(context.Background(), Input{Bytes: data})
	require.NoError(t, err)
	assert.Contains(t, out.Markdown, "## Slide 1")
	assert.Contains(t, out.Markdown, "Welcome")
	assert.Equal(t, "Welcome", out.Title)
}

func TestPPTXConverter_OrdersSlidesNumerically(t *testing.T) {
	c := NewPPTXConverter()
	two := `<p:sld xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"><p:cSld><p:spTree><p:sp><p:txBody><a:p><a:r><a:t>Second</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld></p:sld>`
	data := buildPPTX(t, map[string]string{
		"ppt/slides/slide2.xml": two,
		"ppt/slides/slide1.xml": slideXML,
	})
	out, err := c.Convert(context.Background(), Input{Bytes: data})
	require.NoError(t, err)
	firstIdx := indexOf(out.Markdown, "Welcome")
	secondIdx := indexOf(out.Markdown, "Second")
	assert.Less(t, firstIdx, secondIdx)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func TestPPTXConverter_NoTextWarns(t *testing.T) {
	c := NewPPTXConverter()
	out, err := c.Convert(context.Background(), Input{Bytes: buildPPTX(t, map[string]string{})})
	require.NoError(t, err)
	assert.NotEmpty(t, out.Warnings)
}
