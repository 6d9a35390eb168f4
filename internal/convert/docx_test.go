package convert

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildDOCX(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

const docxXML = `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>Chapter One</w:t></w:r></w:p>
    <w:p><w:r><w:t>Some body text.</w:t></w:r></w:p>
    <w:tbl>
      <w:tr><w:tc><w:p><w:r><w:t>a</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>b</w:t></w:r></w:p></w:tc></w:tr>
    </w:tbl>
  </w:body>
</w:document>`

func TestDOCXConverter_CanHandle(t *testing.T) {
	c := NewDOCXConverter()
	assert.True(t, c.CanHandle("", ".docx"))
}

func TestDOCXConverter_ExtractsHeadingsAndTables(t *testing.T) {
	c := NewDOCXConverter()
	out, err := c.Convert(context.Background(), Input{Bytes: buildDOCX(t, docxXML)})
	require.NoError(t, err)
	assert.Equal(t, "Chapter One", out.Title)
	assert.Contains(t, out.Markdown, "# Chapter One")
	assert.Contains(t, out.Markdown, "Some body text.")
	assert.Contains(t, out.Markdown, "| a | b |")
}

func TestDOCXConverter_MissingDocumentXML(t *testing.T) {
	c := NewDOCXConverter()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	require.NoError(t, zw.Close())
	_, err := c.Convert(context.Background(), Input{Bytes: buf.Bytes()})
	assert.Error(t, err)
}
