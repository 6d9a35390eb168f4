package convert

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	gnoerrors "github.com/gastoncampana/gno/internal/errors"
)

func TestPDFConverter_CanHandle(t *testing.T) {
	c := NewPDFConverter()
	assert.True(t, c.CanHandle("application/pdf", ""))
	assert.True(t, c.CanHandle("", ".pdf"))
	assert.False(t, c.CanHandle("text/plain", ".txt"))
}

func TestPDFConverter_CorruptBytes(t *testing.T) {
	c := NewPDFConverter()
	_, err := c.Convert(context.Background(), Input{Bytes: []byte("not a pdf"), Path: "x.pdf"})
	assert.Error(t, err)
	assert.Equal(t, gnoerrors.KindCorrupt, gnoerrors.GetKind(err))
}

func TestIsLikelyHeading_AllCapsShort(t *testing.T) {
	assert.True(t, isLikelyHeading("INTRODUCTION"))
}

func TestIsLikelyHeading_NumberedSection(t *testing.T) {
	assert.True(t, isLikelyHeading("3.9.1 Model A"))
}

func TestIsLikelyHeading_RegularSentence(t *testing.T) {
	assert.False(t, isLikelyHeading("This is a normal sentence about things."))
}
