package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalize_Determinism(t *testing.T) {
	input := "# T\r\n\r\nA  \r\n\r\n\r\nB\r\n\r\n"
	got := Canonicalize(input)
	assert.Equal(t, "# T\n\nA\n\nB\n", got)

	sum := sha256.Sum256([]byte("# T\n\nA\n\nB\n"))
	assert.Equal(t, hex.EncodeToString(sum[:]), Hash(got))
}

func TestCanonicalize_KnownHash(t *testing.T) {
	canonical, hash := MirrorHash("hello")
	assert.Equal(t, "hello\n", canonical)
	assert.Equal(t, "5891b5b522d5df086d0ff0b110fbd9d21bb4fc7163af34d08286a2e846f6be03", hash)
}

func TestCanonicalize_EmptyInput(t *testing.T) {
	assert.Equal(t, "\n", Canonicalize(""))
}

func TestCanonicalize_WhitespaceOnlyLines(t *testing.T) {
	assert.Equal(t, "\n", Canonicalize("   \n\t\n   \n"))
}

func TestCanonicalize_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"hello",
		"# T\r\n\r\nA  \r\n\r\n\r\nB\r\n\r\n",
		"line1\n\n\n\n\nline2",
		"\x00\x01control\x7fchars\n",
		"trailing   \t  \nspaces",
	}
	for _, in := range inputs {
		once := Canonicalize(in)
		twice := Canonicalize(once)
		assert.Equal(t, once, twice, "not idempotent for %q", in)
	}
}

func TestCanonicalize_StripsControlChars(t *testing.T) {
	got := Canonicalize("a\x00b\x01c\x7fd\n")
	assert.Equal(t, "abcd\n", got)
}

func TestCanonicalize_PreservesTabAndNewline(t *testing.T) {
	got := Canonicalize("a\tb\n")
	assert.Equal(t, "a\tb\n", got)
}

func TestCanonicalize_CollapsesBlankRuns(t *testing.T) {
	got := Canonicalize("a\n\n\n\n\nb\n")
	assert.Equal(t, "a\n\nb\n", got)
}

func TestCanonicalize_NoCarriageReturns(t *testing.T) {
	out := Canonicalize("a\r\nb\rc\n")
	for _, r := range out {
		assert.NotEqual(t, '\r', r)
	}
}

func TestCanonicalize_ExactlyOneTrailingNewline(t *testing.T) {
	for _, in := range []string{"a", "a\n", "a\n\n\n", "a\n\n\n\n\n\n"} {
		got := Canonicalize(in)
		assert.Equal(t, byte('\n'), got[len(got)-1])
		assert.NotEqual(t, byte('\n'), got[len(got)-2])
	}
}

func TestHash_IsLowercaseHex64(t *testing.T) {
	h := Hash("anything\n")
	assert.Len(t, h, 64)
	for _, r := range h {
		assert.True(t, (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f'))
	}
}
