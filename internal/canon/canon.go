// Package canon implements the canonical text normalization and content
// hashing that every other component keys off of. The seven rules below
// are a compatibility contract: changing them invalidates every stored
// mirror_hash, so they are deliberately written as one small, exhaustively
// tested pass rather than spread across callers.
package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Canonicalize normalizes raw text into the canonical markdown form:
//
//  1. line endings -> \n
//  2. Unicode NFC
//  3. strip control chars other than \t and \n
//  4. trim trailing whitespace per line
//  5. whitespace-only lines count as blank
//  6. collapse runs of >=2 blank lines into one
//  7. exactly one trailing newline
//
// Canonicalize is idempotent: Canonicalize(Canonicalize(s)) == Canonicalize(s).
func Canonicalize(raw string) string {
	s := normalizeLineEndings(raw)
	s = norm.NFC.String(s)
	s = stripControlChars(s)

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\f\v")
	}

	lines = collapseBlankRuns(lines)

	out := strings.Join(lines, "\n")
	out = strings.TrimRight(out, "\n")
	if out == "" {
		return "\n"
	}
	return out + "\n"
}

// Hash returns the lowercase hex SHA-256 of the canonical bytes.
func Hash(canonicalMarkdown string) string {
	sum := sha256.Sum256([]byte(canonicalMarkdown))
	return hex.EncodeToString(sum[:])
}

// MirrorHash canonicalizes raw and returns its hash in one step.
func MirrorHash(raw string) (canonical string, hash string) {
	canonical = Canonicalize(raw)
	return canonical, Hash(canonical)
}

func normalizeLineEndings(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return s
}

func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\t' || r == '\n' {
			b.WriteRune(r)
			continue
		}
		if (r >= 0x00 && r <= 0x1F) || r == 0x7F {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// collapseBlankRuns treats whitespace-only lines as blank and collapses
// any run of two or more consecutive blank lines into exactly one.
func collapseBlankRuns(lines []string) []string {
	out := make([]string, 0, len(lines))
	blankRun := 0
	for _, line := range lines {
		if isBlank(line) {
			blankRun++
			if blankRun == 1 {
				out = append(out, "")
			}
			continue
		}
		blankRun = 0
		out = append(out, line)
	}
	return out
}

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}
