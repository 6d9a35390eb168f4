// Package links implements the link extractor (C7): parsing wiki `[[…]]`
// and standard markdown `[text](target)` links out of canonical markdown,
// with 1-based source positions, and advisory resolution against a
// document set.
package links

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gastoncampana/gno/internal/store"
)

var (
	fenceLine       = regexp.MustCompile("^\\s*```")
	wikiLinkPattern = regexp.MustCompile(`\[\[([^\]|]+)(?:\|([^\]]+))?\]\]`)
	mdLinkPattern   = regexp.MustCompile(`\[([^\]]*)\]\(([^)\s]+)\)`)
)

// ExtractedLink is one parsed reference, before a source_doc_id is known —
// the caller assigns that (and Source=parsed) when persisting it via
// store.PutLinks.
type ExtractedLink struct {
	TargetRef        string
	TargetRefNorm    string
	TargetAnchor     string
	TargetCollection string
	LinkType         store.LinkType
	LinkText         string
	StartLine        int
	StartCol         int
	EndLine          int
	EndCol           int
}

// Extract scans canonical markdown for wiki and standard markdown links,
// skipping fenced code blocks entirely (§4.7).
func Extract(canonicalMarkdown string) []ExtractedLink {
	var out []ExtractedLink
	lines := strings.Split(canonicalMarkdown, "\n")
	inFence := false

	for i, line := range lines {
		if fenceLine.MatchString(line) {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		lineNum := i + 1

		claimed := make([][2]int, 0, 4) // byte ranges already consumed by a wiki match

		for _, m := range wikiLinkPattern.FindAllStringSubmatchIndex(line, -1) {
			claimed = append(claimed, [2]int{m[0], m[1]})
			raw := line[m[2]:m[3]]
			display := ""
			if m[4] >= 0 {
				display = line[m[4]:m[5]]
			}
			collection, target, anchor := splitWikiTarget(raw)
			out = append(out, ExtractedLink{
				TargetRef:        raw,
				TargetRefNorm:    normalizeRef(target),
				TargetAnchor:     anchor,
				TargetCollection: collection,
				LinkType:         store.LinkTypeWiki,
				LinkText:         display,
				StartLine:        lineNum,
				EndLine:          lineNum,
				StartCol:         runeCol(line, m[0]),
				EndCol:           runeCol(line, m[1]),
			})
		}

		for _, m := range mdLinkPattern.FindAllStringSubmatchIndex(line, -1) {
			if overlaps(claimed, m[0], m[1]) {
				continue
			}
			text := line[m[2]:m[3]]
			target := line[m[4]:m[5]]
			anchor := ""
			targetNoAnchor := target
			if idx := strings.IndexByte(target, '#'); idx >= 0 {
				anchor = target[idx+1:]
				targetNoAnchor = target[:idx]
			}
			out = append(out, ExtractedLink{
				TargetRef:     target,
				TargetRefNorm: normalizeRef(targetNoAnchor),
				TargetAnchor:  anchor,
				LinkType:      store.LinkTypeMarkdown,
				LinkText:      text,
				StartLine:     lineNum,
				EndLine:       lineNum,
				StartCol:      runeCol(line, m[0]),
				EndCol:        runeCol(line, m[1]),
			})
		}
	}
	return out
}

func overlaps(claimed [][2]int, start, end int) bool {
	for _, c := range claimed {
		if start < c[1] && end > c[0] {
			return true
		}
	}
	return false
}

// splitWikiTarget splits a raw wiki-link body into an optional
// "collection:" prefix, the bare target, and an optional "#anchor" suffix.
func splitWikiTarget(raw string) (collection, target, anchor string) {
	target = raw
	if idx := strings.IndexByte(target, '#'); idx >= 0 {
		anchor = target[idx+1:]
		target = target[:idx]
	}
	if idx := strings.IndexByte(target, ':'); idx >= 0 && isCollectionName(target[:idx]) {
		collection = target[:idx]
		target = target[idx+1:]
	}
	return collection, strings.TrimSpace(target), strings.TrimSpace(anchor)
}

var collectionNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

func isCollectionName(s string) bool {
	return collectionNamePattern.MatchString(s)
}

// normalizeRef case-folds and collapses whitespace, per §3's
// target_ref_norm contract. The anchor must already be stripped by callers.
func normalizeRef(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// runeCol converts a byte offset within line into a 1-based rune column.
func runeCol(line string, byteOffset int) int {
	return utf8.RuneCountInString(line[:byteOffset]) + 1
}

// ResolvableDoc is the minimal shape Resolve needs from a candidate target
// document.
type ResolvableDoc struct {
	Docid      string
	Collection string
	RelPath    string
	Title      string
}

// Resolve reports whether link targets an existing document by normalized
// title or path, scoped to TargetCollection when present. Resolution is
// advisory metadata only — the spec is explicit that it is never persisted
// on the link row (§4.7).
func Resolve(link ExtractedLink, docs []ResolvableDoc) (docid string, ok bool) {
	for _, d := range docs {
		if link.TargetCollection != "" && d.Collection != link.TargetCollection {
			continue
		}
		if normalizeRef(d.Title) == link.TargetRefNorm || normalizeRef(d.RelPath) == link.TargetRefNorm {
			return d.Docid, true
		}
	}
	return "", false
}
