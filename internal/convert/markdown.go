package convert

import (
	"bufio"
	"context"
	"strings"
)

// MarkdownConverter passes markdown through unchanged; the pipeline's
// canonicalization step does all the normalization work. It derives a
// title hint from the first ATX or setext heading outside a code fence.
type MarkdownConverter struct{}

func NewMarkdownConverter() *MarkdownConverter { return &MarkdownConverter{} }

func (c *MarkdownConverter) ID() string      { return "markdown" }
func (c *MarkdownConverter) Version() string { return "1.0.0" }

func (c *MarkdownConverter) CanHandle(mime, ext string) bool {
	ext = strings.ToLower(ext)
	return mime == "text/markdown" || ext == ".md" || ext == ".markdown"
}

func (c *MarkdownConverter) Convert(ctx context.Context, in Input) (Output, error) {
	text := string(in.Bytes)
	return Output{
		Markdown: text,
		Title:    firstHeading(text),
	}, nil
}

// firstHeading scans for the first Markdown heading outside a fenced code
// block, trying ATX (# Title) then setext (Title\n===) forms.
func firstHeading(text string) string {
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	inFence := false
	var prevLine string
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			prevLine = ""
			continue
		}
		if inFence {
			prevLine = ""
			continue
		}

		if strings.HasPrefix(trimmed, "#") {
			h := strings.TrimLeft(trimmed, "#")
			h = strings.TrimSpace(h)
			if h != "" {
				return h
			}
		}

		if isSetextUnderline(trimmed) && strings.TrimSpace(prevLine) != "" {
			return strings.TrimSpace(prevLine)
		}

		prevLine = line
	}
	return ""
}

func isSetextUnderline(line string) bool {
	if line == "" {
		return false
	}
	allEq := strings.Count(line, "=") == len(line)
	allDash := len(line) > 1 && strings.Count(line, "-") == len(line)
	return allEq || allDash
}
