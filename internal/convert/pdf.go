package convert

import (
	"context"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	gnoerrors "github.com/gastoncampana/gno/internal/errors"
)

// PDFConverter extracts text from PDF files in visual reading order and
// renders likely headings as Markdown headings, so the chunker's
// header-based splitting has something to key off of. Image extraction is
// out of scope for this pipeline — only text content is preserved.
type PDFConverter struct{}

func NewPDFConverter() *PDFConverter { return &PDFConverter{} }

func (c *PDFConverter) ID() string      { return "pdf" }
func (c *PDFConverter) Version() string { return "1.0.0" }

func (c *PDFConverter) CanHandle(mime, ext string) bool {
	return mime == "application/pdf" || strings.EqualFold(ext, ".pdf")
}

func (c *PDFConverter) Convert(ctx context.Context, in Input) (Output, error) {
	tmp, err := os.CreateTemp("", "gno-pdf-*.pdf")
	if err != nil {
		return Output{}, gnoerrors.IO("creating temp file for pdf conversion", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()
	if _, err := tmp.Write(in.Bytes); err != nil {
		return Output{}, gnoerrors.IO("writing temp pdf", err)
	}

	f, reader, err := pdf.Open(tmp.Name())
	if err != nil {
		return Output{}, gnoerrors.Corrupt("opening pdf", err).WithDetail("path", in.Path)
	}
	defer f.Close()

	totalPages := reader.NumPage()
	var out strings.Builder
	var warnings []string
	var title string
	emitted := 0

	for i := 1; i <= totalPages; i++ {
		select {
		case <-ctx.Done():
			return Output{}, gnoerrors.Timeout("pdf conversion cancelled", ctx.Err())
		default:
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, terr := extractPageTextOrdered(page)
		if terr != nil {
			warnings = append(warnings, "page "+itoa(int64(i))+": "+terr.Error())
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if isLikelyHeading(line) {
				if title == "" {
					title = line
				}
				out.WriteString("## " + line + "\n\n")
				continue
			}
			out.WriteString(line + "\n")
		}
		out.WriteString("\n")
		emitted++
	}

	if emitted == 0 {
		warnings = append(warnings, "no extractable text in pdf")
	}

	return Output{Markdown: out.String(), Title: title, Warnings: warnings}, nil
}

// extractPageTextOrdered groups a page's content-stream text runs into
// visual lines by Y proximity, then orders those lines top-to-bottom, so
// headings read before the body text they label even when the PDF's
// content stream interleaves them.
func extractPageTextOrdered(page pdf.Page) (string, error) {
	content := page.Content()
	if len(content.Text) == 0 {
		return page.GetPlainText(nil)
	}

	const lineTolerance = 3.0

	type visualLine struct {
		y   float64
		buf strings.Builder
	}

	var lines []*visualLine
	var cur *visualLine
	for _, t := range content.Text {
		if cur == nil || math.Abs(t.Y-cur.y) > lineTolerance {
			lines = append(lines, &visualLine{y: t.Y})
			cur = lines[len(lines)-1]
		}
		cur.buf.WriteString(t.S)
	}

	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].y > lines[j].y
	})

	var parts []string
	for _, l := range lines {
		text := strings.TrimSpace(l.buf.String())
		if text != "" {
			parts = append(parts, text)
		}
	}

	result := strings.Join(parts, "\n")
	if strings.TrimSpace(result) == "" {
		return page.GetPlainText(nil)
	}
	return result, nil
}

// isLikelyHeading flags short all-caps lines and numbered-section headers
// ("3.9.1 Title") as heading candidates.
func isLikelyHeading(line string) bool {
	if len(line) > 2 && len(line) < 100 && line == strings.ToUpper(line) && strings.ToUpper(line) != strings.ToLower(line) {
		return true
	}
	if len(line) > 0 && len(line) < 120 && line[0] >= '0' && line[0] <= '9' {
		head := line
		if idx := strings.IndexByte(line, ' '); idx > 0 && idx < 10 {
			head = line[:idx]
		}
		if strings.Contains(head, ".") {
			return true
		}
	}
	return false
}
