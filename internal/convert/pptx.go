package convert

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"sort"
	"strconv"
	"strings"

	gnoerrors "github.com/gastoncampana/gno/internal/errors"
)

// PPTXConverter renders each slide's text frames as a Markdown section
// headed by "## Slide N". Embedded images are not extracted.
type PPTXConverter struct{}

func NewPPTXConverter() *PPTXConverter { return &PPTXConverter{} }

func (c *PPTXConverter) ID() string      { return "pptx" }
func (c *PPTXConverter) Version() string { return "1.0.0" }

func (c *PPTXConverter) CanHandle(mime, ext string) bool {
	return mime == "application/vnd.openxmlformats-officedocument.presentationml.presentation" ||
		strings.EqualFold(ext, ".pptx")
}

type pptxSlide struct {
	CSld struct {
		SpTree struct {
			SPs []pptxSP `xml:"sp"`
		} `xml:"spTree"`
	} `xml:"cSld"`
}

type pptxSP struct {
	TxBody *pptxTxBody `xml:"txBody"`
}

type pptxTxBody struct {
	Paras []pptxAPara `xml:"p"`
}

type pptxAPara struct {
	Runs []pptxARun `xml:"r"`
}

type pptxARun struct {
	Text string `xml:"t"`
}

func (c *PPTXConverter) Convert(ctx context.Context, in Input) (Output, error) {
	zr, err := zip.NewReader(bytes.NewReader(in.Bytes), int64(len(in.Bytes)))
	if err != nil {
		return Output{}, gnoerrors.Corrupt("opening pptx as zip", err).WithDetail("path", in.Path)
	}

	slideFiles := make(map[int]*zip.File)
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "ppt/slides/slide") && strings.HasSuffix(f.Name, ".xml") {
			if num := extractSlideNumber(f.Name); num > 0 {
				slideFiles[num] = f
			}
		}
	}

	nums := make([]int, 0, len(slideFiles))
	for n := range slideFiles {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	var out strings.Builder
	var title string
	emitted := 0

	for _, num := range nums {
		rc, err := slideFiles[num].Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}

		text := extractPPTXSlideText(data)
		if text == "" {
			continue
		}

		heading := "Slide " + strconv.Itoa(num)
		if title == "" {
			if first := firstNonEmptyLine(text); first != "" {
				title = first
			}
		}
		out.WriteString("## " + heading + "\n\n" + text + "\n\n")
		emitted++
	}

	var warnings []string
	if emitted == 0 {
		warnings = append(warnings, "no text found in pptx")
	}

	return Output{Markdown: out.String(), Title: title, Warnings: warnings}, nil
}

func extractPPTXSlideText(data []byte) string {
	var slide pptxSlide
	if err := xml.Unmarshal(data, &slide); err != nil {
		return ""
	}

	var parts []string
	for _, sp := range slide.CSld.SpTree.SPs {
		if sp.TxBody == nil {
			continue
		}
		for _, para := range sp.TxBody.Paras {
			var line strings.Builder
			for _, run := range para.Runs {
				line.WriteString(run.Text)
			}
			if t := strings.TrimSpace(line.String()); t != "" {
				parts = append(parts, t)
			}
		}
	}
	return strings.Join(parts, "\n")
}

func extractSlideNumber(name string) int {
	name = strings.TrimPrefix(name, "ppt/slides/slide")
	name = strings.TrimSuffix(name, ".xml")
	n, err := strconv.Atoi(name)
	if err != nil {
		return 0
	}
	return n
}

func firstNonEmptyLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			return t
		}
	}
	return ""
}
