package convert

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	gnoerrors "github.com/gastoncampana/gno/internal/errors"
)

// DOCXConverter renders the paragraphs and tables of word/document.xml as
// Markdown, turning Word heading styles into ATX headings. Embedded images
// are not extracted — conversion here is text-only.
type DOCXConverter struct{}

func NewDOCXConverter() *DOCXConverter { return &DOCXConverter{} }

func (c *DOCXConverter) ID() string      { return "docx" }
func (c *DOCXConverter) Version() string { return "1.0.0" }

func (c *DOCXConverter) CanHandle(mime, ext string) bool {
	return mime == "application/vnd.openxmlformats-officedocument.wordprocessingml.document" ||
		strings.EqualFold(ext, ".docx")
}

type docxBody struct {
	XMLName xml.Name    `xml:"body"`
	Paras   []docxPara  `xml:"p"`
	Tables  []docxTable `xml:"tbl"`
}

type docxDocument struct {
	XMLName xml.Name `xml:"document"`
	Body    docxBody `xml:"body"`
}

type docxPara struct {
	XMLName xml.Name    `xml:"p"`
	PPr     *docxParaPr `xml:"pPr"`
	Runs    []docxRun   `xml:"r"`
}

type docxParaPr struct {
	PStyle *docxPStyle `xml:"pStyle"`
}

type docxPStyle struct {
	Val string `xml:"val,attr"`
}

type docxRun struct {
	Text []docxText `xml:"t"`
}

type docxText struct {
	Content string `xml:",chardata"`
}

type docxTable struct {
	Rows []docxRow `xml:"tr"`
}

type docxRow struct {
	Cells []docxCell `xml:"tc"`
}

type docxCell struct {
	Paras []docxPara `xml:"p"`
}

func (c *DOCXConverter) Convert(ctx context.Context, in Input) (Output, error) {
	zr, err := zip.NewReader(bytes.NewReader(in.Bytes), int64(len(in.Bytes)))
	if err != nil {
		return Output{}, gnoerrors.Corrupt("opening docx as zip", err).WithDetail("path", in.Path)
	}

	var docFile *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return Output{}, gnoerrors.Corrupt("word/document.xml not found in docx", nil).WithDetail("path", in.Path)
	}

	rc, err := docFile.Open()
	if err != nil {
		return Output{}, gnoerrors.Corrupt("opening word/document.xml", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return Output{}, gnoerrors.IO("reading word/document.xml", err)
	}

	var doc docxDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return Output{}, gnoerrors.Corrupt("parsing word/document.xml", err)
	}

	var out strings.Builder
	var title string

	for _, para := range doc.Body.Paras {
		text := extractDocxParaText(para)
		if text == "" {
			continue
		}
		style := ""
		if para.PPr != nil && para.PPr.PStyle != nil {
			style = para.PPr.PStyle.Val
		}
		lower := strings.ToLower(style)
		if strings.HasPrefix(lower, "heading") || strings.HasPrefix(lower, "title") {
			level := docxHeadingLevel(lower)
			if title == "" {
				title = text
			}
			out.WriteString(strings.Repeat("#", level) + " " + text + "\n\n")
			continue
		}
		out.WriteString(text + "\n\n")
	}

	for _, tbl := range doc.Body.Tables {
		for _, row := range tbl.Rows {
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				var cellText strings.Builder
				for _, p := range cell.Paras {
					if cellText.Len() > 0 {
						cellText.WriteString(" ")
					}
					cellText.WriteString(extractDocxParaText(p))
				}
				cells = append(cells, cellText.String())
			}
			out.WriteString("| " + strings.Join(cells, " | ") + " |\n")
		}
		out.WriteString("\n")
	}

	return Output{Markdown: out.String(), Title: title}, nil
}

func extractDocxParaText(para docxPara) string {
	var b strings.Builder
	for _, run := range para.Runs {
		for _, t := range run.Text {
			b.WriteString(t.Content)
		}
	}
	return b.String()
}

func docxHeadingLevel(lowerStyle string) int {
	if strings.Contains(lowerStyle, "title") {
		return 1
	}
	for i := 1; i <= 6; i++ {
		if strings.Contains(lowerStyle, strconv.Itoa(i)) {
			return i
		}
	}
	return 2
}
