package convert

import (
	"bytes"
	"context"
	"strings"

	"github.com/xuri/excelize/v2"

	gnoerrors "github.com/gastoncampana/gno/internal/errors"
)

// XLSXConverter renders each worksheet as a Markdown table headed by its
// sheet name, one "## <sheet>" section per sheet.
type XLSXConverter struct{}

func NewXLSXConverter() *XLSXConverter { return &XLSXConverter{} }

func (c *XLSXConverter) ID() string      { return "xlsx" }
func (c *XLSXConverter) Version() string { return "1.0.0" }

func (c *XLSXConverter) CanHandle(mime, ext string) bool {
	return mime == "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" ||
		strings.EqualFold(ext, ".xlsx")
}

func (c *XLSXConverter) Convert(ctx context.Context, in Input) (Output, error) {
	f, err := excelize.OpenReader(bytes.NewReader(in.Bytes))
	if err != nil {
		return Output{}, gnoerrors.Corrupt("opening xlsx", err).WithDetail("path", in.Path)
	}
	defer f.Close()

	var out strings.Builder
	var title string
	emitted := 0

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}

		if title == "" {
			title = sheet
		}
		out.WriteString("## " + sheet + "\n\n")
		for i, row := range rows {
			out.WriteString("| " + strings.Join(row, " | ") + " |\n")
			if i == 0 {
				sep := make([]string, len(row))
				for j := range sep {
					sep[j] = "---"
				}
				out.WriteString("| " + strings.Join(sep, " | ") + " |\n")
			}
		}
		out.WriteString("\n")
		emitted++
	}

	var warnings []string
	if emitted == 0 {
		warnings = append(warnings, "no data found in xlsx")
	}

	return Output{Markdown: out.String(), Title: title, Warnings: warnings}, nil
}
