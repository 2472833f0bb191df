package extractor

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Spreadsheet flattens XLSX workbooks into tab separated rows, one sheet
// after another, so they can be chunked like any other text.
type Spreadsheet struct{}

func NewSpreadsheet() *Spreadsheet {
	return &Spreadsheet{}
}

func (e *Spreadsheet) Extract(ctx context.Context, fileName string, raw []byte) (string, error) {
	book, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return "", invalidFormat("extract spreadsheet", fmt.Errorf("open %s: %w", fileName, err))
	}
	defer book.Close()

	var sb strings.Builder
	for _, sheet := range book.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		rows, err := book.GetRows(sheet)
		if err != nil {
			return "", invalidFormat("extract spreadsheet", fmt.Errorf("read sheet %s: %w", sheet, err))
		}
		wrote := false
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, "\t"))
			if line == "" {
				continue
			}
			if !wrote {
				if sb.Len() > 0 {
					sb.WriteString("\n\n")
				}
				sb.WriteString(sheet)
				sb.WriteString("\n")
				wrote = true
			}
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	return strings.TrimSpace(sb.String()), nil
}
