package extractor

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDF extracts the text layer of a PDF page by page.
type PDF struct{}

func NewPDF() *PDF {
	return &PDF{}
}

func (e *PDF) Extract(ctx context.Context, fileName string, raw []byte) (text string, err error) {
	// The pdf library panics on some malformed font tables.
	defer func() {
		if r := recover(); r != nil {
			err = invalidFormat("extract pdf", fmt.Errorf("parse %s: %v", fileName, r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", invalidFormat("extract pdf", fmt.Errorf("parse %s: %w", fileName, err))
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			// Pages without a text layer are skipped, not fatal.
			continue
		}
		if content = strings.TrimSpace(content); content != "" {
			if sb.Len() > 0 {
				sb.WriteString("\n\n")
			}
			sb.WriteString(content)
		}
	}
	return sb.String(), nil
}
