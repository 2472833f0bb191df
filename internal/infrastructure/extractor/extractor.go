// Package extractor turns uploaded document bytes into plain text.
package extractor

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/onamfc/rag-chat/internal/core/domain"
	"github.com/onamfc/rag-chat/internal/core/ports"
)

// Router dispatches extraction by file extension and falls back to the
// plaintext extractor for anything it does not recognize.
type Router struct {
	plaintext   ports.TextExtractor
	pdf         ports.TextExtractor
	spreadsheet ports.TextExtractor
}

func NewRouter() *Router {
	return &Router{
		plaintext:   NewPlaintext(),
		pdf:         NewPDF(),
		spreadsheet: NewSpreadsheet(),
	}
}

func (r *Router) Extract(ctx context.Context, fileName string, raw []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return r.pdf.Extract(ctx, fileName, raw)
	case ".xlsx", ".xlsm":
		return r.spreadsheet.Extract(ctx, fileName, raw)
	default:
		return r.plaintext.Extract(ctx, fileName, raw)
	}
}

var _ ports.TextExtractor = (*Router)(nil)

func invalidFormat(op string, err error) error {
	return domain.WrapError(domain.ErrInvalidInput, op, err)
}
