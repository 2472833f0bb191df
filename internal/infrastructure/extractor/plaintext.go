package extractor

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Plaintext accepts any UTF-8 payload as-is. Binary content is rejected
// rather than indexed as garbage.
type Plaintext struct{}

func NewPlaintext() *Plaintext {
	return &Plaintext{}
}

func (e *Plaintext) Extract(_ context.Context, fileName string, raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		return "", invalidFormat("extract plaintext", fmt.Errorf("unsupported binary format: %s", fileName))
	}
	return strings.TrimSpace(string(raw)), nil
}
