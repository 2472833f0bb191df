package extractor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/onamfc/rag-chat/internal/core/domain"
)

func TestPlaintextTrimsWhitespace(t *testing.T) {
	text, err := NewPlaintext().Extract(context.Background(), "note.txt", []byte("  hello world\n\n"))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if text != "hello world" {
		t.Fatalf("text = %q", text)
	}
}

func TestPlaintextRejectsBinary(t *testing.T) {
	_, err := NewPlaintext().Extract(context.Background(), "blob.bin", []byte{0xff, 0xfe, 0x00, 0x80})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestRouterFallsBackToPlaintext(t *testing.T) {
	router := NewRouter()
	for _, name := range []string{"readme.md", "notes.TXT", "noextension"} {
		text, err := router.Extract(context.Background(), name, []byte("content"))
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if text != "content" {
			t.Fatalf("%s: text = %q", name, text)
		}
	}
}

func TestRouterRejectsCorruptPDF(t *testing.T) {
	_, err := NewRouter().Extract(context.Background(), "broken.PDF", []byte("not a pdf"))
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestRouterRejectsCorruptSpreadsheet(t *testing.T) {
	_, err := NewRouter().Extract(context.Background(), "broken.xlsx", []byte("not a workbook"))
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestRouterHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRouter().Extract(ctx, "note.txt", []byte("content"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestInvalidFormatMessageNamesFile(t *testing.T) {
	err := invalidFormat("extract plaintext", errors.New("unsupported binary format: blob.bin"))
	if !strings.Contains(err.Error(), "blob.bin") {
		t.Fatalf("err = %v", err)
	}
}
