package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/onamfc/rag-chat/internal/core/domain"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func TestChatSendsMessagesAndOptions(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"hi there"},"done":true,"prompt_eval_count":12,"eval_count":3}`))
	}))
	defer server.Close()

	client := New(server.URL, "chat-model", "embed-model", nil)
	msg, usage, err := client.Chat(context.Background(),
		[]domain.Message{{Role: domain.RoleUser, Content: "hello"}},
		domain.ChatOptions{Temperature: floatPtr(0.2), MaxTokens: intPtr(64)},
	)
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if msg.Role != domain.RoleAssistant || msg.Content != "hi there" {
		t.Fatalf("message = %+v", msg)
	}
	if usage.PromptTokens != 12 || usage.CompletionTokens != 3 || usage.TotalTokens != 15 {
		t.Fatalf("usage = %+v", usage)
	}

	if captured["model"] != "chat-model" {
		t.Fatalf("model = %v", captured["model"])
	}
	if captured["stream"] != false {
		t.Fatalf("stream = %v", captured["stream"])
	}
	options, _ := captured["options"].(map[string]any)
	if options["temperature"] != 0.2 || options["num_predict"] != float64(64) {
		t.Fatalf("options = %v", options)
	}
}

func TestStreamChatDeliversDeltasAndFinalUsage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lines := []string{
			`{"message":{"content":"Hel"},"done":false}`,
			`{"message":{"content":"lo"},"done":false}`,
			`{"message":{"content":""},"done":true,"prompt_eval_count":5,"eval_count":2}`,
		}
		for _, line := range lines {
			_, _ = w.Write([]byte(line + "\n"))
		}
	}))
	defer server.Close()

	client := New(server.URL, "chat-model", "embed-model", nil)
	deltas, err := client.StreamChat(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "hello"}}, domain.ChatOptions{})
	if err != nil {
		t.Fatalf("StreamChat() error = %v", err)
	}

	var content strings.Builder
	var usage *domain.Usage
	for delta := range deltas {
		if delta.Err != nil {
			t.Fatalf("delta error: %v", delta.Err)
		}
		content.WriteString(delta.Content)
		if delta.Usage != nil {
			usage = delta.Usage
		}
	}
	if content.String() != "Hello" {
		t.Fatalf("content = %q", content.String())
	}
	if usage == nil || usage.TotalTokens != 7 {
		t.Fatalf("usage = %+v", usage)
	}
}

func TestChatServerErrorIsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(server.URL, "chat-model", "embed-model", nil)
	_, _, err := client.Chat(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "hello"}}, domain.ChatOptions{})
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("err = %v, want ErrTemporary", err)
	}
	if !strings.Contains(err.Error(), "model loading") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}

func TestChatClientErrorIsProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown model", http.StatusNotFound)
	}))
	defer server.Close()

	client := New(server.URL, "chat-model", "embed-model", nil)
	_, _, err := client.Chat(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "hello"}}, domain.ChatOptions{})
	if !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("err = %v, want ErrProvider", err)
	}
}

func TestEmbedCountMismatchRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2]]}`))
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "chat-model", "embed-model", nil))
	_, err := embedder.Embed(context.Background(), []string{"a", "b"})
	if !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("err = %v, want ErrProvider", err)
	}
}

func TestEmbedQueryReturnsFirstVector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[0.5,0.25]]}`))
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "chat-model", "embed-model", nil))
	vec, err := embedder.EmbedQuery(context.Background(), "query")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if len(vec) != 2 || vec[0] != 0.5 {
		t.Fatalf("vec = %v", vec)
	}
}
