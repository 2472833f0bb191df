// Package ollama backs the LLM and Embedder ports with a local Ollama
// server over its REST API.
package ollama

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/onamfc/rag-chat/internal/core/domain"
	"github.com/onamfc/rag-chat/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	chatModel  string
	embedModel string
	httpClient *http.Client
	exec       *resilience.Executor
}

// New builds a client for the given base URL. exec may be nil, in which
// case calls go straight through without breaker protection.
func New(baseURL, chatModel, embedModel string, exec *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		chatModel:  chatModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		exec:       exec,
	}
}

func (c *Client) Model() string { return c.chatModel }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Message         chatMessage `json:"message"`
	Done            bool        `json:"done"`
	DoneReason      string      `json:"done_reason"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

func (c *Client) Chat(ctx context.Context, messages []domain.Message, opts domain.ChatOptions) (domain.Message, domain.Usage, error) {
	payload := c.chatPayload(messages, opts, false)

	var response chatResponse
	err := c.execute(ctx, "ollama.chat", func(ctx context.Context) error {
		return c.postJSON(ctx, "/api/chat", payload, &response, "chat")
	})
	if err != nil {
		return domain.Message{}, domain.Usage{}, err
	}

	msg := domain.Message{Role: domain.RoleAssistant, Content: response.Message.Content}
	return msg, usageFrom(response), nil
}

// StreamChat starts a streaming completion. Deltas arrive as NDJSON lines;
// the final line carries the token counts. The returned channel is closed
// after the final delta.
func (c *Client) StreamChat(ctx context.Context, messages []domain.Message, opts domain.ChatOptions) (<-chan domain.StreamDelta, error) {
	payload := c.chatPayload(messages, opts, true)

	body, err := c.postStream(ctx, "/api/chat", payload, "chat")
	if err != nil {
		return nil, toDomainError("ollama.chat", err)
	}

	deltas := make(chan domain.StreamDelta)
	go func() {
		defer close(deltas)
		defer body.Close()

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var part chatResponse
			if err := json.Unmarshal([]byte(line), &part); err != nil {
				emit(ctx, deltas, domain.StreamDelta{Err: domain.WrapError(domain.ErrProvider, "ollama.chat", fmt.Errorf("decode stream line: %w", err))})
				return
			}
			if part.Message.Content != "" {
				if !emit(ctx, deltas, domain.StreamDelta{Content: part.Message.Content}) {
					return
				}
			}
			if part.Done {
				usage := usageFrom(part)
				emit(ctx, deltas, domain.StreamDelta{Usage: &usage})
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			emit(ctx, deltas, domain.StreamDelta{Err: toDomainError("ollama.chat", err)})
		}
	}()
	return deltas, nil
}

func (c *Client) chatPayload(messages []domain.Message, opts domain.ChatOptions, stream bool) map[string]any {
	msgs := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	payload := map[string]any{
		"model":    c.chatModel,
		"messages": msgs,
		"stream":   stream,
	}
	options := map[string]any{}
	if opts.Temperature != nil {
		options["temperature"] = *opts.Temperature
	}
	if opts.MaxTokens != nil {
		options["num_predict"] = *opts.MaxTokens
	}
	if len(options) > 0 {
		payload["options"] = options
	}
	return payload
}

func (c *Client) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	var err error
	if c.exec != nil {
		err = c.exec.Execute(ctx, operation, fn, classifyOllamaError)
	} else {
		err = fn(ctx)
	}
	return toDomainError(operation, err)
}

// usageFrom reports token counts only when the backend supplied them.
func usageFrom(resp chatResponse) domain.Usage {
	usage := domain.Usage{
		PromptTokens:     resp.PromptEvalCount,
		CompletionTokens: resp.EvalCount,
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	return usage
}

func emit(ctx context.Context, out chan<- domain.StreamDelta, delta domain.StreamDelta) bool {
	select {
	case out <- delta:
		return true
	case <-ctx.Done():
		return false
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	payload := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}
	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	err := e.client.execute(ctx, "ollama.embed", func(ctx context.Context) error {
		return e.client.postJSON(ctx, "/api/embed", payload, &response, "embed")
	})
	if err != nil {
		return nil, err
	}
	if len(response.Embeddings) != len(texts) {
		return nil, domain.WrapError(domain.ErrProvider, "ollama.embed",
			fmt.Errorf("expected %d embeddings, got %d", len(texts), len(response.Embeddings)))
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, domain.WrapError(domain.ErrProvider, "ollama.embed", fmt.Errorf("empty embedding result"))
	}
	return vectors[0], nil
}
