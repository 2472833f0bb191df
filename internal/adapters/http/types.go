package httpadapter

import (
	"encoding/json"
	"fmt"

	"github.com/onamfc/rag-chat/internal/core/domain"
)

// ChatCompletionRequest follows the OpenAI chat completions shape. Model is
// advisory: the server answers with its configured backend model either way.
type ChatCompletionRequest struct {
	Model          string           `json:"model,omitempty"`
	Messages       []domain.Message `json:"messages"`
	Stream         bool             `json:"stream,omitempty"`
	Temperature    *float64         `json:"temperature,omitempty"`
	MaxTokens      *int             `json:"max_tokens,omitempty"`
	UseContext     *bool            `json:"use_context,omitempty"`
	IncludeSources bool             `json:"include_sources,omitempty"`
}

type ChatCompletionChoice struct {
	Index        int            `json:"index"`
	Message      domain.Message `json:"message"`
	FinishReason string         `json:"finish_reason"`
}

type ChatCompletionResponse struct {
	ID      string                     `json:"id"`
	Object  string                     `json:"object"`
	Created int64                      `json:"created"`
	Model   string                     `json:"model"`
	Choices []ChatCompletionChoice     `json:"choices"`
	Usage   domain.Usage               `json:"usage"`
	Sources []domain.RetrievedFragment `json:"sources,omitempty"`
}

type ChatMessageDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

type ChatCompletionChunkChoice struct {
	Index        int              `json:"index"`
	Delta        ChatMessageDelta `json:"delta"`
	FinishReason *string          `json:"finish_reason"`
}

type ChatCompletionChunk struct {
	ID      string                      `json:"id"`
	Object  string                      `json:"object"`
	Created int64                       `json:"created"`
	Model   string                      `json:"model"`
	Choices []ChatCompletionChunkChoice `json:"choices"`
	Usage   *domain.Usage               `json:"usage,omitempty"`
}

type RetrieveRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

type RetrieveResponse struct {
	Fragments []domain.RetrievedFragment `json:"fragments"`
}

type DocumentListResponse struct {
	Documents []domain.Document `json:"documents"`
}

// EmbeddingsRequest accepts the OpenAI union input: a single string or a
// list of strings.
type EmbeddingsRequest struct {
	Model string          `json:"model,omitempty"`
	Input EmbeddingsInput `json:"input"`
}

type EmbeddingsInput []string

func (in *EmbeddingsInput) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*in = EmbeddingsInput{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("input must be a string or an array of strings")
	}
	*in = many
	return nil
}

type EmbeddingObject struct {
	Object    string    `json:"object"`
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type EmbeddingsResponse struct {
	Object string            `json:"object"`
	Model  string            `json:"model"`
	Data   []EmbeddingObject `json:"data"`
}

type ToolListResponse struct {
	Tools []domain.Tool `json:"tools"`
}

type ToolCallRequest struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

type ToolCallResponse struct {
	Name   string          `json:"name"`
	Result json.RawMessage `json:"result"`
}
