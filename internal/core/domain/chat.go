package domain

import (
	"encoding/json"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatOptions are per-call generation overrides. Nil fields fall back to the
// backend's configured defaults.
type ChatOptions struct {
	Temperature *float64
	MaxTokens   *int
}

type ChatRequest struct {
	Messages       []Message
	UseContext     bool
	IncludeSources bool
	Temperature    *float64
	MaxTokens      *int
}

// Usage is reported only when the backend exposes real token counts;
// otherwise all fields stay zero.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ChatResult struct {
	ID        string              `json:"id"`
	CreatedAt time.Time           `json:"created_at"`
	Model     string              `json:"model"`
	Message   Message             `json:"message"`
	Usage     Usage               `json:"usage"`
	Sources   []RetrievedFragment `json:"sources,omitempty"`
}

// StreamDelta is one increment produced by a streaming generation backend.
// A non-nil Usage marks the backend's final increment.
type StreamDelta struct {
	Content string
	Usage   *Usage
	Err     error
}

// StreamEvent is one increment forwarded to a chat caller. Exactly one event
// per stream carries FinishReason "stop" (with empty Delta), after which the
// channel is closed.
type StreamEvent struct {
	Delta        string
	FinishReason string
	Usage        *Usage
	Err          error
}

type ChatStream struct {
	ID        string
	CreatedAt time.Time
	Model     string
	Events    <-chan StreamEvent
}

// Tool describes one callable tool advertised by an external tool server.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}
