package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/onamfc/rag-chat/internal/core/domain"
	"github.com/onamfc/rag-chat/internal/core/ports"
)

// ChatService assembles retrieved context into the conversation and drives
// the generation backend, in batch or streaming mode. No retries happen at
// this layer; generation failures propagate to the caller as-is.
type ChatService struct {
	retriever ports.FragmentRetriever
	llm       ports.LLM
	model     string
	topK      int
}

func NewChatService(retriever ports.FragmentRetriever, llm ports.LLM, model string, topK int) *ChatService {
	return &ChatService{
		retriever: retriever,
		llm:       llm,
		model:     model,
		topK:      topK,
	}
}

// Complete runs the batch path: retrieve context, generate once, attach
// sources in retrieval order when requested.
func (s *ChatService) Complete(ctx context.Context, req domain.ChatRequest) (*domain.ChatResult, error) {
	if err := validateMessages(req.Messages); err != nil {
		return nil, err
	}

	fragments, messages, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	message, usage, err := s.llm.Chat(ctx, messages, domain.ChatOptions{
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("generate completion: %w", err)
	}

	result := &domain.ChatResult{
		ID:        newCompletionID(),
		CreatedAt: time.Now().UTC(),
		Model:     s.model,
		Message:   message,
		Usage:     usage,
	}
	if req.IncludeSources && len(fragments) > 0 {
		result.Sources = fragments
	}
	return result, nil
}

// Stream runs the streaming path. Deltas are forwarded in arrival order with
// no buffering beyond one event; the stream ends with a single terminal event
// carrying FinishReason "stop". Cancelling ctx stops the producer.
func (s *ChatService) Stream(ctx context.Context, req domain.ChatRequest) (*domain.ChatStream, error) {
	if err := validateMessages(req.Messages); err != nil {
		return nil, err
	}

	_, messages, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	deltas, err := s.llm.StreamChat(ctx, messages, domain.ChatOptions{
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("open completion stream: %w", err)
	}

	events := make(chan domain.StreamEvent)
	go func() {
		defer close(events)
		var usage *domain.Usage
		for delta := range deltas {
			if delta.Err != nil {
				select {
				case events <- domain.StreamEvent{Err: delta.Err}:
				case <-ctx.Done():
				}
				return
			}
			if delta.Usage != nil {
				usage = delta.Usage
			}
			if delta.Content == "" {
				continue
			}
			select {
			case events <- domain.StreamEvent{Delta: delta.Content}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case events <- domain.StreamEvent{FinishReason: "stop", Usage: usage}:
		case <-ctx.Done():
		}
	}()

	return &domain.ChatStream{
		ID:        newCompletionID(),
		CreatedAt: time.Now().UTC(),
		Model:     s.model,
		Events:    events,
	}, nil
}

// prepare runs the context stage: the last user message is the retrieval
// query, and matching fragments are folded into one system message prefixed
// to the conversation. No fragments means no injection, not an error.
func (s *ChatService) prepare(ctx context.Context, req domain.ChatRequest) ([]domain.RetrievedFragment, []domain.Message, error) {
	if !req.UseContext {
		return nil, req.Messages, nil
	}

	query, ok := lastUserContent(req.Messages)
	if !ok {
		return nil, req.Messages, nil
	}

	fragments, err := s.retriever.Retrieve(ctx, query, s.topK)
	if err != nil {
		return nil, nil, fmt.Errorf("retrieve context: %w", err)
	}
	if len(fragments) == 0 {
		slog.Info("no context retrieved", "query_len", len(query))
		return nil, req.Messages, nil
	}

	messages := make([]domain.Message, 0, len(req.Messages)+1)
	messages = append(messages, domain.Message{
		Role:    domain.RoleSystem,
		Content: buildContextPrompt(fragments),
	})
	messages = append(messages, req.Messages...)

	slog.Info("context injected", "fragments", len(fragments))
	return fragments, messages, nil
}

func buildContextPrompt(fragments []domain.RetrievedFragment) string {
	var b strings.Builder
	b.WriteString("Use the following context to answer the user's question:\n")
	for _, fragment := range fragments {
		b.WriteString("\n[Source: ")
		b.WriteString(fragment.Metadata.FileName)
		b.WriteString("]\n")
		b.WriteString(fragment.Text)
		b.WriteString("\n")
	}
	return b.String()
}

func lastUserContent(messages []domain.Message) (string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == domain.RoleUser && strings.TrimSpace(messages[i].Content) != "" {
			return messages[i].Content, true
		}
	}
	return "", false
}

func validateMessages(messages []domain.Message) error {
	if len(messages) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "chat", errors.New("messages are required"))
	}
	for _, m := range messages {
		if !m.Role.Valid() {
			return domain.WrapError(domain.ErrInvalidInput, "chat", fmt.Errorf("unknown role %q", m.Role))
		}
	}
	return nil
}

func newCompletionID() string {
	return "chatcmpl-" + uuid.NewString()
}
