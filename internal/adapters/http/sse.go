package httpadapter

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/onamfc/rag-chat/internal/core/domain"
)

// streamChatCompletions forwards the orchestrator's event stream as SSE
// chat.completion.chunk frames, ending with the [DONE] sentinel. Headers go
// out before the first delta, so a mid-stream failure can only end the
// stream, not change the status code.
func (rt *Router) streamChatCompletions(w http.ResponseWriter, r *http.Request, req domain.ChatRequest) {
	stream, err := rt.chat.Stream(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming is not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	created := stream.CreatedAt.Unix()
	emit := func(chunk ChatCompletionChunk) bool {
		payload, err := json.Marshal(chunk)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	// Role-opening chunk, the way OpenAI streams begin.
	emit(ChatCompletionChunk{
		ID:      stream.ID,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   stream.Model,
		Choices: []ChatCompletionChunkChoice{{Index: 0, Delta: ChatMessageDelta{Role: "assistant"}}},
	})

	for event := range stream.Events {
		if event.Err != nil {
			slog.Warn("chat stream aborted",
				"request_id", requestIDFromContext(r.Context()),
				"error", event.Err,
			)
			break
		}
		if event.FinishReason != "" {
			finish := event.FinishReason
			emit(ChatCompletionChunk{
				ID:      stream.ID,
				Object:  "chat.completion.chunk",
				Created: created,
				Model:   stream.Model,
				Choices: []ChatCompletionChunkChoice{{Index: 0, Delta: ChatMessageDelta{}, FinishReason: &finish}},
				Usage:   event.Usage,
			})
			if rt.metrics != nil && event.Usage != nil {
				rt.metrics.RecordTokenUsage(rt.cfg.ServiceName, "chat_stream", stream.Model, event.Usage.PromptTokens, event.Usage.CompletionTokens)
			}
			continue
		}
		if !emit(ChatCompletionChunk{
			ID:      stream.ID,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   stream.Model,
			Choices: []ChatCompletionChunkChoice{{Index: 0, Delta: ChatMessageDelta{Content: event.Delta}}},
		}) {
			break
		}
	}

	_, _ = io.WriteString(w, "data: [DONE]\n\n")
	flusher.Flush()
}
