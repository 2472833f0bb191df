package httpadapter

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/onamfc/rag-chat/internal/core/domain"
)

func (rt *Router) chatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if len(req.Messages) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "messages are required"})
		return
	}

	// Context augmentation defaults to on; callers opt out explicitly.
	useContext := true
	if req.UseContext != nil {
		useContext = *req.UseContext
	}
	domainReq := domain.ChatRequest{
		Messages:       req.Messages,
		UseContext:     useContext,
		IncludeSources: req.IncludeSources,
		Temperature:    req.Temperature,
		MaxTokens:      req.MaxTokens,
	}

	if req.Stream {
		rt.streamChatCompletions(w, r, domainReq)
		return
	}

	start := time.Now()
	result, err := rt.chat.Complete(r.Context(), domainReq)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordRAGObservation(rt.cfg.ServiceName, "chat", len(result.Sources), time.Since(start))
		rt.metrics.RecordTokenUsage(rt.cfg.ServiceName, "chat", result.Model, result.Usage.PromptTokens, result.Usage.CompletionTokens)
	}

	writeJSON(w, http.StatusOK, ChatCompletionResponse{
		ID:      result.ID,
		Object:  "chat.completion",
		Created: result.CreatedAt.Unix(),
		Model:   result.Model,
		Choices: []ChatCompletionChoice{{
			Index:        0,
			Message:      result.Message,
			FinishReason: "stop",
		}},
		Usage:   result.Usage,
		Sources: result.Sources,
	})
}
