package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
)

func (rt *Router) listTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if rt.tools == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no tool servers configured"})
		return
	}
	writeJSON(w, http.StatusOK, ToolListResponse{Tools: rt.tools.Tools()})
}

func (rt *Router) callTool(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if rt.tools == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no tool servers configured"})
		return
	}

	var req ToolCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	result, err := rt.tools.CallTool(r.Context(), req.Name, req.Arguments)
	if err != nil {
		if rt.metrics != nil {
			rt.metrics.RecordToolCall(rt.cfg.ServiceName, req.Name, "error")
		}
		writeDomainError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordToolCall(rt.cfg.ServiceName, req.Name, "ok")
	}
	writeJSON(w, http.StatusOK, ToolCallResponse{Name: req.Name, Result: result})
}
