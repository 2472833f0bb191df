package httpadapter

import (
	"encoding/json"
	"net/http"
)

func (rt *Router) embeddings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req EmbeddingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json: " + err.Error()})
		return
	}
	if len(req.Input) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "input is required"})
		return
	}

	vectors, err := rt.embedder.Embed(r.Context(), req.Input)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	data := make([]EmbeddingObject, 0, len(vectors))
	for i, vector := range vectors {
		data = append(data, EmbeddingObject{
			Object:    "embedding",
			Index:     i,
			Embedding: vector,
		})
	}
	writeJSON(w, http.StatusOK, EmbeddingsResponse{
		Object: "list",
		Model:  req.Model,
		Data:   data,
	})
}
