package utils

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Result is the envelope of every successful list response.
type Result[T any] struct {
	Result []T `json:"result"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write JSON", "error", err)
	}
}

// WriteResult writes items as {"result": [...]} with status 200. A nil slice
// is written as an empty array.
func WriteResult[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	WriteJSON(w, http.StatusOK, Result[T]{Result: items})
}

func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]any{
		"error":   http.StatusText(status),
		"message": msg,
	})
}
