package utils

import (
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteJSON encodes v before touching w, so an unencodable value becomes a
// 500 rather than a truncated body.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode JSON", "error", err)
		status = http.StatusInternalServerError
		body, _ = json.Marshal(ErrorBody{Error: http.StatusText(status), Message: "failed to encode response"})
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		slog.Error("failed to write JSON", "error", err)
	}
}

func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorBody{
		Error:   http.StatusText(status),
		Message: msg,
	})
}
