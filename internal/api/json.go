package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

const contentTypeJSON = "application/json; charset=utf-8"

// errorResponse is the body of every JSON error reply.
type errorResponse struct {
	Error string `json:"error"`
}

func errorBody(msg string) errorResponse {
	return errorResponse{Error: msg}
}

// writeJSON replies with v and status. A value that cannot be encoded is
// reported to the client as a 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("api: encode response",
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
		status = http.StatusInternalServerError
		body, _ = json.Marshal(errorBody("internal error"))
	}
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
