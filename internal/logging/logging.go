package logging

import (
	"io"
	"log/slog"
)

// New returns a JSON logger writing to w through the redacting handler.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(NewRedactingHandler(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})))
}

// NewFile returns a logger writing to a rotating file and the closer that
// releases it.
func NewFile(path string, level slog.Level) (*slog.Logger, io.Closer, error) {
	w, err := NewRotatingWriter(RotationConfig{File: path})
	if err != nil {
		return nil, nil, err
	}
	return New(w, level), w, nil
}
