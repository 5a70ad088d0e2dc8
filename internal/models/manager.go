package models

import (
	"context"
	"errors"
	"log/slog"

	"github.com/varsilias/chat-relay/internal/ollama"
)

type Manager interface {
	List(ctx context.Context) ([]string, error)
}

// ListOrEmpty never fails: backend errors are logged with their class and
// become an empty list.
func ListOrEmpty(ctx context.Context, m Manager, log *slog.Logger) []string {
	names, err := m.List(ctx)
	if err != nil {
		log.Warn("list models failed", "class", Classify(err), "err", err)
		return []string{}
	}
	if names == nil {
		return []string{}
	}
	return names
}

// Classify names the backend error class for logs.
func Classify(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ollama.ErrUnavailable):
		return "connection"
	case errors.Is(err, ollama.ErrProtocol):
		return "protocol"
	default:
		return "unknown"
	}
}
