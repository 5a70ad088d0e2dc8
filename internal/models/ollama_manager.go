package models

import (
	"context"

	"github.com/varsilias/chat-relay/internal/ollama"
)

type OllamaManager struct{ c *ollama.Client }

func NewOllamaManager(c *ollama.Client) *OllamaManager { return &OllamaManager{c: c} }

// List returns model names in the order the backend reports them.
func (m *OllamaManager) List(ctx context.Context) ([]string, error) {
	items, err := m.c.Tags(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		name := it.Name
		if name == "" {
			name = it.Model
		}
		if name == "" {
			continue
		}
		out = append(out, name)
	}
	return out, nil
}
