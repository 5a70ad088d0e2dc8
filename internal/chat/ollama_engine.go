package chat

import (
	"context"

	"github.com/varsilias/chat-relay/internal/ollama"
	"github.com/varsilias/chat-relay/pkg/types"
)

type OllamaEngine struct {
	c *ollama.Client
}

func NewOllamaEngine(c *ollama.Client) *OllamaEngine {
	return &OllamaEngine{
		c: c,
	}
}

func (e *OllamaEngine) ChatStream(ctx context.Context, model string, msgs []types.Message, fn func(Delta) error) error {
	req := ollama.ChatRequest{Model: model, Messages: msgs}
	return e.c.Chat(ctx, req, func(r ollama.ChatResponse) error {
		return fn(Delta{
			Content: r.Message.Content,
			Done:    r.Done,
			Usage:   types.Usage{PromptEvalCount: r.PromptEvalCount, EvalCount: r.EvalCount},
		})
	})
}
