package chat

import (
	"context"

	"github.com/varsilias/chat-relay/pkg/types"
)

// Delta is one incremental unit from the backend. Usage is meaningful only
// when Done is set.
type Delta struct {
	Content string
	Done    bool
	Usage   types.Usage
}

// Engine streams one chat completion for the full message history, calling
// fn for each delta in generation order. If fn returns an error the engine
// stops and returns it. Implementations must release the upstream stream
// before returning.
type Engine interface {
	ChatStream(ctx context.Context, model string, msgs []types.Message, fn func(Delta) error) error
}
