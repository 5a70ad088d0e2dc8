// Package usage accumulates token counts reported at the end of chat streams.
package usage

import (
	"context"

	"github.com/varsilias/chat-relay/pkg/types"
)

type Totals struct {
	PromptEvalCount int64 `json:"prompt_eval_count"`
	EvalCount       int64 `json:"eval_count"`
	Requests        int64 `json:"requests"`
}

func (t *Totals) add(u types.Usage) {
	t.PromptEvalCount += int64(u.PromptEvalCount)
	t.EvalCount += int64(u.EvalCount)
	t.Requests++
}

type Store interface {
	Record(ctx context.Context, model string, u types.Usage) error
	Totals(ctx context.Context) (map[string]Totals, error)
}
