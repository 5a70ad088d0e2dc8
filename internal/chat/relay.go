package chat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/varsilias/chat-relay/internal/models"
	"github.com/varsilias/chat-relay/internal/usage"
	"github.com/varsilias/chat-relay/pkg/types"
)

var errIncomplete = errors.New("backend stream ended without completion")

// Emit delivers one record to the caller. A non-nil error means the caller
// is gone.
type Emit func(types.Chunk) error

type Relay struct {
	log          *slog.Logger
	eng          Engine
	usage        usage.Store
	defaultModel string
	timeout      time.Duration
}

type Option func(*Relay)

// WithUsage records token counts of completed streams into s.
func WithUsage(s usage.Store) Option { return func(r *Relay) { r.usage = s } }

// WithTimeout bounds each backend call. Zero means no bound.
func WithTimeout(d time.Duration) Option { return func(r *Relay) { r.timeout = d } }

func NewRelay(log *slog.Logger, eng Engine, defaultModel string, opts ...Option) *Relay {
	r := &Relay{log: log, eng: eng, defaultModel: defaultModel}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Relay) DefaultModel() string { return r.defaultModel }

// Stream relays one chat completion. Content records go out in generation
// order; the usage record, when the backend completes, is always last.
// Backend failures are reported in-band as a final "Error: ..." content
// record and Stream returns nil. The returned error is non-nil only when the
// caller went away, in which case the backend stream has been abandoned.
func (r *Relay) Stream(ctx context.Context, req types.ChatRequest, emit Emit) error {
	model := req.Model
	if model == "" {
		model = r.defaultModel
	}

	bctx, cancel := ctx, context.CancelFunc(func() {})
	if r.timeout > 0 {
		bctx, cancel = context.WithTimeout(ctx, r.timeout)
	}
	defer cancel()

	var (
		start   = time.Now()
		chunks  int
		final   *types.Usage
		emitErr error
	)
	err := r.eng.ChatStream(bctx, model, req.Messages, func(d Delta) error {
		if d.Content != "" {
			if emitErr = emit(types.ContentChunk(d.Content)); emitErr != nil {
				return emitErr
			}
			chunks++
		}
		if d.Done {
			u := d.Usage
			final = &u
			if emitErr = emit(types.UsageChunk(u)); emitErr != nil {
				return emitErr
			}
		}
		return nil
	})

	if err == nil && final == nil && emitErr == nil {
		err = errIncomplete
	}

	switch {
	case emitErr != nil:
		r.log.Info("client went away mid-stream", "model", model, "chunks", chunks, "err", emitErr)
		return emitErr
	case err != nil && ctx.Err() != nil:
		r.log.Info("chat canceled by client", "model", model, "chunks", chunks)
		return ctx.Err()
	case err != nil:
		r.log.Warn("backend stream failed", "model", model, "class", models.Classify(err), "chunks", chunks, "err", err)
		return emit(types.ContentChunk("Error: " + err.Error()))
	}

	r.log.Info("chat relayed",
		"model", model,
		"chunks", chunks,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_eval_count", final.PromptEvalCount,
		"eval_count", final.EvalCount,
	)
	if r.usage != nil {
		if err := r.usage.Record(ctx, model, *final); err != nil {
			r.log.Error("record usage", "model", model, "err", err)
		}
	}
	return nil
}
