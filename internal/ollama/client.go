package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/varsilias/chat-relay/pkg/types"
)

var (
	// ErrUnavailable marks transport failures: refused connections, resets,
	// timeouts, broken reads.
	ErrUnavailable = errors.New("ollama unavailable")
	// ErrProtocol marks responses that arrived but could not be used: error
	// statuses, malformed JSON, in-stream errors, truncated streams.
	ErrProtocol = errors.New("ollama protocol error")
)

const maxLineSize = 4 << 20

type Client struct {
	baseURL string
	log     *slog.Logger
	client  *http.Client
	// stream has no overall timeout; chat streams are bounded by the
	// caller's context instead.
	stream *http.Client
}

type TagModel struct {
	Name       string    `json:"name"`
	Model      string    `json:"model"`
	Digest     string    `json:"digest"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
	Details    any       `json:"details"`
}

type ChatRequest struct {
	Model    string          `json:"model"`
	Messages []types.Message `json:"messages"`
	Stream   bool            `json:"stream"`
}

// ChatResponse is one NDJSON line of a streaming /api/chat response.
type ChatResponse struct {
	Model           string        `json:"model"`
	CreatedAt       time.Time     `json:"created_at"`
	Message         types.Message `json:"message"`
	Done            bool          `json:"done"`
	DoneReason      string        `json:"done_reason,omitempty"`
	PromptEvalCount int           `json:"prompt_eval_count,omitempty"`
	EvalCount       int           `json:"eval_count,omitempty"`
	TotalDuration   int64         `json:"total_duration,omitempty"`
	Error           string        `json:"error,omitempty"`
}

func NewClient(baseURL string, log *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log,
		client:  &http.Client{Timeout: 30 * time.Second},
		stream:  &http.Client{Timeout: 0},
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/version", nil)
	if err != nil {
		return err
	}
	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer res.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	c.log.Debug("ping response", "status", res.StatusCode, "response", string(data))
	if res.StatusCode >= 400 {
		return fmt.Errorf("%w: ping status %d", ErrProtocol, res.StatusCode)
	}
	return nil
}

// Tags lists local models via GET /api/tags.
func (c *Client) Tags(ctx context.Context) ([]TagModel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		return nil, statusError("tags", res)
	}
	var out struct {
		Models []TagModel `json:"models"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode tags: %w", ErrProtocol, err)
	}
	return out.Models, nil
}

// Chat opens a streaming POST /api/chat and calls fn for every chunk in the
// order received. It returns after the chunk with done=true, or at the first
// error. An error returned by fn is passed back unwrapped. The response body
// is closed on every path.
func (c *Client) Chat(ctx context.Context, in ChatRequest, fn func(ChatResponse) error) error {
	in.Stream = true
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")

	c.log.Debug("ollama chat", "model", in.Model, "messages", len(in.Messages))
	res, err := c.stream.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		return statusError("chat", res)
	}

	sc := bufio.NewScanner(res.Body)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ChatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return fmt.Errorf("%w: decode chunk: %w", ErrProtocol, err)
		}
		if chunk.Error != "" {
			return fmt.Errorf("%w: %s", ErrProtocol, chunk.Error)
		}
		if err := fn(chunk); err != nil {
			return err
		}
		if chunk.Done {
			return nil
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, ctxErr)
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return fmt.Errorf("%w: chunk exceeds %d bytes", ErrProtocol, maxLineSize)
		}
		return fmt.Errorf("%w: read stream: %w", ErrUnavailable, err)
	}
	return fmt.Errorf("%w: stream ended before completion", ErrProtocol)
}

// WaitReady polls until the API answers and every named model is present,
// or ctx is done.
func (c *Client) WaitReady(ctx context.Context, models []string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	check := func() error {
		if err := c.Ping(ctx); err != nil {
			return err
		}
		if len(models) == 0 {
			return nil // only API readiness required
		}
		tags, err := c.Tags(ctx)
		if err != nil {
			return fmt.Errorf("list tags: %w", err)
		}
		have := map[string]struct{}{}
		for _, t := range tags {
			have[t.Name] = struct{}{}
			have[t.Model] = struct{}{}
		}
		for _, m := range models {
			if _, ok := have[m]; !ok {
				return fmt.Errorf("model not present yet: %s", m)
			}
		}
		return nil
	}

	// do an immediate attempt first
	err := check()
	for err != nil {
		c.log.Debug("ollama not ready", "err", err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w (last: %v)", ctx.Err(), err)
		case <-ticker.C:
			err = check()
		}
	}
	return nil
}

func statusError(op string, res *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	var e struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		msg = e.Error
	}
	if msg == "" {
		msg = res.Status
	}
	return fmt.Errorf("%w: %s: status %d: %s", ErrProtocol, op, res.StatusCode, msg)
}
