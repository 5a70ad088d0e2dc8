package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/varsilias/chat-relay/internal/logging"
	"github.com/varsilias/chat-relay/pkg/types"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", logging.Discard())
}

// deadURL returns the address of a server that has already been shut down.
func deadURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

func TestTags(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"models":[{"name":"qwen2.5:32b","model":"qwen2.5:32b"},{"name":"llama3.2:latest","model":"llama3.2:latest"}]}`)
	}))

	tags, err := c.Tags(context.Background())
	if err != nil {
		t.Fatalf("Tags: %v", err)
	}
	if len(tags) != 2 || tags[0].Name != "qwen2.5:32b" || tags[1].Name != "llama3.2:latest" {
		t.Fatalf("unexpected tags %+v", tags)
	}
}

func TestTags_ErrorClassification(t *testing.T) {
	t.Run("unreachable", func(t *testing.T) {
		c := NewClient(deadURL(t), logging.Discard())
		_, err := c.Tags(context.Background())
		if !errors.Is(err, ErrUnavailable) {
			t.Fatalf("expected ErrUnavailable, got %v", err)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"models":`)
		}))
		_, err := c.Tags(context.Background())
		if !errors.Is(err, ErrProtocol) {
			t.Fatalf("expected ErrProtocol, got %v", err)
		}
	})

	t.Run("status", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
		}))
		_, err := c.Tags(context.Background())
		if !errors.Is(err, ErrProtocol) || !strings.Contains(err.Error(), "boom") {
			t.Fatalf("expected ErrProtocol mentioning boom, got %v", err)
		}
	})
}

func TestChat_StreamsChunksInOrder(t *testing.T) {
	var got ChatRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"model":"m","message":{"role":"assistant","content":"Hel"},"done":false}`)
		fmt.Fprintln(w, ``)
		fmt.Fprintln(w, `{"model":"m","message":{"role":"assistant","content":"lo"},"done":false}`)
		fmt.Fprintln(w, `{"model":"m","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop","prompt_eval_count":11,"eval_count":2}`)
		fmt.Fprintln(w, `{"model":"m","message":{"role":"assistant","content":"ignored"},"done":false}`)
	}))

	var chunks []ChatResponse
	err := c.Chat(context.Background(), ChatRequest{
		Model:    "m",
		Messages: []types.Message{{Role: types.RoleUser, Content: "Hello"}},
	}, func(r ChatResponse) error {
		chunks = append(chunks, r)
		return nil
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if !got.Stream || got.Model != "m" || len(got.Messages) != 1 || got.Messages[0].Content != "Hello" {
		t.Errorf("unexpected upstream request %+v", got)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[0].Message.Content != "Hel" || chunks[1].Message.Content != "lo" {
		t.Errorf("unexpected content order %q %q", chunks[0].Message.Content, chunks[1].Message.Content)
	}
	last := chunks[2]
	if !last.Done || last.PromptEvalCount != 11 || last.EvalCount != 2 {
		t.Errorf("unexpected final chunk %+v", last)
	}
}

func TestChat_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
		wantMsg string
	}{
		{
			name: "model not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				fmt.Fprint(w, `{"error":"model \"nope\" not found, try pulling it first"}`)
			},
			want:    ErrProtocol,
			wantMsg: "not found",
		},
		{
			name: "malformed line",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprintln(w, `{"message":{"content":"a"},"done":false}`)
				fmt.Fprintln(w, `not json`)
			},
			want: ErrProtocol,
		},
		{
			name: "in-stream error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprintln(w, `{"error":"out of memory"}`)
			},
			want:    ErrProtocol,
			wantMsg: "out of memory",
		},
		{
			name: "truncated",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprintln(w, `{"message":{"content":"a"},"done":false}`)
			},
			want:    ErrProtocol,
			wantMsg: "before completion",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, tc.handler)
			err := c.Chat(context.Background(), ChatRequest{Model: "nope"}, func(ChatResponse) error { return nil })
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if tc.wantMsg != "" && !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("expected error to mention %q, got %v", tc.wantMsg, err)
			}
		})
	}
}

func TestChat_Unreachable(t *testing.T) {
	c := NewClient(deadURL(t), logging.Discard())
	err := c.Chat(context.Background(), ChatRequest{Model: "m"}, func(ChatResponse) error { return nil })
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestChat_CallbackErrorStopsStream(t *testing.T) {
	sent := make(chan struct{})
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"content":"a"},"done":false}`)
		w.(http.Flusher).Flush()
		close(sent)
		// Keep the stream open until the client goes away.
		<-r.Context().Done()
	}))

	stop := errors.New("client gone")
	calls := 0
	err := c.Chat(context.Background(), ChatRequest{Model: "m"}, func(ChatResponse) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 callback, got %d", calls)
	}
	<-sent
}

func TestChat_ContextCancelReleasesStream(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"content":"a"},"done":false}`)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Chat(ctx, ChatRequest{Model: "m"}, func(ChatResponse) error {
			cancel()
			return nil
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Chat did not return after cancel")
	}
}

func TestWaitReady(t *testing.T) {
	calls := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/version":
			fmt.Fprint(w, `{"version":"0.5.0"}`)
		case "/api/tags":
			calls++
			if calls < 2 {
				fmt.Fprint(w, `{"models":[]}`)
				return
			}
			fmt.Fprint(w, `{"models":[{"name":"qwen2.5:32b"}]}`)
		}
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.WaitReady(ctx, []string{"qwen2.5:32b"}, 10*time.Millisecond); err != nil {
		t.Fatalf("WaitReady: %v", err)
	}
	if calls < 2 {
		t.Errorf("expected at least 2 tag calls, got %d", calls)
	}
}

func TestWaitReady_Timeout(t *testing.T) {
	c := NewClient(deadURL(t), logging.Discard())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.WaitReady(ctx, nil, 10*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
