package usage

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/varsilias/chat-relay/pkg/types"
)

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStores(t *testing.T) {
	stores := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"redis":  func(t *testing.T) Store { return newRedisStore(t) },
	}

	for name, mk := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := mk(t)

			empty, err := s.Totals(ctx)
			if err != nil {
				t.Fatalf("Totals: %v", err)
			}
			if len(empty) != 0 {
				t.Fatalf("expected no totals, got %v", empty)
			}

			records := []struct {
				model string
				u     types.Usage
			}{
				{"qwen2.5:32b", types.Usage{PromptEvalCount: 10, EvalCount: 20}},
				{"qwen2.5:32b", types.Usage{PromptEvalCount: 1, EvalCount: 2}},
				{"llama3.2", types.Usage{}},
			}
			for _, r := range records {
				if err := s.Record(ctx, r.model, r.u); err != nil {
					t.Fatalf("Record: %v", err)
				}
			}

			got, err := s.Totals(ctx)
			if err != nil {
				t.Fatalf("Totals: %v", err)
			}
			if want := (Totals{PromptEvalCount: 11, EvalCount: 22, Requests: 2}); got["qwen2.5:32b"] != want {
				t.Errorf("expected %+v, got %+v", want, got["qwen2.5:32b"])
			}
			if want := (Totals{Requests: 1}); got["llama3.2"] != want {
				t.Errorf("expected %+v, got %+v", want, got["llama3.2"])
			}

			if err := s.Record(ctx, "", types.Usage{}); err == nil {
				t.Errorf("expected an error for an empty model")
			}
		})
	}
}

func TestMemoryStore_Concurrent(t *testing.T) {
	s := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Record(context.Background(), "m", types.Usage{PromptEvalCount: 1, EvalCount: 1})
		}()
	}
	wg.Wait()

	got, _ := s.Totals(context.Background())
	if got["m"].Requests != 50 || got["m"].EvalCount != 50 {
		t.Errorf("unexpected totals %+v", got["m"])
	}
}

func TestNewRedisStore_BadURL(t *testing.T) {
	if _, err := NewRedisStore("not a url"); err == nil {
		t.Errorf("expected an error")
	}
}
