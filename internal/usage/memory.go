package usage

import (
	"context"
	"errors"
	"sync"

	"github.com/varsilias/chat-relay/pkg/types"
)

type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Totals
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]Totals)}
}

func (s *MemoryStore) Record(_ context.Context, model string, u types.Usage) error {
	if model == "" {
		return errors.New("empty model")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.data[model]
	t.add(u)
	s.data[model] = t
	return nil
}

func (s *MemoryStore) Totals(context.Context) (map[string]Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Totals, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out, nil
}
