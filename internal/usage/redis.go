package usage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/varsilias/chat-relay/pkg/types"
)

const (
	keyPrefix = "chat-relay:usage:"
	modelsKey = keyPrefix + "models"
)

// RedisStore keeps one hash per model plus a set of model names, so totals
// survive restarts and are shared between replicas.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(redisURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

func (s *RedisStore) Record(ctx context.Context, model string, u types.Usage) error {
	if model == "" {
		return errors.New("empty model")
	}
	key := keyPrefix + "model:" + model
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, modelsKey, model)
		p.HIncrBy(ctx, key, "prompt_eval_count", int64(u.PromptEvalCount))
		p.HIncrBy(ctx, key, "eval_count", int64(u.EvalCount))
		p.HIncrBy(ctx, key, "requests", 1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

func (s *RedisStore) Totals(ctx context.Context) (map[string]Totals, error) {
	models, err := s.rdb.SMembers(ctx, modelsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list usage models: %w", err)
	}
	out := make(map[string]Totals, len(models))
	if len(models) == 0 {
		return out, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(models))
	_, err = s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, m := range models {
			cmds[i] = p.HGetAll(ctx, keyPrefix+"model:"+m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read usage: %w", err)
	}
	for i, m := range models {
		h := cmds[i].Val()
		out[m] = Totals{
			PromptEvalCount: parseInt(h["prompt_eval_count"]),
			EvalCount:       parseInt(h["eval_count"]),
			Requests:        parseInt(h["requests"]),
		}
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func parseInt(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
