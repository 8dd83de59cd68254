package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"yqhp/perf-gate/internal/config"
	"yqhp/perf-gate/pkg/types"
)

// NewRedisClient creates a client from cfg.
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// RedisStore keeps one hash per run: field = worker id, value = the JSON set.
type RedisStore struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

// NewRedisStore creates a store writing to the hash <prefix>:<runID>:workers.
// A ttl of zero keeps the hash until it is deleted.
func NewRedisStore(client redis.Cmdable, prefix, runID string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		key:    WorkersKey(prefix, runID),
		ttl:    ttl,
	}
}

// WorkersKey returns the hash key of a run.
func WorkersKey(prefix, runID string) string {
	return fmt.Sprintf("%s:%s:workers", prefix, runID)
}

// Publish stores the set with HSETNX so a second publish for the same
// worker cannot overwrite the first.
func (s *RedisStore) Publish(ctx context.Context, set *types.ThreadCounterSet) error {
	data, err := encode(set)
	if err != nil {
		return err
	}
	ok, err := s.client.HSetNX(ctx, s.key, set.WorkerID, string(data)).Result()
	if err != nil {
		return fmt.Errorf("hsetnx %s %s: %w", s.key, set.WorkerID, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", set.WorkerID, ErrDuplicateWorker)
	}
	if s.ttl > 0 {
		if err := s.client.Expire(ctx, s.key, s.ttl).Err(); err != nil {
			return fmt.Errorf("expire %s: %w", s.key, err)
		}
	}
	return nil
}

// Collect reads the whole hash.
func (s *RedisStore) Collect(ctx context.Context) ([]*types.ThreadCounterSet, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", s.key, err)
	}
	out := make([]*types.ThreadCounterSet, 0, len(fields))
	for id, data := range fields {
		set, err := decode([]byte(data))
		if err != nil {
			return nil, fmt.Errorf("worker %s: %w", id, err)
		}
		out = append(out, set)
	}
	sortByWorker(out)
	return out, nil
}
