// Package redis provides a ThreadStore backed by Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smallnest/adaptiverag/store"
)

// ThreadStore implements store.ThreadStore using Redis. Each thread is a
// JSON value; a set indexes the known ids.
type ThreadStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ store.ThreadStore = (*ThreadStore)(nil)

// RedisOptions configuration for Redis connection
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // Key prefix, default "adaptiverag:"
	TTL      time.Duration // Expiration for idle threads, default 0 (no expiration)
}

// NewThreadStore creates a new Redis thread store
func NewThreadStore(opts RedisOptions) *ThreadStore {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	prefix := opts.Prefix
	if prefix == "" {
		prefix = "adaptiverag:"
	}

	return &ThreadStore{
		client: client,
		prefix: prefix,
		ttl:    opts.TTL,
	}
}

func (s *ThreadStore) threadKey(id string) string {
	return fmt.Sprintf("%sthread:%s", s.prefix, id)
}

func (s *ThreadStore) indexKey() string {
	return s.prefix + "threads"
}

// Load retrieves a thread by id.
func (s *ThreadStore) Load(ctx context.Context, id string) (*store.Thread, error) {
	data, err := s.client.Get(ctx, s.threadKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", store.ErrThreadNotFound, id)
		}
		return nil, fmt.Errorf("failed to load thread from redis: %w", err)
	}

	var t store.Thread
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal thread: %w", err)
	}
	return &t, nil
}

// Save writes t under WATCH so a concurrent writer turns into ErrVersionConflict.
func (s *ThreadStore) Save(ctx context.Context, t *store.Thread) error {
	key := s.threadKey(t.ID)

	next := t.Clone()
	next.Version = t.Version + 1
	next.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to marshal thread: %w", err)
	}

	conflict := fmt.Errorf("%w: %s at version %d", store.ErrVersionConflict, t.ID, t.Version)
	txf := func(tx *redis.Tx) error {
		current := 0
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			var stored store.Thread
			if err := json.Unmarshal(raw, &stored); err != nil {
				return fmt.Errorf("failed to unmarshal thread: %w", err)
			}
			current = stored.Version
		}
		if current != t.Version {
			return conflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			pipe.SAdd(ctx, s.indexKey(), t.ID)
			return nil
		})
		return err
	}

	if err := s.client.Watch(ctx, txf, key); err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return conflict
		}
		if errors.Is(err, store.ErrVersionConflict) {
			return err
		}
		return fmt.Errorf("failed to save thread to redis: %w", err)
	}

	t.Version = next.Version
	t.UpdatedAt = next.UpdatedAt
	return nil
}

// Delete removes a thread
func (s *ThreadStore) Delete(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, s.threadKey(id))
	pipe.SRem(ctx, s.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("%w: %s", store.ErrThreadNotFound, id)
	}
	return nil
}

// List returns the ids of threads that still exist. Ids whose value has
// expired are dropped from the index.
func (s *ThreadStore) List(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	if len(ids) == 0 {
		return []string{}, nil
	}

	pipe := s.client.Pipeline()
	exists := make([]*redis.IntCmd, len(ids))
	for i, id := range ids {
		exists[i] = pipe.Exists(ctx, s.threadKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to check threads: %w", err)
	}

	live := make([]string, 0, len(ids))
	var stale []any
	for i, id := range ids {
		if exists[i].Val() > 0 {
			live = append(live, id)
		} else {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		s.client.SRem(ctx, s.indexKey(), stale...)
	}
	sort.Strings(live)
	return live, nil
}

// Close closes the client.
func (s *ThreadStore) Close() error {
	return s.client.Close()
}
