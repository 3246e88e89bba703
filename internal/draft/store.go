package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"response-platform/internal/assessment"
)

var ErrNotFound = errors.New("draft: not found")

// Store holds drafts per user and assessment type.
type Store interface {
	List(ctx context.Context, t assessment.Type, userID string) ([]Draft, error)
	Upsert(ctx context.Context, t assessment.Type, userID string, d Draft) error
	Delete(ctx context.Context, t assessment.Type, userID string, draftID string) error
}

// RedisStore keeps each user's drafts for one type in a single hash,
// draft id -> JSON blob. The whole hash shares one idle TTL, refreshed on
// every write.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) List(ctx context.Context, t assessment.Type, userID string) ([]Draft, error) {
	raw, err := s.rdb.HGetAll(ctx, Key(t, userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("draft list: %w", err)
	}
	out := make([]Draft, 0, len(raw))
	for _, blob := range raw {
		var d Draft
		if err := json.Unmarshal([]byte(blob), &d); err != nil {
			// A corrupt field should not hide the rest of the drafts.
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (s *RedisStore) Upsert(ctx context.Context, t assessment.Type, userID string, d Draft) error {
	if d.ID == "" {
		return fmt.Errorf("draft upsert: id required")
	}
	blob, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("draft upsert: %w", err)
	}
	key := Key(t, userID)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, d.ID, blob)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("draft upsert: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, t assessment.Type, userID string, draftID string) error {
	n, err := s.rdb.HDel(ctx, Key(t, userID), draftID).Result()
	if err != nil {
		return fmt.Errorf("draft delete: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
