// Package store keeps run coordination state in Redis: per-source watermarks
// and the scheduler run lock.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/riverline/support-ingest/internal/domain"
	"github.com/riverline/support-ingest/internal/pkg/logger"
)

const watermarkKeyPrefix = "ingest:watermark:"

// RedisWatermarkStore persists one watermark per source as a JSON value.
type RedisWatermarkStore struct {
	client *redis.Client
}

func NewRedisWatermarkStore(client *redis.Client) *RedisWatermarkStore {
	return &RedisWatermarkStore{client: client}
}

// NewRedisClient builds a client and verifies connectivity.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

func watermarkKey(sourceID string) string {
	return watermarkKeyPrefix + sourceID
}

// Get returns the current watermark for a source, or nil when none exists.
func (s *RedisWatermarkStore) Get(ctx context.Context, sourceID string) (*domain.Watermark, error) {
	raw, err := s.client.Get(ctx, watermarkKey(sourceID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get watermark for %s: %w", sourceID, err)
	}

	var wm domain.Watermark
	if err := json.Unmarshal([]byte(raw), &wm); err != nil {
		return nil, fmt.Errorf("decode watermark for %s: %w", sourceID, err)
	}
	return &wm, nil
}

// Put stores a new watermark. The store refuses to move the watermark
// backwards; a stale put is dropped with a warning rather than an error so a
// replayed run cannot rewind a newer one.
func (s *RedisWatermarkStore) Put(ctx context.Context, sourceID string, wm domain.Watermark) error {
	current, err := s.Get(ctx, sourceID)
	if err != nil {
		return err
	}
	if current != nil && wm.LastProcessedAt.Before(current.LastProcessedAt) {
		logger.Warn("Ignoring stale watermark put",
			"source_id", sourceID,
			"current", current.LastProcessedAt.Format(time.RFC3339),
			"stale", wm.LastProcessedAt.Format(time.RFC3339))
		return nil
	}

	wm.SourceID = sourceID
	if wm.UpdatedAt.IsZero() {
		wm.UpdatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(wm)
	if err != nil {
		return fmt.Errorf("encode watermark for %s: %w", sourceID, err)
	}
	if err := s.client.Set(ctx, watermarkKey(sourceID), data, 0).Err(); err != nil {
		return fmt.Errorf("put watermark for %s: %w", sourceID, err)
	}
	return nil
}

// Delete removes the watermark so the next run reprocesses from the start.
func (s *RedisWatermarkStore) Delete(ctx context.Context, sourceID string) error {
	if err := s.client.Del(ctx, watermarkKey(sourceID)).Err(); err != nil {
		return fmt.Errorf("delete watermark for %s: %w", sourceID, err)
	}
	return nil
}
