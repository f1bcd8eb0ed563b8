package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RunLock prevents overlapping pipeline runs across hosts using SET NX with
// TTL. A random ownership value and Lua scripts for release/extend keep one
// process from releasing a lock another process holds.
type RunLock struct {
	client *redis.Client
	key    string
	value  string
	ttl    time.Duration
}

// NewRunLock creates a run lock scoped to one source.
func NewRunLock(client *redis.Client, sourceID string, ttl time.Duration) *RunLock {
	b := make([]byte, 16)
	rand.Read(b)
	return &RunLock{
		client: client,
		key:    fmt.Sprintf("ingest:runlock:%s", sourceID),
		value:  hex.EncodeToString(b),
		ttl:    ttl,
	}
}

// Acquire tries to acquire the lock. Returns true if successful.
func (l *RunLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire run lock %s: %w", l.key, err)
	}
	return ok, nil
}

// Release releases the lock only if we still own it.
func (l *RunLock) Release(ctx context.Context) error {
	script := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)
	_, err := script.Run(ctx, l.client, []string{l.key}, l.value).Result()
	return err
}

// Extend refreshes the lock TTL mid-run so a slow cycle does not lose the
// lock while still processing.
func (l *RunLock) Extend(ctx context.Context, ttl time.Duration) error {
	script := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
	_, err := script.Run(ctx, l.client, []string{l.key}, l.value, ttl.Milliseconds()).Result()
	return err
}
