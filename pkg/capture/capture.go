// Package capture archives finished utterance blobs for short-lived
// diagnostics: when a transcription comes back wrong, the raw audio is
// still around for a minute to replay.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mhalvorsen/go-parley/pkg/recorder"
)

// Both archives satisfy the recorder's archive contract.
var (
	_ recorder.Archive = (*RedisArchive)(nil)
	_ recorder.Archive = (*Memory)(nil)
)

// RedisArchive stores captures in Redis with a TTL.
type RedisArchive struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedis connects and verifies the server is reachable.
func NewRedis(addr, password string, db int, logger *slog.Logger) (*RedisArchive, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("capture: redis ping: %w", err)
	}

	logger.Info("capture archive connected", "addr", addr, "db", db)
	return &RedisArchive{
		client: client,
		logger: logger.With("component", "capture"),
	}, nil
}

// Save stores one capture under the key with the given TTL.
func (a *RedisArchive) Save(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := a.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("capture: save %s: %w", key, err)
	}
	a.logger.Debug("capture archived", "key", key, "bytes", len(data), "ttl", ttl)
	return nil
}

// Load retrieves an archived capture.
func (a *RedisArchive) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := a.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, fmt.Errorf("capture: load %s: %w", key, err)
	}
	return data, nil
}

// Keys lists archived capture keys matching the recorder's prefix.
func (a *RedisArchive) Keys(ctx context.Context) ([]string, error) {
	keys, err := a.client.Keys(ctx, "parley-audio:*").Result()
	if err != nil {
		return nil, fmt.Errorf("capture: list keys: %w", err)
	}
	return keys, nil
}

// Close releases the connection.
func (a *RedisArchive) Close() error {
	return a.client.Close()
}

// Memory is an in-process archive for tests and redis-less deployments.
// Expiry is checked on read, not by a sweeper.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// NewMemory creates an empty in-process archive.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

// Save stores one capture.
func (m *Memory) Save(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{
		data:    append([]byte(nil), data...),
		expires: time.Now().Add(ttl),
	}
	return nil
}

// Load retrieves a capture, or nil if missing or expired.
func (m *Memory) Load(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || time.Now().After(e.expires) {
		delete(m.entries, key)
		return nil, nil
	}
	return append([]byte(nil), e.data...), nil
}

// Len returns the number of stored captures, including expired ones not
// yet read.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
