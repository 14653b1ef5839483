// Package joblog persists per-run execution log entries so a pipeline's
// history survives the short-lived workers that produced it.
package joblog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/chainline/chainline/internal/redis"
)

// Entry is one persisted execution log record.
type Entry struct {
	Level       string    `json:"level"`
	WorkerType  string    `json:"worker_type"`
	InstanceID  string    `json:"instance_id"`
	ExecutionID string    `json:"execution_id"`
	Message     string    `json:"message"`
	Time        time.Time `json:"time"`
}

// Store defines the interface for persisting log entries.
// This is a consumer-defined interface containing only what joblog needs.
type Store interface {
	InsertMany(ctx context.Context, entries []Entry) error
	List(ctx context.Context, instanceID string) ([]Entry, error)
}

const defaultEntryTTL = 30 * 24 * time.Hour

// RedisStore keeps each run's entries in a Redis list keyed by instance ID.
type RedisStore struct {
	client redis.Client
	ttl    time.Duration
}

var _ Store = &RedisStore{}

type RedisStoreOption func(*RedisStore)

func WithEntryTTL(ttl time.Duration) RedisStoreOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

func NewRedisStore(client redis.Client, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{client: client, ttl: defaultEntryTTL}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func logKey(instanceID string) string {
	return "joblog:" + instanceID
}

func (s *RedisStore) InsertMany(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	byInstance := make(map[string][]interface{})
	for _, entry := range entries {
		payload, err := json.Marshal(entry)
		if err != nil {
			return errors.Wrap(err, "marshal log entry")
		}
		key := logKey(entry.InstanceID)
		byInstance[key] = append(byInstance[key], payload)
	}
	pipe := s.client.Pipeline()
	for key, payloads := range byInstance {
		pipe.RPush(ctx, key, payloads...)
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "insert log entries")
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, instanceID string) ([]Entry, error) {
	raw, err := s.client.LRange(ctx, logKey(instanceID), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "list log entries")
	}
	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var entry Entry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, errors.Wrap(err, "unmarshal log entry")
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
