// Package session persists crawl session state: the seed URLs a
// session was created with and its current lifecycle status.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Status is a Session's lifecycle state.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
)

// Session is the record cmd/api creates on POST /crawl and reports back
// on GET /crawl/{id}.
type Session struct {
	ID        string    `json:"id"`
	SeedURLs  []string  `json:"seedUrls"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store persists Sessions.
type Store interface {
	SetSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, id string) (Session, bool, error)
}

// RedisStore stores sessions in Redis as JSON, keyed by a prefixed
// session ID, with a TTL so abandoned sessions eventually expire.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore initializes a Redis-backed Store.
func NewRedisStore(addr, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
		ttl:    ttl,
	}
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// SetSession writes sess to Redis, overwriting any existing record
// under the same ID.
func (s *RedisStore) SetSession(ctx context.Context, sess Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+sess.ID, payload, s.ttl).Err()
}

// GetSession reads the session record for id. ok is false if no such
// session exists (or it has expired).
func (s *RedisStore) GetSession(ctx context.Context, id string) (Session, bool, error) {
	val, err := s.client.Get(ctx, s.prefix+id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, false, nil
		}
		return Session{}, false, err
	}

	var sess Session
	if err := json.Unmarshal([]byte(val), &sess); err != nil {
		return Session{}, false, err
	}
	return sess, true, nil
}
