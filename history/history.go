// Package history keeps the most recent route searches.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultSize = 10
	DefaultTTL  = 7 * 24 * time.Hour
)

// Entry is one remembered search.
type Entry struct {
	Cities    []string `json:"cities"`
	From      string   `json:"from"`
	To        string   `json:"to"`
	Date      string   `json:"date"`
	Timestamp int64    `json:"timestamp"`
}

// NewEntry builds an entry stamped with at (milliseconds since the epoch).
func NewEntry(cities []string, to, date string, at time.Time) Entry {
	return Entry{
		Cities:    append([]string(nil), cities...),
		From:      strings.Join(cities, ","),
		To:        to,
		Date:      date,
		Timestamp: at.UnixMilli(),
	}
}

// Key identifies repeated searches.
func (e Entry) Key() string {
	return fmt.Sprintf("%s-%s-%s", strings.Join(e.Cities, ","), e.To, e.Date)
}

// Store is a capped, newest-first list of entries.
type Store interface {
	Add(ctx context.Context, e Entry) error
	List(ctx context.Context) ([]Entry, error)
	Clear(ctx context.Context) error
}

// merge puts e first, drops older entries with the same key and caps the list.
func merge(e Entry, existing []Entry, size int) []Entry {
	out := make([]Entry, 0, size)
	out = append(out, e)
	key := e.Key()
	for _, old := range existing {
		if len(out) >= size {
			break
		}
		if old.Key() != key {
			out = append(out, old)
		}
	}
	return out
}

// RedisStore keeps the list in a Redis list that expires ttl after the last write.
type RedisStore struct {
	client redis.UniversalClient
	key    string
	size   int
	ttl    time.Duration
}

// NewRedisStore creates a store under "history:{namespace}:recent".
// Non-positive size and ttl take the defaults.
func NewRedisStore(client redis.UniversalClient, namespace string, size int, ttl time.Duration) *RedisStore {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		client: client,
		key:    fmt.Sprintf("history:%s:recent", namespace),
		size:   size,
		ttl:    ttl,
	}
}

// maxWatchRetries bounds the optimistic retries of Add. Every failed attempt
// means another writer committed.
const maxWatchRetries = 16

// Add merges e into the list under WATCH, so concurrent adds never drop each other.
func (s *RedisStore) Add(ctx context.Context, e Entry) error {
	txf := func(tx *redis.Tx) error {
		raw, err := tx.LRange(ctx, s.key, 0, int64(s.size-1)).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		merged := merge(e, decodeEntries(raw), s.size)

		values := make([]interface{}, 0, len(merged))
		for _, m := range merged {
			b, err := json.Marshal(m)
			if err != nil {
				return fmt.Errorf("encode history entry: %w", err)
			}
			values = append(values, b)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, s.key)
			pipe.RPush(ctx, s.key, values...)
			pipe.Expire(ctx, s.key, s.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := s.client.Watch(ctx, txf, s.key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return fmt.Errorf("write history: %w", err)
		}
	}
	return fmt.Errorf("write history: %w", redis.TxFailedErr)
}

// List returns the entries newest first. Undecodable entries are skipped.
func (s *RedisStore) List(ctx context.Context) ([]Entry, error) {
	raw, err := s.client.LRange(ctx, s.key, 0, int64(s.size-1)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return decodeEntries(raw), nil
}

func decodeEntries(raw []string) []Entry {
	out := make([]Entry, 0, len(raw))
	for _, r := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (s *RedisStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}

// MemoryStore is the in-process Store used when Redis is disabled.
type MemoryStore struct {
	mu        sync.Mutex
	entries   []Entry
	size      int
	ttl       time.Duration
	expiresAt time.Time
	now       func() time.Time
}

// NewMemoryStore creates a MemoryStore. A zero ttl never expires.
func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	if size <= 0 {
		size = DefaultSize
	}
	return &MemoryStore{size: size, ttl: ttl, now: time.Now}
}

// WithClock replaces the store's clock.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) expired() bool {
	return s.ttl > 0 && !s.expiresAt.IsZero() && !s.now().Before(s.expiresAt)
}

func (s *MemoryStore) Add(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expired() {
		s.entries = nil
	}
	s.entries = merge(e, s.entries, s.size)
	if s.ttl > 0 {
		s.expiresAt = s.now().Add(s.ttl)
	}
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expired() {
		s.entries = nil
	}
	return append([]Entry{}, s.entries...), nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	return nil
}
