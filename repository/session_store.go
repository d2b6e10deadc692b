package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSessionStore keeps each wizard record in a Redis hash, one hash field per
// top-level field of the record.
type RedisSessionStore struct {
	rc *redis.Client
}

// NewRedisSessionStore creates a Redis backed session store
func NewRedisSessionStore(rc *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{rc: rc}
}

func (s *RedisSessionStore) SetField(ctx context.Context, key, field string, value []byte, ttl time.Duration) error {
	_, err := s.rc.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, field, value)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write session field %s: %w", field, err)
	}
	return nil
}

func (s *RedisSessionStore) Fields(ctx context.Context, key string) (map[string][]byte, error) {
	raw, err := s.rc.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read session record: %w", err)
	}
	out := make(map[string][]byte, len(raw))
	for k, v := range raw {
		out[k] = []byte(v)
	}
	return out, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, key string) error {
	if err := s.rc.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete session record: %w", err)
	}
	return nil
}

// MemorySessionStore is an in-process SessionStore for single-instance deployments
// without Redis, and for tests.
type MemorySessionStore struct {
	mu      sync.RWMutex
	records map[string]*memoryRecord
	stop    chan struct{}
	once    sync.Once
}

type memoryRecord struct {
	fields    map[string][]byte
	expiresAt time.Time
}

// NewMemorySessionStore creates the store and starts its expiry sweeper
func NewMemorySessionStore() *MemorySessionStore {
	s := &MemorySessionStore{
		records: make(map[string]*memoryRecord),
		stop:    make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

func (s *MemorySessionStore) SetField(ctx context.Context, key, field string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok || rec.expired(time.Now()) {
		rec = &memoryRecord{fields: make(map[string][]byte)}
		s.records[key] = rec
	}
	buf := make([]byte, len(value))
	copy(buf, value)
	rec.fields[field] = buf
	if ttl > 0 {
		rec.expiresAt = time.Now().Add(ttl)
	}
	return nil
}

func (s *MemorySessionStore) Fields(ctx context.Context, key string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]byte)
	rec, ok := s.records[key]
	if !ok || rec.expired(time.Now()) {
		return out, nil
	}
	for k, v := range rec.fields {
		out[k] = append([]byte(nil), v...)
	}
	return out, nil
}

func (s *MemorySessionStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

// Close stops the expiry sweeper.
func (s *MemorySessionStore) Close() {
	s.once.Do(func() { close(s.stop) })
}

func (s *MemorySessionStore) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for k, rec := range s.records {
				if rec.expired(now) {
					delete(s.records, k)
				}
			}
			s.mu.Unlock()
		}
	}
}

func (r *memoryRecord) expired(now time.Time) bool {
	return !r.expiresAt.IsZero() && now.After(r.expiresAt)
}
