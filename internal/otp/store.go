package otp

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Entry is a pending code for one email address
type Entry struct {
	CodeHash  string
	ExpiresAt time.Time
}

// Store keeps at most one pending entry per email. A Put replaces any earlier entry.
type Store interface {
	Put(ctx context.Context, email string, e Entry) error
	// Get reports false when no unexpired entry exists
	Get(ctx context.Context, email string) (Entry, bool, error)
	// Delete removes the entry only while it still holds codeHash and reports
	// whether it did. Only one concurrent caller observes true for the same
	// entry, and an entry replaced by a later Put is left in place.
	Delete(ctx context.Context, email, codeHash string) (bool, error)
	Close() error
}

// MemoryStore is a process-local Store. Expired entries are dropped when
// read, and periodically when a sweep interval is configured.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

// NewMemoryStore creates a MemoryStore. A positive sweepEvery starts a
// background sweep that Close stops.
func NewMemoryStore(sweepEvery time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]Entry),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	if sweepEvery > 0 {
		go s.sweepLoop(sweepEvery)
	}
	return s
}

func (s *MemoryStore) Put(_ context.Context, email string, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[email] = e
	return nil
}

func (s *MemoryStore) Get(_ context.Context, email string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[email]
	if !ok {
		return Entry{}, false, nil
	}
	if !s.now().Before(e.ExpiresAt) {
		delete(s.entries, email)
		return Entry{}, false, nil
	}
	return e, true, nil
}

func (s *MemoryStore) Delete(_ context.Context, email, codeHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[email]
	if !ok || e.CodeHash != codeHash {
		return false, nil
	}
	delete(s.entries, email)
	return true, nil
}

// Close stops the sweeper and drops every pending entry
func (s *MemoryStore) Close() error {
	s.once.Do(func() {
		close(s.stop)
		s.mu.Lock()
		s.entries = make(map[string]Entry)
		s.mu.Unlock()
	})
	return nil
}

func (s *MemoryStore) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *MemoryStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for email, e := range s.entries {
		if !now.Before(e.ExpiresAt) {
			delete(s.entries, email)
		}
	}
}

// deleteIfMatch drops KEYS[1] only while its code_hash field equals ARGV[1]
var deleteIfMatch = redis.NewScript(`
if redis.call("HGET", KEYS[1], "code_hash") == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore keeps entries in Redis hashes that expire with the code
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a RedisStore whose keys start with prefix
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(email string) string {
	return fmt.Sprintf("%s:%s", s.prefix, strings.ToLower(email))
}

func (s *RedisStore) Put(ctx context.Context, email string, e Entry) error {
	key := s.key(email)

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, map[string]interface{}{
		"code_hash":  e.CodeHash,
		"expires_at": e.ExpiresAt.UnixMilli(),
	})
	pipe.PExpireAt(ctx, key, e.ExpiresAt)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store otp: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, email string) (Entry, bool, error) {
	data, err := s.client.HGetAll(ctx, s.key(email)).Result()
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to get otp: %w", err)
	}
	if len(data) == 0 {
		return Entry{}, false, nil
	}

	ms, err := strconv.ParseInt(data["expires_at"], 10, 64)
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to parse otp expiry: %w", err)
	}

	e := Entry{CodeHash: data["code_hash"], ExpiresAt: time.UnixMilli(ms)}
	if !time.Now().Before(e.ExpiresAt) {
		return Entry{}, false, nil
	}
	return e, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, email, codeHash string) (bool, error) {
	n, err := deleteIfMatch.Run(ctx, s.client, []string{s.key(email)}, codeHash).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to delete otp: %w", err)
	}
	return n > 0, nil
}

// Close is a no-op; the Redis client is owned by the caller
func (s *RedisStore) Close() error {
	return nil
}
