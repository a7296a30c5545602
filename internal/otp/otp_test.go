package otp

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomkartz/roomkartz-api/internal/apperr"
	"github.com/roomkartz/roomkartz-api/internal/logging"
)

type fakeSender struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func newFakeSender() *fakeSender {
	return &fakeSender{codes: make(map[string]string)}
}

func (f *fakeSender) SendOTP(_ context.Context, to, code, _ string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.codes[to] = code
	return nil
}

func (f *fakeSender) last(to string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.codes[to]
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testLogger() *logging.Logger {
	return logging.NewLoggerWithWriter(&bytes.Buffer{}, true)
}

func newTestService(t *testing.T) (*Service, *fakeSender, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore(0)
	store.now = c.Now
	t.Cleanup(func() { _ = store.Close() })

	sender := newFakeSender()
	svc := NewService(store, sender, testLogger())
	svc.now = c.Now
	return svc, sender, c
}

func TestGenerateCode_Range(t *testing.T) {
	for i := 0; i < 1000; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		require.Len(t, code, 6)

		n, err := strconv.Atoi(code)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 100000)
		assert.LessOrEqual(t, n, 999999)
	}
}

func TestMatchHash(t *testing.T) {
	h := HashCode("123456")
	assert.True(t, MatchHash(h, "123456"))
	assert.False(t, MatchHash(h, "654321"))
	assert.False(t, MatchHash("", "123456"))
}

func TestService_SendThenVerify_SingleUse(t *testing.T) {
	ctx := context.Background()
	svc, sender, _ := newTestService(t)

	code, err := svc.Send(ctx, "a@b.com", 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, code, sender.last("a@b.com"))

	require.NoError(t, svc.Verify(ctx, "a@b.com", code))

	err = svc.Verify(ctx, "a@b.com", code)
	assert.ErrorIs(t, err, ErrInvalidOTP)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestService_Verify_EmailIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	code, err := svc.Send(ctx, " A@B.com", 5*time.Minute)
	require.NoError(t, err)

	assert.NoError(t, svc.Verify(ctx, "a@b.com", code))
}

func TestService_Verify_Expired(t *testing.T) {
	ctx := context.Background()

	for _, window := range []time.Duration{5 * time.Minute, 10 * time.Minute} {
		t.Run(window.String(), func(t *testing.T) {
			svc, _, c := newTestService(t)

			code, err := svc.Send(ctx, "a@b.com", window)
			require.NoError(t, err)

			c.Advance(window)

			assert.ErrorIs(t, svc.Verify(ctx, "a@b.com", code), ErrInvalidOTP)
		})
	}
}

func TestService_Verify_WrongCodeKeepsEntry(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	code, err := svc.Send(ctx, "a@b.com", 5*time.Minute)
	require.NoError(t, err)

	wrong := "100000"
	if code == wrong {
		wrong = "100001"
	}
	assert.ErrorIs(t, svc.Verify(ctx, "a@b.com", wrong), ErrInvalidOTP)
	assert.NoError(t, svc.Verify(ctx, "a@b.com", code))
}

func TestService_Verify_NoPendingEntry(t *testing.T) {
	svc, _, _ := newTestService(t)
	assert.ErrorIs(t, svc.Verify(context.Background(), "nobody@b.com", "123456"), ErrInvalidOTP)
}

func TestService_Send_DeliveryFailureKeepsEntry(t *testing.T) {
	ctx := context.Background()
	svc, sender, _ := newTestService(t)
	sender.err = errors.New("smtp down")

	_, err := svc.Send(ctx, "a@b.com", 5*time.Minute)
	require.ErrorIs(t, err, ErrDeliveryFailed)
	assert.ErrorIs(t, err, apperr.ErrDeliveryFailed)

	_, ok, err := svc.store.Get(ctx, "a@b.com")
	require.NoError(t, err)
	assert.True(t, ok, "pending entry survives a failed delivery")
}

func TestService_Send_LastCodeWins(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	first, err := svc.Send(ctx, "a@b.com", 5*time.Minute)
	require.NoError(t, err)
	second, err := svc.Send(ctx, "a@b.com", 5*time.Minute)
	require.NoError(t, err)

	if first != second {
		assert.ErrorIs(t, svc.Verify(ctx, "a@b.com", first), ErrInvalidOTP)
	}
	assert.NoError(t, svc.Verify(ctx, "a@b.com", second))
}

func TestService_Send_EmailRequired(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Send(context.Background(), "  ", 5*time.Minute)
	assert.ErrorIs(t, err, ErrEmailRequired)
}

func TestService_Send_InvalidEmail(t *testing.T) {
	ctx := context.Background()
	svc, sender, _ := newTestService(t)

	_, err := svc.Send(ctx, "a@b.com\r\nBcc: victim@example.com", 5*time.Minute)
	assert.ErrorIs(t, err, ErrInvalidEmail)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	assert.Empty(t, sender.last("a@b.com"))

	_, ok, err := svc.store.Get(ctx, "a@b.com\r\nbcc: victim@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidEmail(t *testing.T) {
	assert.True(t, ValidEmail("a@b.com"))
	assert.True(t, ValidEmail("first.last+tag@example.co.in"))
	assert.False(t, ValidEmail("a@b.com\nBcc: c@d.com"))
	assert.False(t, ValidEmail("Asha <a@b.com>"))
	assert.False(t, ValidEmail("plain"))
	assert.False(t, ValidEmail(strings.Repeat("a", 250)+"@b.com"))
}

func TestService_ConcurrentVerifySucceedsOnce(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	code, err := svc.Send(ctx, "a@b.com", 5*time.Minute)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if svc.Verify(ctx, "a@b.com", code) == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
}

// resendingStore replaces the entry right after the first read, the way a
// /send-otp landing between a verify's read and delete would.
type resendingStore struct {
	Store
	once    sync.Once
	replace Entry
}

func (s *resendingStore) Get(ctx context.Context, email string) (Entry, bool, error) {
	e, ok, err := s.Store.Get(ctx, email)
	s.once.Do(func() {
		err = errors.Join(err, s.Store.Put(ctx, email, s.replace))
	})
	return e, ok, err
}

func TestService_Verify_ResendBetweenReadAndConsume(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore(0)
	t.Cleanup(func() { _ = mem.Close() })

	expires := time.Now().Add(5 * time.Minute)
	require.NoError(t, mem.Put(ctx, "a@b.com", Entry{CodeHash: HashCode("111111"), ExpiresAt: expires}))

	store := &resendingStore{Store: mem, replace: Entry{CodeHash: HashCode("222222"), ExpiresAt: expires}}
	svc := NewService(store, newFakeSender(), testLogger())

	assert.ErrorIs(t, svc.Verify(ctx, "a@b.com", "111111"), ErrInvalidOTP)

	e, ok, err := mem.Get(ctx, "a@b.com")
	require.NoError(t, err)
	require.True(t, ok, "the newer code survives")
	assert.True(t, MatchHash(e.CodeHash, "222222"))

	require.NoError(t, svc.Verify(ctx, "a@b.com", "222222"))
}

func TestRedisStore_DeleteKeepsReplacedEntry(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedisStore(client, "otp:signup")
	expires := time.Now().Add(5 * time.Minute)

	require.NoError(t, s.Put(ctx, "a@b.com", Entry{CodeHash: HashCode("111111"), ExpiresAt: expires}))
	old, ok, err := s.Get(ctx, "a@b.com")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.Put(ctx, "a@b.com", Entry{CodeHash: HashCode("222222"), ExpiresAt: expires}))

	deleted, err := s.Delete(ctx, "a@b.com", old.CodeHash)
	require.NoError(t, err)
	assert.False(t, deleted)

	e, ok, err := s.Get(ctx, "a@b.com")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, MatchHash(e.CodeHash, "222222"))
}

func TestMemoryStore_SweepAndClose(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Now()}
	s := NewMemoryStore(0)
	s.now = c.Now

	require.NoError(t, s.Put(ctx, "a@b.com", Entry{CodeHash: "h", ExpiresAt: c.Now().Add(time.Minute)}))
	require.NoError(t, s.Put(ctx, "c@d.com", Entry{CodeHash: "h", ExpiresAt: c.Now().Add(time.Hour)}))

	c.Advance(2 * time.Minute)
	s.sweep()

	s.mu.Lock()
	assert.Len(t, s.entries, 1)
	s.mu.Unlock()

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, ok, err := s.Get(ctx, "c@d.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedisStore(client, "otp:signup")
	expires := time.Now().Add(5 * time.Minute)

	require.NoError(t, s.Put(ctx, "A@b.com", Entry{CodeHash: HashCode("123456"), ExpiresAt: expires}))
	assert.True(t, mr.Exists("otp:signup:a@b.com"))

	e, ok, err := s.Get(ctx, "a@b.com")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, MatchHash(e.CodeHash, "123456"))
	assert.WithinDuration(t, expires, e.ExpiresAt, time.Millisecond)

	deleted, err := s.Delete(ctx, "a@b.com", HashCode("654321"))
	require.NoError(t, err)
	assert.False(t, deleted, "a different hash leaves the entry")
	assert.True(t, mr.Exists("otp:signup:a@b.com"))

	deleted, err = s.Delete(ctx, "a@b.com", e.CodeHash)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.Delete(ctx, "a@b.com", e.CodeHash)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, ok, err = s.Get(ctx, "a@b.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_ServiceRoundTrip(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sender := newFakeSender()
	svc := NewService(NewRedisStore(client, "otp:signup"), sender, testLogger())

	code, err := svc.Send(ctx, "a@b.com", 5*time.Minute)
	require.NoError(t, err)

	require.NoError(t, svc.Verify(ctx, "a@b.com", code))
	assert.ErrorIs(t, svc.Verify(ctx, "a@b.com", code), ErrInvalidOTP)
}
