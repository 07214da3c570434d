package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/lance0/prefixd-sub000/internal/repository"
)

// fakeClient is an in-memory stand-in for a Redis connection: a mutex-
// guarded map with the same miss/expiry semantics the real adapter gets
// from Redis.
type fakeClient struct {
	mu      sync.Mutex
	values  map[string]string
	expires map[string]time.Time
	counter map[string]int64
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		values:  make(map[string]string),
		expires: make(map[string]time.Time),
		counter: make(map[string]int64),
	}
}

func (f *fakeClient) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if exp, ok := f.expires[key]; ok && time.Now().After(exp) {
		delete(f.values, key)
		delete(f.expires, key)
		return "", ErrCacheMiss
	}
	v, ok := f.values[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return v, nil
}

func (f *fakeClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	f.expires[key] = time.Now().Add(ttl)
	return nil
}

func (f *fakeClient) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.values, k)
		delete(f.expires, k)
	}
	return nil
}

func (f *fakeClient) Incr(ctx context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counter[key]++
	v := f.counter[key]
	f.values[key] = itoa(v)
	return v, nil
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func TestIsSafelistedCachesRepositoryResult(t *testing.T) {
	repo := repository.NewMock()
	ctx := context.Background()
	if err := repo.InsertSafelist(ctx, "203.0.113.10/32", "operator-1", nil); err != nil {
		t.Fatalf("InsertSafelist() error = %v", err)
	}

	client := newFakeClient()
	c := New(repo, client, time.Minute, zap.NewNop())

	safelisted, err := c.IsSafelisted(ctx, "203.0.113.10")
	if err != nil || !safelisted {
		t.Fatalf("IsSafelisted() = %v, %v, want true, nil", safelisted, err)
	}

	// second call should hit the cache; corrupt the backing repo's view by
	// removing the entry directly and confirming the cached answer still
	// holds until a bump.
	if _, err := repo.RemoveSafelist(context.Background(), "203.0.113.10/32"); err != nil {
		t.Fatalf("RemoveSafelist() error = %v", err)
	}
	safelisted, err = c.IsSafelisted(ctx, "203.0.113.10")
	if err != nil || !safelisted {
		t.Fatalf("cached IsSafelisted() = %v, %v, want true, nil", safelisted, err)
	}
}

func TestInsertSafelistInvalidatesCache(t *testing.T) {
	repo := repository.NewMock()
	ctx := context.Background()
	client := newFakeClient()
	c := New(repo, client, time.Minute, zap.NewNop())

	safelisted, err := c.IsSafelisted(ctx, "198.51.100.5")
	if err != nil || safelisted {
		t.Fatalf("IsSafelisted() = %v, %v, want false, nil", safelisted, err)
	}

	if err := c.InsertSafelist(ctx, "198.51.100.5/32", "operator-1", nil); err != nil {
		t.Fatalf("InsertSafelist() error = %v", err)
	}

	safelisted, err = c.IsSafelisted(ctx, "198.51.100.5")
	if err != nil || !safelisted {
		t.Fatalf("post-insert IsSafelisted() = %v, %v, want true, nil", safelisted, err)
	}
}

func TestRemoveSafelistInvalidatesCache(t *testing.T) {
	repo := repository.NewMock()
	ctx := context.Background()
	if err := repo.InsertSafelist(ctx, "203.0.113.10/32", "operator-1", nil); err != nil {
		t.Fatalf("InsertSafelist() error = %v", err)
	}

	client := newFakeClient()
	c := New(repo, client, time.Minute, zap.NewNop())

	if safelisted, err := c.IsSafelisted(ctx, "203.0.113.10"); err != nil || !safelisted {
		t.Fatalf("IsSafelisted() = %v, %v, want true, nil", safelisted, err)
	}

	removed, err := c.RemoveSafelist(ctx, "203.0.113.10/32")
	if err != nil || !removed {
		t.Fatalf("RemoveSafelist() = %v, %v, want true, nil", removed, err)
	}

	if safelisted, err := c.IsSafelisted(ctx, "203.0.113.10"); err != nil || safelisted {
		t.Fatalf("post-remove IsSafelisted() = %v, %v, want false, nil", safelisted, err)
	}
}
