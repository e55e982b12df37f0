package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulpham157/neptune-fetcher/internal/core/domain"
)

var fastRetry = RetryConfig{
	MaxAttempts:     3,
	InitialDelay:    time.Millisecond,
	MaxDelay:        5 * time.Millisecond,
	BackoffMultiple: 2.0,
}

type entriesResponse struct {
	Entries []string `json:"entries"`
}

func newServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(NewHTTPProvider(HTTPConfig{BaseURL: server.URL, Timeout: 5 * time.Second}), ClientConfig{
		Retry:     fastRetry,
		RateLimit: 1000,
		Burst:     10,
	})
}

func TestClient_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(entriesResponse{Entries: []string{"x"}})
	})

	var out entriesResponse
	if err := client.Query(context.Background(), Operation{Name: "test", Path: "/q"}, &out); err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
	if len(out.Entries) != 1 {
		t.Errorf("unexpected result %+v", out)
	}
}

func TestClient_ProjectInaccessible(t *testing.T) {
	var calls atomic.Int32
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})

	err := client.Query(context.Background(), Operation{Name: "test", Path: "/q", Project: "ws/missing"}, nil)

	var pe *domain.ProjectInaccessibleError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProjectInaccessibleError, got %v", err)
	}
	if pe.Project != "ws/missing" {
		t.Errorf("expected project ws/missing, got %q", pe.Project)
	}
	if calls.Load() != 1 {
		t.Errorf("expected no retries, got %d calls", calls.Load())
	}
}

func TestClient_ExhaustedRetries(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	err := client.Query(context.Background(), Operation{Name: "test", Path: "/q"}, nil)

	var re *RetryError
	if !errors.As(err, &re) {
		t.Fatalf("expected RetryError, got %v", err)
	}
	var te *TransportError
	if !errors.As(err, &te) || te.StatusCode != http.StatusBadGateway {
		t.Errorf("expected last transport error, got %v", err)
	}
}

// =============================================================================
// Caching
// =============================================================================

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
	fail bool
}

func (c *mapCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return nil, false, errors.New("cache down")
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mapCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("cache down")
	}
	c.data[key] = value
	return nil
}

func (c *mapCache) Purge(ctx context.Context, prefix string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for key := range c.data {
		if strings.HasPrefix(key, prefix) {
			delete(c.data, key)
			n++
		}
	}
	return n, nil
}

type countingQuerier struct {
	calls int
	err   error
}

func (q *countingQuerier) Query(ctx context.Context, op Operation, out any) error {
	q.calls++
	if q.err != nil {
		return q.err
	}
	data, _ := json.Marshal(entriesResponse{Entries: []string{op.Path}})
	return json.Unmarshal(data, out)
}

func TestCachingQuerier_ServesRepeatedQueries(t *testing.T) {
	next := &countingQuerier{}
	cache := &mapCache{data: map[string][]byte{}}
	q := NewCachingQuerier(next, cache, CacheConfig{TTL: time.Minute})

	op := Operation{Name: "test", Path: "/a", Body: map[string]any{"limit": 1}}
	for i := 0; i < 3; i++ {
		var out entriesResponse
		if err := q.Query(context.Background(), op, &out); err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if len(out.Entries) != 1 || out.Entries[0] != "/a" {
			t.Fatalf("unexpected result %+v", out)
		}
	}
	if next.calls != 1 {
		t.Errorf("expected 1 upstream call, got %d", next.calls)
	}

	// Different body, different key.
	var out entriesResponse
	_ = q.Query(context.Background(), Operation{Name: "test", Path: "/a", Body: map[string]any{"limit": 2}}, &out)
	if next.calls != 2 {
		t.Errorf("expected 2 upstream calls, got %d", next.calls)
	}
}

func TestCachingQuerier_Purge(t *testing.T) {
	next := &countingQuerier{}
	cache := &mapCache{data: map[string][]byte{"other:page:x": []byte("keep")}}
	q := NewCachingQuerier(next, cache, CacheConfig{Prefix: "nf"})

	op := Operation{Name: "test", Path: "/a"}
	_ = q.Query(context.Background(), op, &entriesResponse{})
	_ = q.Query(context.Background(), Operation{Name: "test", Path: "/b"}, &entriesResponse{})

	n, err := q.Purge(context.Background())
	if err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 purged pages, got %d", n)
	}
	if _, ok := cache.data["other:page:x"]; !ok {
		t.Error("expected keys of other prefixes to survive")
	}

	_ = q.Query(context.Background(), op, &entriesResponse{})
	if next.calls != 3 {
		t.Errorf("expected purged page to be fetched again, calls=%d", next.calls)
	}
}

func TestCachingQuerier_DoesNotCacheErrors(t *testing.T) {
	next := &countingQuerier{err: errors.New("boom")}
	cache := &mapCache{data: map[string][]byte{}}
	q := NewCachingQuerier(next, cache, CacheConfig{})

	for i := 0; i < 2; i++ {
		if err := q.Query(context.Background(), Operation{Path: "/a"}, &entriesResponse{}); err == nil {
			t.Fatal("expected error")
		}
	}
	if next.calls != 2 || len(cache.data) != 0 {
		t.Errorf("expected errors to bypass the cache, calls=%d cached=%d", next.calls, len(cache.data))
	}
}

func TestCachingQuerier_CacheFailureIsBypassed(t *testing.T) {
	next := &countingQuerier{}
	q := NewCachingQuerier(next, &mapCache{fail: true}, CacheConfig{})

	var out entriesResponse
	if err := q.Query(context.Background(), Operation{Path: "/a"}, &out); err != nil {
		t.Fatalf("expected cache failure to be ignored, got %v", err)
	}
	if len(out.Entries) != 1 {
		t.Errorf("unexpected result %+v", out)
	}
}

func TestCacheKey_Stable(t *testing.T) {
	op := Operation{Path: "/a", Body: map[string]any{"b": 1, "a": 2}}
	k1, err := CacheKey("p", op)
	if err != nil {
		t.Fatalf("CacheKey: %v", err)
	}
	k2, _ := CacheKey("p", op)
	if k1 != k2 {
		t.Errorf("expected stable key, got %s and %s", k1, k2)
	}
	k3, _ := CacheKey("p", Operation{Path: "/b", Body: op.Body})
	if k1 == k3 {
		t.Error("expected different paths to give different keys")
	}
}
