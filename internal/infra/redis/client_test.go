package redis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeKV is an in-memory stand-in for a Redis server.
type fakeKV struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
	err  error
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeKV) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeKV) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.data[key] = string(value.([]byte))
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeKV) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeKV) Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := strings.TrimSuffix(match, "*")
	var keys []string
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return redis.NewScanCmdResult(keys, 0, nil)
}

func TestClient_GetSet(t *testing.T) {
	kv := newFakeKV()
	c := &Client{rdb: kv}
	ctx := context.Background()

	_, found, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, "k", []byte("payload"), time.Minute))
	assert.Equal(t, time.Minute, kv.ttls["k"])

	val, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("payload"), val)
}

func TestClient_Errors(t *testing.T) {
	kv := newFakeKV()
	kv.err = errors.New("connection refused")
	c := &Client{rdb: kv}

	_, _, err := c.Get(context.Background(), "k")
	assert.ErrorContains(t, err, "connection refused")

	err = c.Set(context.Background(), "k", []byte("v"), 0)
	assert.ErrorContains(t, err, "set failed")
}

func TestClient_Purge(t *testing.T) {
	kv := newFakeKV()
	c := &Client{rdb: kv}
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "fetcher:page:a", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "fetcher:page:b", []byte("2"), 0))
	require.NoError(t, c.Set(ctx, "other:x", []byte("3"), 0))

	n, err := c.Purge(ctx, "fetcher:")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, kv.data, 1)
	assert.NoError(t, c.Close())
}
