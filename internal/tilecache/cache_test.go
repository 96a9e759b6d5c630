package tilecache

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/EmpoweredVote/forestwatch/internal/spatial"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	b := spatial.BBox{MinX: 100, MinY: 10, MaxX: 101, MaxY: 11}
	require.Equal(t, "parcels:100.000:10.000:101.000:11.000:z8", Key("parcels", b, 8, 3))

	// viewports inside the same snapped cell share a key
	a := Key("parcels", spatial.BBox{MinX: 100.0004, MinY: 10.0002, MaxX: 100.9991, MaxY: 10.9999}, 8, 3)
	require.Equal(t, "parcels:100.000:10.000:101.000:11.000:z8", a)

	// snapping is outward
	require.Equal(t, "detections:-0.002:-1.000:1.000:0.000:z12",
		Key("detections", spatial.BBox{MinX: -0.0011, MinY: -1, MaxX: 0.9999, MaxY: -0.0001}, 12, 3))

	require.NotEqual(t, Key("parcels", b, 8, 3), Key("parcels", b, 9, 3))
	require.NotEqual(t, Key("parcels", b, 8, 3), Key("detections", b, 8, 3))
}

func TestCodecRoundTrip(t *testing.T) {
	raw := []byte(strings.Repeat(`{"type":"Feature","properties":{"gid":1}}`, 200))
	enc, err := compress(raw)
	require.NoError(t, err)
	require.Less(t, len(enc), len(raw))

	dec, err := decompress(enc)
	require.NoError(t, err)
	require.True(t, bytes.Equal(raw, dec))

	_, err = decompress([]byte("not gzip"))
	require.Error(t, err)
}

func TestMemoryBackendExpiresOnRead(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	m := NewMemoryBackend(clock)

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))
	v, remaining, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), v)
	require.Equal(t, time.Minute, remaining)

	clock.Advance(59 * time.Second)
	_, remaining, ok, _ = m.Get(ctx, "k")
	require.True(t, ok)
	require.Equal(t, time.Second, remaining)

	clock.Advance(time.Second)
	_, _, ok, _ = m.Get(ctx, "k")
	require.False(t, ok)
	require.Zero(t, m.Len())
}

func TestMemoryBackendClear(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend(clockwork.NewFakeClock())
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, m.Set(ctx, k, []byte(k), time.Hour))
	}
	n, err := m.Clear(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Zero(t, m.Len())
}

func TestCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	c := New(NewMemoryBackend(clock), slog.New(slog.DiscardHandler), time.Second)

	payload := []byte(`{"type":"FeatureCollection","features":[]}`)
	_, _, ok := c.Get(ctx, "parcels:0.000:0.000:1.000:1.000:z8")
	require.False(t, ok)

	c.Set(ctx, "parcels:0.000:0.000:1.000:1.000:z8", payload, 2*time.Hour)
	got, remaining, ok := c.Get(ctx, "parcels:0.000:0.000:1.000:1.000:z8")
	require.True(t, ok)
	require.Equal(t, payload, got)
	require.Equal(t, 2*time.Hour, remaining)

	clock.Advance(90 * time.Minute)
	_, remaining, ok = c.Get(ctx, "parcels:0.000:0.000:1.000:1.000:z8")
	require.True(t, ok)
	require.Equal(t, 30*time.Minute, remaining)

	clock.Advance(30 * time.Minute)
	_, _, ok = c.Get(ctx, "parcels:0.000:0.000:1.000:1.000:z8")
	require.False(t, ok)
}

func TestCacheSkipsNonPositiveTTL(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend(clockwork.NewFakeClock())
	c := New(m, slog.New(slog.DiscardHandler), 0)
	c.Set(ctx, "k", []byte("{}"), 0)
	require.Zero(t, m.Len())
}

type brokenBackend struct{ err error }

func (b brokenBackend) Name() string { return "broken" }
func (b brokenBackend) Get(context.Context, string) ([]byte, time.Duration, bool, error) {
	return nil, 0, false, b.err
}
func (b brokenBackend) Set(context.Context, string, []byte, time.Duration) error { return b.err }
func (b brokenBackend) Clear(context.Context) (int, error)                       { return 0, b.err }
func (b brokenBackend) Close() error                                             { return nil }

func TestCacheSwallowsBackendErrors(t *testing.T) {
	ctx := context.Background()
	c := New(brokenBackend{err: errors.New("connection refused")}, slog.New(slog.DiscardHandler), time.Second)

	require.NotPanics(t, func() { c.Set(ctx, "k", []byte("{}"), time.Minute) })
	_, _, ok := c.Get(ctx, "k")
	require.False(t, ok)

	_, err := c.Clear(ctx)
	require.Error(t, err)
}

func TestCacheCorruptEntryIsAMiss(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend(clockwork.NewFakeClock())
	require.NoError(t, m.Set(ctx, "k", []byte("garbage"), time.Minute))

	c := New(m, slog.New(slog.DiscardHandler), 0)
	_, _, ok := c.Get(ctx, "k")
	require.False(t, ok)
}

func TestRedisBackend(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("skipping redis test (requires REDIS_ADDR)")
	}
	ctx := context.Background()
	prefix := "tiles-test:" + time.Now().Format("150405.000000") + ":"
	rb := NewRedisBackend(redis.NewClient(&redis.Options{Addr: addr}), prefix)
	defer rb.Close()
	require.NoError(t, rb.Ping(ctx))

	c := New(rb, slog.New(slog.DiscardHandler), time.Second)
	payload := []byte(`{"type":"FeatureCollection","features":[]}`)
	c.Set(ctx, "a", payload, time.Minute)
	c.Set(ctx, "b", payload, time.Minute)

	got, remaining, ok := c.Get(ctx, "a")
	require.True(t, ok)
	require.Equal(t, payload, got)
	require.Greater(t, remaining, 50*time.Second)
	require.LessOrEqual(t, remaining, time.Minute)

	ttl, err := rb.client.TTL(ctx, prefix+"a").Result()
	require.NoError(t, err)
	require.Greater(t, ttl, 50*time.Second)

	n, err := c.Clear(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	_, _, ok = c.Get(ctx, "a")
	require.False(t, ok)
}
