package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backpack/internal/ledger/metrics"
	"backpack/internal/ledger/models"
	id "backpack/pkg/domain"
	"backpack/pkg/platform/circuit"
)

var limonene = models.Category{Label: "Limonene", Score: 13}

type flakyCache struct {
	err   error
	calls int
}

func (f *flakyCache) Get(context.Context, id.BackpackID, int) (models.Category, bool, error) {
	f.calls++
	if f.err != nil {
		return models.Category{}, false, f.err
	}
	return limonene, true, nil
}

func (f *flakyCache) Put(context.Context, id.BackpackID, int, models.Category) error {
	f.calls++
	return f.err
}

func TestInMemory_KeyedByCount(t *testing.T) {
	ctx := context.Background()
	c := NewInMemory()

	_, ok, err := c.Get(ctx, 1, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, 1, 3, limonene))
	got, ok, err := c.Get(ctx, 1, 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, limonene, got)

	t.Run("an append makes the entry unreachable", func(t *testing.T) {
		_, ok, err := c.Get(ctx, 1, 4)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("an older count never overwrites a newer one", func(t *testing.T) {
		require.NoError(t, c.Put(ctx, 1, 5, models.Category{Label: "Myrcene", Score: 20}))
		require.NoError(t, c.Put(ctx, 1, 3, limonene))
		_, ok, err := c.Get(ctx, 1, 3)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestGuarded_SwallowsFailuresAndOpens(t *testing.T) {
	ctx := context.Background()
	m := metrics.New(prometheus.NewRegistry())
	flaky := &flakyCache{err: errors.New("connection refused")}
	breaker := circuit.New("top-category-cache", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))
	g := NewGuarded(flaky, breaker, WithMetrics(m))

	for range 2 {
		_, ok, err := g.Get(ctx, 1, 1)
		require.NoError(t, err, "backend errors are never surfaced")
		assert.False(t, ok)
	}
	assert.True(t, breaker.IsOpen())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheCircuitState))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.CacheErrors))

	t.Run("open circuit bypasses the backend", func(t *testing.T) {
		calls := flaky.calls
		_, ok, err := g.Get(ctx, 1, 1)
		require.NoError(t, err)
		assert.False(t, ok)
		require.NoError(t, g.Put(ctx, 1, 1, limonene))
		assert.Equal(t, calls, flaky.calls)
	})
}

func TestGuarded_DefaultBreakerSkipsBackendWhileOpen(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyCache{err: errors.New("connection refused")}
	g := NewGuarded(flaky, circuit.New("top-category-cache"))

	for range 20 {
		_, ok, err := g.Get(ctx, 1, 1)
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, 5, flaky.calls, "backend is only called until the circuit opens")
}

func TestGuarded_ClosesAfterRecovery(t *testing.T) {
	ctx := context.Background()
	m := metrics.New(prometheus.NewRegistry())
	flaky := &flakyCache{err: errors.New("timeout")}
	breaker := circuit.New("top-category-cache",
		circuit.WithFailureThreshold(1),
		circuit.WithSuccessThreshold(1),
		circuit.WithCooldown(0),
	)
	g := NewGuarded(flaky, breaker, WithMetrics(m))

	_, _, _ = g.Get(ctx, 1, 1)
	require.True(t, breaker.IsOpen())

	flaky.err = nil
	got, ok, err := g.Get(ctx, 1, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, limonene, got)
	assert.False(t, breaker.IsOpen())
	assert.Equal(t, float64(0), testutil.ToFloat64(m.CacheCircuitState))
}

func TestRedis_UnreachableReturnsError(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	c, err := NewRedis(client, time.Minute, "test")
	require.NoError(t, err)

	_, _, err = c.Get(context.Background(), 1, 1)
	assert.Error(t, err)
	assert.Error(t, c.Put(context.Background(), 1, 1, limonene))
}

func TestRedis_KeyLayout(t *testing.T) {
	a, err := NewRedis(nil, time.Minute, "sqlite-a")
	require.NoError(t, err)
	b, err := NewRedis(nil, time.Minute, "sqlite-b")
	require.NoError(t, err)

	assert.Equal(t, "backpack:top:sqlite-a:42:7", a.key(42, 7))
	assert.NotEqual(t, a.key(42, 7), b.key(42, 7), "same backpack in different ledgers")

	_, err = NewRedis(nil, time.Minute, "")
	assert.Error(t, err)
}
