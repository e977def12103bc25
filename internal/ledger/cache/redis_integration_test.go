//go:build integration

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accessservice "backpack/internal/access/service"
	accessstore "backpack/internal/access/store"
	identityservice "backpack/internal/identity/service"
	identitystore "backpack/internal/identity/store"
	"backpack/internal/ledger/cache"
	"backpack/internal/ledger/models"
	ledgerservice "backpack/internal/ledger/service"
	ledgerstore "backpack/internal/ledger/store"
	id "backpack/pkg/domain"
	"backpack/pkg/testutil"
	"backpack/pkg/testutil/containers"
)

var limonene = models.Category{Label: "Limonene", Score: 13}

func TestRedis_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()
	c, err := cache.NewRedis(rc.Client, time.Minute, "roundtrip")
	require.NoError(t, err)

	_, ok, err := c.Get(ctx, 1, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, 1, 3, limonene))
	got, ok, err := c.Get(ctx, 1, 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, limonene, got)

	ttl, err := rc.Client.TTL(ctx, "backpack:top:roundtrip:1:3").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

// newCachedLedger wires an in-memory ledger whose top-category lookups go
// through the given cache, with backpack 1 issued to the owner.
func newCachedLedger(t *testing.T, topCache cache.Cache) *ledgerservice.Service {
	t.Helper()
	const admin, owner id.Principal = "0xAdmin", "0xAlice"
	access, err := accessservice.New(admin, accessstore.NewInMemory())
	require.NoError(t, err)
	identity, err := identityservice.New(identitystore.NewInMemory(), access)
	require.NoError(t, err)
	ledger, err := ledgerservice.New(ledgerstore.NewInMemory(), identity, access, ledgerservice.WithCache(topCache))
	require.NoError(t, err)

	backpackID, err := identity.Issue(testutil.Context(), admin, owner)
	require.NoError(t, err)
	require.Equal(t, id.BackpackID(1), backpackID)
	return ledger
}

func TestRedis_LedgersSharingOneRedisStayIsolated(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rc := containers.NewRedisContainer(t)
	ctx := testutil.Context()

	cacheA, err := cache.NewRedis(rc.Client, time.Minute, "ledger-a")
	require.NoError(t, err)
	cacheB, err := cache.NewRedis(rc.Client, time.Minute, "ledger-b")
	require.NoError(t, err)
	ledgerA := newCachedLedger(t, cacheA)
	ledgerB := newCachedLedger(t, cacheB)

	_, err = ledgerA.RecordPurchase(ctx, "0xAlice", 1, models.NewPurchase{TerpeneTag: "Limonene", Amount: 10})
	require.NoError(t, err)
	_, err = ledgerB.RecordPurchase(ctx, "0xAlice", 1, models.NewPurchase{TerpeneTag: "Myrcene", Amount: 2})
	require.NoError(t, err)

	topA, err := ledgerA.TopCategory(ctx, 1)
	require.NoError(t, err)
	topB, err := ledgerB.TopCategory(ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, models.Category{Label: "Limonene", Score: 10}, topA)
	assert.Equal(t, models.Category{Label: "Myrcene", Score: 2}, topB)
}
