package store

import (
	"context"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"backpack/internal/platform/database"
	id "backpack/pkg/domain"
	"backpack/pkg/platform/sentinel"
)

type identityStore interface {
	Issue(ctx context.Context, owner id.Principal) (id.BackpackID, error)
	OwnerOf(ctx context.Context, backpackID id.BackpackID) (id.Principal, error)
	Transfer(ctx context.Context, backpackID id.BackpackID, from, to id.Principal) error
}

type IdentityStoreSuite struct {
	suite.Suite
	newStore func(t *testing.T) identityStore
	store    identityStore
	ctx      context.Context
}

func (s *IdentityStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.newStore(s.T())
}

func TestInMemoryIdentityStoreSuite(t *testing.T) {
	suite.Run(t, &IdentityStoreSuite{newStore: func(*testing.T) identityStore { return NewInMemory() }})
}

func TestSQLiteIdentityStoreSuite(t *testing.T) {
	suite.Run(t, &IdentityStoreSuite{newStore: func(t *testing.T) identityStore {
		db, err := database.Open(context.Background(), database.Config{
			Driver: database.DriverSQLite,
			DSN:    filepath.Join(t.TempDir(), "identity.db"),
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		store := NewSQL(db)
		require.NoError(t, store.Migrate(context.Background()))
		return store
	}})
}

// TestIssue verifies identifiers start at 1 and increase monotonically.
func (s *IdentityStoreSuite) TestIssue() {
	first, err := s.store.Issue(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(id.BackpackID(1), first)

	second, err := s.store.Issue(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(id.BackpackID(2), second)

	owner, err := s.store.OwnerOf(s.ctx, second)
	s.Require().NoError(err)
	s.Equal(id.Principal("alice"), owner)
}

// TestConcurrentIssueNeverReuses verifies concurrent issuance hands out
// distinct identifiers.
func (s *IdentityStoreSuite) TestConcurrentIssueNeverReuses() {
	const n = 20
	ids := make(chan id.BackpackID, n)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			issued, err := s.store.Issue(s.ctx, "bob")
			s.NoError(err)
			ids <- issued
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[id.BackpackID]bool)
	for issued := range ids {
		s.False(seen[issued], "identifier %d issued twice", issued)
		seen[issued] = true
	}
	s.Len(seen, n)
}

// TestOwnerOf verifies unknown identifiers report ErrNotFound.
func (s *IdentityStoreSuite) TestOwnerOf() {
	for _, unknown := range []id.BackpackID{1, 99, math.MaxUint64} {
		_, err := s.store.OwnerOf(s.ctx, unknown)
		s.ErrorIs(err, sentinel.ErrNotFound)
	}
}

// TestTransfer verifies ownership moves only from the current owner.
func (s *IdentityStoreSuite) TestTransfer() {
	backpack, err := s.store.Issue(s.ctx, "alice")
	s.Require().NoError(err)

	s.Run("stale owner conflicts", func() {
		s.ErrorIs(s.store.Transfer(s.ctx, backpack, "mallory", "bob"), sentinel.ErrConflict)
	})

	s.Run("current owner transfers", func() {
		s.Require().NoError(s.store.Transfer(s.ctx, backpack, "alice", "bob"))
		owner, err := s.store.OwnerOf(s.ctx, backpack)
		s.Require().NoError(err)
		s.Equal(id.Principal("bob"), owner)
	})

	s.Run("unknown backpack", func() {
		s.ErrorIs(s.store.Transfer(s.ctx, 404, "alice", "bob"), sentinel.ErrNotFound)
	})
}
