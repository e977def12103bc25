//go:build integration

package store

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"backpack/pkg/testutil/containers"
)

func TestPostgresLedgerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.NewPostgresContainer(t)
	suite.Run(t, &SQLLedgerSuite{openDB: func(t *testing.T) *sqlx.DB {
		require.NoError(t, NewSQL(pg.DB).Migrate(context.Background()))
		require.NoError(t, pg.TruncateTables(context.Background(), "ledger_heads", "ledger_items", "ledger_scores"))
		return pg.DB
	}})
}
