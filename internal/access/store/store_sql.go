package store

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jmoiron/sqlx"

	"backpack/internal/platform/database"
	id "backpack/pkg/domain"
)

var (
	//go:embed schema_postgres.sql
	postgresSchema string
	//go:embed schema_sqlite.sql
	sqliteSchema string
)

// Schema is the access registry DDL per driver.
var Schema = database.Schema{
	database.DriverPostgres: postgresSchema,
	database.DriverSQLite:   sqliteSchema,
}

const (
	grantSQL  = `INSERT INTO access_agents (principal) VALUES (?) ON CONFLICT (principal) DO NOTHING`
	revokeSQL = `DELETE FROM access_agents WHERE principal = ?`
	isSQL     = `SELECT COUNT(*) FROM access_agents WHERE principal = ?`
	listSQL   = `SELECT principal FROM access_agents ORDER BY principal`
)

// SQLStore keeps the agent set in PostgreSQL or SQLite.
type SQLStore struct {
	db *sqlx.DB
}

func NewSQL(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Migrate creates the agent table if it does not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	return Schema.Apply(ctx, s.db)
}

func (s *SQLStore) SetAgent(ctx context.Context, principal id.Principal, allowed bool) error {
	query := revokeSQL
	if allowed {
		query = grantSQL
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), principal.String()); err != nil {
		return fmt.Errorf("set agent: %w", err)
	}
	return nil
}

func (s *SQLStore) IsAgent(ctx context.Context, principal id.Principal) (bool, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(isSQL), principal.String()); err != nil {
		return false, fmt.Errorf("check agent: %w", err)
	}
	return n > 0, nil
}

func (s *SQLStore) ListAgents(ctx context.Context) ([]id.Principal, error) {
	var rows []string
	if err := s.db.SelectContext(ctx, &rows, listSQL); err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	out := make([]id.Principal, len(rows))
	for i, p := range rows {
		out[i] = id.Principal(p)
	}
	return out, nil
}
