package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"backpack/internal/platform/database"
	id "backpack/pkg/domain"
	"backpack/pkg/platform/sentinel"
)

var (
	//go:embed schema_postgres.sql
	postgresSchema string
	//go:embed schema_sqlite.sql
	sqliteSchema string
)

// Schema is the identity DDL per driver.
var Schema = database.Schema{
	database.DriverPostgres: postgresSchema,
	database.DriverSQLite:   sqliteSchema,
}

const (
	issueSQL    = `INSERT INTO identity_backpacks (owner) VALUES (?) RETURNING backpack_id`
	ownerSQL    = `SELECT owner FROM identity_backpacks WHERE backpack_id = ?`
	transferSQL = `UPDATE identity_backpacks SET owner = ? WHERE backpack_id = ? AND owner = ?`
)

// SQLStore relies on the database sequence for monotonic, never-reused
// identifiers (BIGSERIAL on Postgres, AUTOINCREMENT on SQLite).
type SQLStore struct {
	db *sqlx.DB
}

func NewSQL(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Migrate creates the identity table if it does not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	return Schema.Apply(ctx, s.db)
}

func (s *SQLStore) Issue(ctx context.Context, owner id.Principal) (id.BackpackID, error) {
	var backpackID int64
	if err := s.db.GetContext(ctx, &backpackID, s.db.Rebind(issueSQL), owner.String()); err != nil {
		return 0, fmt.Errorf("issue backpack: %w", err)
	}
	return id.BackpackID(backpackID), nil
}

func (s *SQLStore) OwnerOf(ctx context.Context, backpackID id.BackpackID) (id.Principal, error) {
	if uint64(backpackID) > maxSQLID {
		return "", sentinel.ErrNotFound
	}
	var owner string
	err := s.db.GetContext(ctx, &owner, s.db.Rebind(ownerSQL), int64(backpackID))
	if errors.Is(err, sql.ErrNoRows) {
		return "", sentinel.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("find owner: %w", err)
	}
	return id.Principal(owner), nil
}

// Transfer is a compare-and-swap on the owner column.
func (s *SQLStore) Transfer(ctx context.Context, backpackID id.BackpackID, from, to id.Principal) error {
	if uint64(backpackID) > maxSQLID {
		return sentinel.ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(transferSQL), to.String(), int64(backpackID), from.String())
	if err != nil {
		return fmt.Errorf("transfer backpack: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transfer backpack: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := s.OwnerOf(ctx, backpackID); err != nil {
		return err
	}
	return sentinel.ErrConflict
}

// maxSQLID is the largest identifier a signed BIGINT column can hold.
const maxSQLID = 1<<63 - 1
