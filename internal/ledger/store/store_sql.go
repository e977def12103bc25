package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jmoiron/sqlx"

	"backpack/internal/ledger/models"
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

// Schema is the ledger DDL per driver.
var Schema = database.Schema{
	database.DriverPostgres: postgresSchema,
	database.DriverSQLite:   sqliteSchema,
}

const (
	bumpHeadSQL = `INSERT INTO ledger_heads (backpack_id, item_count) VALUES (?, 1)
ON CONFLICT (backpack_id) DO UPDATE SET item_count = ledger_heads.item_count + 1
RETURNING item_count`

	insertItemSQL = `INSERT INTO ledger_items
(backpack_id, position, product, category, terpene_tag, amount, recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`

	addScoreSQL = `INSERT INTO ledger_scores (backpack_id, terpene_tag, score) VALUES (?, ?, ?)
ON CONFLICT (backpack_id, terpene_tag) DO UPDATE SET score = ledger_scores.score + excluded.score`

	countSQL = `SELECT item_count FROM ledger_heads WHERE backpack_id = ?`

	itemAtSQL = `SELECT product, category, terpene_tag, amount, recorded_at
FROM ledger_items WHERE backpack_id = ? AND position = ?`

	listItemsSQL = `SELECT product, category, terpene_tag, amount, recorded_at
FROM ledger_items WHERE backpack_id = ? ORDER BY position`

	listScoresSQL = `SELECT terpene_tag, score FROM ledger_scores WHERE backpack_id = ?`
)

// ErrAmountTooLarge is returned when an amount or score cannot be
// represented in a signed 64-bit column.
var ErrAmountTooLarge = fmt.Errorf("amount exceeds sql storage range: %w", sentinel.ErrOutOfRange)

// SQLStore persists ledgers in PostgreSQL or SQLite.
//
// Every append runs in one transaction that first bumps the backpack's head
// row. The head row doubles as the per-backpack write lock: Postgres holds its
// row lock until commit and SQLite admits a single writer, so concurrent
// appends to one backpack serialize while other backpacks proceed.
type SQLStore struct {
	db *sqlx.DB
}

// NewSQL constructs a SQL-backed ledger store. Call Migrate before use.
func NewSQL(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Migrate creates the ledger tables if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	return Schema.Apply(ctx, s.db)
}

type itemRow struct {
	Product    string    `db:"product"`
	Category   string    `db:"category"`
	TerpeneTag string    `db:"terpene_tag"`
	Amount     int64     `db:"amount"`
	RecordedAt time.Time `db:"recorded_at"`
}

func (r itemRow) toModel() models.PurchaseItem {
	return models.PurchaseItem{
		Product:    r.Product,
		Category:   r.Category,
		TerpeneTag: r.TerpeneTag,
		Amount:     uint64(r.Amount),
		RecordedAt: r.RecordedAt.UTC(),
	}
}

type scoreRow struct {
	TerpeneTag string `db:"terpene_tag"`
	Score      int64  `db:"score"`
}

func (s *SQLStore) Append(ctx context.Context, backpackID id.BackpackID, item models.PurchaseItem) (int, error) {
	if item.Amount > math.MaxInt64 {
		return 0, ErrAmountTooLarge
	}
	var count int64
	err := database.RunInTx(ctx, s.db, nil, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &count, tx.Rebind(bumpHeadSQL), int64(backpackID)); err != nil {
			return fmt.Errorf("bump ledger head: %w", err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(insertItemSQL),
			int64(backpackID), count-1,
			item.Product, item.Category, item.TerpeneTag,
			int64(item.Amount), item.RecordedAt.UTC(),
		); err != nil {
			return fmt.Errorf("insert ledger item: %w", err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(addScoreSQL),
			int64(backpackID), item.TerpeneTag, int64(item.Weight()),
		); err != nil {
			return fmt.Errorf("apply item score: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (s *SQLStore) Count(ctx context.Context, backpackID id.BackpackID) (int, error) {
	var count int64
	err := s.db.GetContext(ctx, &count, s.db.Rebind(countSQL), int64(backpackID))
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("count ledger items: %w", err)
	}
	return int(count), nil
}

func (s *SQLStore) ItemAt(ctx context.Context, backpackID id.BackpackID, index int) (models.PurchaseItem, error) {
	if index < 0 {
		return models.PurchaseItem{}, sentinel.ErrOutOfRange
	}
	var row itemRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(itemAtSQL), int64(backpackID), int64(index))
	if errors.Is(err, sql.ErrNoRows) {
		return models.PurchaseItem{}, sentinel.ErrOutOfRange
	}
	if err != nil {
		return models.PurchaseItem{}, fmt.Errorf("load ledger item: %w", err)
	}
	return row.toModel(), nil
}

// Snapshot reads items and scores inside one read transaction so both
// reflect the same committed append.
func (s *SQLStore) Snapshot(ctx context.Context, backpackID id.BackpackID) (models.Snapshot, error) {
	snap := models.Snapshot{BackpackID: backpackID, Scores: map[string]uint64{}}
	err := database.RunInTx(ctx, s.db, database.ReadTxOptions(s.db), func(tx *sqlx.Tx) error {
		var items []itemRow
		if err := tx.SelectContext(ctx, &items, tx.Rebind(listItemsSQL), int64(backpackID)); err != nil {
			return fmt.Errorf("list ledger items: %w", err)
		}
		var scores []scoreRow
		if err := tx.SelectContext(ctx, &scores, tx.Rebind(listScoresSQL), int64(backpackID)); err != nil {
			return fmt.Errorf("list ledger scores: %w", err)
		}
		snap.Items = make([]models.PurchaseItem, 0, len(items))
		for _, row := range items {
			snap.Items = append(snap.Items, row.toModel())
		}
		for _, row := range scores {
			snap.Scores[row.TerpeneTag] = uint64(row.Score)
		}
		return nil
	})
	if err != nil {
		return models.Snapshot{}, err
	}
	return snap, nil
}
