// Package store keeps renderer settings.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"

	"backpack/internal/platform/database"
)

// InMemory holds the image reference in memory.
type InMemory struct {
	mu    sync.RWMutex
	image string
}

// NewInMemory seeds the image reference.
func NewInMemory(image string) *InMemory {
	return &InMemory{image: image}
}

func (s *InMemory) Image(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.image, nil
}

func (s *InMemory) SetImage(_ context.Context, uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.image = uri
	return nil
}

//go:embed schema.sql
var schema string

// Schema is the settings DDL; it is portable across both drivers.
var Schema = database.Schema{
	database.DriverPostgres: schema,
	database.DriverSQLite:   schema,
}

const (
	imageKey = "image"

	getSettingSQL = `SELECT value FROM metadata_settings WHERE name = ?`
	putSettingSQL = `INSERT INTO metadata_settings (name, value) VALUES (?, ?)
ON CONFLICT (name) DO UPDATE SET value = excluded.value`
	seedSettingSQL = `INSERT INTO metadata_settings (name, value) VALUES (?, ?)
ON CONFLICT (name) DO NOTHING`
)

// SQLStore keeps settings as name/value rows.
type SQLStore struct {
	db *sqlx.DB
}

func NewSQL(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Migrate creates the settings table and seeds the image reference unless
// one has already been stored.
func (s *SQLStore) Migrate(ctx context.Context, defaultImage string) error {
	if err := Schema.Apply(ctx, s.db); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(seedSettingSQL), imageKey, defaultImage); err != nil {
		return fmt.Errorf("seed image setting: %w", err)
	}
	return nil
}

func (s *SQLStore) Image(ctx context.Context) (string, error) {
	var uri string
	err := s.db.GetContext(ctx, &uri, s.db.Rebind(getSettingSQL), imageKey)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load image setting: %w", err)
	}
	return uri, nil
}

func (s *SQLStore) SetImage(ctx context.Context, uri string) error {
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(putSettingSQL), imageKey, uri); err != nil {
		return fmt.Errorf("store image setting: %w", err)
	}
	return nil
}
