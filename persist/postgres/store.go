// Package postgres stores snapshots in a single key/value table.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/cyp0633/libroutine/persist"
)

// DefaultTable is the snapshot table name used by New
const DefaultTable = "routine_snapshots"

// DB is the subset of *pgxpool.Pool used by the store.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements persist.Store on a postgres table
type Store struct {
	db    DB
	table string
}

// New returns a store using DefaultTable
func New(db DB) *Store {
	return &Store{db: db, table: DefaultTable}
}

// EnsureSchema creates the snapshot table if it does not exist
func (s *Store) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		key        TEXT PRIMARY KEY,
		data       BYTEA NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, pgx.Identifier{s.table}.Sanitize())
	if _, err := s.db.Exec(ctx, q); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	q := fmt.Sprintf(`SELECT data FROM %s WHERE key=$1`, pgx.Identifier{s.table}.Sanitize())

	var data []byte
	err := s.db.QueryRow(ctx, q, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, persist.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	q := fmt.Sprintf(`INSERT INTO %s (key, data, updated_at) VALUES ($1, $2, now())
	      ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		pgx.Identifier{s.table}.Sanitize())
	_, err := s.db.Exec(ctx, q, key, data)
	return err
}

// NewWithTable returns a store using a custom table name
func NewWithTable(db DB, table string) *Store {
	if table == "" {
		table = DefaultTable
	}
	return &Store{db: db, table: table}
}
