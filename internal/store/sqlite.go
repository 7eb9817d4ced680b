package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite. It is the default driver.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite store and runs migrations.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	// For in-memory databases, use shared cache so all connections in the
	// pool see the same data.
	if dsn == ":memory:" {
		dsn = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS authorized_origins (
			origin TEXT PRIMARY KEY,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS wallets (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			pubkey TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) AddOrigin(ctx context.Context, origin string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO authorized_origins (origin) VALUES (?) ON CONFLICT(origin) DO NOTHING`, origin)
	return err
}

func (s *SQLiteStore) RemoveOrigin(ctx context.Context, origin string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM authorized_origins WHERE origin = ?`, origin)
	return err
}

func (s *SQLiteStore) HasOrigin(ctx context.Context, origin string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM authorized_origins WHERE origin = ?`, origin).Scan(&n)
	return n > 0, err
}

func (s *SQLiteStore) ListOrigins(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT origin FROM authorized_origins ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var origins []string
	for rows.Next() {
		var o string
		if err := rows.Scan(&o); err != nil {
			return nil, err
		}
		origins = append(origins, o)
	}
	return origins, rows.Err()
}

func (s *SQLiteStore) PutWallet(ctx context.Context, w *Wallet) error {
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO wallets (id, name, address, pubkey, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, address = excluded.address, pubkey = excluded.pubkey`,
		w.ID, w.Name, w.Address, w.PubKey, w.CreatedAt)
	return err
}

func (s *SQLiteStore) GetWallet(ctx context.Context, id string) (*Wallet, error) {
	var w Wallet
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, address, pubkey, created_at FROM wallets WHERE id = ?`, id).
		Scan(&w.ID, &w.Name, &w.Address, &w.PubKey, &w.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *SQLiteStore) HasWallet(ctx context.Context) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM wallets`).Scan(&n)
	return n > 0, err
}

func (s *SQLiteStore) RemoveWallet(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM wallets WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
