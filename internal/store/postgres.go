package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres creates a new PostgreSQL store and runs migrations.
func NewPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &PostgresStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS authorized_origins (
			origin TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS wallets (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			pubkey TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) AddOrigin(ctx context.Context, origin string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO authorized_origins (origin) VALUES ($1) ON CONFLICT(origin) DO NOTHING`, origin)
	return err
}

func (s *PostgresStore) RemoveOrigin(ctx context.Context, origin string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM authorized_origins WHERE origin = $1`, origin)
	return err
}

func (s *PostgresStore) HasOrigin(ctx context.Context, origin string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM authorized_origins WHERE origin = $1`, origin).Scan(&n)
	return n > 0, err
}

func (s *PostgresStore) ListOrigins(ctx context.Context) ([]string, error) {
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

func (s *PostgresStore) PutWallet(ctx context.Context, w *Wallet) error {
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO wallets (id, name, address, pubkey, created_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT(id) DO UPDATE SET name = EXCLUDED.name, address = EXCLUDED.address, pubkey = EXCLUDED.pubkey`,
		w.ID, w.Name, w.Address, w.PubKey, w.CreatedAt)
	return err
}

func (s *PostgresStore) GetWallet(ctx context.Context, id string) (*Wallet, error) {
	var w Wallet
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, address, pubkey, created_at FROM wallets WHERE id = $1`, id).
		Scan(&w.ID, &w.Name, &w.Address, &w.PubKey, &w.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *PostgresStore) HasWallet(ctx context.Context) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM wallets`).Scan(&n)
	return n > 0, err
}

func (s *PostgresStore) RemoveWallet(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM wallets WHERE id = $1`, id)
	return err
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
