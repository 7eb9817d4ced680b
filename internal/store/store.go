// Package store defines the persistence interface for authorized origins
// and wallet records, with SQLite, PostgreSQL, and Redis implementations.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/sat20-labs/walletd/internal/config"
)

// Wallet is the persisted record of a wallet known to the background
// service. Key material never lives here; it stays inside the engine.
type Wallet struct {
	ID        string
	Name      string
	Address   string
	PubKey    string
	CreatedAt time.Time
}

// Store is the persistence interface consumed by the authorization
// manager (origins, read-mostly) and the router's wallet-session check.
type Store interface {
	// Authorized origins
	AddOrigin(ctx context.Context, origin string) error
	RemoveOrigin(ctx context.Context, origin string) error
	HasOrigin(ctx context.Context, origin string) (bool, error)
	ListOrigins(ctx context.Context) ([]string, error)

	// Wallets
	PutWallet(ctx context.Context, w *Wallet) error
	GetWallet(ctx context.Context, id string) (*Wallet, error)
	HasWallet(ctx context.Context) (bool, error)
	RemoveWallet(ctx context.Context, id string) error

	// Health
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// New creates a Store based on the configured storage driver.
func New(cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgres(cfg.DSN)
	case "redis":
		return NewRedis(cfg.DSN)
	case "sqlite", "":
		return NewSQLite(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %q", cfg.Driver)
	}
}
