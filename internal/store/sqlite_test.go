package store

import (
	"context"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/sat20-labs/walletd/internal/config"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFactoryDriverSelection(t *testing.T) {
	s, err := New(config.StorageConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "f.db")})
	if err != nil {
		t.Fatalf("factory sqlite: %v", err)
	}
	s.Close()

	if _, err := New(config.StorageConfig{Driver: "etcd"}); err == nil {
		t.Fatal("unknown driver should fail")
	}
}

func TestOrigins(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ok, err := s.HasOrigin(ctx, "https://a.example.com")
	if err != nil || ok {
		t.Fatalf("HasOrigin on empty store = %v, %v", ok, err)
	}

	for _, o := range []string{"https://a.example.com", "https://b.example.com"} {
		if err := s.AddOrigin(ctx, o); err != nil {
			t.Fatalf("AddOrigin(%s): %v", o, err)
		}
	}
	// Adding the same origin twice is not an error.
	if err := s.AddOrigin(ctx, "https://a.example.com"); err != nil {
		t.Fatalf("re-AddOrigin: %v", err)
	}

	ok, err = s.HasOrigin(ctx, "https://a.example.com")
	if err != nil || !ok {
		t.Fatalf("HasOrigin = %v, %v", ok, err)
	}

	origins, err := s.ListOrigins(ctx)
	if err != nil {
		t.Fatalf("ListOrigins: %v", err)
	}
	sort.Strings(origins)
	if len(origins) != 2 || origins[0] != "https://a.example.com" {
		t.Fatalf("origins = %v", origins)
	}

	if err := s.RemoveOrigin(ctx, "https://a.example.com"); err != nil {
		t.Fatalf("RemoveOrigin: %v", err)
	}
	ok, _ = s.HasOrigin(ctx, "https://a.example.com")
	if ok {
		t.Fatal("origin survived removal")
	}
}

func TestWallets(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ok, err := s.HasWallet(ctx)
	if err != nil || ok {
		t.Fatalf("HasWallet on empty store = %v, %v", ok, err)
	}

	w := &Wallet{
		ID:        "w1",
		Name:      "main",
		Address:   "bc1qexample",
		PubKey:    "02abcdef",
		CreatedAt: time.Now().UTC(),
	}
	if err := s.PutWallet(ctx, w); err != nil {
		t.Fatalf("PutWallet: %v", err)
	}

	ok, err = s.HasWallet(ctx)
	if err != nil || !ok {
		t.Fatalf("HasWallet = %v, %v", ok, err)
	}

	got, err := s.GetWallet(ctx, "w1")
	if err != nil {
		t.Fatalf("GetWallet: %v", err)
	}
	if got == nil || got.Address != "bc1qexample" || got.Name != "main" {
		t.Fatalf("wallet = %+v", got)
	}

	// Upsert keeps a single row.
	w.Name = "renamed"
	if err := s.PutWallet(ctx, w); err != nil {
		t.Fatalf("re-PutWallet: %v", err)
	}
	got, _ = s.GetWallet(ctx, "w1")
	if got.Name != "renamed" {
		t.Fatalf("name after upsert = %s", got.Name)
	}

	missing, err := s.GetWallet(ctx, "ghost")
	if err != nil || missing != nil {
		t.Fatalf("GetWallet(ghost) = %+v, %v", missing, err)
	}

	if err := s.RemoveWallet(ctx, "w1"); err != nil {
		t.Fatalf("RemoveWallet: %v", err)
	}
	ok, _ = s.HasWallet(ctx)
	if ok {
		t.Fatal("wallet survived removal")
	}
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
