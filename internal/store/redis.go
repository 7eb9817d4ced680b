package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	originsKey      = "walletd:authorized_origins"
	walletKeyPrefix = "walletd:wallet:"
	walletIndexKey  = "walletd:wallets"
)

// RedisStore implements Store using Redis. Origins live in a set; wallet
// records are JSON values indexed by a companion set.
type RedisStore struct {
	client *redis.Client
}

// NewRedis creates a Redis store from an address ("host:port") or a
// redis:// URL.
func NewRedis(dsn string) (*RedisStore, error) {
	var opts *redis.Options
	if dsn == "" {
		return nil, fmt.Errorf("redis storage requires a dsn")
	}
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		// Fall back to treating the DSN as a bare address.
		opts = &redis.Options{Addr: dsn}
	}
	return &RedisStore{client: redis.NewClient(opts)}, nil
}

func (r *RedisStore) AddOrigin(ctx context.Context, origin string) error {
	return r.client.SAdd(ctx, originsKey, origin).Err()
}

func (r *RedisStore) RemoveOrigin(ctx context.Context, origin string) error {
	return r.client.SRem(ctx, originsKey, origin).Err()
}

func (r *RedisStore) HasOrigin(ctx context.Context, origin string) (bool, error) {
	return r.client.SIsMember(ctx, originsKey, origin).Result()
}

func (r *RedisStore) ListOrigins(ctx context.Context) ([]string, error) {
	return r.client.SMembers(ctx, originsKey).Result()
}

func (r *RedisStore) PutWallet(ctx context.Context, w *Wallet) error {
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}
	data, err := json.Marshal(w)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, walletKeyPrefix+w.ID, data, 0).Err(); err != nil {
		return err
	}
	return r.client.SAdd(ctx, walletIndexKey, w.ID).Err()
}

func (r *RedisStore) GetWallet(ctx context.Context, id string) (*Wallet, error) {
	data, err := r.client.Get(ctx, walletKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var w Wallet
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *RedisStore) HasWallet(ctx context.Context) (bool, error) {
	n, err := r.client.SCard(ctx, walletIndexKey).Result()
	return n > 0, err
}

func (r *RedisStore) RemoveWallet(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, walletKeyPrefix+id).Err(); err != nil {
		return err
	}
	return r.client.SRem(ctx, walletIndexKey, id).Err()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
