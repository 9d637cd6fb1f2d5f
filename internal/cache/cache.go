// Package cache provides the cross-run fetch dedup cache: a Redis
// SETNX-backed claim on a hash (the Planner passes a SHA-256 of the page
// URL) so two runs sharing a fetch pool don't both fetch and
// summarize the same page. Wiring it is optional — when unconfigured, the
// engine falls back to the Evidence Bank's own in-process, per-run dedup.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// HashClaims claims hashes cluster-wide so concurrent runs don't
// duplicate fetch+summarize work for the same page.
type HashClaims interface {
	// Claim returns true if this call is the first to claim hash within
	// ttl; false if another run already holds it.
	Claim(ctx context.Context, hash string, ttl time.Duration) (bool, error)
}

// RedisHashClaims implements HashClaims with Redis SETNX.
type RedisHashClaims struct {
	client *redis.Client
}

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Connect dials Redis and verifies connectivity with PING, following the
// teacher's connection-check pattern.
func Connect(ctx context.Context, opts Options) (*RedisHashClaims, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}
	return &RedisHashClaims{client: client}, nil
}

func (r *RedisHashClaims) Claim(ctx context.Context, hash string, ttl time.Duration) (bool, error) {
	key := "ev:hash:" + hash
	ok, err := r.client.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim hash %s: %w", hash, err)
	}
	return ok, nil
}

// Close releases the underlying connection.
func (r *RedisHashClaims) Close() error {
	return r.client.Close()
}

// Client exposes the underlying *redis.Client so other components sharing
// this connection (the journal's Redis mirror) don't each dial their own.
func (r *RedisHashClaims) Client() *redis.Client {
	return r.client
}

// NoopHashClaims always grants the claim, used when no Redis address is
// configured: dedup then relies solely on the in-process Evidence Bank.
type NoopHashClaims struct{}

func (NoopHashClaims) Claim(ctx context.Context, hash string, ttl time.Duration) (bool, error) {
	return true, nil
}
