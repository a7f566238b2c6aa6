package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Skotchmaster/userauth/internal/logging"
	"github.com/Skotchmaster/userauth/internal/repo"
)

const keyPrefix = "revoked:"

type Ledger interface {
	Revoke(ctx context.Context, jti string, at time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// RevocationCache sits in front of the durable ledger. Only positive answers
// are cached: once revoked a jti never becomes active again, so a cached
// "revoked" cannot go stale before the token itself has expired.
type RevocationCache struct {
	client *redis.Client
	ledger Ledger
	ttl    time.Duration
}

func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func NewRevocationCache(client *redis.Client, ledger Ledger, ttl time.Duration) *RevocationCache {
	return &RevocationCache{client: client, ledger: ledger, ttl: ttl}
}

func (c *RevocationCache) Revoke(ctx context.Context, jti string, at time.Time) error {
	err := c.ledger.Revoke(ctx, jti, at)
	if err != nil && !errors.Is(err, repo.ErrAlreadyRevoked) {
		return err
	}
	c.remember(ctx, jti)
	return err
}

func (c *RevocationCache) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := c.client.Exists(ctx, keyPrefix+jti).Result()
	if err == nil && n > 0 {
		return true, nil
	}
	if err != nil {
		logging.FromContext(ctx).Warn("revocation_cache_unavailable", "jti", jti, "error", err)
	}

	revoked, err := c.ledger.IsRevoked(ctx, jti)
	if err != nil {
		return false, err
	}
	if revoked {
		c.remember(ctx, jti)
	}
	return revoked, nil
}

func (c *RevocationCache) remember(ctx context.Context, jti string) {
	if err := c.client.Set(ctx, keyPrefix+jti, 1, c.ttl).Err(); err != nil {
		logging.FromContext(ctx).Warn("revocation_cache_write_failed", "jti", jti, "error", err)
	}
}
