package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	pingTimeout = 3 * time.Second
	keyPrefix   = "relay:blocked:"
)

// BlockCache keeps user block statuses in Redis.
type BlockCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewBlockCache(url string, ttl time.Duration) (*BlockCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return &BlockCache{client: client, ttl: ttl}, nil
}

// GetBlocked returns the cached status, found is false on a cache miss.
func (c *BlockCache) GetBlocked(ctx context.Context, userID int64) (blocked, found bool, err error) {
	res, err := c.client.Get(ctx, key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}

	blocked, err = strconv.ParseBool(res)
	if err != nil {
		return false, false, fmt.Errorf("parsing cached value %q: %w", res, err)
	}

	return blocked, true, nil
}

func (c *BlockCache) SetBlocked(ctx context.Context, userID int64, blocked bool) error {
	return c.client.Set(ctx, key(userID), strconv.FormatBool(blocked), c.ttl).Err()
}

// SetBlockedIfAbsent stores the status only when no entry exists yet.
func (c *BlockCache) SetBlockedIfAbsent(ctx context.Context, userID int64, blocked bool) error {
	return c.client.SetNX(ctx, key(userID), strconv.FormatBool(blocked), c.ttl).Err()
}

func (c *BlockCache) Close() error {
	return c.client.Close()
}

func key(userID int64) string {
	return keyPrefix + strconv.FormatInt(userID, 10)
}
