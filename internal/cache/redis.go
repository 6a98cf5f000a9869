package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/geocoder89/authhub/internal/domain/user"
	"github.com/redis/go-redis/v9"
)

type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedis(addr string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	return &Redis{rdb: rdb, ttl: ttl}
}

// Ping checks connectivity so startup can fail loudly on a bad address.
func (c *Redis) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Redis) Close() error {
	return c.rdb.Close()
}

func key(id string) string {
	return "user:public:" + id
}

// Get is best effort: a Redis error reads as a miss and the caller falls
// through to the store.
func (c *Redis) Get(ctx context.Context, id string) (user.Public, bool) {
	raw, err := c.rdb.Get(ctx, key(id)).Bytes()

	if err != nil {
		return user.Public{}, false
	}

	var u user.Public

	if err := json.Unmarshal(raw, &u); err != nil {
		return user.Public{}, false
	}

	return u, true
}

func (c *Redis) Set(ctx context.Context, u user.Public) {
	raw, err := json.Marshal(u)

	if err != nil {
		return
	}

	_ = c.rdb.Set(ctx, key(u.ID), raw, c.ttl).Err()
}

func (c *Redis) Delete(ctx context.Context, id string) {
	_ = c.rdb.Del(ctx, key(id)).Err()
}
