// Package cache holds the user-projection cache that sits in front of the
// store for profile reads. Two implementations: an in-process TTL map and a
// Redis-backed one for multi-instance deployments.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/geocoder89/authhub/internal/domain/user"
)

type UserCache interface {
	Get(ctx context.Context, id string) (user.Public, bool)
	Set(ctx context.Context, u user.Public)
	Delete(ctx context.Context, id string)
}

type Memory struct {
	mu  sync.RWMutex
	ttl time.Duration
	m   map[string]entry
}

type entry struct {
	val user.Public
	exp time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	return &Memory{
		ttl: ttl,
		m:   make(map[string]entry),
	}
}

func (c *Memory) Get(_ context.Context, id string) (user.Public, bool) {
	now := time.Now()
	c.mu.RLock()
	e, ok := c.m[id]
	c.mu.RUnlock()

	if !ok {
		return user.Public{}, false
	}

	if now.After(e.exp) {
		c.mu.Lock()
		delete(c.m, id)
		c.mu.Unlock()
		return user.Public{}, false
	}

	return e.val, true
}

func (c *Memory) Set(_ context.Context, u user.Public) {
	c.mu.Lock()
	c.m[u.ID] = entry{val: u, exp: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *Memory) Delete(_ context.Context, id string) {
	c.mu.Lock()
	delete(c.m, id)
	c.mu.Unlock()
}
