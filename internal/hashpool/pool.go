// Package hashpool bounds how many password derivations run at once, so a
// burst of logins cannot starve the rest of the process of CPU.
package hashpool

import (
	"context"
	"time"

	"github.com/geocoder89/authhub/internal/security"
	"github.com/prometheus/client_golang/prometheus"
)

type Pool struct {
	slots chan struct{}
	obs   prometheus.Observer // hash latency, nil disables
}

func New(size int, obs prometheus.Observer) *Pool {
	if size <= 0 {
		size = 4
	}

	return &Pool{slots: make(chan struct{}, size), obs: obs}
}

// Hash derives a stored form on a pool slot. Waiting for a slot respects ctx.
func (p *Pool) Hash(ctx context.Context, plain string) (string, error) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	defer func() { <-p.slots }()

	start := time.Now()
	stored, err := security.HashPassword(plain)
	p.observe(start)

	return stored, err
}

// Verify re-derives and compares on a pool slot. Verification costs the same
// as hashing, so it is bounded the same way.
func (p *Pool) Verify(ctx context.Context, plain, stored string) (bool, error) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return false, ctx.Err()
	}

	defer func() { <-p.slots }()

	start := time.Now()
	ok := security.CheckPassword(plain, stored)
	p.observe(start)

	return ok, nil
}

func (p *Pool) observe(start time.Time) {
	if p.obs != nil {
		p.obs.Observe(time.Since(start).Seconds())
	}
}
