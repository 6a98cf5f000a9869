package postgres

import "github.com/geocoder89/authhub/internal/observability"

// observe wraps a logical store op with latency/error metrics when a
// registry is wired; nil keeps tests and tools metric-free.
func observe(p *observability.Prom, op string, fn func() error) error {
	if p == nil {
		return fn()
	}

	return p.ObserveDB(op, fn)
}
