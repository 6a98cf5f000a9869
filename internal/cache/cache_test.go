package cache

import (
	"context"
	"testing"
	"time"

	"github.com/geocoder89/authhub/internal/domain/user"
)

func TestMemoryCacheRoundTrip(t *testing.T) {
	c := NewMemory(time.Minute)

	ctx := context.Background()

	u := user.Public{ID: "u1", Email: "a@x.com", Name: "A", Role: "user"}

	if _, ok := c.Get(ctx, "u1"); ok {
		t.Fatal("Get on empty cache returned a hit")
	}

	c.Set(ctx, u)

	got, ok := c.Get(ctx, "u1")

	if !ok {
		t.Fatal("Get after Set missed")
	}

	if got != u {
		t.Errorf("Get = %+v, want %+v", got, u)
	}

	c.Delete(ctx, "u1")

	if _, ok := c.Get(ctx, "u1"); ok {
		t.Error("Get after Delete returned a hit")
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemory(10 * time.Millisecond)

	ctx := context.Background()

	c.Set(ctx, user.Public{ID: "u1"})

	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get(ctx, "u1"); ok {
		t.Error("entry survived past its TTL")
	}
}
