package cache

import (
	"context"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestMemoryCache_TTL(t *testing.T) {
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	c := NewMemoryCache(WithClock(clk.now))
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), 10*time.Second); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if v, ok := c.Get(ctx, "k"); !ok || string(v) != "v" {
		t.Fatalf("Get() = %q, %v", v, ok)
	}

	clk.advance(9 * time.Second)
	if _, ok := c.Get(ctx, "k"); !ok {
		t.Error("entry expired early")
	}

	clk.advance(time.Second)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("entry alive at its expiry instant")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want expired entry removed", c.Len())
	}
}

func TestMemoryCache_SetEdgeCases(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Errorf("Set(ttl=0) error = %v", err)
	}
	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("ttl=0 stored an entry")
	}
	if err := c.Set(ctx, "bad\nkey", []byte("v"), time.Minute); err != ErrInvalidKey {
		t.Errorf("Set(bad key) error = %v, want ErrInvalidKey", err)
	}
	if err := c.Delete(ctx, "never-set"); err != nil {
		t.Errorf("Delete(missing) error = %v", err)
	}
}

func TestMemoryCache_Sweep(t *testing.T) {
	clk := &clock{t: time.Unix(0, 0)}
	c := NewMemoryCache(WithClock(clk.now))
	ctx := context.Background()

	_ = c.Set(ctx, "short", []byte("1"), time.Second)
	_ = c.Set(ctx, "long", []byte("2"), time.Hour)

	if n := c.Sweep(clk.t.Add(2 * time.Second)); n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
	if _, ok := c.Get(ctx, "long"); !ok {
		t.Error("Sweep removed a live entry")
	}
}
