package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type counter struct {
	calls atomic.Int32
	val   []byte
	err   error
	gate  chan struct{}
}

func (c *counter) load(ctx context.Context) ([]byte, error) {
	c.calls.Add(1)
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return c.val, c.err
}

func newTestLoader(t *testing.T) *Loader {
	t.Helper()
	l, err := NewLoader(NewMemoryCache(), nil, DefaultPolicy())
	if err != nil {
		t.Fatal(err)
	}
	return l
}

var channelArgs = json.RawMessage(`{"tenant_id":"acme","channel_id":"c1"}`)

func TestLoader_HitAfterMiss(t *testing.T) {
	l := newTestLoader(t)
	src := &counter{val: []byte(`{"name":"general"}`)}
	ctx := context.Background()

	v, hit, err := l.Load(ctx, "get_channel_info", "acme", channelArgs, src.load)
	if err != nil || hit || string(v) != `{"name":"general"}` {
		t.Fatalf("first Load() = %s, %v, %v", v, hit, err)
	}
	v, hit, err = l.Load(ctx, "get_channel_info", "acme", channelArgs, src.load)
	if err != nil || !hit || string(v) != `{"name":"general"}` {
		t.Fatalf("second Load() = %s, %v, %v", v, hit, err)
	}
	if n := src.calls.Load(); n != 1 {
		t.Errorf("loads = %d, want 1", n)
	}
	if s := l.Stats(); s.Hits != 1 || s.Misses != 1 {
		t.Errorf("Stats() = %+v", s)
	}

	if err := l.Invalidate(ctx, "get_channel_info", "acme", channelArgs); err != nil {
		t.Fatal(err)
	}
	_, hit, _ = l.Load(ctx, "get_channel_info", "acme", channelArgs, src.load)
	if hit {
		t.Error("hit after Invalidate")
	}
}

func TestLoader_TenantsDoNotShare(t *testing.T) {
	l := newTestLoader(t)
	src := &counter{val: []byte(`{}`)}
	ctx := context.Background()

	_, _, _ = l.Load(ctx, "get_channel_info", "acme", channelArgs, src.load)
	_, hit, _ := l.Load(ctx, "get_channel_info", "globex", channelArgs, src.load)
	if hit {
		t.Error("second tenant read first tenant's entry")
	}
}

func TestLoader_ErrorsNotCached(t *testing.T) {
	l := newTestLoader(t)
	src := &counter{err: errors.New("platform down")}
	ctx := context.Background()

	for range 2 {
		if _, _, err := l.Load(ctx, "get_channel_info", "acme", channelArgs, src.load); err == nil {
			t.Fatal("Load() should fail")
		}
	}
	if n := src.calls.Load(); n != 2 {
		t.Errorf("loads = %d, want 2", n)
	}
}

func TestLoader_UncachedToolPassesThrough(t *testing.T) {
	l := newTestLoader(t)
	src := &counter{val: []byte(`[]`)}
	ctx := context.Background()

	for range 3 {
		if _, hit, _ := l.Load(ctx, "get_messages", "acme", channelArgs, src.load); hit {
			t.Error("uncached tool reported a hit")
		}
	}
	if n := src.calls.Load(); n != 3 {
		t.Errorf("loads = %d, want 3", n)
	}
}

func TestLoader_CollapsesConcurrentMisses(t *testing.T) {
	l := newTestLoader(t)
	src := &counter{val: []byte(`{}`), gate: make(chan struct{})}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := l.Load(context.Background(), "get_guild_info", "acme", nil, src.load); err != nil {
				t.Errorf("Load() error = %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	if n := src.calls.Load(); n > 2 {
		t.Errorf("loads = %d, want concurrent misses collapsed", n)
	}
}

func TestLoader_WaiterHonorsContext(t *testing.T) {
	l := newTestLoader(t)
	src := &counter{val: []byte(`{}`), gate: make(chan struct{})}
	defer close(src.gate)

	go func() { _, _, _ = l.Load(context.Background(), "get_guild_info", "acme", nil, src.load) }()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, _, err := l.Load(ctx, "get_guild_info", "acme", nil, src.load); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Load() error = %v, want DeadlineExceeded", err)
	}
}

func TestLoader_FirstCallerCancelDoesNotFailWaiters(t *testing.T) {
	l := newTestLoader(t)
	src := &counter{val: []byte(`{"name":"acme"}`), gate: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, _, err := l.Load(ctx, "get_guild_info", "acme", nil, src.load)
		first <- err
	}()
	time.Sleep(10 * time.Millisecond)

	second := make(chan []byte, 1)
	go func() {
		v, _, err := l.Load(context.Background(), "get_guild_info", "acme", nil, src.load)
		if err != nil {
			t.Errorf("waiter Load() error = %v", err)
		}
		second <- v
	}()
	time.Sleep(10 * time.Millisecond)

	cancel()
	if err := <-first; !errors.Is(err, context.Canceled) {
		t.Errorf("first Load() error = %v, want Canceled", err)
	}
	close(src.gate)

	select {
	case v := <-second:
		if string(v) != `{"name":"acme"}` {
			t.Errorf("waiter Load() = %s", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never received the shared load")
	}
	if n := src.calls.Load(); n != 1 {
		t.Errorf("loads = %d, want 1", n)
	}
}

func TestLoader_SharedLoadIsBounded(t *testing.T) {
	l := newTestLoader(t)
	l.LoadTimeout = 20 * time.Millisecond
	src := &counter{val: []byte(`{}`), gate: make(chan struct{})}
	defer close(src.gate)

	_, _, err := l.Load(context.Background(), "get_guild_info", "acme", nil, src.load)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Load() error = %v, want DeadlineExceeded", err)
	}
}

func TestNewLoader_NilCache(t *testing.T) {
	if _, err := NewLoader(nil, nil, DefaultPolicy()); !errors.Is(err, ErrNilCache) {
		t.Errorf("NewLoader(nil) error = %v", err)
	}
}
