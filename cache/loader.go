package cache

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultLoadTimeout bounds a shared load once it no longer follows the
// caller that started it.
const DefaultLoadTimeout = 10 * time.Second

// LoadFunc produces a fresh encoded result.
type LoadFunc func(ctx context.Context) ([]byte, error)

// Stats counts Loader outcomes.
type Stats struct {
	Hits   int64
	Misses int64
	Shared int64
}

// Loader is a read-through front for a Cache. Concurrent misses on one key
// run a single load.
type Loader struct {
	cache  Cache
	keyer  Keyer
	policy Policy
	group  singleflight.Group

	// LoadTimeout bounds each shared load.
	// Default: DefaultLoadTimeout
	LoadTimeout time.Duration

	hits, misses, shared atomic.Int64
}

// NewLoader returns a Loader. A nil keyer uses DefaultKeyer.
func NewLoader(c Cache, keyer Keyer, policy Policy) (*Loader, error) {
	if c == nil {
		return nil, ErrNilCache
	}
	if keyer == nil {
		keyer = NewDefaultKeyer()
	}
	return &Loader{cache: c, keyer: keyer, policy: policy, LoadTimeout: DefaultLoadTimeout}, nil
}

// Load returns the cached result for the call or runs load and stores it.
// hit reports whether the value came from the cache. Errors are not cached.
func (l *Loader) Load(ctx context.Context, tool, tenant string, args json.RawMessage, load LoadFunc) (value []byte, hit bool, err error) {
	ttl := l.policy.TTL(tool)
	if ttl <= 0 {
		value, err = load(ctx)
		return value, false, err
	}
	key, err := l.keyer.Key(tool, tenant, args)
	if err != nil {
		value, err = load(ctx)
		return value, false, err
	}

	if v, ok := l.cache.Get(ctx, key); ok {
		l.hits.Add(1)
		return v, true, nil
	}

	// Shared loads outlive the caller that started them. Each caller still
	// stops waiting when its own ctx ends.
	ch := l.group.DoChan(key, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.loadTimeout())
		defer cancel()
		v, err := load(lctx)
		if err != nil {
			return nil, err
		}
		_ = l.cache.Set(lctx, key, v, ttl)
		return v, nil
	})
	select {
	case res := <-ch:
		if res.Shared {
			l.shared.Add(1)
		}
		l.misses.Add(1)
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.([]byte), false, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func (l *Loader) loadTimeout() time.Duration {
	if l.LoadTimeout <= 0 {
		return DefaultLoadTimeout
	}
	return l.LoadTimeout
}

// Invalidate drops the entry for a call.
func (l *Loader) Invalidate(ctx context.Context, tool, tenant string, args json.RawMessage) error {
	key, err := l.keyer.Key(tool, tenant, args)
	if err != nil {
		return err
	}
	return l.cache.Delete(ctx, key)
}

// Stats returns counters since creation.
func (l *Loader) Stats() Stats {
	return Stats{Hits: l.hits.Load(), Misses: l.misses.Load(), Shared: l.shared.Load()}
}

// Policy returns the loader's policy.
func (l *Loader) Policy() Policy {
	return l.policy
}
