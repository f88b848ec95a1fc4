package cache

import "time"

// Policy decides which tools are cached and for how long.
type Policy struct {
	// DefaultTTL applies to listed tools without their own TTL.
	DefaultTTL time.Duration

	// MaxTTL clamps every TTL. Zero means no clamp.
	MaxTTL time.Duration

	// Tools lists cacheable tools. A zero value uses DefaultTTL.
	Tools map[string]time.Duration
}

// DefaultPolicy caches channel and guild metadata for 30 seconds.
func DefaultPolicy() Policy {
	return Policy{
		DefaultTTL: 30 * time.Second,
		MaxTTL:     5 * time.Minute,
		Tools: map[string]time.Duration{
			"get_channel_info": 0,
			"get_guild_info":   0,
		},
	}
}

// NoCachePolicy caches nothing.
func NoCachePolicy() Policy {
	return Policy{}
}

// TTL returns how long results of tool are kept. Zero means not cached.
func (p Policy) TTL(tool string) time.Duration {
	ttl, ok := p.Tools[tool]
	if !ok {
		return 0
	}
	if ttl <= 0 {
		ttl = p.DefaultTTL
	}
	if p.MaxTTL > 0 && ttl > p.MaxTTL {
		ttl = p.MaxTTL
	}
	return max(ttl, 0)
}

// Cacheable reports whether tool results are cached at all.
func (p Policy) Cacheable(tool string) bool {
	return p.TTL(tool) > 0
}
