package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jonwraymond/botops/session"
)

// ErrTenantsDown is the error of an unhealthy session check.
var ErrTenantsDown = errors.New("health: all tenants disconnected")

// TenantLister lists tenant snapshots. *session.Registry satisfies it.
type TenantLister interface {
	List() []session.Tenant
}

// SessionChecker reports tenant connectivity.
//
// With no tenants the gateway is healthy. Any disconnected tenant degrades
// it; all tenants disconnected makes it unhealthy.
type SessionChecker struct {
	tenants TenantLister
}

// NewSessionChecker returns a checker over tenants.
func NewSessionChecker(tenants TenantLister) *SessionChecker {
	return &SessionChecker{tenants: tenants}
}

func (c *SessionChecker) Name() string { return "sessions" }

// Check implements Checker.
func (c *SessionChecker) Check(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Unhealthy("context done", err)
	}

	counts := make(map[string]int)
	var disconnected []string
	tenants := c.tenants.List()
	for _, t := range tenants {
		counts[t.Status.String()]++
		if t.Status == session.StatusDisconnected {
			disconnected = append(disconnected, t.ID)
		}
	}
	details := map[string]any{"tenants": len(tenants), "by_status": counts}
	if len(disconnected) > 0 {
		details["disconnected"] = disconnected
	}

	switch {
	case len(tenants) == 0:
		return Healthy("no tenants").WithDetails(details)
	case len(disconnected) == len(tenants):
		return Unhealthy("all tenants disconnected", ErrTenantsDown).WithDetails(details)
	case len(disconnected) > 0:
		return Degraded(fmt.Sprintf("%d of %d tenants disconnected", len(disconnected), len(tenants))).WithDetails(details)
	default:
		return Healthy(fmt.Sprintf("%d tenants connected", len(tenants))).WithDetails(details)
	}
}

// RedisChecker pings Redis. A failed ping is degraded rather than unhealthy
// because the limiter and cache fall back to process-local state.
type RedisChecker struct {
	client redis.Cmdable
}

// NewRedisChecker returns a checker over client.
func NewRedisChecker(client redis.Cmdable) *RedisChecker {
	return &RedisChecker{client: client}
}

func (c *RedisChecker) Name() string { return "redis" }

// Check implements Checker.
func (c *RedisChecker) Check(ctx context.Context) Result {
	if err := c.client.Ping(ctx).Err(); err != nil {
		r := Degraded("redis unreachable, using local fallback")
		r.Error = err
		return r
	}
	return Healthy("redis reachable")
}

var (
	_ Checker = (*SessionChecker)(nil)
	_ Checker = (*RedisChecker)(nil)
)
