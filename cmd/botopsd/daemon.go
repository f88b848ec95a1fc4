package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonwraymond/botops/audit"
	"github.com/jonwraymond/botops/auth"
	"github.com/jonwraymond/botops/cache"
	"github.com/jonwraymond/botops/config"
	"github.com/jonwraymond/botops/gateway"
	"github.com/jonwraymond/botops/health"
	"github.com/jonwraymond/botops/moderation"
	"github.com/jonwraymond/botops/observe"
	"github.com/jonwraymond/botops/platform/memory"
	"github.com/jonwraymond/botops/platform/wsbridge"
	"github.com/jonwraymond/botops/ratelimit"
	"github.com/jonwraymond/botops/session"
)

const (
	healthTimeout   = 2 * time.Second
	cacheSweepEvery = time.Minute
	redisKeyPrefix  = "botops:"
)

// daemon owns every long-lived service of the process.
type daemon struct {
	cfg *config.Config
	obs observe.Observer
	log observe.Logger

	redis       *redis.Client
	credentials *auth.CredentialService
	registry    *session.Registry
	gateway     *gateway.Gateway
	audit       *audit.Logger
	auditFile   *os.File
	health      *health.Aggregator

	cancel context.CancelFunc
}

// newPlatform selects the chat-platform adapter.
func newPlatform(cfg *config.Config, log observe.Logger) (session.Platform, error) {
	switch cfg.Platform.Kind {
	case "wsbridge":
		p, err := wsbridge.New(wsbridge.Config{
			URL:    cfg.Platform.BridgeURL,
			Logger: log.With(observe.F("component", "wsbridge")),
		})
		if err != nil {
			return nil, fmt.Errorf("platform: %w", err)
		}
		return p, nil
	default:
		return memory.New(
			memory.WithChannel(session.ChannelInfo{ID: "general", Name: "general", GuildID: "local", Type: "text"}),
			memory.WithGuild(session.GuildInfo{ID: "local", Name: "Local"}),
		), nil
	}
}

func newDaemon(ctx context.Context, cfg *config.Config, obs observe.Observer, platform session.Platform) (*daemon, error) {
	ctx, cancel := context.WithCancel(ctx)
	d := &daemon{cfg: cfg, obs: obs, log: obs.Logger(), cancel: cancel}
	if err := d.init(ctx, platform); err != nil {
		d.close(context.Background())
		return nil, err
	}
	return d, nil
}

func (d *daemon) init(ctx context.Context, platform session.Platform) error {
	cfg := d.cfg

	if cfg.Redis.Addr != "" {
		d.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := d.redis.Ping(ctx).Err(); err != nil {
			d.log.Warn(ctx, "redis ping failed, continuing with local fallback", observe.Err(err))
		}
	}

	mw, err := observe.MiddlewareFromObserver(d.obs)
	if err != nil {
		return fmt.Errorf("middleware: %w", err)
	}

	auditOpts := []audit.Option{
		audit.WithLogger(d.log.With(observe.F("component", "audit"))),
		audit.WithBufferSize(cfg.Audit.BufferSize),
	}
	if cfg.Audit.File != "" {
		f, err := os.OpenFile(cfg.Audit.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("audit file: %w", err)
		}
		d.auditFile = f
		auditOpts = append(auditOpts, audit.WithWriter(f))
	}
	d.audit = audit.New(auditOpts...)

	principals := auth.NewMemoryPrincipalStore()
	d.credentials = auth.NewCredentialService(cfg.CredentialConfig(), principals, auth.NewMemoryCredentialStore())
	tokens, err := auth.NewTokenService(cfg.TokenConfig())
	if err != nil {
		return fmt.Errorf("token service: %w", err)
	}
	authn := auth.NewCompositeAuthenticator(
		auth.NewAPIKeyAuthenticator(auth.APIKeyConfig{}, d.credentials),
		auth.NewTokenAuthenticator(auth.TokenAuthConfig{}, tokens),
	)

	engine := moderation.New(cfg.ModerationConfig(), moderation.WithLogger(d.log.With(observe.F("component", "moderation"))))

	inbound := &inboundModerator{
		engine:  engine,
		metrics: mw.Metrics(),
		audit:   d.audit,
		log:     d.log.With(observe.F("component", "inbound")),
	}
	if fc := cfg.FloodConfig(); fc.Max > 0 {
		flood := ratelimit.NewSlidingWindow(fc)
		go flood.Run(ctx, fc.Window)
		inbound.flood = flood
	}

	sc := cfg.SessionConfig()
	sc.Inbound = inbound.Handle
	sc.Logger = d.log.With(observe.F("component", "session"))
	d.registry = session.NewRegistry(platform, sc)
	inbound.sessions = d.registry

	loader, err := d.newLoader(ctx)
	if err != nil {
		return err
	}

	d.gateway, err = gateway.New(gateway.Config{
		Authenticator: authn,
		Principals:    principals,
		Limiter:       d.newLimiter(ctx),
		Moderation:    engine,
		Sessions:      d.registry,
		Catalog:       gateway.CatalogMap(config.Catalog(cfg.Tenants)),
		Tokens:        tokens,
		Cache:         loader,
		Middleware:    mw,
		Audit:         d.audit,
		Logger:        d.log.With(observe.F("component", "gateway")),
	})
	if err != nil {
		return err
	}

	d.health = health.NewAggregator(healthTimeout)
	d.health.Register(health.NewSessionChecker(d.registry))
	if d.redis != nil {
		d.health.Register(health.NewRedisChecker(d.redis))
	}
	return nil
}

func (d *daemon) newLimiter(ctx context.Context) ratelimit.Limiter {
	rc := d.cfg.RateLimitConfig()
	if d.redis != nil {
		l := ratelimit.NewRedisSlidingWindow(d.redis, ratelimit.RedisConfig{Config: rc, Prefix: redisKeyPrefix + "rl:"})
		l.OnError = func(key string, err error) {
			d.log.Warn(context.Background(), "redis rate limit failed, using local window", observe.F("key", key), observe.Err(err))
		}
		return l
	}
	l := ratelimit.NewSlidingWindow(rc)
	go l.Run(ctx, rc.Window)
	return l
}

func (d *daemon) newLoader(ctx context.Context) (*cache.Loader, error) {
	var c cache.Cache
	if d.redis != nil {
		rc, err := cache.NewRedisCache(d.redis, redisKeyPrefix+"cache:")
		if err != nil {
			return nil, fmt.Errorf("cache: %w", err)
		}
		c = rc
	} else {
		mc := cache.NewMemoryCache()
		go sweep(ctx, cacheSweepEvery, func(now time.Time) { mc.Sweep(now) })
		c = mc
	}
	loader, err := cache.NewLoader(c, cache.NewDefaultKeyer(), cache.DefaultPolicy())
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	return loader, nil
}

func sweep(ctx context.Context, every time.Duration, fn func(time.Time)) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			fn(now)
		}
	}
}

// bootTenants starts every autostart tenant. Failures are logged and audited
// so one bad token does not keep the daemon down.
func (d *daemon) bootTenants(ctx context.Context) {
	for _, t := range d.cfg.Tenants {
		if !t.Autostart {
			continue
		}
		ev := audit.Event{Action: audit.ActionTenantBoot, TenantID: t.ID, Result: audit.ResultSuccess}
		if _, err := d.registry.Start(ctx, t.TenantConfig); err != nil {
			d.log.Error(ctx, "tenant boot failed", observe.F("tenant", t.ID), observe.Err(err))
			ev.Result = audit.ResultFailure
			ev.Code = string(gateway.CodeOf(err))
		} else {
			d.log.Info(ctx, "tenant started", observe.F("tenant", t.ID))
		}
		d.audit.Log(ev)
	}
}

// close stops tenants, flushes the audit trail and releases clients.
func (d *daemon) close(ctx context.Context) {
	if d.registry != nil {
		if err := d.registry.ShutdownAll(ctx); err != nil {
			d.log.Warn(ctx, "session shutdown", observe.Err(err))
		}
	}
	d.cancel()
	if d.audit != nil {
		_ = d.audit.Close()
	}
	if d.auditFile != nil {
		if err := d.auditFile.Close(); err != nil {
			d.log.Warn(ctx, "close audit file", observe.Err(err))
		}
	}
	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			d.log.Warn(ctx, "close redis", observe.Err(err))
		}
	}
}
