// Package config loads daemon settings from BOTOPS_* environment variables.
//
// Only cmd/botopsd reads the environment. Secret-bearing values (the token
// signing key, the bootstrap key, the Redis password and tenant bot tokens)
// are resolved through the secret package at load time, so the rest of the
// process receives plain structs.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/time/rate"

	"github.com/jonwraymond/botops/auth"
	"github.com/jonwraymond/botops/moderation"
	"github.com/jonwraymond/botops/observe"
	"github.com/jonwraymond/botops/ratelimit"
	"github.com/jonwraymond/botops/secret"
	"github.com/jonwraymond/botops/session"
)

// Prefix is the environment variable prefix.
const Prefix = "BOTOPS"

// MinSecretLength is the minimum length of the token signing key.
const MinSecretLength = 32

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid configuration")

// Config holds runtime configuration for the daemon.
type Config struct {
	Addr            string        `envconfig:"ADDR" default:":8080" validate:"required"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"20s"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// IPRequestsPerMinute bounds requests per client IP before authentication.
	IPRequestsPerMinute int `envconfig:"IP_REQUESTS_PER_MINUTE" default:"600" validate:"gte=0"`

	// SecretsDir anchors secretref:file: references.
	SecretsDir string `envconfig:"SECRETS_DIR"`

	// TenantsFile is a JSON file listing the bots the daemon may run.
	TenantsFile string `envconfig:"TENANTS_FILE"`

	Auth       AuthConfig       `envconfig:"AUTH"`
	Moderation ModerationConfig `envconfig:"MODERATION"`
	RateLimit  RateLimitConfig  `envconfig:"RATE_LIMIT"`
	Session    SessionConfig    `envconfig:"SESSION"`
	Platform   PlatformConfig   `envconfig:"PLATFORM"`
	Redis      RedisConfig      `envconfig:"REDIS"`
	Telemetry  TelemetryConfig  `envconfig:"TELEMETRY"`
	Audit      AuditConfig      `envconfig:"AUDIT"`

	// Tenants is populated from TenantsFile by Load.
	Tenants []Tenant `ignored:"true"`
}

// AuthConfig configures credentials and session tokens.
type AuthConfig struct {
	TokenSecret string        `envconfig:"TOKEN_SECRET" required:"true"`
	TokenTTL    time.Duration `envconfig:"TOKEN_TTL" default:"24h" validate:"gt=0"`
	TokenIssuer string        `envconfig:"TOKEN_ISSUER" default:"botops"`
	BcryptCost  int           `envconfig:"BCRYPT_COST" default:"10" validate:"min=4,max=31"`

	// BootstrapKey guards the key administration endpoint. Empty disables it.
	BootstrapKey string `envconfig:"BOOTSTRAP_KEY"`
}

// ModerationConfig configures the content rules.
type ModerationConfig struct {
	Enabled          bool     `envconfig:"ENABLED" default:"true"`
	MaxMessageLength int      `envconfig:"MAX_MESSAGE_LENGTH" default:"2000" validate:"gt=0"`
	ForbiddenWords   []string `envconfig:"FORBIDDEN_WORDS"`
	FailClosed       bool     `envconfig:"FAIL_CLOSED" default:"false"`

	// FloodMax bounds inbound messages per author and tenant within
	// FloodWindow. Zero disables flood detection.
	FloodMax    int           `envconfig:"FLOOD_MAX" default:"5" validate:"gte=0"`
	FloodWindow time.Duration `envconfig:"FLOOD_WINDOW" default:"10s" validate:"gt=0"`
}

// RateLimitConfig configures the per-principal sliding window.
type RateLimitConfig struct {
	Window      time.Duration `envconfig:"WINDOW" default:"1m" validate:"gt=0"`
	MaxRequests int           `envconfig:"MAX_REQUESTS" default:"60" validate:"gt=0"`
}

// SessionConfig configures the session registry.
type SessionConfig struct {
	ReadyTimeout  time.Duration `envconfig:"READY_TIMEOUT" default:"30s" validate:"gt=0"`
	OutboundRate  float64       `envconfig:"OUTBOUND_RATE" default:"0" validate:"gte=0"`
	OutboundBurst int           `envconfig:"OUTBOUND_BURST" default:"5" validate:"gte=0"`
	InboundBuffer int           `envconfig:"INBOUND_BUFFER" default:"256" validate:"gt=0"`
}

// PlatformConfig selects the chat-platform adapter.
type PlatformConfig struct {
	Kind      string `envconfig:"KIND" default:"memory" validate:"oneof=memory wsbridge"`
	BridgeURL string `envconfig:"BRIDGE_URL" validate:"required_if=Kind wsbridge"`
}

// RedisConfig enables shared rate limits and caching when Addr is set.
type RedisConfig struct {
	Addr     string `envconfig:"ADDR"`
	Password string `envconfig:"PASSWORD"`
	DB       int    `envconfig:"DB" default:"0"`
}

// TelemetryConfig configures tracing and metrics exporters.
type TelemetryConfig struct {
	TracingExporter string  `envconfig:"TRACING_EXPORTER" default:"none" validate:"oneof=otlp stdout none"`
	SamplePct       float64 `envconfig:"SAMPLE_PCT" default:"1" validate:"gte=0,lte=1"`
	MetricsExporter string  `envconfig:"METRICS_EXPORTER" default:"prometheus" validate:"oneof=otlp prometheus stdout none"`
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	// File receives JSON lines. Empty sends events to the log only.
	File       string `envconfig:"FILE"`
	BufferSize int    `envconfig:"BUFFER_SIZE" default:"1024" validate:"gt=0"`
}

// Load reads the environment, resolves secret references and loads the
// tenants file.
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	resolver, err := cfg.resolver()
	if err != nil {
		return nil, err
	}
	defer func() { _ = resolver.Close() }()

	if err := cfg.resolveSecrets(ctx, resolver); err != nil {
		return nil, err
	}
	if cfg.TenantsFile != "" {
		if cfg.Tenants, err = LoadTenants(ctx, cfg.TenantsFile, resolver); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints. Secrets are checked after resolution.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", strings.TrimPrefix(fe.Namespace(), "Config."), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}

func (c *Config) resolver() (*secret.Resolver, error) {
	res, err := secret.NewRegistry().Build(true, []string{"env", "file"}, map[string]map[string]string{
		"file": {"dir": c.SecretsDir},
	})
	if err != nil {
		return nil, fmt.Errorf("config: build secret resolver: %w", err)
	}
	return res, nil
}

func (c *Config) resolveSecrets(ctx context.Context, r *secret.Resolver) error {
	fields := []struct {
		name string
		dst  *string
	}{
		{"AUTH_TOKEN_SECRET", &c.Auth.TokenSecret},
		{"AUTH_BOOTSTRAP_KEY", &c.Auth.BootstrapKey},
		{"REDIS_PASSWORD", &c.Redis.Password},
	}
	for _, f := range fields {
		if *f.dst == "" {
			continue
		}
		v, err := r.ResolveValue(ctx, *f.dst)
		if err != nil {
			return fmt.Errorf("config: resolve %s_%s: %w", Prefix, f.name, err)
		}
		*f.dst = v
	}
	if len(c.Auth.TokenSecret) < MinSecretLength {
		return fmt.Errorf("%w: %s_AUTH_TOKEN_SECRET must be at least %d bytes", ErrInvalid, Prefix, MinSecretLength)
	}
	return nil
}

// TokenConfig returns the token service settings.
func (c *Config) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		Secret: []byte(c.Auth.TokenSecret),
		TTL:    c.Auth.TokenTTL,
		Issuer: c.Auth.TokenIssuer,
	}
}

// CredentialConfig returns the credential service settings.
func (c *Config) CredentialConfig() auth.CredentialConfig {
	return auth.CredentialConfig{Cost: c.Auth.BcryptCost}
}

// ModerationConfig returns the engine settings.
func (c *Config) ModerationConfig() moderation.Config {
	return moderation.Config{
		Disabled:       !c.Moderation.Enabled,
		MaxLength:      c.Moderation.MaxMessageLength,
		ForbiddenWords: c.Moderation.ForbiddenWords,
		FailClosed:     c.Moderation.FailClosed,
	}
}

// RateLimitConfig returns the sliding window settings.
func (c *Config) RateLimitConfig() ratelimit.Config {
	return ratelimit.Config{
		Window: c.RateLimit.Window,
		Max:    c.RateLimit.MaxRequests,
	}
}

// FloodConfig returns the inbound flood window. Max is zero when disabled.
func (c *Config) FloodConfig() ratelimit.Config {
	return ratelimit.Config{
		Window: c.Moderation.FloodWindow,
		Max:    c.Moderation.FloodMax,
	}
}

// SessionConfig returns the registry settings. Callers add the inbound
// handler and logger.
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		ReadyTimeout:  c.Session.ReadyTimeout,
		OutboundRate:  rate.Limit(c.Session.OutboundRate),
		OutboundBurst: c.Session.OutboundBurst,
		InboundBuffer: c.Session.InboundBuffer,
	}
}

// ObserveConfig returns the telemetry settings.
func (c *Config) ObserveConfig(version string) observe.Config {
	return observe.Config{
		ServiceName: "botopsd",
		Version:     version,
		Tracing: observe.TracingConfig{
			Enabled:   c.Telemetry.TracingExporter != "none",
			Exporter:  c.Telemetry.TracingExporter,
			SamplePct: c.Telemetry.SamplePct,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  c.Telemetry.MetricsExporter != "none",
			Exporter: c.Telemetry.MetricsExporter,
		},
		Logging: observe.LoggingConfig{
			Enabled: true,
			Level:   c.LogLevel,
		},
	}
}
