package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jonwraymond/botops/audit"
	"github.com/jonwraymond/botops/auth"
	"github.com/jonwraymond/botops/cache"
	"github.com/jonwraymond/botops/moderation"
	"github.com/jonwraymond/botops/observe"
	"github.com/jonwraymond/botops/ratelimit"
	"github.com/jonwraymond/botops/session"
)

// Sessions is the part of the session registry the gateway dispatches to.
type Sessions interface {
	Start(ctx context.Context, cfg session.TenantConfig) (session.Tenant, error)
	Stop(ctx context.Context, id string) error
	Ready(id string) error
	List() []session.Tenant
	Send(ctx context.Context, tenantID, channelID, content string) (session.MessageRef, error)
	History(ctx context.Context, tenantID, channelID string, limit int, before string) ([]session.Message, error)
	Metadata(ctx context.Context, tenantID, channelID string) (session.ChannelInfo, error)
	Search(ctx context.Context, tenantID, channelID, query string, limit int) ([]session.Message, error)
	Delete(ctx context.Context, tenantID, channelID, messageID string) error
	GuildInfo(ctx context.Context, tenantID, guildID string) (session.GuildInfo, error)
}

// Catalog resolves a bot id to the configuration start_bot connects with.
type Catalog interface {
	Lookup(id string) (session.TenantConfig, bool)
}

// CatalogMap is a Catalog backed by a map.
type CatalogMap map[string]session.TenantConfig

// Lookup implements Catalog.
func (m CatalogMap) Lookup(id string) (session.TenantConfig, bool) {
	cfg, ok := m[id]
	return cfg, ok
}

// Config wires the gateway's collaborators.
type Config struct {
	// Authenticator verifies the caller's credential. Required.
	Authenticator auth.Authenticator

	// Principals resolves authenticated ids to current permissions. Required.
	Principals auth.PrincipalStore

	// Authorizer checks tool and tenant permissions.
	// Default: auth.NewPermissionAuthorizer()
	Authorizer auth.Authorizer

	// Limiter admits calls per principal. Nil disables rate limiting.
	Limiter ratelimit.Limiter

	// Moderation screens outgoing content.
	// Default: moderation.New(moderation.Config{})
	Moderation *moderation.Engine

	// Sessions dispatches to running tenants. Required.
	Sessions Sessions

	// Catalog enables start_bot when set.
	Catalog Catalog

	// Tokens enables issue_token when set.
	Tokens *auth.TokenService

	// Cache serves read-only metadata tools when set.
	Cache *cache.Loader

	// Middleware traces, measures and logs every call.
	// Default: observe.NopMiddleware()
	Middleware *observe.Middleware

	// Audit receives one event per call when set.
	Audit *audit.Logger

	// Logger reports internal errors.
	// Default: observe.NopLogger()
	Logger observe.Logger
}

// Gateway runs tool calls. It is safe for concurrent use.
type Gateway struct {
	config   Config
	registry map[string]*tool
	validate *validator.Validate
}

// New creates a gateway.
func New(config Config) (*Gateway, error) {
	switch {
	case config.Authenticator == nil:
		return nil, fmt.Errorf("%w: authenticator", ErrMissingConfig)
	case config.Principals == nil:
		return nil, fmt.Errorf("%w: principal store", ErrMissingConfig)
	case config.Sessions == nil:
		return nil, fmt.Errorf("%w: sessions", ErrMissingConfig)
	}
	if config.Authorizer == nil {
		config.Authorizer = auth.NewPermissionAuthorizer()
	}
	if config.Moderation == nil {
		config.Moderation = moderation.New(moderation.Config{})
	}
	if config.Middleware == nil {
		config.Middleware = observe.NopMiddleware()
	}
	if config.Logger == nil {
		config.Logger = observe.NopLogger()
	}

	g := &Gateway{config: config, validate: newValidator()}
	g.registry = g.tools()
	return g, nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Call runs one tool call through the pipeline. It never returns an error;
// failures are reported in the envelope.
func (g *Gateway) Call(ctx context.Context, tc ToolCall) Envelope {
	requestID := audit.RequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
		ctx = audit.WithRequestID(ctx, requestID)
	}

	meta := &observe.CallMeta{Tool: tc.Name}
	run := g.config.Middleware.Wrap(func(ctx context.Context, meta *observe.CallMeta) (any, error) {
		result, err := g.run(ctx, tc, meta)
		if err != nil {
			meta.Code = string(CodeOf(err))
		}
		return result, err
	})
	result, err := run(ctx, meta)

	g.record(ctx, requestID, meta, err)
	if err != nil {
		return failure(tc.Name, requestID, err)
	}
	return success(tc.Name, requestID, result)
}

func (g *Gateway) run(ctx context.Context, tc ToolCall, meta *observe.CallMeta) (any, error) {
	identity, err := g.authenticate(ctx, tc)
	if err != nil {
		return nil, err
	}
	meta.Principal = identity.Principal

	principal, err := g.resolve(ctx, identity)
	if err != nil {
		return nil, err
	}
	identity.Permissions = principal.Permissions

	t, ok := g.registry[tc.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, tc.Name)
	}
	c := &call{tool: t, args: tc.Arguments, principal: principal, identity: identity}

	if t.scoped {
		if c.tenant, err = peekTenant(tc.Arguments); err != nil {
			return nil, err
		}
		meta.Tenant = c.tenant
	}

	if err := g.config.Authorizer.Authorize(ctx, &auth.AuthzRequest{
		Subject:    identity,
		Resource:   "tool:" + t.name,
		Permission: t.permission,
		TenantID:   c.tenant,
	}); err != nil {
		return nil, err
	}
	if t.scoped && c.tenant == "" && !t.optionalBot {
		return nil, errorf(ErrInvalidArguments, "bot_id is required")
	}

	if err := g.admit(ctx, t, principal.ID); err != nil {
		return nil, err
	}

	return t.run(g, auth.WithIdentity(ctx, identity), c)
}

func (g *Gateway) authenticate(ctx context.Context, tc ToolCall) (*auth.Identity, error) {
	headers := make(map[string][]string, 2)
	if tc.Caller.APIKey != "" {
		headers[auth.DefaultAPIKeyHeader] = []string{tc.Caller.APIKey}
	}
	if tc.Caller.Token != "" {
		headers["Authorization"] = []string{"Bearer " + tc.Caller.Token}
	}
	if len(headers) == 0 {
		headers = auth.HeadersFromContext(ctx)
	}

	res, err := g.config.Authenticator.Authenticate(ctx, &auth.AuthRequest{
		Headers:  headers,
		Resource: "tool:" + tc.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: authenticate: %w", err)
	}
	if !res.Authenticated {
		if res.Error == nil {
			return nil, auth.ErrInvalidCredentials
		}
		return nil, res.Error
	}
	return res.Identity, nil
}

// resolve loads the principal so revocations and permission changes apply
// to tokens issued before them.
func (g *Gateway) resolve(ctx context.Context, id *auth.Identity) (*auth.Principal, error) {
	p, err := g.config.Principals.Get(ctx, id.Principal)
	if errors.Is(err, auth.ErrPrincipalNotFound) {
		return nil, fmt.Errorf("%w: unknown principal %q", auth.ErrInvalidCredentials, id.Principal)
	}
	if err != nil {
		return nil, fmt.Errorf("gateway: resolve principal: %w", err)
	}
	if !p.Active {
		return nil, fmt.Errorf("%w: principal %q is inactive", auth.ErrInvalidCredentials, id.Principal)
	}
	return p, nil
}

func (g *Gateway) admit(ctx context.Context, t *tool, principalID string) error {
	if g.config.Limiter == nil {
		return nil
	}
	d, err := g.config.Limiter.Allow(ctx, principalID)
	if err != nil {
		return fmt.Errorf("gateway: rate limiter: %w", err)
	}
	if !d.Allowed {
		g.config.Middleware.Metrics().RecordRateLimited(ctx, t.name)
		return d.Err(principalID)
	}
	return nil
}

func (g *Gateway) moderate(ctx context.Context, _ *call, content string) error {
	v := g.config.Moderation.Moderate(ctx, content)
	g.recordVerdict(ctx, v)
	if !v.Approved {
		return &RejectedError{Verdict: v}
	}
	return nil
}

func (g *Gateway) recordVerdict(ctx context.Context, v moderation.Verdict) {
	g.config.Middleware.Metrics().RecordVerdict(ctx, v.Rule, v.Severity.String(), v.Approved)
}

// cached serves load through the metadata cache. Results are returned as
// encoded JSON either way so hits and misses look the same to the caller.
// The tenant must be running even when the entry is cached.
func (g *Gateway) cached(ctx context.Context, c *call, tenant string, load func(context.Context) (any, error)) (any, error) {
	if err := g.config.Sessions.Ready(tenant); err != nil {
		return nil, err
	}
	encode := func(ctx context.Context) ([]byte, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	}
	if g.config.Cache == nil {
		raw, err := encode(ctx)
		if err != nil {
			return nil, err
		}
		return json.RawMessage(raw), nil
	}
	raw, _, err := g.config.Cache.Load(ctx, c.tool.name, tenant, c.args, encode)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}

func (g *Gateway) record(ctx context.Context, requestID string, meta *observe.CallMeta, err error) {
	e := audit.Event{
		RequestID:   requestID,
		PrincipalID: meta.Principal,
		TenantID:    meta.Tenant,
		Action:      meta.Tool,
		Result:      audit.ResultSuccess,
	}
	if err != nil {
		code := CodeOf(err)
		e.Code = string(code)
		e.Result = audit.ResultFailure
		if code.denied() {
			e.Result = audit.ResultDenied
		}
		if code == CodeInternal {
			g.config.Logger.Error(ctx, "tool call failed internally",
				observe.F("tool", meta.Tool),
				observe.F("request_id", requestID),
				observe.Err(err),
			)
		}
	}
	g.config.Audit.Log(e)
}

// decode unmarshals raw into dst and validates it.
func (g *Gateway) decode(raw json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, dst); err != nil {
			return errorf(ErrInvalidArguments, "%v", err)
		}
	}
	err := g.validate.Struct(dst)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errorf(ErrInvalidArguments, "%v", err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describe(fe))
	}
	return errorf(ErrInvalidArguments, "%s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_with":
		return fe.Field() + " is required"
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	case "min":
		return fe.Field() + " must be at least " + fe.Param()
	case "max":
		return fe.Field() + " must be at most " + fe.Param()
	default:
		return fe.Field() + " failed " + fe.Tag()
	}
}

// peekTenant reads bot_id ahead of validation so the tenant scope can be
// authorized before the call is admitted.
func peekTenant(raw json.RawMessage) (string, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", nil
	}
	var head struct {
		BotID string `json:"bot_id"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return "", errorf(ErrInvalidArguments, "%v", err)
	}
	return head.BotID, nil
}

func errorf(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

var _ Sessions = (*session.Registry)(nil)
