package session

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/jonwraymond/botops/observe"
)

// Defaults.
const (
	DefaultReadyTimeout        = 30 * time.Second
	DefaultShutdownConcurrency = 8
	DefaultInboundBuffer       = 256
)

// Config configures a Registry.
type Config struct {
	// ReadyTimeout bounds the wait for the platform's ready event.
	// Default: 30 seconds
	ReadyTimeout time.Duration

	// ShutdownConcurrency bounds parallel stops in ShutdownAll.
	// Default: 8
	ShutdownConcurrency int

	// OutboundRate throttles platform calls per tenant. Zero disables it.
	OutboundRate rate.Limit

	// OutboundBurst is the throttle's burst size.
	// Default: 1 when OutboundRate is set
	OutboundBurst int

	// Inbound receives messages from running tenants. It runs on a
	// per-tenant worker, so it may call back into the Registry.
	Inbound InboundHandler

	// InboundBuffer bounds messages queued for Inbound per tenant. Messages
	// arriving while the queue is full are dropped and counted.
	// Default: 256
	InboundBuffer int

	// Logger receives lifecycle logs.
	Logger observe.Logger

	// Now returns the current time.
	// Default: time.Now
	Now func() time.Time
}

// Registry owns every tenant connection.
type Registry struct {
	platform Platform
	config   Config

	// sessions holds published tenants. Writers swap in a fresh map.
	sessions atomic.Pointer[map[string]*session]
	publish  sync.Mutex

	starting sync.Map // tenant id -> TenantConfig
	locks    keyedMutex
	loops    sync.WaitGroup
}

type session struct {
	id        string
	name      string
	conn      Connection
	startedAt time.Time
	limiter   *rate.Limiter

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	inbound chan Message
	handled chan struct{}

	status  atomic.Int32
	lastErr atomic.Pointer[string]
	dropped atomic.Uint64
}

func (s *session) Status() Status {
	return Status(s.status.Load())
}

func (s *session) setLastError(err error) {
	if err == nil {
		return
	}
	msg := err.Error()
	s.lastErr.Store(&msg)
}

func (s *session) snapshot() Tenant {
	t := Tenant{
		ID:        s.id,
		Name:      s.name,
		Status:    s.Status(),
		StartedAt: s.startedAt,
		Dropped:   s.dropped.Load(),
	}
	if msg := s.lastErr.Load(); msg != nil {
		t.LastError = *msg
	}
	return t
}

// NewRegistry creates a registry over platform.
func NewRegistry(platform Platform, config Config) *Registry {
	if config.ReadyTimeout <= 0 {
		config.ReadyTimeout = DefaultReadyTimeout
	}
	if config.ShutdownConcurrency <= 0 {
		config.ShutdownConcurrency = DefaultShutdownConcurrency
	}
	if config.InboundBuffer <= 0 {
		config.InboundBuffer = DefaultInboundBuffer
	}
	if config.OutboundRate > 0 && config.OutboundBurst <= 0 {
		config.OutboundBurst = 1
	}
	if config.Logger == nil {
		config.Logger = observe.NopLogger()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	r := &Registry{platform: platform, config: config}
	empty := map[string]*session{}
	r.sessions.Store(&empty)
	return r
}

func (r *Registry) lookup(id string) *session {
	return (*r.sessions.Load())[id]
}

func (r *Registry) store(id string, s *session) {
	r.publish.Lock()
	defer r.publish.Unlock()
	next := maps.Clone(*r.sessions.Load())
	if s == nil {
		delete(next, id)
	} else {
		next[id] = s
	}
	r.sessions.Store(&next)
}

// Get returns a snapshot of the tenant. ok is false for stopped tenants.
func (r *Registry) Get(id string) (Tenant, bool) {
	if s := r.lookup(id); s != nil {
		return s.snapshot(), true
	}
	if v, ok := r.starting.Load(id); ok {
		cfg := v.(TenantConfig)
		return Tenant{ID: cfg.ID, Name: cfg.Name, Status: StatusStarting}, true
	}
	return Tenant{ID: id, Status: StatusStopped}, false
}

// List returns snapshots of every starting or published tenant, by id.
func (r *Registry) List() []Tenant {
	current := *r.sessions.Load()
	out := make([]Tenant, 0, len(current))
	for _, s := range current {
		out = append(out, s.snapshot())
	}
	r.starting.Range(func(_, v any) bool {
		cfg := v.(TenantConfig)
		if _, published := current[cfg.ID]; !published {
			out = append(out, Tenant{ID: cfg.ID, Name: cfg.Name, Status: StatusStarting})
		}
		return true
	})
	slices.SortFunc(out, func(a, b Tenant) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Start connects the tenant and publishes it once the platform is ready.
// A disconnected session for the same id is replaced.
func (r *Registry) Start(ctx context.Context, cfg TenantConfig) (Tenant, error) {
	if cfg.ID == "" {
		return Tenant{}, ErrInvalidTenant
	}
	unlock := r.locks.Lock(cfg.ID)
	defer unlock()

	log := r.config.Logger.With(observe.F("tenant", cfg.ID))

	if old := r.lookup(cfg.ID); old != nil {
		if old.Status() != StatusDisconnected {
			return old.snapshot(), fmt.Errorf("%w: tenant %q", ErrAlreadyRunning, cfg.ID)
		}
		log.Info(ctx, "replacing disconnected session")
		if err := r.teardown(ctx, old); err != nil {
			log.Warn(ctx, "closing disconnected session failed", observe.Err(err))
		}
	}

	r.starting.Store(cfg.ID, cfg)
	defer r.starting.Delete(cfg.ID)

	conn, err := r.connect(ctx, cfg)
	if err != nil {
		log.Warn(ctx, "tenant start failed", observe.Err(err))
		return Tenant{ID: cfg.ID, Name: cfg.Name, Status: StatusStopped, LastError: err.Error()},
			fmt.Errorf("%w: tenant %q: %w", ErrConnectionFailed, cfg.ID, err)
	}

	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &session{
		id:        cfg.ID,
		name:      cfg.Name,
		conn:      conn,
		startedAt: r.config.Now(),
		ctx:       sctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		handled:   make(chan struct{}),
	}
	if r.config.OutboundRate > 0 {
		s.limiter = rate.NewLimiter(r.config.OutboundRate, r.config.OutboundBurst)
	}
	s.status.Store(int32(StatusRunning))

	if r.config.Inbound != nil {
		s.inbound = make(chan Message, r.config.InboundBuffer)
		r.loops.Add(1)
		go r.inboundLoop(s)
	} else {
		close(s.handled)
	}
	r.loops.Add(1)
	go r.eventLoop(s, log)
	r.store(cfg.ID, s)

	log.Info(ctx, "tenant running", observe.F("name", cfg.Name))
	return s.snapshot(), nil
}

// connect opens a connection and waits for readiness. On failure the
// connection is closed.
func (r *Registry) connect(ctx context.Context, cfg TenantConfig) (Connection, error) {
	ctx, cancel := context.WithTimeout(ctx, r.config.ReadyTimeout)
	defer cancel()

	conn, err := r.platform.Connect(ctx, cfg.Credentials)
	if err != nil {
		return nil, err
	}

	fail := func(err error) (Connection, error) {
		if cerr := conn.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
		return nil, err
	}

	events := conn.Events()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fail(fmt.Errorf("not ready after %s", r.config.ReadyTimeout))
			}
			return fail(ctx.Err())
		case ev, ok := <-events:
			if !ok {
				return fail(errors.New("connection closed before ready"))
			}
			switch ev.Type {
			case EventReady:
				return conn, nil
			case EventError, EventDisconnected:
				cause := ev.Err
				if cause == nil {
					cause = fmt.Errorf("%s before ready", ev.Type)
				}
				return fail(cause)
			}
		}
	}
}

func (r *Registry) eventLoop(s *session, log observe.Logger) {
	defer r.loops.Done()
	defer close(s.done)

	events := s.conn.Events()
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				if s.status.CompareAndSwap(int32(StatusRunning), int32(StatusDisconnected)) {
					log.Warn(s.ctx, "tenant connection ended")
				}
				return
			}
			r.handleEvent(s, ev, log)
		}
	}
}

// inboundLoop feeds queued messages to the inbound handler. The event loop
// never waits on the handler, so platform responses and lifecycle events
// keep flowing while it runs.
func (r *Registry) inboundLoop(s *session) {
	defer r.loops.Done()
	defer close(s.handled)

	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.inbound:
			r.config.Inbound(s.ctx, s.id, msg)
		}
	}
}

func (r *Registry) handleEvent(s *session, ev Event, log observe.Logger) {
	switch ev.Type {
	case EventMessage:
		if ev.Message == nil || s.inbound == nil {
			return
		}
		select {
		case s.inbound <- *ev.Message:
		default:
			n := s.dropped.Add(1)
			log.Warn(s.ctx, "inbound queue full, dropping message",
				observe.F("message", ev.Message.ID), observe.F("dropped", n))
		}
	case EventError:
		s.setLastError(ev.Err)
		log.Warn(s.ctx, "platform error", observe.Err(ev.Err))
	case EventDisconnected:
		s.setLastError(ev.Err)
		if s.status.CompareAndSwap(int32(StatusRunning), int32(StatusDisconnected)) {
			log.Warn(s.ctx, "tenant disconnected", observe.Err(ev.Err))
		}
	case EventReady:
		if s.status.CompareAndSwap(int32(StatusDisconnected), int32(StatusRunning)) {
			log.Info(s.ctx, "tenant reconnected")
		}
	}
}

// Stop closes the tenant's connection and removes it.
func (r *Registry) Stop(ctx context.Context, id string) error {
	unlock := r.locks.Lock(id)
	defer unlock()

	s := r.lookup(id)
	if s == nil {
		return fmt.Errorf("%w: tenant %q", ErrNotRunning, id)
	}
	err := r.teardown(ctx, s)
	r.config.Logger.Info(ctx, "tenant stopped", observe.F("tenant", id))
	return err
}

// teardown must be called with the tenant's key lock held.
func (r *Registry) teardown(ctx context.Context, s *session) error {
	s.status.Store(int32(StatusStopping))
	r.store(s.id, nil)
	s.cancel()

	var err error
	if cerr := s.conn.Close(); cerr != nil {
		err = &PlatformError{Tenant: s.id, Op: "close", Err: cerr}
	}

	wait := func(ch <-chan struct{}) bool {
		select {
		case <-ch:
			return true
		case <-ctx.Done():
			err = errors.Join(err, ctx.Err())
			return false
		}
	}
	if wait(s.done) {
		wait(s.handled)
	}
	s.status.Store(int32(StatusStopped))
	return err
}

// ShutdownAll stops every tenant concurrently and reports failures per tenant.
func (r *Registry) ShutdownAll(ctx context.Context) error {
	ids := slices.Sorted(maps.Keys(*r.sessions.Load()))

	var (
		mu       sync.Mutex
		failures = make(map[string]error)
	)
	var g errgroup.Group
	g.SetLimit(r.config.ShutdownConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			err := r.Stop(ctx, id)
			if err != nil && !errors.Is(err, ErrNotRunning) {
				mu.Lock()
				failures[id] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	done := make(chan struct{})
	go func() {
		r.loops.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	if len(failures) > 0 {
		return &ShutdownError{Failures: failures}
	}
	return nil
}

// Ready returns nil when the tenant can serve platform calls, and
// ErrNotRunning or ErrDisconnected otherwise.
func (r *Registry) Ready(id string) error {
	_, err := r.running(id)
	return err
}

func (r *Registry) running(id string) (*session, error) {
	s := r.lookup(id)
	if s == nil {
		return nil, fmt.Errorf("%w: tenant %q", ErrNotRunning, id)
	}
	switch s.Status() {
	case StatusRunning:
		return s, nil
	case StatusDisconnected:
		return nil, fmt.Errorf("%w: tenant %q", ErrDisconnected, id)
	default:
		return nil, fmt.Errorf("%w: tenant %q", ErrNotRunning, id)
	}
}

// dispatch runs fn against a running tenant. The call is cancelled if the
// tenant stops while it is in flight.
func (r *Registry) dispatch(ctx context.Context, id, op string, fn func(context.Context, Connection) error) error {
	s, err := r.running(id)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			if s.ctx.Err() != nil {
				return fmt.Errorf("%w: tenant %q stopped", ErrNotRunning, id)
			}
			return fmt.Errorf("session: outbound throttle for tenant %q: %w", id, err)
		}
	}

	if err := fn(ctx, s.conn); err != nil {
		if s.ctx.Err() != nil {
			return fmt.Errorf("%w: tenant %q stopped", ErrNotRunning, id)
		}
		return &PlatformError{Tenant: id, Op: op, Err: err}
	}
	return nil
}

// Send posts content to a channel.
func (r *Registry) Send(ctx context.Context, tenantID, channelID, content string) (MessageRef, error) {
	var ref MessageRef
	err := r.dispatch(ctx, tenantID, "send", func(ctx context.Context, c Connection) error {
		var err error
		ref, err = c.Send(ctx, channelID, content)
		return err
	})
	return ref, err
}

// History returns up to limit messages before the cursor.
func (r *Registry) History(ctx context.Context, tenantID, channelID string, limit int, before string) ([]Message, error) {
	var msgs []Message
	err := r.dispatch(ctx, tenantID, "history", func(ctx context.Context, c Connection) error {
		var err error
		msgs, err = c.FetchHistory(ctx, channelID, limit, before)
		return err
	})
	return msgs, err
}

// Metadata returns channel information.
func (r *Registry) Metadata(ctx context.Context, tenantID, channelID string) (ChannelInfo, error) {
	var info ChannelInfo
	err := r.dispatch(ctx, tenantID, "metadata", func(ctx context.Context, c Connection) error {
		var err error
		info, err = c.FetchMetadata(ctx, channelID)
		return err
	})
	return info, err
}

// Search returns up to limit messages matching query.
func (r *Registry) Search(ctx context.Context, tenantID, channelID, query string, limit int) ([]Message, error) {
	var msgs []Message
	err := r.dispatch(ctx, tenantID, "search", func(ctx context.Context, c Connection) error {
		var err error
		msgs, err = c.Search(ctx, channelID, query, limit)
		return err
	})
	return msgs, err
}

// Delete removes a message.
func (r *Registry) Delete(ctx context.Context, tenantID, channelID, messageID string) error {
	return r.dispatch(ctx, tenantID, "delete", func(ctx context.Context, c Connection) error {
		return c.Delete(ctx, channelID, messageID)
	})
}

// GuildInfo returns guild information.
func (r *Registry) GuildInfo(ctx context.Context, tenantID, guildID string) (GuildInfo, error) {
	var info GuildInfo
	err := r.dispatch(ctx, tenantID, "guild", func(ctx context.Context, c Connection) error {
		var err error
		info, err = c.FetchGuild(ctx, guildID)
		return err
	})
	return info, err
}
