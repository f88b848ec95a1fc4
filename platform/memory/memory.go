// Package memory provides an in-process chat platform.
//
// Use memory.New() in tests and demo deployments to run tenants without a
// network. All connections share one set of channels, so a message sent
// through one tenant is visible to every other.
package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonwraymond/botops/session"
)

const defaultLimit = 50

// ErrClosed is returned by operations on a closed connection.
var ErrClosed = errors.New("platform/memory: connection closed")

// Option configures the platform.
type Option func(*Platform)

// WithChannel adds a channel.
func WithChannel(info session.ChannelInfo) Option {
	return func(p *Platform) {
		p.channels[info.ID] = &channel{info: info}
	}
}

// WithGuild adds a guild.
func WithGuild(info session.GuildInfo) Option {
	return func(p *Platform) {
		p.guilds[info.ID] = info
	}
}

// WithTokens restricts Connect to the given tokens.
func WithTokens(tokens ...string) Option {
	return func(p *Platform) {
		p.tokens = make(map[string]bool, len(tokens))
		for _, t := range tokens {
			p.tokens[t] = true
		}
	}
}

// WithClock sets the clock used for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Platform) {
		p.now = now
	}
}

// Platform is an in-memory session.Platform.
type Platform struct {
	mu       sync.RWMutex
	channels map[string]*channel
	guilds   map[string]session.GuildInfo
	tokens   map[string]bool
	conns    []*Connection
	nextID   int
	now      func() time.Time

	connectErr error
	readyMode  ReadyMode
}

type channel struct {
	info     session.ChannelInfo
	messages []session.Message // oldest first
}

// ReadyMode controls what a new connection emits first.
type ReadyMode int

const (
	// ReadyImmediately emits EventReady on connect.
	ReadyImmediately ReadyMode = iota
	// ReadyNever emits nothing until the test intervenes.
	ReadyNever
	// ReadyFails emits EventError instead of EventReady.
	ReadyFails
)

// New creates a platform.
func New(opts ...Option) *Platform {
	p := &Platform{
		channels: make(map[string]*channel),
		guilds:   make(map[string]session.GuildInfo),
		now:      time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// SetConnectError makes subsequent Connect calls fail with err. Nil clears it.
func (p *Platform) SetConnectError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connectErr = err
}

// SetReadyMode changes how subsequent connections signal readiness.
func (p *Platform) SetReadyMode(m ReadyMode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readyMode = m
}

// Connect opens a connection.
func (p *Platform) Connect(ctx context.Context, creds session.Credentials) (session.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.connectErr != nil {
		return nil, p.connectErr
	}
	if p.tokens != nil && !p.tokens[creds.Token] {
		return nil, errors.New("platform/memory: invalid token")
	}

	c := &Connection{
		platform: p,
		events:   make(chan session.Event, 64),
	}
	p.conns = append(p.conns, c)

	switch p.readyMode {
	case ReadyImmediately:
		c.emit(session.Event{Type: session.EventReady})
	case ReadyFails:
		c.emit(session.Event{Type: session.EventError, Err: errors.New("platform/memory: gateway rejected identify")})
	}
	return c, nil
}

// Connections returns every connection opened so far.
func (p *Platform) Connections() []*Connection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.conns)
}

// Messages returns a channel's messages, oldest first.
func (p *Platform) Messages(channelID string) []session.Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ch, ok := p.channels[channelID]
	if !ok {
		return nil
	}
	return slices.Clone(ch.messages)
}

// Post appends a message to a channel as if a user sent it, and delivers it
// to every open connection.
func (p *Platform) Post(channelID, authorID, content string) (session.Message, error) {
	p.mu.Lock()
	msg, err := p.appendLocked(channelID, authorID, content)
	conns := slices.Clone(p.conns)
	p.mu.Unlock()
	if err != nil {
		return session.Message{}, err
	}
	for _, c := range conns {
		m := msg
		c.emit(session.Event{Type: session.EventMessage, Message: &m})
	}
	return msg, nil
}

func (p *Platform) appendLocked(channelID, authorID, content string) (session.Message, error) {
	ch, ok := p.channels[channelID]
	if !ok {
		return session.Message{}, fmt.Errorf("platform/memory: channel %q: %w", channelID, session.ErrNotFound)
	}
	p.nextID++
	msg := session.Message{
		ID:        strconv.Itoa(p.nextID),
		ChannelID: channelID,
		AuthorID:  authorID,
		Content:   content,
		Timestamp: p.now(),
	}
	ch.messages = append(ch.messages, msg)
	return msg, nil
}

// Connection is an in-memory session.Connection.
type Connection struct {
	platform *Platform

	mu     sync.Mutex
	events chan session.Event
	closed bool
	hold   chan struct{}
	fail   map[string]error
}

func (c *Connection) emit(ev session.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	default:
		// Slow consumer; the event is dropped like a lossy gateway would.
	}
}

// Events returns the event stream.
func (c *Connection) Events() <-chan session.Event {
	return c.events
}

// Ready emits EventReady.
func (c *Connection) Ready() {
	c.emit(session.Event{Type: session.EventReady})
}

// Disconnect emits EventDisconnected with err.
func (c *Connection) Disconnect(err error) {
	c.emit(session.Event{Type: session.EventDisconnected, Err: err})
}

// Hold makes operations block until Release or until their context ends.
func (c *Connection) Hold() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hold == nil {
		c.hold = make(chan struct{})
	}
}

// Release unblocks held operations.
func (c *Connection) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hold != nil {
		close(c.hold)
		c.hold = nil
	}
}

// FailNext makes the next call of op ("send", "history", "metadata",
// "search", "delete", "guild") return err.
func (c *Connection) FailNext(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail == nil {
		c.fail = make(map[string]error)
	}
	c.fail[op] = err
}

// Closed reports whether Close was called.
func (c *Connection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close closes the connection and its event stream.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.events)
	return nil
}

// enter applies hold and failure injection for op.
func (c *Connection) enter(ctx context.Context, op string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	hold := c.hold
	err := c.fail[op]
	delete(c.fail, op)
	c.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}
	return ctx.Err()
}

// Send posts content to a channel.
func (c *Connection) Send(ctx context.Context, channelID, content string) (session.MessageRef, error) {
	if err := c.enter(ctx, "send"); err != nil {
		return session.MessageRef{}, err
	}
	p := c.platform
	p.mu.Lock()
	defer p.mu.Unlock()
	msg, err := p.appendLocked(channelID, "bot", content)
	if err != nil {
		return session.MessageRef{}, err
	}
	return session.MessageRef{ID: msg.ID, ChannelID: channelID}, nil
}

// FetchHistory returns up to limit messages older than before, newest first.
func (c *Connection) FetchHistory(ctx context.Context, channelID string, limit int, before string) ([]session.Message, error) {
	if err := c.enter(ctx, "history"); err != nil {
		return nil, err
	}
	p := c.platform
	p.mu.RLock()
	defer p.mu.RUnlock()
	ch, ok := p.channels[channelID]
	if !ok {
		return nil, fmt.Errorf("platform/memory: channel %q: %w", channelID, session.ErrNotFound)
	}

	if limit <= 0 {
		limit = defaultLimit
	}
	end := len(ch.messages)
	if before != "" {
		end = slices.IndexFunc(ch.messages, func(m session.Message) bool { return m.ID == before })
		if end < 0 {
			return nil, fmt.Errorf("platform/memory: message %q: %w", before, session.ErrNotFound)
		}
	}
	out := make([]session.Message, 0, min(limit, end))
	for i := end - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, ch.messages[i])
	}
	return out, nil
}

// FetchMetadata returns channel information.
func (c *Connection) FetchMetadata(ctx context.Context, channelID string) (session.ChannelInfo, error) {
	if err := c.enter(ctx, "metadata"); err != nil {
		return session.ChannelInfo{}, err
	}
	p := c.platform
	p.mu.RLock()
	defer p.mu.RUnlock()
	ch, ok := p.channels[channelID]
	if !ok {
		return session.ChannelInfo{}, fmt.Errorf("platform/memory: channel %q: %w", channelID, session.ErrNotFound)
	}
	return ch.info, nil
}

// Search returns up to limit messages containing query, newest first.
func (c *Connection) Search(ctx context.Context, channelID, query string, limit int) ([]session.Message, error) {
	if err := c.enter(ctx, "search"); err != nil {
		return nil, err
	}
	p := c.platform
	p.mu.RLock()
	defer p.mu.RUnlock()
	ch, ok := p.channels[channelID]
	if !ok {
		return nil, fmt.Errorf("platform/memory: channel %q: %w", channelID, session.ErrNotFound)
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	q := strings.ToLower(query)
	var out []session.Message
	for i := len(ch.messages) - 1; i >= 0 && len(out) < limit; i-- {
		if strings.Contains(strings.ToLower(ch.messages[i].Content), q) {
			out = append(out, ch.messages[i])
		}
	}
	return out, nil
}

// Delete removes a message.
func (c *Connection) Delete(ctx context.Context, channelID, messageID string) error {
	if err := c.enter(ctx, "delete"); err != nil {
		return err
	}
	p := c.platform
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.channels[channelID]
	if !ok {
		return fmt.Errorf("platform/memory: channel %q: %w", channelID, session.ErrNotFound)
	}
	i := slices.IndexFunc(ch.messages, func(m session.Message) bool { return m.ID == messageID })
	if i < 0 {
		return fmt.Errorf("platform/memory: message %q: %w", messageID, session.ErrNotFound)
	}
	ch.messages = slices.Delete(ch.messages, i, i+1)
	return nil
}

// FetchGuild returns guild information with its channels.
func (c *Connection) FetchGuild(ctx context.Context, guildID string) (session.GuildInfo, error) {
	if err := c.enter(ctx, "guild"); err != nil {
		return session.GuildInfo{}, err
	}
	p := c.platform
	p.mu.RLock()
	defer p.mu.RUnlock()
	g, ok := p.guilds[guildID]
	if !ok {
		return session.GuildInfo{}, fmt.Errorf("platform/memory: guild %q: %w", guildID, session.ErrNotFound)
	}
	g.Channels = nil
	for _, ch := range p.channels {
		if ch.info.GuildID == guildID {
			g.Channels = append(g.Channels, ch.info)
		}
	}
	slices.SortFunc(g.Channels, func(a, b session.ChannelInfo) int { return strings.Compare(a.ID, b.ID) })
	return g, nil
}

var (
	_ session.Platform   = (*Platform)(nil)
	_ session.Connection = (*Connection)(nil)
)
