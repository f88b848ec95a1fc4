package wsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/jonwraymond/botops/observe"
	"github.com/jonwraymond/botops/session"
)

// Defaults.
const (
	DefaultDialTimeout = 10 * time.Second
	DefaultReadLimit   = 10 << 20
	eventBuffer        = 64
)

var (
	// ErrClosed indicates a call on a closed connection.
	ErrClosed = errors.New("wsbridge: connection closed")

	// ErrConnectionLost indicates the socket dropped while a call was pending.
	ErrConnectionLost = errors.New("wsbridge: connection lost")

	// ErrInvalidURL indicates a bridge URL that is not ws:// or wss://.
	ErrInvalidURL = errors.New("wsbridge: invalid url")
)

// Config configures a Platform.
type Config struct {
	// URL is the bridge endpoint, ws:// or wss://.
	URL string

	// DialTimeout bounds the WebSocket handshake.
	// Default: 10 seconds
	DialTimeout time.Duration

	// ReadLimit caps inbound frame size in bytes.
	// Default: 10 MiB
	ReadLimit int64

	// HTTPClient is used for the handshake. Default: http.DefaultClient
	HTTPClient *http.Client

	Logger observe.Logger
}

// Platform dials one bridge socket per tenant.
type Platform struct {
	cfg Config
}

// New validates cfg and returns a Platform.
func New(cfg Config) (*Platform, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, cfg.URL)
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = DefaultReadLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	return &Platform{cfg: cfg}, nil
}

// Connect dials the bridge with the tenant's token.
func (p *Platform) Connect(ctx context.Context, creds session.Credentials) (session.Connection, error) {
	dctx, cancel := context.WithTimeout(ctx, p.cfg.DialTimeout)
	defer cancel()

	ws, _, err := websocket.Dial(dctx, p.cfg.URL, &websocket.DialOptions{
		HTTPClient: p.cfg.HTTPClient,
		HTTPHeader: http.Header{"Authorization": []string{"Bot " + creds.Token}},
	})
	if err != nil {
		return nil, fmt.Errorf("wsbridge: dial: %w", err)
	}
	ws.SetReadLimit(p.cfg.ReadLimit)

	c := newConn(ws, p.cfg.Logger)
	go c.readLoop()
	return c, nil
}

// Conn is one tenant's bridge socket.
type Conn struct {
	ws     *websocket.Conn
	log    observe.Logger
	events chan session.Event

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	pending map[string]chan Frame
	closing bool

	dropped atomic.Uint64
}

func newConn(ws *websocket.Conn, log observe.Logger) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		ws:      ws,
		log:     log,
		events:  make(chan session.Event, eventBuffer),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		pending: make(map[string]chan Frame),
	}
}

// Events returns the event stream. It closes when the socket ends.
func (c *Conn) Events() <-chan session.Event {
	return c.events
}

func (c *Conn) readLoop() {
	defer close(c.events)
	defer close(c.done)

	for {
		var f Frame
		if err := wsjson.Read(c.ctx, c.ws, &f); err != nil {
			c.mu.Lock()
			closing := c.closing
			c.mu.Unlock()
			if !closing {
				c.emit(session.Event{Type: session.EventDisconnected, Err: fmt.Errorf("%w: %w", ErrConnectionLost, err)})
			}
			return
		}

		switch f.Type {
		case frameResponse:
			c.mu.Lock()
			ch, ok := c.pending[f.ID]
			delete(c.pending, f.ID)
			c.mu.Unlock()
			if ok {
				ch <- f
			}
		case frameEvent:
			ev, err := decodeEvent(f)
			if err != nil {
				c.log.Warn(c.ctx, "dropping malformed bridge event", observe.F("event", f.Event), observe.Err(err))
				continue
			}
			if ev.Type == session.EventMessage {
				c.offer(ev)
			} else {
				c.emit(ev)
			}
		}
	}
}

// offer queues a message event without blocking, so the read loop keeps
// routing responses to pending calls while the consumer is busy.
func (c *Conn) offer(ev session.Event) {
	select {
	case c.events <- ev:
	default:
		n := c.dropped.Add(1)
		c.log.Warn(c.ctx, "event buffer full, dropping message",
			observe.F("message", ev.Message.ID), observe.F("dropped", n))
	}
}

// Dropped returns the number of message events dropped on a full buffer.
func (c *Conn) Dropped() uint64 {
	return c.dropped.Load()
}

// emit blocks until the event is taken or the connection is closing.
func (c *Conn) emit(ev session.Event) {
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}

func decodeEvent(f Frame) (session.Event, error) {
	switch session.EventType(f.Event) {
	case session.EventReady:
		return session.Event{Type: session.EventReady}, nil
	case session.EventMessage:
		var msg session.Message
		if err := json.Unmarshal(f.Payload, &msg); err != nil {
			return session.Event{}, err
		}
		return session.Event{Type: session.EventMessage, Message: &msg}, nil
	case session.EventError, session.EventDisconnected:
		var p EventError
		if len(f.Payload) > 0 {
			if err := json.Unmarshal(f.Payload, &p); err != nil {
				return session.Event{}, err
			}
		}
		var err error
		if p.Message != "" {
			err = errors.New(p.Message)
		}
		return session.Event{Type: session.EventType(f.Event), Err: err}, nil
	default:
		return session.Event{}, fmt.Errorf("unknown event %q", f.Event)
	}
}

// call sends a request and waits for its response.
func (c *Conn) call(ctx context.Context, method string, params, out any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("wsbridge: encode %s: %w", method, err)
	}

	id := uuid.NewString()
	ch := make(chan Frame, 1)
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return ErrClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := wsjson.Write(ctx, c.ws, Frame{Type: frameRequest, ID: id, Method: method, Params: raw}); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrConnectionLost, err)
	}

	select {
	case f := <-ch:
		if !f.OK {
			rerr := f.Error
			if rerr == nil {
				rerr = &RemoteError{Code: "unknown", Message: "request failed"}
			}
			if rerr.Code == CodeNotFound {
				return fmt.Errorf("%w: %w", session.ErrNotFound, rerr)
			}
			return rerr
		}
		if out == nil || len(f.Payload) == 0 {
			return nil
		}
		if err := json.Unmarshal(f.Payload, out); err != nil {
			return fmt.Errorf("wsbridge: decode %s: %w", method, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrConnectionLost
	}
}

// Send posts content to a channel.
func (c *Conn) Send(ctx context.Context, channelID, content string) (session.MessageRef, error) {
	var ref session.MessageRef
	err := c.call(ctx, MethodSend, sendParams{ChannelID: channelID, Content: content}, &ref)
	return ref, err
}

// FetchHistory returns up to limit messages before the cursor.
func (c *Conn) FetchHistory(ctx context.Context, channelID string, limit int, before string) ([]session.Message, error) {
	var msgs []session.Message
	err := c.call(ctx, MethodHistory, historyParams{ChannelID: channelID, Limit: limit, Before: before}, &msgs)
	return msgs, err
}

// FetchMetadata returns channel information.
func (c *Conn) FetchMetadata(ctx context.Context, channelID string) (session.ChannelInfo, error) {
	var info session.ChannelInfo
	err := c.call(ctx, MethodMetadata, channelParams{ChannelID: channelID}, &info)
	return info, err
}

// Search returns up to limit messages matching query.
func (c *Conn) Search(ctx context.Context, channelID, query string, limit int) ([]session.Message, error) {
	var msgs []session.Message
	err := c.call(ctx, MethodSearch, searchParams{ChannelID: channelID, Query: query, Limit: limit}, &msgs)
	return msgs, err
}

// Delete removes a message.
func (c *Conn) Delete(ctx context.Context, channelID, messageID string) error {
	return c.call(ctx, MethodDelete, deleteParams{ChannelID: channelID, MessageID: messageID}, nil)
}

// FetchGuild returns guild information.
func (c *Conn) FetchGuild(ctx context.Context, guildID string) (session.GuildInfo, error) {
	var info session.GuildInfo
	err := c.call(ctx, MethodGuild, guildParams{GuildID: guildID}, &info)
	return info, err
}

// Close closes the socket and waits for the read loop. It is idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		<-c.done
		return nil
	}
	c.closing = true
	c.mu.Unlock()

	// The handshake runs before cancel so the read loop sees a clean close.
	if err := c.ws.Close(websocket.StatusNormalClosure, "closed"); err != nil {
		c.log.Debug(c.ctx, "bridge close handshake failed", observe.Err(err))
	}
	c.cancel()
	<-c.done
	return nil
}
