// Package audit records security-relevant gateway events.
//
// Events are queued and fanned out to handlers on a single goroutine, so a
// slow sink never delays a tool call. When the queue is full the event is
// dropped and counted instead of blocking the caller.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonwraymond/botops/observe"
)

// Result classifies an audited action.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultDenied  Result = "denied"
)

// Actions that are not tool names.
const (
	ActionKeyCreate  = "key.create"
	ActionTenantBoot = "tenant.boot"
	ActionInbound    = "inbound.moderate"
)

// Event is one audit record. It never carries credentials or message text.
type Event struct {
	Timestamp   time.Time `json:"timestamp"`
	RequestID   string    `json:"request_id,omitempty"`
	PrincipalID string    `json:"principal_id,omitempty"`
	TenantID    string    `json:"tenant_id,omitempty"`
	Action      string    `json:"action"`
	Result      Result    `json:"result"`
	Code        string    `json:"code,omitempty"`
	Details     string    `json:"details,omitempty"`
}

// Handler consumes events. Handlers run sequentially on the logger's goroutine.
type Handler func(Event)

// DefaultBufferSize is the queue capacity.
const DefaultBufferSize = 1024

// Logger queues events for its handlers.
type Logger struct {
	handlers []Handler
	size     int
	now      func() time.Time

	queue     chan Event
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	dropped   atomic.Int64
}

// Option configures a Logger.
type Option func(*Logger)

// WithHandler adds h.
func WithHandler(h Handler) Option {
	return func(l *Logger) { l.handlers = append(l.handlers, h) }
}

// WithWriter adds a handler writing one JSON object per line to w.
func WithWriter(w io.Writer) Option {
	enc := json.NewEncoder(w)
	return WithHandler(func(e Event) { _ = enc.Encode(e) })
}

// WithLogger adds a handler that forwards events to a structured logger.
func WithLogger(log observe.Logger) Option {
	return WithHandler(func(e Event) {
		fields := []observe.Field{
			observe.F("audit.action", e.Action),
			observe.F("audit.result", string(e.Result)),
		}
		for _, f := range []struct{ k, v string }{
			{"audit.request_id", e.RequestID},
			{"principal", e.PrincipalID},
			{"tenant", e.TenantID},
			{"code", e.Code},
			{"details", e.Details},
		} {
			if f.v != "" {
				fields = append(fields, observe.F(f.k, f.v))
			}
		}
		log.Info(context.Background(), "audit", fields...)
	})
}

// WithBufferSize sets the queue capacity.
func WithBufferSize(n int) Option {
	return func(l *Logger) { l.size = n }
}

// WithClock sets the time source for events without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

// New starts a logger.
func New(opts ...Option) *Logger {
	l := &Logger{size: DefaultBufferSize, now: time.Now, done: make(chan struct{})}
	for _, o := range opts {
		o(l)
	}
	if l.size <= 0 {
		l.size = DefaultBufferSize
	}
	l.queue = make(chan Event, l.size)

	l.wg.Add(1)
	go l.process()
	return l
}

// Log queues e. It never blocks; events are dropped once the queue is full
// or the logger is closed.
func (l *Logger) Log(e Event) {
	if l == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}
	select {
	case <-l.done:
		l.dropped.Add(1)
		return
	default:
	}
	select {
	case l.queue <- e:
	default:
		l.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded.
func (l *Logger) Dropped() int64 {
	return l.dropped.Load()
}

func (l *Logger) process() {
	defer l.wg.Done()
	for {
		select {
		case e := <-l.queue:
			l.emit(e)
		case <-l.done:
			for {
				select {
				case e := <-l.queue:
					l.emit(e)
				default:
					return
				}
			}
		}
	}
}

func (l *Logger) emit(e Event) {
	for _, h := range l.handlers {
		h(e)
	}
}

// Close drains queued events and stops the logger. It is idempotent.
func (l *Logger) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	l.wg.Wait()
	return nil
}

type contextKey string

const requestIDKey contextKey = "audit.request_id"

// WithRequestID stores a request id in ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request id stored in ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
