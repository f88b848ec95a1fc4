package session

import (
	"context"
	"fmt"
	"time"
)

// Status is a tenant's lifecycle state.
type Status int32

const (
	StatusStopped Status = iota
	StatusStarting
	StatusRunning
	StatusDisconnected
	StatusStopping
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusDisconnected:
		return "disconnected"
	case StatusStopping:
		return "stopping"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *Status) UnmarshalText(b []byte) error {
	for st := StatusStopped; st <= StatusStopping; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("session: unknown status %q", b)
}

// Credentials authenticate a tenant to the chat platform.
type Credentials struct {
	Token string `json:"-"`
}

// TenantConfig describes a tenant to start.
type TenantConfig struct {
	ID          string
	Name        string
	Credentials Credentials
}

// Tenant is a point-in-time snapshot of a tenant.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	StartedAt time.Time `json:"started_at,omitzero"`
	LastError string    `json:"last_error,omitempty"`

	// Dropped counts inbound messages dropped because the queue was full.
	Dropped uint64 `json:"inbound_dropped,omitempty"`
}

// Message is a chat message.
type Message struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	AuthorID  string    `json:"author_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageRef identifies a sent message.
type MessageRef struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
}

// ChannelInfo describes a channel.
type ChannelInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Topic   string `json:"topic,omitempty"`
	GuildID string `json:"guild_id,omitempty"`
	Type    string `json:"type,omitempty"`
}

// GuildInfo describes a guild.
type GuildInfo struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	MemberCount int           `json:"member_count"`
	Channels    []ChannelInfo `json:"channels,omitempty"`
}

// EventType classifies platform events.
type EventType string

const (
	EventReady        EventType = "ready"
	EventMessage      EventType = "message"
	EventError        EventType = "error"
	EventDisconnected EventType = "disconnected"
)

// Event is delivered by a Connection.
type Event struct {
	Type    EventType
	Message *Message // EventMessage only
	Err     error    // EventError and EventDisconnected
}

// Platform opens connections to the chat platform.
type Platform interface {
	// Connect opens a connection. The connection is usable once it emits
	// EventReady.
	Connect(ctx context.Context, creds Credentials) (Connection, error)
}

// Connection is one tenant's live handle to the chat platform.
//
// Contract:
// - Concurrency: methods other than Close may be called concurrently.
// - Context: methods must return promptly once ctx is done.
// - Events: the channel is closed after Close or when the connection ends.
// - Errors: missing channels, messages or guilds wrap ErrNotFound.
type Connection interface {
	Events() <-chan Event
	Send(ctx context.Context, channelID, content string) (MessageRef, error)
	FetchHistory(ctx context.Context, channelID string, limit int, before string) ([]Message, error)
	FetchMetadata(ctx context.Context, channelID string) (ChannelInfo, error)
	Search(ctx context.Context, channelID, query string, limit int) ([]Message, error)
	Delete(ctx context.Context, channelID, messageID string) error
	FetchGuild(ctx context.Context, guildID string) (GuildInfo, error)
	Close() error
}

// InboundHandler receives messages arriving on a running tenant. It runs on
// the tenant's event loop and should return quickly.
type InboundHandler func(ctx context.Context, tenantID string, msg Message)
