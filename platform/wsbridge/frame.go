package wsbridge

import (
	"encoding/json"
	"fmt"
)

// Frame types.
const (
	frameRequest  = "req"
	frameResponse = "res"
	frameEvent    = "event"
)

// Request methods.
const (
	MethodSend     = "send"
	MethodHistory  = "history"
	MethodMetadata = "metadata"
	MethodSearch   = "search"
	MethodDelete   = "delete"
	MethodGuild    = "guild"
)

// CodeNotFound is the remote error code for a missing resource.
const CodeNotFound = "not_found"

// Frame is one message on the bridge socket.
type Frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Event   string          `json:"event,omitempty"`
	OK      bool            `json:"ok,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *RemoteError    `json:"error,omitempty"`
}

// RemoteError is a failure reported by the bridge.
type RemoteError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("wsbridge: remote %s: %s", e.Code, e.Message)
}

// EventError is the payload of error and disconnected events.
type EventError struct {
	Message string `json:"message"`
}

type sendParams struct {
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
}

type historyParams struct {
	ChannelID string `json:"channel_id"`
	Limit     int    `json:"limit,omitempty"`
	Before    string `json:"before,omitempty"`
}

type channelParams struct {
	ChannelID string `json:"channel_id"`
}

type searchParams struct {
	ChannelID string `json:"channel_id"`
	Query     string `json:"query"`
	Limit     int    `json:"limit,omitempty"`
}

type deleteParams struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}

type guildParams struct {
	GuildID string `json:"guild_id"`
}
