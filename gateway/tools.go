package gateway

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	"github.com/jonwraymond/botops/auth"
	"github.com/jonwraymond/botops/moderation"
	"github.com/jonwraymond/botops/session"
)

// Tool names.
const (
	ToolSendMessage     = "send_message"
	ToolGetMessages     = "get_messages"
	ToolGetChannelInfo  = "get_channel_info"
	ToolSearchMessages  = "search_messages"
	ToolDeleteMessage   = "delete_message"
	ToolGetGuildInfo    = "get_guild_info"
	ToolGetBots         = "get_bots"
	ToolModerateContent = "moderate_content"
	ToolStartBot        = "start_bot"
	ToolStopBot         = "stop_bot"
	ToolIssueToken      = "issue_token"
)

// Default and maximum page sizes for message listings.
const (
	DefaultMessageLimit = 50
	DefaultSearchLimit  = 25
	MaxMessageLimit     = 100
)

type sendMessageArgs struct {
	BotID     string `json:"bot_id" validate:"required"`
	ChannelID string `json:"channel_id" validate:"required"`
	Content   string `json:"content" validate:"required"`
}

type getMessagesArgs struct {
	BotID     string `json:"bot_id" validate:"required"`
	ChannelID string `json:"channel_id" validate:"required"`
	Limit     int    `json:"limit" validate:"omitempty,min=1,max=100"`
	Before    string `json:"before"`
}

type channelArgs struct {
	BotID     string `json:"bot_id" validate:"required"`
	ChannelID string `json:"channel_id" validate:"required"`
}

type searchMessagesArgs struct {
	BotID     string `json:"bot_id" validate:"required"`
	ChannelID string `json:"channel_id" validate:"required"`
	Query     string `json:"query" validate:"required"`
	Limit     int    `json:"limit" validate:"omitempty,min=1,max=100"`
}

type deleteMessageArgs struct {
	BotID     string `json:"bot_id" validate:"required"`
	ChannelID string `json:"channel_id" validate:"required"`
	MessageID string `json:"message_id" validate:"required"`
}

type guildArgs struct {
	BotID   string `json:"bot_id" validate:"required"`
	GuildID string `json:"guild_id" validate:"required"`
}

type botArgs struct {
	BotID string `json:"bot_id" validate:"required"`
}

type moderateContentArgs struct {
	Content   string `json:"content" validate:"required"`
	Action    string `json:"action" validate:"omitempty,oneof=delete warn timeout kick ban"`
	BotID     string `json:"bot_id" validate:"required_with=MessageID"`
	ChannelID string `json:"channel_id" validate:"required_with=MessageID"`
	MessageID string `json:"message_id"`
}

// MessagesResult is returned by get_messages and search_messages.
type MessagesResult struct {
	Messages []session.Message `json:"messages"`
}

// DeleteResult is returned by delete_message.
type DeleteResult struct {
	Deleted   bool   `json:"deleted"`
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}

// BotsResult is returned by get_bots.
type BotsResult struct {
	Bots []session.Tenant `json:"bots"`
}

// ModerationResult is returned by moderate_content.
type ModerationResult struct {
	moderation.Report

	// Action is the requested action, if any.
	Action string `json:"action,omitempty"`

	// Applied reports whether the action was carried out. Only delete is
	// carried out by the gateway; other actions are left to the caller.
	Applied bool `json:"applied"`
}

// StopResult is returned by stop_bot.
type StopResult struct {
	BotID  string         `json:"bot_id"`
	Status session.Status `json:"status"`
}

// TokenResult is returned by issue_token.
type TokenResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// call is the per-call state the stages share.
type call struct {
	tool      *tool
	args      json.RawMessage
	tenant    string
	principal *auth.Principal
	identity  *auth.Identity
}

type handler func(g *Gateway, ctx context.Context, c *call) (any, error)

// tool describes one tool's authorization and dispatch.
type tool struct {
	name string

	// permission is required unless empty.
	permission string

	// scoped tools require bot:<bot_id>, and bot_id itself unless
	// optionalBot is set.
	scoped      bool
	optionalBot bool

	run handler
}

func (g *Gateway) tools() map[string]*tool {
	list := []*tool{
		{name: ToolSendMessage, permission: ToolSendMessage, scoped: true, run: (*Gateway).sendMessage},
		{name: ToolGetMessages, permission: ToolGetMessages, scoped: true, run: (*Gateway).getMessages},
		{name: ToolGetChannelInfo, permission: ToolGetChannelInfo, scoped: true, run: (*Gateway).getChannelInfo},
		{name: ToolSearchMessages, permission: ToolSearchMessages, scoped: true, run: (*Gateway).searchMessages},
		{name: ToolDeleteMessage, permission: ToolDeleteMessage, scoped: true, run: (*Gateway).deleteMessage},
		{name: ToolGetGuildInfo, permission: ToolGetGuildInfo, scoped: true, run: (*Gateway).getGuildInfo},
		{name: ToolGetBots, permission: ToolGetBots, run: (*Gateway).getBots},
		{name: ToolModerateContent, permission: ToolModerateContent, scoped: true, optionalBot: true, run: (*Gateway).moderateContent},
		{name: ToolStopBot, permission: auth.PermissionManageBots, scoped: true, run: (*Gateway).stopBot},
	}
	if g.config.Catalog != nil {
		list = append(list, &tool{name: ToolStartBot, permission: auth.PermissionManageBots, scoped: true, run: (*Gateway).startBot})
	}
	if g.config.Tokens != nil {
		list = append(list, &tool{name: ToolIssueToken, run: (*Gateway).issueToken})
	}
	m := make(map[string]*tool, len(list))
	for _, t := range list {
		m[t.name] = t
	}
	return m
}

// Tools returns the names of the registered tools, sorted.
func (g *Gateway) Tools() []string {
	names := make([]string, 0, len(g.registry))
	for name := range g.registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (g *Gateway) sendMessage(ctx context.Context, c *call) (any, error) {
	var a sendMessageArgs
	if err := g.decode(c.args, &a); err != nil {
		return nil, err
	}
	if err := g.moderate(ctx, c, a.Content); err != nil {
		return nil, err
	}
	return g.config.Sessions.Send(ctx, a.BotID, a.ChannelID, a.Content)
}

func (g *Gateway) getMessages(ctx context.Context, c *call) (any, error) {
	var a getMessagesArgs
	if err := g.decode(c.args, &a); err != nil {
		return nil, err
	}
	if a.Limit == 0 {
		a.Limit = DefaultMessageLimit
	}
	msgs, err := g.config.Sessions.History(ctx, a.BotID, a.ChannelID, a.Limit, a.Before)
	if err != nil {
		return nil, err
	}
	return MessagesResult{Messages: nonNil(msgs)}, nil
}

func (g *Gateway) getChannelInfo(ctx context.Context, c *call) (any, error) {
	var a channelArgs
	if err := g.decode(c.args, &a); err != nil {
		return nil, err
	}
	return g.cached(ctx, c, a.BotID, func(ctx context.Context) (any, error) {
		return g.config.Sessions.Metadata(ctx, a.BotID, a.ChannelID)
	})
}

func (g *Gateway) searchMessages(ctx context.Context, c *call) (any, error) {
	var a searchMessagesArgs
	if err := g.decode(c.args, &a); err != nil {
		return nil, err
	}
	if a.Limit == 0 {
		a.Limit = DefaultSearchLimit
	}
	msgs, err := g.config.Sessions.Search(ctx, a.BotID, a.ChannelID, a.Query, a.Limit)
	if err != nil {
		return nil, err
	}
	return MessagesResult{Messages: nonNil(msgs)}, nil
}

func (g *Gateway) deleteMessage(ctx context.Context, c *call) (any, error) {
	var a deleteMessageArgs
	if err := g.decode(c.args, &a); err != nil {
		return nil, err
	}
	if err := g.config.Sessions.Delete(ctx, a.BotID, a.ChannelID, a.MessageID); err != nil {
		return nil, err
	}
	return DeleteResult{Deleted: true, ChannelID: a.ChannelID, MessageID: a.MessageID}, nil
}

func (g *Gateway) getGuildInfo(ctx context.Context, c *call) (any, error) {
	var a guildArgs
	if err := g.decode(c.args, &a); err != nil {
		return nil, err
	}
	return g.cached(ctx, c, a.BotID, func(ctx context.Context) (any, error) {
		return g.config.Sessions.GuildInfo(ctx, a.BotID, a.GuildID)
	})
}

func (g *Gateway) getBots(_ context.Context, c *call) (any, error) {
	all := g.config.Sessions.List()
	if auth.IsSuperuser(c.principal.Permissions) {
		return BotsResult{Bots: nonNil(all)}, nil
	}
	visible := make([]session.Tenant, 0, len(all))
	for _, t := range all {
		if auth.HasPermission(c.principal.Permissions, auth.TenantPermission(t.ID)) {
			visible = append(visible, t)
		}
	}
	return BotsResult{Bots: visible}, nil
}

func (g *Gateway) moderateContent(ctx context.Context, c *call) (any, error) {
	var a moderateContentArgs
	if err := g.decode(c.args, &a); err != nil {
		return nil, err
	}
	report := g.config.Moderation.Check(ctx, a.Content)
	g.recordVerdict(ctx, report.Verdict)

	res := ModerationResult{Report: report, Action: a.Action}
	if a.Action == string(moderation.ActionDelete) && !report.Verdict.Approved && a.MessageID != "" {
		if err := g.config.Sessions.Delete(ctx, a.BotID, a.ChannelID, a.MessageID); err != nil {
			return nil, err
		}
		res.Applied = true
	}
	return res, nil
}

func (g *Gateway) startBot(ctx context.Context, c *call) (any, error) {
	var a botArgs
	if err := g.decode(c.args, &a); err != nil {
		return nil, err
	}
	cfg, ok := g.config.Catalog.Lookup(a.BotID)
	if !ok {
		return nil, errorf(session.ErrNotFound, "bot %q is not configured", a.BotID)
	}
	return g.config.Sessions.Start(ctx, cfg)
}

func (g *Gateway) stopBot(ctx context.Context, c *call) (any, error) {
	var a botArgs
	if err := g.decode(c.args, &a); err != nil {
		return nil, err
	}
	if err := g.config.Sessions.Stop(ctx, a.BotID); err != nil {
		return nil, err
	}
	return StopResult{BotID: a.BotID, Status: session.StatusStopped}, nil
}

func (g *Gateway) issueToken(_ context.Context, c *call) (any, error) {
	token, err := g.config.Tokens.IssueToken(c.principal)
	if err != nil {
		return nil, err
	}
	claims, err := g.config.Tokens.VerifyToken(token)
	if err != nil {
		return nil, err
	}
	return TokenResult{Token: token, ExpiresAt: claims.ExpiresAt}, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
