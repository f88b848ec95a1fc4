package main

import (
	"context"
	"slices"
	"time"

	"github.com/jonwraymond/botops/audit"
	"github.com/jonwraymond/botops/gateway"
	"github.com/jonwraymond/botops/moderation"
	"github.com/jonwraymond/botops/observe"
	"github.com/jonwraymond/botops/ratelimit"
	"github.com/jonwraymond/botops/session"
)

// deleteTimeout bounds removal of a rejected message.
const deleteTimeout = 10 * time.Second

type messageDeleter interface {
	Delete(ctx context.Context, tenantID, channelID, messageID string) error
}

// inboundModerator screens messages received by running tenants. Authors
// that flood a tenant are audited before their content is evaluated;
// rejected content recommending deletion is removed from the channel.
type inboundModerator struct {
	engine   *moderation.Engine
	flood    ratelimit.Limiter
	sessions messageDeleter
	metrics  observe.Metrics
	audit    *audit.Logger
	log      observe.Logger
}

// Handle implements session.InboundHandler.
func (m *inboundModerator) Handle(ctx context.Context, tenantID string, msg session.Message) {
	log := m.log.With(observe.F("tenant", tenantID), observe.F("channel", msg.ChannelID), observe.F("message", msg.ID))

	if m.flood != nil {
		d, err := m.flood.Allow(ctx, tenantID+":"+msg.AuthorID)
		if err == nil && !d.Allowed {
			log.Warn(ctx, "inbound flood", observe.F("author", msg.AuthorID))
			m.audit.Log(audit.Event{
				TenantID: tenantID,
				Action:   audit.ActionInbound,
				Result:   audit.ResultDenied,
				Code:     string(gateway.CodeRateLimitExceeded),
				Details:  "author=" + msg.AuthorID,
			})
		}
	}

	v := m.engine.Moderate(ctx, msg.Content)
	if m.metrics != nil {
		m.metrics.RecordVerdict(ctx, v.Rule, v.Severity.String(), v.Approved)
	}
	if v.Approved {
		return
	}

	ev := audit.Event{
		TenantID: tenantID,
		Action:   audit.ActionInbound,
		Result:   audit.ResultDenied,
		Code:     string(gateway.CodeContentRejected),
		Details:  "rule=" + v.Rule + " severity=" + v.Severity.String(),
	}
	log.Info(ctx, "inbound message rejected", observe.F("rule", v.Rule), observe.F("severity", v.Severity.String()))

	if m.sessions != nil && slices.Contains(v.Actions, moderation.ActionDelete) {
		dctx, cancel := context.WithTimeout(ctx, deleteTimeout)
		err := m.sessions.Delete(dctx, tenantID, msg.ChannelID, msg.ID)
		cancel()
		if err != nil {
			log.Warn(ctx, "delete rejected message", observe.Err(err))
			ev.Result = audit.ResultFailure
			ev.Code = string(gateway.CodeOf(err))
		} else {
			ev.Details += " deleted=true"
		}
	}
	m.audit.Log(ev)
}
