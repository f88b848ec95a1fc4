package health

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/jonwraymond/botops/session"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusHealthy, "healthy"},
		{StatusDegraded, "degraded"},
		{StatusUnhealthy, "unhealthy"},
		{Status(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestResultHelpers(t *testing.T) {
	boom := errors.New("boom")
	r := Unhealthy("down", boom).WithDetails(map[string]any{"k": 1})
	if r.Status != StatusUnhealthy || r.Error != boom || r.Details["k"] != 1 {
		t.Errorf("Unhealthy() = %+v", r)
	}
	if r.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
	if Degraded("slow").Status != StatusDegraded || Healthy("ok").Status != StatusHealthy {
		t.Error("helper status mismatch")
	}
}

type tenants []session.Tenant

func (t tenants) List() []session.Tenant { return t }

func TestSessionChecker(t *testing.T) {
	running := session.Tenant{ID: "a", Status: session.StatusRunning}
	down := session.Tenant{ID: "b", Status: session.StatusDisconnected}

	tests := []struct {
		name    string
		tenants tenants
		want    Status
	}{
		{"no tenants", nil, StatusHealthy},
		{"all running", tenants{running}, StatusHealthy},
		{"one of two disconnected", tenants{running, down}, StatusDegraded},
		{"all disconnected", tenants{down}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewSessionChecker(tt.tenants).Check(context.Background())
			if r.Status != tt.want {
				t.Errorf("Status = %v, want %v (%s)", r.Status, tt.want, r.Message)
			}
			if r.Details["tenants"] != len(tt.tenants) {
				t.Errorf("Details[tenants] = %v", r.Details["tenants"])
			}
		})
	}
}

func TestSessionChecker_ContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if r := NewSessionChecker(tenants{}).Check(ctx); r.Status != StatusUnhealthy {
		t.Errorf("Status = %v, want unhealthy", r.Status)
	}
}

func TestRedisChecker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	c := NewRedisChecker(client)

	if r := c.Check(context.Background()); r.Status != StatusHealthy {
		t.Fatalf("Status = %v, want healthy (%v)", r.Status, r.Error)
	}

	mr.Close()
	r := c.Check(context.Background())
	if r.Status != StatusDegraded || r.Error == nil {
		t.Errorf("after close: %+v, want degraded with error", r)
	}
}
