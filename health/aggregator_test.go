package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fixed(name string, r Result) Checker {
	return NewCheckFunc(name, func(context.Context) Result { return r })
}

func TestAggregator_RegisterKeepsOrder(t *testing.T) {
	agg := NewAggregator(0)
	agg.Register(fixed("sessions", Healthy("ok")))
	agg.Register(fixed("redis", Healthy("ok")))
	agg.Register(fixed("sessions", Degraded("replaced")))

	names := agg.Names()
	if len(names) != 2 || names[0] != "sessions" || names[1] != "redis" {
		t.Errorf("Names() = %v", names)
	}
	r, err := agg.Check(context.Background(), "sessions")
	if err != nil || r.Status != StatusDegraded {
		t.Errorf("Check(sessions) = %+v, %v", r, err)
	}
}

func TestAggregator_CheckUnknown(t *testing.T) {
	if _, err := NewAggregator(0).Check(context.Background(), "nope"); !errors.Is(err, ErrCheckerNotFound) {
		t.Errorf("Check() error = %v, want ErrCheckerNotFound", err)
	}
}

func TestAggregator_CheckAll(t *testing.T) {
	agg := NewAggregator(0)
	agg.Register(fixed("a", Healthy("ok")))
	agg.Register(fixed("b", Degraded("slow")))

	results := agg.CheckAll(context.Background())
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if got := Overall(results); got != StatusDegraded {
		t.Errorf("Overall() = %v, want degraded", got)
	}
	for name, r := range results {
		if r.Duration <= 0 && r.Timestamp.IsZero() {
			t.Errorf("%s: timing not recorded", name)
		}
	}
}

func TestAggregator_Timeout(t *testing.T) {
	agg := NewAggregator(20 * time.Millisecond)
	agg.Register(NewCheckFunc("stuck", func(ctx context.Context) Result {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return Healthy("too late")
	}))

	start := time.Now()
	results := agg.CheckAll(context.Background())
	if time.Since(start) > time.Second {
		t.Error("CheckAll waited past its timeout")
	}
	r := results["stuck"]
	if r.Status != StatusUnhealthy || !errors.Is(r.Error, ErrCheckTimeout) {
		t.Errorf("stuck = %+v, want timeout", r)
	}
}

func TestOverall(t *testing.T) {
	tests := []struct {
		name    string
		results map[string]Result
		want    Status
	}{
		{"empty", nil, StatusHealthy},
		{"healthy", map[string]Result{"a": Healthy("")}, StatusHealthy},
		{"unhealthy wins", map[string]Result{"a": Degraded(""), "b": Unhealthy("", nil)}, StatusUnhealthy},
	}
	for _, tt := range tests {
		if got := Overall(tt.results); got != tt.want {
			t.Errorf("%s: Overall() = %v, want %v", tt.name, got, tt.want)
		}
	}
}
