package moderation

import (
	"context"
	"fmt"

	"github.com/jonwraymond/botops/observe"
)

// DefaultMaxLength is the default maximum message length in characters.
const DefaultMaxLength = 2000

// Config configures the engine.
type Config struct {
	// Disabled short-circuits every check to Approved.
	Disabled bool

	// MaxLength is the maximum content length in characters.
	// Default: 2000
	MaxLength int

	// ForbiddenWords are matched as case-insensitive substrings.
	ForbiddenWords []string

	// FailClosed turns rule errors and panics into a High violation.
	// When false they are logged and the rule counts as approving.
	FailClosed bool
}

func (c Config) withDefaults() Config {
	if c.MaxLength <= 0 {
		c.MaxLength = DefaultMaxLength
	}
	return c
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger rule failures are reported to.
func WithLogger(l observe.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRules replaces the rule set. Rules run in the given order.
func WithRules(rules ...Rule) Option {
	return func(e *Engine) {
		e.rules = rules
	}
}

// Engine evaluates content. It holds no per-call state and is safe for
// concurrent use.
type Engine struct {
	config Config
	rules  []Rule
	logger observe.Logger
}

// New creates an engine with the default rules.
func New(cfg Config, opts ...Option) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		config: cfg,
		rules:  DefaultRules(cfg),
		logger: observe.NopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enabled reports whether rules run at all.
func (e *Engine) Enabled() bool {
	return !e.config.Disabled
}

// RuleResult is one rule's outcome within a Report.
type RuleResult struct {
	Rule      string     `json:"rule"`
	Violation *Violation `json:"violation,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Report is a verdict with the per-rule results that produced it.
type Report struct {
	Verdict Verdict      `json:"verdict"`
	Results []RuleResult `json:"results"`
}

// Moderate returns the verdict for content.
func (e *Engine) Moderate(ctx context.Context, content string) Verdict {
	return e.Check(ctx, content).Verdict
}

// Check runs every rule and returns the verdict with per-rule results.
func (e *Engine) Check(ctx context.Context, content string) Report {
	if e.config.Disabled {
		return Report{Verdict: Approved()}
	}

	report := Report{
		Verdict: Approved(),
		Results: make([]RuleResult, 0, len(e.rules)),
	}
	var selected *Violation
	for _, rule := range e.rules {
		v, err := e.evaluate(rule, content)
		res := RuleResult{Rule: rule.Name()}
		if err != nil {
			res.Error = err.Error()
			e.logger.Error(ctx, "moderation rule failed",
				observe.F("rule", rule.Name()),
				observe.F("fail_closed", e.config.FailClosed),
				observe.Err(err),
			)
			if e.config.FailClosed {
				v = &Violation{
					Reason:   fmt.Sprintf("rule %s failed", rule.Name()),
					Severity: SeverityHigh,
					Actions:  []Action{ActionFlag, ActionWarn},
				}
			}
		}
		res.Violation = v
		report.Results = append(report.Results, res)

		// Strictly greater: the earliest rule keeps ties.
		if v != nil && (selected == nil || v.Severity > selected.Severity) {
			selected = v
			report.Verdict = violationVerdict(rule.Name(), v)
		}
	}
	return report
}

func (e *Engine) evaluate(rule Rule, content string) (v *Violation, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, fmt.Errorf("moderation: rule %s panicked: %v", rule.Name(), r)
		}
	}()
	return rule.Evaluate(content)
}
