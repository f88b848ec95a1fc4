package moderation

import (
	"fmt"
	"slices"
)

// Severity ranks violations. The order is total: None < Low < Medium < High < Critical.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the lowercase severity name.
func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "none"
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a severity name.
func (s *Severity) UnmarshalText(b []byte) error {
	switch string(b) {
	case "none":
		*s = SeverityNone
	case "low":
		*s = SeverityLow
	case "medium":
		*s = SeverityMedium
	case "high":
		*s = SeverityHigh
	case "critical":
		*s = SeverityCritical
	default:
		return fmt.Errorf("moderation: unknown severity %q", b)
	}
	return nil
}

// Action is a recommended response to a violation.
type Action string

const (
	ActionWarn     Action = "warn"
	ActionDelete   Action = "delete"
	ActionTimeout  Action = "timeout"
	ActionKick     Action = "kick"
	ActionBan      Action = "ban"
	ActionFlag     Action = "flag"
	ActionTruncate Action = "truncate"
)

// Violation is one rule's finding.
type Violation struct {
	Reason   string   `json:"reason"`
	Severity Severity `json:"severity"`
	Actions  []Action `json:"actions"`
}

// HasAction reports whether a is among the recommended actions.
func (v *Violation) HasAction(a Action) bool {
	return slices.Contains(v.Actions, a)
}

// Verdict is the engine's decision for one piece of content.
type Verdict struct {
	Approved bool     `json:"approved"`
	Reason   string   `json:"reason,omitempty"`
	Severity Severity `json:"severity"`
	Actions  []Action `json:"actions,omitempty"`

	// Rule names the rule whose violation was selected.
	Rule string `json:"rule,omitempty"`
}

// Approved is the verdict for content no rule objected to.
func Approved() Verdict {
	return Verdict{Approved: true, Severity: SeverityNone}
}

// HasAction reports whether a is among the recommended actions.
func (v Verdict) HasAction(a Action) bool {
	return slices.Contains(v.Actions, a)
}

func violationVerdict(rule string, v *Violation) Verdict {
	return Verdict{
		Approved: false,
		Reason:   v.Reason,
		Severity: v.Severity,
		Actions:  slices.Clone(v.Actions),
		Rule:     rule,
	}
}
