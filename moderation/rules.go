package moderation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Rule evaluates content. A nil Violation means the rule approves.
type Rule interface {
	Name() string
	Evaluate(content string) (*Violation, error)
}

// RuleFunc adapts a function to a named Rule.
type RuleFunc struct {
	RuleName string
	Fn       func(content string) (*Violation, error)
}

// Name returns the rule name.
func (r RuleFunc) Name() string { return r.RuleName }

// Evaluate calls the function.
func (r RuleFunc) Evaluate(content string) (*Violation, error) { return r.Fn(content) }

// Rule names.
const (
	RuleLength             = "length"
	RuleForbiddenWords     = "forbidden_words"
	RuleSpamPatterns       = "spam_patterns"
	RuleSuspiciousKeywords = "suspicious_keywords"
	RuleExcessiveMentions  = "excessive_mentions"
	RuleExcessiveReactions = "excessive_reactions"
	RuleExcessiveCaps      = "excessive_caps"
)

// Thresholds.
const (
	highForbiddenMatches = 3
	repeatedCharRun      = 5
	repeatedAlnumRun     = 10
	minKeywordMatches    = 3
	maxMentions          = 5
	maxCustomReactions   = 10
	minCapsLetters       = 10
	maxCapsRatio         = 0.7
)

var (
	urlClusterPattern     = regexp.MustCompile(`(?:https?://\S+\s*){3,}`)
	mentionPattern        = regexp.MustCompile(`<@!?\d+>`)
	customReactionPattern = regexp.MustCompile(`<a?:\w+:\d+>`)

	commerceKeywords     = regexp.MustCompile(`\b(?:buy|sell|cheap|discount|free|offer|deal|bitcoin|crypto|nft|investment|profit|cash|money)\b`)
	callToActionKeywords = regexp.MustCompile(`\b(?:click|visit|join|subscribe|dm|now|hurry|limited|act|claim)\b`)
)

type lengthRule struct{ max int }

func (r lengthRule) Name() string { return RuleLength }

func (r lengthRule) Evaluate(content string) (*Violation, error) {
	if n := utf8.RuneCountInString(content); n > r.max {
		return &Violation{
			Reason:   fmt.Sprintf("message length %d exceeds %d", n, r.max),
			Severity: SeverityMedium,
			Actions:  []Action{ActionTruncate, ActionWarn},
		}, nil
	}
	return nil, nil
}

type forbiddenWordsRule struct{ words []string }

func newForbiddenWordsRule(words []string) forbiddenWordsRule {
	seen := make(map[string]bool, len(words))
	var out []string
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return forbiddenWordsRule{words: out}
}

func (r forbiddenWordsRule) Name() string { return RuleForbiddenWords }

func (r forbiddenWordsRule) Evaluate(content string) (*Violation, error) {
	if len(r.words) == 0 {
		return nil, nil
	}
	lower := strings.ToLower(content)
	matches := 0
	for _, w := range r.words {
		if strings.Contains(lower, w) {
			matches++
		}
	}
	switch {
	case matches == 0:
		return nil, nil
	case matches >= highForbiddenMatches:
		return &Violation{
			Reason:   fmt.Sprintf("contains %d forbidden words", matches),
			Severity: SeverityHigh,
			Actions:  []Action{ActionDelete, ActionWarn, ActionTimeout},
		}, nil
	default:
		return &Violation{
			Reason:   fmt.Sprintf("contains %d forbidden word(s)", matches),
			Severity: SeverityMedium,
			Actions:  []Action{ActionWarn},
		}, nil
	}
}

type spamRule struct{}

func (spamRule) Name() string { return RuleSpamPatterns }

func (spamRule) Evaluate(content string) (*Violation, error) {
	var reason string
	switch {
	case longestRun(content, nil) >= repeatedCharRun:
		reason = "repeated characters"
	case urlClusterPattern.MatchString(content):
		reason = "cluster of links"
	case longestRun(content, isAlnum) >= repeatedAlnumRun:
		reason = "repeated alphanumerics"
	default:
		return nil, nil
	}
	return &Violation{
		Reason:   "spam pattern: " + reason,
		Severity: SeverityMedium,
		Actions:  []Action{ActionWarn, ActionDelete},
	}, nil
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// longestRun returns the longest run of one repeated rune. When accept is
// non-nil only runs of accepted runes count.
func longestRun(s string, accept func(rune) bool) int {
	best, run := 0, 0
	var prev rune = -1
	for _, r := range s {
		if accept != nil && !accept(r) {
			prev, run = -1, 0
			continue
		}
		if r == prev {
			run++
		} else {
			prev, run = r, 1
		}
		if run > best {
			best = run
		}
	}
	return best
}

type keywordsRule struct{}

func (keywordsRule) Name() string { return RuleSuspiciousKeywords }

func (keywordsRule) Evaluate(content string) (*Violation, error) {
	lower := strings.ToLower(content)
	n := len(commerceKeywords.FindAllStringIndex(lower, -1)) +
		len(callToActionKeywords.FindAllStringIndex(lower, -1))
	if n < minKeywordMatches {
		return nil, nil
	}
	return &Violation{
		Reason:   fmt.Sprintf("%d suspicious keywords", n),
		Severity: SeverityMedium,
		Actions:  []Action{ActionFlag, ActionWarn},
	}, nil
}

type mentionsRule struct{}

func (mentionsRule) Name() string { return RuleExcessiveMentions }

func (mentionsRule) Evaluate(content string) (*Violation, error) {
	if n := len(mentionPattern.FindAllStringIndex(content, -1)); n > maxMentions {
		return &Violation{
			Reason:   fmt.Sprintf("%d user mentions", n),
			Severity: SeverityMedium,
			Actions:  []Action{ActionWarn, ActionDelete},
		}, nil
	}
	return nil, nil
}

type reactionsRule struct{}

func (reactionsRule) Name() string { return RuleExcessiveReactions }

func (reactionsRule) Evaluate(content string) (*Violation, error) {
	if n := len(customReactionPattern.FindAllStringIndex(content, -1)); n > maxCustomReactions {
		return &Violation{
			Reason:   fmt.Sprintf("%d custom reactions", n),
			Severity: SeverityLow,
			Actions:  []Action{ActionWarn},
		}, nil
	}
	return nil, nil
}

type capsRule struct{}

func (capsRule) Name() string { return RuleExcessiveCaps }

func (capsRule) Evaluate(content string) (*Violation, error) {
	letters, upper := 0, 0
	for _, r := range content {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	if letters <= minCapsLetters {
		return nil, nil
	}
	if ratio := float64(upper) / float64(letters); ratio > maxCapsRatio {
		return &Violation{
			Reason:   fmt.Sprintf("%.0f%% capital letters", ratio*100),
			Severity: SeverityLow,
			Actions:  []Action{ActionWarn},
		}, nil
	}
	return nil, nil
}

// DefaultRules returns the built-in rules in evaluation order.
func DefaultRules(cfg Config) []Rule {
	cfg = cfg.withDefaults()
	return []Rule{
		lengthRule{max: cfg.MaxLength},
		newForbiddenWordsRule(cfg.ForbiddenWords),
		spamRule{},
		keywordsRule{},
		mentionsRule{},
		reactionsRule{},
		capsRule{},
	}
}
