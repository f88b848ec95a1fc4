package moderation

import (
	"slices"
	"strings"
	"testing"
)

func TestRules(t *testing.T) {
	rules := DefaultRules(Config{MaxLength: 20, ForbiddenWords: []string{"heck", "dang", "  Heck ", "", "shoot"}})
	byName := map[string]Rule{}
	for _, r := range rules {
		byName[r.Name()] = r
	}

	tests := []struct {
		name         string
		rule         string
		content      string
		wantSeverity Severity // SeverityNone means no violation
		wantActions  []Action
	}{
		{"length at max", RuleLength, strings.Repeat("a", 20), SeverityNone, nil},
		{"length over max", RuleLength, strings.Repeat("a", 21), SeverityMedium, []Action{ActionTruncate, ActionWarn}},
		{"length counts runes", RuleLength, strings.Repeat("é", 20), SeverityNone, nil},

		{"no forbidden", RuleForbiddenWords, "all good", SeverityNone, nil},
		{"one forbidden", RuleForbiddenWords, "oh HECK", SeverityMedium, []Action{ActionWarn}},
		{"substring match", RuleForbiddenWords, "dangerous", SeverityMedium, []Action{ActionWarn}},
		{"duplicates count once", RuleForbiddenWords, "heck heck heck dang", SeverityMedium, []Action{ActionWarn}},
		{"three distinct", RuleForbiddenWords, "heck dang shoot", SeverityHigh, []Action{ActionDelete, ActionWarn, ActionTimeout}},

		{"four repeated", RuleSpamPatterns, "heyyyy", SeverityNone, nil},
		{"five repeated", RuleSpamPatterns, "heyyyyy", SeverityMedium, []Action{ActionWarn, ActionDelete}},
		{"repeated punctuation", RuleSpamPatterns, "wait!!!!!", SeverityMedium, []Action{ActionWarn, ActionDelete}},
		{"two urls", RuleSpamPatterns, "see https://a.example https://b.example", SeverityNone, nil},
		{"url cluster", RuleSpamPatterns, "http://a.example http://b.example https://c.example", SeverityMedium, []Action{ActionWarn, ActionDelete}},

		{"two keywords", RuleSuspiciousKeywords, "buy it now", SeverityNone, nil},
		{"three keywords", RuleSuspiciousKeywords, "buy cheap crypto", SeverityMedium, []Action{ActionFlag, ActionWarn}},
		{"keywords need word boundaries", RuleSuspiciousKeywords, "buyer freely nowhere", SeverityNone, nil},
		{"mixed classes", RuleSuspiciousKeywords, "Click to JOIN for free", SeverityMedium, []Action{ActionFlag, ActionWarn}},

		{"five mentions", RuleExcessiveMentions, "<@1> <@2> <@3> <@!4> <@5>", SeverityNone, nil},
		{"six mentions", RuleExcessiveMentions, "<@1> <@2> <@3> <@!4> <@5> <@6>", SeverityMedium, []Action{ActionWarn, ActionDelete}},

		{"ten reactions", RuleExcessiveReactions, strings.Repeat("<:pog:123>", 10), SeverityNone, nil},
		{"eleven reactions", RuleExcessiveReactions, strings.Repeat("<:pog:123>", 10) + "<a:dance:9>", SeverityLow, []Action{ActionWarn}},

		{"short shouting", RuleExcessiveCaps, "HELLO THERE", SeverityNone, nil},
		{"eleven letters shouting", RuleExcessiveCaps, "HELLO THEREX", SeverityLow, []Action{ActionWarn}},
		{"mostly lower", RuleExcessiveCaps, "Hello There Everyone", SeverityNone, nil},
		{"exactly seventy percent", RuleExcessiveCaps, "ABCDEFGHIJKLMNopqrst", SeverityNone, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := byName[tt.rule].Evaluate(tt.content)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if tt.wantSeverity == SeverityNone {
				if v != nil {
					t.Errorf("unexpected violation %+v", v)
				}
				return
			}
			if v == nil {
				t.Fatal("expected violation")
			}
			if v.Severity != tt.wantSeverity {
				t.Errorf("Severity = %v, want %v", v.Severity, tt.wantSeverity)
			}
			if !slices.Equal(v.Actions, tt.wantActions) {
				t.Errorf("Actions = %v, want %v", v.Actions, tt.wantActions)
			}
		})
	}
}

func TestLongestRun(t *testing.T) {
	tests := []struct {
		in    string
		alnum bool
		want  int
	}{
		{"", false, 0},
		{"abc", false, 1},
		{"aaabbbb", false, 4},
		{"!!!!!!", false, 6},
		{"!!!!!!", true, 0},
		{"xx1111111111yy", true, 10},
		{"ééééé", false, 5},
	}
	for _, tt := range tests {
		var accept func(rune) bool
		if tt.alnum {
			accept = isAlnum
		}
		if got := longestRun(tt.in, accept); got != tt.want {
			t.Errorf("longestRun(%q, %v) = %d, want %d", tt.in, tt.alnum, got, tt.want)
		}
	}
}

func TestDefaultRules_Order(t *testing.T) {
	want := []string{
		RuleLength, RuleForbiddenWords, RuleSpamPatterns, RuleSuspiciousKeywords,
		RuleExcessiveMentions, RuleExcessiveReactions, RuleExcessiveCaps,
	}
	var got []string
	for _, r := range DefaultRules(Config{}) {
		got = append(got, r.Name())
	}
	if !slices.Equal(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}
