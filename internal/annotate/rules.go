package annotate

import (
	"fmt"
	"regexp"
)

// Rule maps a status pattern to an explanatory phrase. Caution rules add the
// ruleset's cautionary note once at the end of the breakdown.
type Rule struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`
	Phrase  string `yaml:"phrase"`
	Caution bool   `yaml:"caution,omitempty"`

	re *regexp.Regexp
}

// Ruleset is an ordered list of rules plus the fixed texts of a breakdown.
type Ruleset struct {
	RecapHeader  string `yaml:"recapHeader"`
	StatusUpdate string `yaml:"statusUpdate"`
	CautionNote  string `yaml:"cautionNote"`
	Rules        []Rule `yaml:"rules"`

	header *regexp.Regexp
}

// Compile compiles every pattern. It must be called before Breakdown.
func (rs *Ruleset) Compile() error {
	if rs.RecapHeader != "" {
		re, err := regexp.Compile(rs.RecapHeader)
		if err != nil {
			return fmt.Errorf("recap header pattern: %w", err)
		}
		rs.header = re
	}
	if rs.StatusUpdate == "" {
		rs.StatusUpdate = "status update"
	}
	for i := range rs.Rules {
		r := &rs.Rules[i]
		if r.Pattern == "" || r.Phrase == "" {
			return fmt.Errorf("rule %d (%s): pattern and phrase are required", i, r.Name)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return fmt.Errorf("rule %d (%s): %w", i, r.Name, err)
		}
		r.re = re
	}
	return nil
}

// DefaultRules returns the built-in English ruleset, compiled.
func DefaultRules() *Ruleset {
	rs := &Ruleset{
		RecapHeader:  `(?i)^\W*(daily\s+|weekly\s+)?(recap|update|summary)\b`,
		StatusUpdate: "status update",
		CautionNote:  "⚠️ Caution: second entries are cancelled. Do not place new orders at the second entry levels.",
		Rules: []Rule{
			{
				Name:    "invalid_short",
				Pattern: `(?i)\b(short|sell)s?\b.*\binvalid(ated)?\b|\binvalid(ated)?\b.*\b(short|sell)s?\b`,
				Phrase:  "short setup is invalidated, no sell entry",
			},
			{
				Name:    "invalid_long",
				Pattern: `(?i)\b(long|buy)s?\b.*\binvalid(ated)?\b|\binvalid(ated)?\b.*\b(long|buy)s?\b`,
				Phrase:  "long setup is invalidated, no buy entry",
			},
			{
				Name:    "breakeven",
				Pattern: `\bBE\b|(?i:\bbreak\s*-?\s*even\b)`,
				Phrase:  "stop loss moved to entry (breakeven), no loss on this trade",
			},
			{
				Name:    "active",
				Pattern: `(?i)\b(trade|position|entry)\s+(is\s+)?(now\s+)?(active|live|open)\b|\b(activated|triggered|filled)\b`,
				Phrase:  "entry filled, trade is active",
			},
			{
				Name:    "second_entries_invalid",
				Pattern: `(?i)\b(second|2nd)\s+entr(y|ies)\b.*\bnot\s+valid\b`,
				Phrase:  "second entries are no longer valid",
				Caution: true,
			},
			{
				Name:    "stopped_out",
				Pattern: `(?i)\bstopped\s+out\b|\bsl\s+hit\b`,
				Phrase:  "stop loss hit, trade closed at a loss",
			},
			{
				Name:    "take_profit",
				Pattern: `(?i)\b(tp\d?|take\s*profit|target)\s*(\d+\s*)?(hit|reached|done)\b`,
				Phrase:  "take-profit target reached",
			},
			{
				Name:    "closed",
				Pattern: `(?i)\b(closed|close\s+(the\s+)?(trade|position))\b`,
				Phrase:  "trade closed",
			},
		},
	}
	if err := rs.Compile(); err != nil {
		panic(err)
	}
	return rs
}
