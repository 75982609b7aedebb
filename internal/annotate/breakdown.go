package annotate

import (
	"fmt"
	"regexp"
	"strings"
)

// symbolPattern matches a leading ticker such as BTC, btc, 1INCH or AAVE.P.
var symbolPattern = regexp.MustCompile(`^([A-Za-z0-9]*[A-Za-z][A-Za-z0-9]*(?:\.[A-Za-z]{1,3})?)(?:$|[\s:,\-])`)

// statusTokens look like tickers but are trade vocabulary.
var statusTokens = regexp.MustCompile(`(?i)^(TP\d*|SL|BE|ALL|NEW|LONGS?|SHORTS?|BUYS?|SELLS?|STOP(PED)?|SECOND|2ND|TRADES?|ENTRY|ENTRIES|CLOSED?|TARGETS?|HIT|INVALID(ATED)?|POSITIONS?|TAKE|BREAKEVEN|MOVED?|NOW|THE)$`)

// Breakdown explains a recap-style status message line by line. A leading
// recap header is dropped; a line holding only a ticker sets the symbol for
// the lines below it. Returns "" when there is nothing to explain.
func (rs *Ruleset) Breakdown(text string) string {
	lines := nonEmptyLines(text)
	if len(lines) > 0 && rs.header != nil && rs.header.MatchString(lines[0]) {
		lines = lines[1:]
	}
	if len(lines) == 0 {
		return ""
	}

	var (
		out     []string
		current string
		pending string // ticker-only line not yet explained by a following line
		caution bool
	)
	flushPending := func() {
		if pending != "" {
			out = append(out, bullet(pending, rs.fallback(pending)))
			pending = ""
		}
	}

	for _, line := range lines {
		sym, rest := splitSymbol(line)
		if sym != "" && rest == "" {
			flushPending()
			current, pending = sym, sym
			continue
		}
		if sym == "" {
			sym = current
		} else {
			flushPending()
			current = sym
		}
		pending = ""

		var phrases []string
		for _, r := range rs.Rules {
			if r.re.MatchString(line) {
				phrases = append(phrases, r.Phrase)
				caution = caution || r.Caution
			}
		}
		explanation := strings.Join(phrases, "; ")
		if explanation == "" {
			explanation = rs.fallback(line)
		}
		out = append(out, bullet(sym, explanation))
	}
	flushPending()

	if caution && rs.CautionNote != "" {
		out = append(out, rs.CautionNote)
	}
	return strings.Join(out, "\n")
}

func (rs *Ruleset) fallback(line string) string {
	return fmt.Sprintf("%s: %q", rs.StatusUpdate, line)
}

func bullet(symbol, explanation string) string {
	if symbol == "" {
		return "• " + explanation
	}
	return "• " + symbol + ": " + explanation
}

// splitSymbol returns the leading ticker of line, in original case, and the
// remainder after separators. Tickers are written all upper or all lower
// case, so a capitalized word such as "Stopped" is never one.
func splitSymbol(line string) (symbol, rest string) {
	m := symbolPattern.FindStringSubmatch(line)
	if m == nil || statusTokens.MatchString(m[1]) || letters(m[1]) < 2 || mixedCase(m[1]) {
		return "", line
	}
	rest = strings.TrimLeft(line[len(m[1]):], " \t:,-")
	return m[1], rest
}

func letters(s string) int {
	n := 0
	for _, c := range s {
		if c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' {
			n++
		}
	}
	return n
}

func mixedCase(s string) bool {
	return s != strings.ToUpper(s) && s != strings.ToLower(s)
}

func nonEmptyLines(text string) []string {
	var out []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
