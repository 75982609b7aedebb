// Package signal turns free-form trading messages into validated, advisory
// trading signals and reports them.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"relaybot/internal/domain"
	"relaybot/internal/metrics"
)

var (
	ErrOracle    = errors.New("oracle call failed")
	ErrNoJSON    = errors.New("no JSON object in oracle reply")
	ErrMalformed = errors.New("malformed signal JSON")
)

// Extractor asks the oracle for a structured reading of a message and keeps
// it only if it validates. It never retries.
type Extractor struct {
	oracle          domain.Oracle
	defaultLeverage float64
	logger          *slog.Logger
}

type ExtractorConfig struct {
	Oracle domain.Oracle
	// DefaultLeverage fills a missing leverage field before validation. Zero
	// leaves it missing.
	DefaultLeverage float64
	Logger          *slog.Logger
}

func NewExtractor(cfg ExtractorConfig) *Extractor {
	return &Extractor{
		oracle:          cfg.Oracle,
		defaultLeverage: cfg.DefaultLeverage,
		logger:          cfg.Logger,
	}
}

// Extract returns the signal in text. Any failure returns an error wrapping
// ErrOracle, ErrNoJSON, ErrMalformed or ErrInvalid; callers treat all of them
// as "no signal".
func (e *Extractor) Extract(ctx context.Context, text string) (*domain.TradingSignal, error) {
	reply, err := e.oracle.Extract(ctx, text)
	if err != nil {
		metrics.SignalsTotal.WithLabelValues("oracle_error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrOracle, err)
	}

	obj, ok := FindJSONObject(reply)
	if !ok {
		metrics.SignalsTotal.WithLabelValues("no_json").Inc()
		e.logger.Debug("no JSON in oracle reply", "reply_len", len(reply))
		return nil, ErrNoJSON
	}

	var c Candidate
	if err := json.Unmarshal([]byte(obj), &c); err != nil {
		metrics.SignalsTotal.WithLabelValues("malformed").Inc()
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if c.Leverage == nil && e.defaultLeverage > 0 {
		lev := e.defaultLeverage
		c.Leverage = &lev
	}

	if err := Validate(&c); err != nil {
		metrics.SignalsTotal.WithLabelValues("invalid").Inc()
		e.logger.Info("signal candidate rejected", "err", err)
		return nil, err
	}

	metrics.SignalsTotal.WithLabelValues("accepted").Inc()
	return c.toSignal(), nil
}

// FindJSONObject returns the first balanced {...} substring of s. Braces
// inside JSON string literals are ignored.
func FindJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	for start >= 0 {
		if end, ok := matchBrace(s, start); ok {
			return s[start : end+1], true
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

// matchBrace returns the index of the brace closing the one at open.
func matchBrace(s string, open int) (int, bool) {
	depth := 0
	inString, escaped := false, false
	for i := open; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
