package annotate

import (
	"context"
	"log/slog"
	"strings"

	"relaybot/internal/domain"
	"relaybot/internal/metrics"
)

const (
	breakdownHeader = "📝 Breakdown:"
	summaryHeader   = "🤖 AI summary:"
)

// Augmenter appends the rule-based breakdown and the oracle summary to a
// rendered message. Both sections are best effort.
type Augmenter struct {
	rules     *Ruleset
	oracle    domain.Oracle
	breakdown bool
	summary   bool
	logger    *slog.Logger
}

type AugmenterConfig struct {
	Rules     *Ruleset      // nil uses DefaultRules
	Oracle    domain.Oracle // nil disables the summary
	Breakdown bool
	Summary   bool
	Logger    *slog.Logger
}

func NewAugmenter(cfg AugmenterConfig) *Augmenter {
	if cfg.Rules == nil {
		cfg.Rules = DefaultRules()
	}
	return &Augmenter{
		rules:     cfg.Rules,
		oracle:    cfg.Oracle,
		breakdown: cfg.Breakdown,
		summary:   cfg.Summary && cfg.Oracle != nil,
		logger:    cfg.Logger,
	}
}

// Annotate returns rendered with the breakdown and summary sections of raw
// appended, breakdown first. Oracle failures leave the summary out.
func (a *Augmenter) Annotate(ctx context.Context, rendered, raw string) string {
	out := rendered

	if a.breakdown {
		if b := a.rules.Breakdown(raw); b != "" {
			out = appendSection(out, breakdownHeader, b)
			metrics.AnnotationsTotal.WithLabelValues("breakdown").Inc()
		}
	}

	if a.summary && strings.TrimSpace(raw) != "" {
		s, err := a.oracle.Summarize(ctx, raw)
		switch {
		case err != nil:
			a.logger.Warn("summary unavailable", "err", err)
		case strings.TrimSpace(s) != "":
			out = appendSection(out, summaryHeader, strings.TrimSpace(s))
			metrics.AnnotationsTotal.WithLabelValues("summary").Inc()
		}
	}

	return out
}

func appendSection(text, header, body string) string {
	section := header + "\n" + body
	if text == "" {
		return section
	}
	return text + "\n\n" + section
}
