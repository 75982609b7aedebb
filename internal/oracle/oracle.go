// Package oracle is the natural-language service behind summaries and signal
// extraction. Prompts are built here and sent to a domain.Completer.
package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"relaybot/internal/domain"
	"relaybot/internal/metrics"
)

// Service implements domain.Oracle over a single completer, which may itself
// be a failover chain.
type Service struct {
	completer domain.Completer
	language  string
	timeout   time.Duration
	logger    *slog.Logger
}

type ServiceConfig struct {
	Completer       domain.Completer
	SummaryLanguage string
	// Timeout bounds each call. Zero means no extra deadline.
	Timeout time.Duration
	Logger  *slog.Logger
}

func NewService(cfg ServiceConfig) *Service {
	return &Service{
		completer: cfg.Completer,
		language:  cfg.SummaryLanguage,
		timeout:   cfg.Timeout,
		logger:    cfg.Logger,
	}
}

// Summarize returns a bullet summary of text, or "" when text is blank or the
// model had nothing to say.
func (s *Service) Summarize(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	reply, err := s.complete(ctx, "summarize", SummaryPrompt(s.language, text))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

// Extract returns the raw model reply for the signal extraction prompt.
func (s *Service) Extract(ctx context.Context, text string) (string, error) {
	return s.complete(ctx, "extract", ExtractPrompt(text))
}

func (s *Service) complete(ctx context.Context, op, prompt string) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	started := time.Now()
	reply, err := s.completer.Complete(ctx, prompt)
	metrics.ObserveOracle(op, started, err)
	if err != nil {
		return "", fmt.Errorf("%s via %s: %w", op, s.completer.Name(), err)
	}

	s.logger.Debug("oracle call done",
		"op", op,
		"completer", s.completer.Name(),
		"duration", time.Since(started),
		"reply_len", len(reply),
	)
	return reply, nil
}
