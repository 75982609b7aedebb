package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"relaybot/internal/domain"
)

// Failover tries multiple completers in order, falling back to the next one
// when the current fails.
type Failover struct {
	completers []domain.Completer
	logger     *slog.Logger
}

// NewFailover creates a failover chain from the given completers.
// At least one completer is required.
func NewFailover(completers []domain.Completer, logger *slog.Logger) *Failover {
	return &Failover{
		completers: completers,
		logger:     logger,
	}
}

func (f *Failover) Name() string {
	names := make([]string, len(f.completers))
	for i, c := range f.completers {
		names[i] = c.Name()
	}
	return "failover(" + strings.Join(names, "→") + ")"
}

// Complete returns the first successful reply.
func (f *Failover) Complete(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for i, c := range f.completers {
		reply, err := c.Complete(ctx, prompt)
		if err == nil {
			if i > 0 {
				f.logger.Info("failover: used fallback completer",
					"completer", c.Name(),
					"attempt", i+1,
				)
			}
			return reply, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", fmt.Errorf("failover chain interrupted: %w", ctx.Err())
		}
		f.logger.Warn("failover: completer failed, trying next",
			"completer", c.Name(),
			"attempt", i+1,
			"error", err,
		)
	}
	if lastErr == nil {
		return "", fmt.Errorf("failover chain is empty")
	}
	return "", fmt.Errorf("all completers in failover chain failed: %w", lastErr)
}
