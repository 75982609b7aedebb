package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"relaybot/internal/domain"
	"relaybot/internal/metrics"
)

// Fanout applies text replacements and sends each batch to every
// destination. A failing destination does not stop the others.
type Fanout struct {
	senders  []domain.Sender
	replacer *strings.Replacer
	logger   *slog.Logger
}

type FanoutConfig struct {
	Senders []domain.Sender
	// Replacements maps literal substrings to their replacement.
	Replacements map[string]string
	Logger       *slog.Logger
}

func NewFanout(cfg FanoutConfig) *Fanout {
	f := &Fanout{senders: cfg.Senders, logger: cfg.Logger}
	if len(cfg.Replacements) > 0 {
		// Longest keys first so overlapping keys resolve deterministically.
		keys := make([]string, 0, len(cfg.Replacements))
		for k := range cfg.Replacements {
			if k != "" {
				keys = append(keys, k)
			}
		}
		sort.Slice(keys, func(i, j int) bool {
			if len(keys[i]) != len(keys[j]) {
				return len(keys[i]) > len(keys[j])
			}
			return keys[i] < keys[j]
		})
		pairs := make([]string, 0, 2*len(keys))
		for _, k := range keys {
			pairs = append(pairs, k, cfg.Replacements[k])
		}
		f.replacer = strings.NewReplacer(pairs...)
	}
	return f
}

func (f *Fanout) Name() string {
	names := make([]string, len(f.senders))
	for i, s := range f.senders {
		names[i] = s.Name()
	}
	return "fanout(" + strings.Join(names, ",") + ")"
}

// Send delivers the batch to every destination. The returned error joins
// every destination failure.
func (f *Fanout) Send(ctx context.Context, texts []string, media []domain.MediaItem) error {
	if len(texts) == 0 && len(media) == 0 {
		return nil
	}
	if f.replacer != nil {
		replaced := make([]string, len(texts))
		for i, t := range texts {
			replaced[i] = f.replacer.Replace(t)
		}
		texts = replaced
	}

	var errs []error
	for _, s := range f.senders {
		if err := s.Send(ctx, texts, media); err != nil {
			metrics.SendErrors.WithLabelValues(s.Name()).Inc()
			f.logger.Error("destination send failed", "destination", s.Name(), "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
