package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"relaybot/internal/domain"
	"relaybot/internal/metrics"

	"github.com/google/uuid"
)

const (
	defaultBatchInterval = 5 * time.Second
	finalFlushTimeout    = 10 * time.Second
)

// Batcher delivers rendered payloads either immediately or in periodic
// batches. In periodic mode each flush drains the pending texts and media
// atomically and hands them to the sender as one batch, even when empty.
type Batcher struct {
	sender   domain.Sender
	periodic bool
	interval time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	texts []string
	media []domain.MediaItem

	// flushMu keeps at most one flush in flight.
	flushMu sync.Mutex
}

type BatcherConfig struct {
	Sender   domain.Sender
	Periodic bool
	Interval time.Duration
	Logger   *slog.Logger
}

func NewBatcher(cfg BatcherConfig) *Batcher {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultBatchInterval
	}
	return &Batcher{
		sender:   cfg.Sender,
		periodic: cfg.Periodic,
		interval: cfg.Interval,
		logger:   cfg.Logger,
	}
}

// Accept schedules p for delivery. In immediate mode it is sent right away
// as a singleton batch.
func (b *Batcher) Accept(ctx context.Context, p domain.RenderedPayload) error {
	var texts []string
	if p.Content != "" {
		texts = []string{p.Content}
	}

	if !b.periodic {
		return b.send(ctx, texts, p.Media)
	}

	b.mu.Lock()
	b.texts = append(b.texts, texts...)
	b.media = append(b.media, p.Media...)
	b.mu.Unlock()
	return nil
}

// Flush drains the pending batch and sends it.
func (b *Batcher) Flush(ctx context.Context) error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	texts, media := b.texts, b.media
	b.texts, b.media = nil, nil
	b.mu.Unlock()

	return b.send(ctx, texts, media)
}

// Pending returns the number of queued texts and media items.
func (b *Batcher) Pending() (texts, media int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.texts), len(b.media)
}

// Run flushes on every tick until ctx is done, then performs a final flush.
// It returns immediately in immediate mode.
func (b *Batcher) Run(ctx context.Context) {
	if !b.periodic {
		return
	}
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.logger.Info("batch delivery started", "interval", b.interval)
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
			if err := b.Flush(flushCtx); err != nil {
				b.logger.Error("final flush failed", "err", err)
			}
			cancel()
			return
		case <-ticker.C:
			if err := b.Flush(ctx); err != nil {
				b.logger.Error("batch flush failed", "err", err)
			}
		}
	}
}

func (b *Batcher) send(ctx context.Context, texts []string, media []domain.MediaItem) error {
	id := uuid.NewString()
	metrics.BatchesFlushed.Inc()
	metrics.BatchItems.Observe(float64(len(texts) + len(media)))
	if len(texts) > 0 || len(media) > 0 {
		b.logger.Debug("delivering batch", "batch_id", id, "texts", len(texts), "media", len(media))
	}
	return b.sender.Send(ctx, texts, media)
}
