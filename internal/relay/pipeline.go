package relay

import (
	"context"
	"fmt"
	"log/slog"

	"relaybot/internal/domain"
	"relaybot/internal/metrics"
)

// SignalSink receives relayed message text for signal analysis.
type SignalSink interface {
	Observe(ctx context.Context, source, text string)
}

// Pipeline carries every inbound event through filtering, rendering and
// delivery. It owns the filter config, skip counters and batch state, and is
// safe for concurrent use by source event handlers.
type Pipeline struct {
	filter        FilterConfig
	renderer      *Renderer
	batcher       *Batcher
	skips         *SkipLog
	signals       SignalSink
	showUpdates   bool
	showDeletions bool
	logger        *slog.Logger
}

type PipelineConfig struct {
	Filter        FilterConfig
	Renderer      *Renderer
	Batcher       *Batcher
	SkipLog       *SkipLog
	Signals       SignalSink // optional
	ShowUpdates   bool
	ShowDeletions bool
	Logger        *slog.Logger
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.SkipLog == nil {
		cfg.SkipLog = NewSkipLog(50, cfg.Logger)
	}
	return &Pipeline{
		filter:        cfg.Filter,
		renderer:      cfg.Renderer,
		batcher:       cfg.Batcher,
		skips:         cfg.SkipLog,
		signals:       cfg.Signals,
		showUpdates:   cfg.ShowUpdates,
		showDeletions: cfg.ShowDeletions,
		logger:        cfg.Logger,
	}
}

// Handle processes one inbound event. A render or delivery failure drops only
// this event.
func (p *Pipeline) Handle(ctx context.Context, ev *domain.InboundEvent) error {
	if (ev.Kind == domain.EventUpdated && !p.showUpdates) ||
		(ev.Kind == domain.EventDeleted && !p.showDeletions) {
		metrics.EventsTotal.WithLabelValues(string(ev.Kind), "disabled").Inc()
		return nil
	}

	v := Evaluate(ev, p.filter)
	metrics.EventsTotal.WithLabelValues(string(ev.Kind), string(v.Reason)).Inc()
	if !v.Allowed {
		p.skips.Record(v)
		return nil
	}

	payload, err := p.renderer.Render(ctx, ev)
	if err != nil {
		metrics.RenderErrors.Inc()
		p.logger.Error("render failed, dropping event", "message_id", ev.ID, "channel_id", ev.ChannelID, "err", err)
		return fmt.Errorf("render %s: %w", ev.ID, err)
	}

	if err := p.batcher.Accept(ctx, payload); err != nil {
		p.logger.Error("delivery failed", "message_id", ev.ID, "err", err)
		return fmt.Errorf("deliver %s: %w", ev.ID, err)
	}

	if p.signals != nil && ev.Kind == domain.EventCreated && ev.Text != "" {
		p.signals.Observe(ctx, "discord:"+ev.ChannelID, ev.Text)
	}
	return nil
}
