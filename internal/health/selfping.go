package health

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// SelfPinger periodically requests a public URL of this service so hosting
// platforms that idle inactive services keep it running.
type SelfPinger struct {
	url      string
	interval time.Duration
	client   *http.Client
	logger   *slog.Logger
}

type SelfPingConfig struct {
	URL        string
	Interval   time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewSelfPinger(cfg SelfPingConfig) *SelfPinger {
	if cfg.Interval <= 0 {
		cfg.Interval = 4 * time.Minute
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &SelfPinger{
		url:      cfg.URL,
		interval: cfg.Interval,
		client:   cfg.HTTPClient,
		logger:   cfg.Logger,
	}
}

// Run pings every interval until ctx is cancelled.
func (p *SelfPinger) Run(ctx context.Context) {
	p.logger.Info("self-ping enabled", "url", p.url, "interval", p.interval)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Ping(ctx)
		}
	}
}

// Ping issues one request and reports whether it returned a 2xx status.
func (p *SelfPinger) Ping(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		p.logger.Warn("self-ping failed", "url", p.url, "err", err)
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("self-ping failed", "url", p.url, "err", err)
		return false
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.logger.Warn("self-ping returned non-2xx", "url", p.url, "status", resp.StatusCode)
		return false
	}
	p.logger.Debug("self-ping ok", "status", resp.StatusCode)
	return true
}
