package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"relaybot/internal/annotate"
	"relaybot/internal/bus"
	"relaybot/internal/channel"
	"relaybot/internal/config"
	"relaybot/internal/domain"
	"relaybot/internal/health"
	"relaybot/internal/journal"
	"relaybot/internal/oracle"
	"relaybot/internal/relay"
	signals "relaybot/internal/signal"

	"github.com/spf13/cobra"
)

var (
	errNoDiscordToken = errors.New("discord.token (DISCORD_TOKEN) is required")
	errNoDestinations = errors.New("no destination configured: enable telegram, discordWebhook or slack")
)

const shutdownTimeout = 10 * time.Second

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Start the relay (Discord source, destinations, signal chat)",
		Long:  "Connects to Discord and relays accepted messages to every configured destination. Press Ctrl+C to stop.",
		RunE:  runGateway,
	}
}

// destinations holds the senders built from config.
type destinations struct {
	senders  []domain.Sender
	telegram *channel.Telegram
	// denyIDs are author ids the relay must never forward, such as its own
	// webhook.
	denyIDs []string
}

// buildDestinations creates every enabled destination. Misconfigured
// destinations are skipped with a warning. The Telegram bot is also built
// when only the signal chat needs it.
func buildDestinations(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) destinations {
	var d destinations

	tg := cfg.Telegram
	wantTelegram := tg.Enabled && len(tg.ChatIDs) > 0
	if tg.Token != "" && (wantTelegram || cfg.Signals.Enabled) {
		var chatIDs []string
		if wantTelegram {
			chatIDs = tg.ChatIDs
		}
		t, err := channel.NewTelegram(channel.TelegramConfig{
			Token:              tg.Token,
			ChatIDs:            chatIDs,
			CommandChatID:      cfg.Signals.ChatID,
			ParseMode:          tg.ParseMode,
			DisableLinkPreview: tg.DisableLinkPreview,
			HTTPClient:         httpClient,
			Logger:             logger,
		})
		if err != nil {
			logger.Warn("telegram disabled", "err", err)
		} else {
			d.telegram = t
			if wantTelegram {
				d.senders = append(d.senders, t)
			}
		}
	} else if tg.Enabled {
		logger.Warn("telegram disabled: token or chat ids missing")
	}

	if wh := cfg.DiscordWebhook; wh.Enabled && wh.URL != "" {
		w, err := channel.NewWebhook(channel.WebhookConfig{URL: wh.URL, HTTPClient: httpClient, Logger: logger})
		if err != nil {
			logger.Warn("discord webhook disabled", "err", err)
		} else {
			d.senders = append(d.senders, w)
			d.denyIDs = append(d.denyIDs, w.ID())
		}
	}

	if sl := cfg.Slack; sl.Enabled {
		if sl.BotToken == "" || len(sl.ChannelIDs) == 0 {
			logger.Warn("slack disabled: bot token or channel ids missing")
		} else {
			d.senders = append(d.senders, channel.NewSlack(channel.SlackConfig{
				BotToken:   sl.BotToken,
				ChannelIDs: sl.ChannelIDs,
				Logger:     logger,
			}))
		}
	}

	return d
}

// buildOracle returns nil when the oracle is disabled or has no credentials.
func buildOracle(cfg config.OracleConfig, logger *slog.Logger) domain.Oracle {
	svc, err := oracle.New(cfg, logger)
	if err != nil {
		logger.Warn("oracle unavailable, summaries and signals disabled", "err", err)
		return nil
	}
	return svc
}

func filterConfig(cfg config.FilterConfig, extraDeny []string) relay.FilterConfig {
	denied := append([]string(nil), cfg.DeniedIDs...)
	denied = append(denied, extraDeny...)
	return relay.FilterConfig{
		AllowedChannels: cfg.AllowedChannels,
		AllowedAuthors:  cfg.AllowedAuthors,
		DeniedIDs:       denied,
		ExcludeBots:     cfg.ExcludeBots,
	}
}

func openJournal(cfg config.JournalConfig, logger *slog.Logger) domain.SignalJournal {
	if !cfg.Enabled {
		return nil
	}
	store, err := journal.NewSQLiteStore(cfg.DBPath, logger)
	if err != nil {
		logger.Warn("signal journal disabled", "path", cfg.DBPath, "err", err)
		return nil
	}
	logger.Info("signal journal opened", "path", cfg.DBPath)
	return store
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Discord.Token == "" {
		return errNoDiscordToken
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := oracle.NewHTTPClient(0)

	dests := buildDestinations(cfg, httpClient, logger)
	if len(dests.senders) == 0 {
		return errNoDestinations
	}
	fanout := channel.NewFanout(channel.FanoutConfig{
		Senders:      dests.senders,
		Replacements: cfg.Relay.Replacements,
		Logger:       logger,
	})

	source, err := channel.NewDiscord(channel.DiscordConfig{
		Token:      cfg.Discord.Token,
		HTTPClient: httpClient,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	orc := buildOracle(cfg.Oracle, logger)

	rules, err := annotate.LoadRules(cfg.Relay.BreakdownRulesFile, logger)
	if err != nil {
		logger.Warn("using built-in breakdown rules", "err", err)
		rules = annotate.DefaultRules()
	}
	augmenter := annotate.NewAugmenter(annotate.AugmenterConfig{
		Rules:     rules,
		Oracle:    orc,
		Breakdown: cfg.Relay.Breakdown,
		Summary:   cfg.Relay.Summary,
		Logger:    logger,
	})

	renderer := relay.NewRenderer(relay.RendererConfig{
		Source:               source,
		Annotator:            augmenter,
		ForwardMedia:         cfg.Relay.ForwardMedia,
		MaxImageBytes:        cfg.Relay.MaxImageBytes,
		StreamThresholdBytes: cfg.Relay.StreamThresholdBytes,
		MaxReferenceDepth:    cfg.Relay.MaxReferenceDepth,
		Logger:               logger,
	})
	batcher := relay.NewBatcher(relay.BatcherConfig{
		Sender:   fanout,
		Periodic: cfg.Relay.Batching,
		Interval: time.Duration(cfg.Relay.BatchIntervalSeconds) * time.Second,
		Logger:   logger,
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		batcher.Run(ctx)
	}()

	// Message bus for the signal chat (closed during graceful shutdown below)
	messageBus := bus.New(100, logger)

	var sink relay.SignalSink
	var store domain.SignalJournal
	switch {
	case !cfg.Signals.Enabled:
	case orc == nil:
		logger.Warn("signals disabled: oracle unavailable")
	case dests.telegram == nil || cfg.Signals.ChatID == "":
		logger.Warn("signals disabled: telegram token and signals.chatId are required")
	default:
		store = openJournal(cfg.Journal, logger)
		controller := signals.NewController(signals.ControllerConfig{
			Extractor: signals.NewExtractor(signals.ExtractorConfig{
				Oracle:          orc,
				DefaultLeverage: cfg.Signals.DefaultLeverage,
				Logger:          logger,
			}),
			Journal: store,
			Bus:     messageBus,
			ChatID:  cfg.Signals.ChatID,
			Logger:  logger,
		})
		dests.telegram.ServeReplies(ctx, messageBus)
		go controller.Run(ctx)
		go func() {
			if err := dests.telegram.Start(ctx, messageBus); err != nil {
				logger.Error("telegram command channel error", "err", err)
			}
		}()
		if cfg.Signals.FromRelay {
			sink = controller
		}
		logger.Info("signal chat enabled", "chat_id", cfg.Signals.ChatID, "from_relay", cfg.Signals.FromRelay)
	}
	if dests.telegram != nil {
		if err := dests.telegram.Connect(); err != nil {
			logger.Warn("telegram connect failed", "err", err)
		}
	}

	if cfg.Health.Enabled {
		metricsEndpoint := ""
		if cfg.Metrics.Enabled {
			metricsEndpoint = cfg.Metrics.Endpoint
		}
		srv := health.NewServer(health.ServerConfig{
			Host:            cfg.Health.Host,
			Port:            cfg.Health.Port,
			MetricsEndpoint: metricsEndpoint,
			Logger:          logger,
		})
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Error("health server error", "err", err)
			}
		}()
	}
	if cfg.Health.SelfPingURL != "" {
		pinger := health.NewSelfPinger(health.SelfPingConfig{
			URL:      cfg.Health.SelfPingURL,
			Interval: time.Duration(cfg.Health.SelfPingIntervalSeconds) * time.Second,
			Logger:   logger,
		})
		go pinger.Run(ctx)
	} else {
		logger.Info("self-ping disabled (set SELF_PING_URL to enable)")
	}

	pipeline := relay.NewPipeline(relay.PipelineConfig{
		Filter:        filterConfig(cfg.Filter, dests.denyIDs),
		Renderer:      renderer,
		Batcher:       batcher,
		SkipLog:       relay.NewSkipLog(cfg.Filter.SkipLogEvery, logger),
		Signals:       sink,
		ShowUpdates:   cfg.Relay.ShowUpdates,
		ShowDeletions: cfg.Relay.ShowDeletions,
		Logger:        logger,
	})

	logger.Info("gateway started. Press Ctrl+C to stop.", "version", version, "destinations", fanout.Name())

	// Blocks until shutdown signal
	runErr := source.Run(ctx, pipeline)
	if runErr != nil && ctx.Err() == nil {
		stop()
	}
	logger.Info("shutting down gateway...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
		messageBus.Close()
		if store != nil {
			store.Close()
		}
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		return fmt.Errorf("shutdown timed out")
	}
	return runErr
}
