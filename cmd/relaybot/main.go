package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"relaybot/internal/annotate"
	"relaybot/internal/config"
	"relaybot/internal/oracle"
	"relaybot/internal/signal"

	"github.com/spf13/cobra"
)

var (
	version    = "0.3.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "relaybot",
		Short: "relaybot: Discord to Telegram/Slack relay with signal extraction",
		Long: "relaybot mirrors Discord channels to Telegram, a Discord webhook and Slack, " +
			"annotating messages with a rule-based breakdown and an AI summary, and " +
			"extracts advisory trading signals on request.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.relaybot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(gatewayCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(configCmd())
	root.AddCommand(extractCmd())
	root.AddCommand(breakdownCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(daemonCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfig loads the config and rebuilds the logger from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger = newLogger(cfg.General, os.Stderr)
	return cfg, nil
}

// newLogger builds the process logger from general.logLevel and
// general.logFormat.
func newLogger(cfg config.GeneralConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which relay features are configured",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger.Info("config", "path", resolveConfigPath())
			logger.Info("source", "discord", cfg.Discord.Token != "",
				"channels", len(cfg.Filter.AllowedChannels), "authors", len(cfg.Filter.AllowedAuthors))
			logger.Info("destinations",
				"telegram", cfg.Telegram.Enabled && cfg.Telegram.Token != "" && len(cfg.Telegram.ChatIDs) > 0,
				"discord_webhook", cfg.DiscordWebhook.Enabled && cfg.DiscordWebhook.URL != "",
				"slack", cfg.Slack.Enabled && cfg.Slack.BotToken != "" && len(cfg.Slack.ChannelIDs) > 0)

			completer, err := oracle.NewCompleter(cfg.Oracle, logger)
			if err != nil {
				logger.Info("oracle", "configured", false, "reason", err)
			} else {
				logger.Info("oracle", "configured", true, "provider", completer.Name())
			}
			logger.Info("features", "breakdown", cfg.Relay.Breakdown, "summary", cfg.Relay.Summary,
				"batching", cfg.Relay.Batching, "signals", cfg.Signals.Enabled, "journal", cfg.Journal.Enabled)
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. relay.batchIntervalSeconds)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			val, err := config.GetByPath(config.Sanitize(cfg), args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. relay.batching true)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(config.Sanitize(cfg), "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}

func extractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract [text]",
		Short: "Extract a trading signal from text using the configured oracle",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			svc, err := oracle.New(cfg.Oracle, logger)
			if err != nil {
				return err
			}
			extractor := signal.NewExtractor(signal.ExtractorConfig{
				Oracle:          svc,
				DefaultLeverage: cfg.Signals.DefaultLeverage,
				Logger:          logger,
			})

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()
			sig, err := extractor.Extract(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signal.Format(sig))
			return nil
		},
	}
}

func breakdownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "breakdown [text]",
		Short: "Print the rule-based breakdown of a status update",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			rules, err := annotate.LoadRules(cfg.Relay.BreakdownRulesFile, logger)
			if err != nil {
				return err
			}
			out := rules.Breakdown(strings.Join(args, " "))
			if out == "" {
				out = "(nothing to break down)"
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}
