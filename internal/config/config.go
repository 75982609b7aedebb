package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the root configuration for relaybot.
type Config struct {
	General        GeneralConfig        `json:"general"`
	Discord        DiscordConfig        `json:"discord"`
	Filter         FilterConfig         `json:"filter"`
	Relay          RelayConfig          `json:"relay"`
	Telegram       TelegramConfig       `json:"telegram"`
	DiscordWebhook DiscordWebhookConfig `json:"discordWebhook"`
	Slack          SlackConfig          `json:"slack"`
	Oracle         OracleConfig         `json:"oracle"`
	Signals        SignalsConfig        `json:"signals"`
	Journal        JournalConfig        `json:"journal"`
	Health         HealthConfig         `json:"health"`
	Metrics        MetricsConfig        `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel  string `json:"logLevel" env:"LOG_LEVEL"`
	LogFormat string `json:"logFormat" env:"LOG_FORMAT"` // text | json
}

type DiscordConfig struct {
	Token string `json:"token" env:"DISCORD_TOKEN"`
}

// FilterConfig decides which source events are relayed.
type FilterConfig struct {
	AllowedChannels FlexStringList `json:"allowedChannels" env:"DISCORD_CHANNEL_IDS" envSeparator:","`
	AllowedAuthors  FlexStringList `json:"allowedAuthors" env:"DISCORD_ALLOWED_USER_IDS" envSeparator:","`
	DeniedIDs       FlexStringList `json:"deniedIds" env:"DISCORD_MUTED_IDS" envSeparator:","`
	ExcludeBots     bool           `json:"excludeBots" env:"EXCLUDE_BOTS"`
	SkipLogEvery    int            `json:"skipLogEvery"`
}

type RelayConfig struct {
	ForwardMedia         bool              `json:"forwardMedia" env:"FORWARD_MEDIA"`
	ShowUpdates          bool              `json:"showUpdates" env:"SHOW_MESSAGE_UPDATES"`
	ShowDeletions        bool              `json:"showDeletions" env:"SHOW_MESSAGE_DELETIONS"`
	Batching             bool              `json:"batching" env:"STACK_MESSAGES"`
	BatchIntervalSeconds int               `json:"batchIntervalSeconds"`
	MaxImageBytes        int64             `json:"maxImageBytes"`
	StreamThresholdBytes int64             `json:"streamThresholdBytes"`
	MaxReferenceDepth    int               `json:"maxReferenceDepth"`
	Replacements         map[string]string `json:"replacements,omitempty"`
	Breakdown            bool              `json:"breakdown" env:"RELAY_BREAKDOWN"`
	BreakdownRulesFile   string            `json:"breakdownRulesFile,omitempty"`
	Summary              bool              `json:"summary" env:"RELAY_SUMMARY"`
}

type TelegramConfig struct {
	Enabled            bool           `json:"enabled" env:"TELEGRAM_ENABLED"`
	Token              string         `json:"token" env:"TELEGRAM_TOKEN"`
	ChatIDs            FlexStringList `json:"chatIds" env:"TELEGRAM_CHAT_IDS" envSeparator:","`
	ParseMode          string         `json:"parseMode"`
	DisableLinkPreview bool           `json:"disableLinkPreview" env:"TELEGRAM_DISABLE_LINK_PREVIEW"`
}

type DiscordWebhookConfig struct {
	Enabled bool   `json:"enabled" env:"DISCORD_WEBHOOK_ENABLED"`
	URL     string `json:"url" env:"DISCORD_WEBHOOK_URL"`
}

type SlackConfig struct {
	Enabled    bool           `json:"enabled" env:"SLACK_ENABLED"`
	BotToken   string         `json:"botToken" env:"SLACK_BOT_TOKEN"`
	ChannelIDs FlexStringList `json:"channelIds" env:"SLACK_CHANNEL_IDS" envSeparator:","`
}

type OracleConfig struct {
	Enabled         bool     `json:"enabled" env:"ORACLE_ENABLED"`
	Provider        string   `json:"provider" env:"ORACLE_PROVIDER"` // claude | openai | gemini
	APIKey          string   `json:"apiKey,omitempty" env:"ORACLE_API_KEY"`
	APIBase         string   `json:"apiBase,omitempty" env:"ORACLE_API_BASE"`
	Model           string   `json:"model,omitempty" env:"ORACLE_MODEL"`
	MaxTokens       int      `json:"maxTokens"`
	TimeoutSeconds  int      `json:"timeoutSeconds"`
	SummaryLanguage string   `json:"summaryLanguage" env:"SUMMARY_LANGUAGE"`
	FailoverChain   []string `json:"failoverChain,omitempty"`
	// Fallbacks holds credentials for providers named in FailoverChain.
	Fallbacks map[string]OracleBackend `json:"fallbacks,omitempty"`
}

type OracleBackend struct {
	APIKey  string `json:"apiKey,omitempty"`
	APIBase string `json:"apiBase,omitempty"`
	Model   string `json:"model,omitempty"`
}

type SignalsConfig struct {
	Enabled         bool    `json:"enabled" env:"SIGNALS_ENABLED"`
	ChatID          string  `json:"chatId" env:"TELEGRAM_SIGNAL_CHAT_ID"`
	FromRelay       bool    `json:"fromRelay" env:"SIGNALS_FROM_RELAY"`
	DefaultLeverage float64 `json:"defaultLeverage"`
}

type JournalConfig struct {
	Enabled bool   `json:"enabled" env:"JOURNAL_ENABLED"`
	DBPath  string `json:"dbPath" env:"JOURNAL_DB_PATH"`
}

type HealthConfig struct {
	Enabled                 bool   `json:"enabled" env:"HEALTH_ENABLED"`
	Host                    string `json:"host"`
	Port                    int    `json:"port" env:"PORT"`
	SelfPingURL             string `json:"selfPingUrl,omitempty" env:"SELF_PING_URL"`
	SelfPingIntervalSeconds int    `json:"selfPingIntervalSeconds"`
}

// MetricsConfig configures the Prometheus endpoint served by the health server.
type MetricsConfig struct {
	Enabled  bool   `json:"enabled" env:"METRICS_ENABLED"`
	Endpoint string `json:"endpoint"`
}

// FlexStringList is a []string that can unmarshal from JSON arrays containing
// both strings and numbers (e.g. ["123", 456] both become "123", "456").
type FlexStringList []string

func (f *FlexStringList) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			result = append(result, s)
			continue
		}
		var n json.Number
		if err := json.Unmarshal(item, &n); err == nil {
			result = append(result, n.String())
			continue
		}
		result = append(result, string(item))
	}
	*f = result
	return nil
}

// Contains reports whether id is in the list.
func (f FlexStringList) Contains(id string) bool {
	for _, s := range f {
		if strings.TrimSpace(s) == id {
			return true
		}
	}
	return false
}

// DefaultConfigDir returns the default config directory (~/.relaybot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".relaybot"
	}
	return filepath.Join(home, ".relaybot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads the config file at path, falling back to defaults when the file
// does not exist, then applies .env and environment overrides.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("cannot load .env: %w", err)
	}

	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		// Substitute environment variables: ${VAR} and ${VAR:-default}
		data = []byte(ExpandEnvVars(string(data)))
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}

	cfg.Journal.DBPath = ExpandPath(cfg.Journal.DBPath)
	cfg.Relay.BreakdownRulesFile = ExpandPath(cfg.Relay.BreakdownRulesFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overlays environment variables onto cfg. Unset variables leave the
// current values untouched.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("cannot parse environment: %w", err)
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		hasDefault := len(groups) >= 3 && groups[2] != ""

		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if hasDefault {
				return groups[2]
			}
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch strings.ToLower(cfg.General.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	switch cfg.General.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, "general.logFormat must be one of: text, json")
	}

	if cfg.Filter.SkipLogEvery < 1 {
		errs = append(errs, "filter.skipLogEvery must be >= 1")
	}
	if cfg.Relay.BatchIntervalSeconds < 1 {
		errs = append(errs, "relay.batchIntervalSeconds must be >= 1")
	}
	if cfg.Relay.MaxImageBytes <= 0 {
		errs = append(errs, "relay.maxImageBytes must be > 0")
	}
	if cfg.Relay.StreamThresholdBytes <= 0 || cfg.Relay.StreamThresholdBytes > cfg.Relay.MaxImageBytes {
		errs = append(errs, "relay.streamThresholdBytes must be > 0 and <= relay.maxImageBytes")
	}
	if cfg.Relay.MaxReferenceDepth < 0 || cfg.Relay.MaxReferenceDepth > 50 {
		errs = append(errs, "relay.maxReferenceDepth must be between 0 and 50")
	}

	for _, id := range cfg.Telegram.ChatIDs {
		if _, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64); err != nil {
			errs = append(errs, fmt.Sprintf("telegram.chatIds: %q is not a numeric chat id", id))
		}
	}
	if cfg.Signals.ChatID != "" {
		if _, err := strconv.ParseInt(cfg.Signals.ChatID, 10, 64); err != nil {
			errs = append(errs, "signals.chatId must be a numeric chat id")
		}
	}
	if cfg.Signals.DefaultLeverage < 0 || cfg.Signals.DefaultLeverage > 100 {
		errs = append(errs, "signals.defaultLeverage must be between 0 and 100")
	}

	switch cfg.Oracle.Provider {
	case "claude", "openai", "gemini":
	default:
		errs = append(errs, "oracle.provider must be one of: claude, openai, gemini")
	}
	for _, name := range cfg.Oracle.FailoverChain {
		switch name {
		case "claude", "openai", "gemini":
		default:
			errs = append(errs, fmt.Sprintf("oracle.failoverChain references unknown provider: %s", name))
		}
	}
	if cfg.Oracle.MaxTokens < 1 {
		errs = append(errs, "oracle.maxTokens must be >= 1")
	}

	if cfg.Health.Port < 0 || cfg.Health.Port > 65535 {
		errs = append(errs, "health.port must be between 0 and 65535")
	}
	if cfg.Health.SelfPingIntervalSeconds < 1 {
		errs = append(errs, "health.selfPingIntervalSeconds must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
