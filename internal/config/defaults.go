package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:  "info",
			LogFormat: "text",
		},
		Filter: FilterConfig{
			ExcludeBots:  true,
			SkipLogEvery: 50,
		},
		Relay: RelayConfig{
			ForwardMedia:         true,
			ShowUpdates:          false,
			ShowDeletions:        false,
			Batching:             false,
			BatchIntervalSeconds: 5,
			MaxImageBytes:        10 * 1024 * 1024,
			StreamThresholdBytes: 5 * 1024 * 1024,
			MaxReferenceDepth:    5,
			Breakdown:            true,
			Summary:              true,
		},
		Telegram: TelegramConfig{
			Enabled:   true,
			ParseMode: "Markdown",
		},
		Oracle: OracleConfig{
			Enabled:         true,
			Provider:        "gemini",
			MaxTokens:       1024,
			TimeoutSeconds:  60,
			SummaryLanguage: "Telugu",
		},
		Signals: SignalsConfig{
			Enabled:         false,
			DefaultLeverage: 10,
		},
		Journal: JournalConfig{
			Enabled: false,
			DBPath:  "~/.relaybot/signals.db",
		},
		Health: HealthConfig{
			Enabled:                 true,
			Host:                    "0.0.0.0",
			Port:                    3000,
			SelfPingIntervalSeconds: 240,
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}
