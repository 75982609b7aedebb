package oracle

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"relaybot/internal/config"
	"relaybot/internal/domain"
)

const defaultMaxTokens = 1024

// ErrNotConfigured is returned by New when no completer has credentials.
var ErrNotConfigured = errors.New("oracle not configured")

// Constructor builds a completer for one backend.
type Constructor func(b config.OracleBackend, maxTokens int, client *http.Client, logger *slog.Logger) domain.Completer

var constructors = map[string]Constructor{
	"claude": func(b config.OracleBackend, maxTokens int, client *http.Client, logger *slog.Logger) domain.Completer {
		return NewClaude(ClaudeConfig{APIKey: b.APIKey, APIBase: b.APIBase, Model: b.Model, MaxTokens: maxTokens, HTTPClient: client, Logger: logger})
	},
	"openai": func(b config.OracleBackend, maxTokens int, client *http.Client, logger *slog.Logger) domain.Completer {
		return NewOpenAI(OpenAIConfig{Name: "openai", APIKey: b.APIKey, APIBase: b.APIBase, Model: b.Model, MaxTokens: maxTokens, HTTPClient: client, Logger: logger})
	},
	"gemini": func(b config.OracleBackend, maxTokens int, client *http.Client, logger *slog.Logger) domain.Completer {
		return NewOpenAI(OpenAIConfig{Name: "gemini", APIKey: b.APIKey, APIBase: b.APIBase, Model: b.Model, MaxTokens: maxTokens, HTTPClient: client, Logger: logger})
	},
}

// New builds the oracle described by cfg: the primary provider followed by
// every failover entry that has credentials. Entries without an API key are
// skipped with a warning.
func New(cfg config.OracleConfig, logger *slog.Logger) (*Service, error) {
	completer, err := NewCompleter(cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewService(ServiceConfig{
		Completer:       completer,
		SummaryLanguage: cfg.SummaryLanguage,
		Timeout:         time.Duration(cfg.TimeoutSeconds) * time.Second,
		Logger:          logger,
	}), nil
}

// NewCompleter builds the completer chain for cfg.
func NewCompleter(cfg config.OracleConfig, logger *slog.Logger) (domain.Completer, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("%w: disabled", ErrNotConfigured)
	}

	client := NewHTTPClient(time.Duration(cfg.TimeoutSeconds) * time.Second)
	primary := config.OracleBackend{APIKey: cfg.APIKey, APIBase: cfg.APIBase, Model: cfg.Model}

	var chain []domain.Completer
	seen := make(map[string]bool)
	add := func(name string, b config.OracleBackend) {
		if seen[name] {
			return
		}
		seen[name] = true
		ctor, ok := constructors[name]
		if !ok {
			logger.Warn("unknown oracle provider, skipping", "provider", name)
			return
		}
		if b.APIKey == "" {
			logger.Warn("oracle provider has no API key, skipping", "provider", name)
			return
		}
		chain = append(chain, ctor(b, cfg.MaxTokens, client, logger))
	}

	add(cfg.Provider, primary)
	for _, name := range cfg.FailoverChain {
		add(name, cfg.Fallbacks[name])
	}

	switch len(chain) {
	case 0:
		return nil, fmt.Errorf("%w: no provider has an API key", ErrNotConfigured)
	case 1:
		return chain[0], nil
	default:
		return NewFailover(chain, logger), nil
	}
}
