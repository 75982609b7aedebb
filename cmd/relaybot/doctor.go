package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"relaybot/internal/annotate"
	"relaybot/internal/config"
	"relaybot/internal/journal"
	"relaybot/internal/oracle"

	"github.com/spf13/cobra"
)

// checkResult tallies doctor outcomes.
type checkResult struct {
	passed, warned, failed int
}

func (r *checkResult) pass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
	r.passed++
}

func (r *checkResult) warn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
	r.warned++
}

func (r *checkResult) fail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
	r.failed++
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your relaybot setup",
		Long: `Verifies that relaybot's configuration, source, destinations, oracle,
journal and health port are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("relaybot doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			var r checkResult

			// 1. Config file (optional: environment alone is enough)
			if _, err := os.Stat(cfgPath); err != nil {
				r.warn("Config file", fmt.Sprintf("not found at %s, using defaults and environment", cfgPath))
			} else {
				r.pass("Config file", cfgPath)
			}

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				r.fail("Config validation", err.Error())
				fmt.Printf("\n%d passed, %d failed\n", r.passed, r.failed)
				return fmt.Errorf("config invalid")
			}
			r.pass("Config validation", "valid")

			// 3. Source
			if cfg.Discord.Token == "" {
				r.fail("Discord token", "DISCORD_TOKEN is not set")
			} else {
				r.pass("Discord token", "set")
			}
			if len(cfg.Filter.AllowedChannels) == 0 {
				r.warn("Channel allow-list", "empty: every visible channel is relayed")
			} else {
				r.pass("Channel allow-list", fmt.Sprintf("%d channel(s)", len(cfg.Filter.AllowedChannels)))
			}

			// 4. Destinations
			dests := buildDestinations(cfg, nil, logger)
			if len(dests.senders) == 0 {
				r.fail("Destinations", "none configured")
			} else {
				for _, s := range dests.senders {
					r.pass("Destination", s.Name())
				}
			}

			// 5. Oracle
			if completer, err := oracle.NewCompleter(cfg.Oracle, logger); err != nil {
				r.warn("Oracle", err.Error())
			} else {
				r.pass("Oracle", completer.Name())
			}

			// 6. Breakdown rules
			if _, err := annotate.LoadRules(cfg.Relay.BreakdownRulesFile, logger); err != nil {
				r.fail("Breakdown rules", err.Error())
			} else if cfg.Relay.BreakdownRulesFile != "" {
				r.pass("Breakdown rules", cfg.Relay.BreakdownRulesFile)
			}

			// 7. Signals
			if cfg.Signals.Enabled {
				if cfg.Signals.ChatID == "" || cfg.Telegram.Token == "" {
					r.fail("Signal chat", "signals.chatId and telegram.token are required")
				} else {
					r.pass("Signal chat", cfg.Signals.ChatID)
				}
			}

			// 8. Journal writable
			if cfg.Journal.Enabled {
				if err := checkJournal(cfg.Journal.DBPath); err != nil {
					r.fail("Journal", err.Error())
				} else {
					r.pass("Journal", cfg.Journal.DBPath)
				}
			}

			// 9. Health port
			if cfg.Health.Enabled {
				if err := checkPort(cfg.Health.Host, cfg.Health.Port); err != nil {
					r.warn("Health port", fmt.Sprintf("port %d may be in use: %v", cfg.Health.Port, err))
				} else {
					r.pass("Health port", fmt.Sprintf(":%d available", cfg.Health.Port))
				}
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
			if r.failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running the gateway.\n")
				return fmt.Errorf("%d check(s) failed", r.failed)
			}
			if r.warned > 0 {
				fmt.Printf("\nrelaybot should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! relaybot is ready to run.\n")
			}
			return nil
		},
	}
}

func checkJournal(dbPath string) error {
	store, err := journal.NewSQLiteStore(dbPath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return store.Ping(ctx)
}

func checkPort(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}
