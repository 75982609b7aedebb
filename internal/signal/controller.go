package signal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"relaybot/internal/domain"

	"github.com/google/uuid"
)

const (
	defaultRecentSignals = 5
	maxRecentSignals     = 20
)

const helpText = "🤖 *Signal Bot Commands*\n\n" +
	"📊 /trading\\_status - Show analysis status\n" +
	"✅ /enable\\_trading - Enable message analysis\n" +
	"❌ /disable\\_trading - Disable message analysis\n" +
	"🗂 /signals [n] - Show recent signals\n" +
	"❓ /help - Show this help message\n\n" +
	"⚠️ Analysis only. No orders are placed."

// Controller serves the feedback/command chat: it answers commands and runs
// signal extraction on free text while analysis is enabled.
type Controller struct {
	extractor *Extractor
	journal   domain.SignalJournal
	bus       domain.MessageBus
	channel   string
	chatID    string
	enabled   atomic.Bool
	logger    *slog.Logger
}

type ControllerConfig struct {
	Extractor *Extractor
	Journal   domain.SignalJournal // optional
	Bus       domain.MessageBus
	Channel   string // outbound channel name, e.g. "telegram"
	ChatID    string
	Logger    *slog.Logger
}

func NewController(cfg ControllerConfig) *Controller {
	if cfg.Channel == "" {
		cfg.Channel = "telegram"
	}
	c := &Controller{
		extractor: cfg.Extractor,
		journal:   cfg.Journal,
		bus:       cfg.Bus,
		channel:   cfg.Channel,
		chatID:    cfg.ChatID,
		logger:    cfg.Logger,
	}
	c.enabled.Store(true)
	return c
}

// Enabled reports whether free text is analyzed.
func (c *Controller) Enabled() bool { return c.enabled.Load() }

// Run consumes inbound messages until ctx is done or the bus is closed.
func (c *Controller) Run(ctx context.Context) {
	c.logger.Info("signal controller started", "chat_id", c.chatID)
	inbound := c.bus.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-inbound:
			if !ok {
				return
			}
			c.Handle(ctx, msg)
		}
	}
}

// Handle processes one message from the command chat.
func (c *Controller) Handle(ctx context.Context, msg domain.InboundMessage) {
	if msg.ChatID != c.chatID {
		c.logger.Debug("ignoring message from other chat", "chat_id", msg.ChatID)
		return
	}

	text := strings.TrimSpace(msg.Content)
	if text == "" {
		return
	}
	if msg.IsCommand || strings.HasPrefix(text, "/") {
		c.handleCommand(ctx, text)
		return
	}
	if !c.Enabled() {
		c.logger.Debug("analysis disabled, ignoring message")
		return
	}

	if _, err := c.analyze(ctx, "telegram:"+msg.ChatID, text); errors.Is(err, ErrOracle) {
		c.reply("❌ Signal analysis is unavailable right now.")
	}
}

// Observe analyzes relayed text and reports accepted signals to the command
// chat. Failures are only logged.
func (c *Controller) Observe(ctx context.Context, source, text string) {
	if !c.Enabled() {
		return
	}
	_, _ = c.analyze(ctx, source, text)
}

func (c *Controller) analyze(ctx context.Context, source, text string) (*domain.TradingSignal, error) {
	sig, err := c.extractor.Extract(ctx, text)
	if err != nil {
		c.logger.Info("no trading signal", "source", source, "err", err)
		return nil, err
	}

	c.logger.Info("trading signal detected",
		"source", source,
		"symbol", sig.Symbol,
		"side", sig.Side,
		"entries", len(sig.Entries),
	)
	c.reply(Format(sig))

	if c.journal != nil {
		rec := domain.SignalRecord{
			ID:        uuid.NewString(),
			Source:    source,
			Signal:    *sig,
			CreatedAt: time.Now().UTC(),
		}
		if err := c.journal.Record(ctx, rec); err != nil {
			c.logger.Error("journal record failed", "err", err)
		}
	}
	return sig, nil
}

func (c *Controller) handleCommand(ctx context.Context, text string) {
	fields := strings.Fields(text)
	cmd := fields[0]
	if at := strings.IndexByte(cmd, '@'); at > 0 {
		cmd = cmd[:at]
	}

	switch cmd {
	case "/trading_status":
		state := "✅ ENABLED"
		if !c.Enabled() {
			state = "❌ DISABLED"
		}
		c.reply("📊 *Signal Bot Status*\n\n" +
			"🤖 Analysis: " + state + "\n" +
			"📈 Mode: analysis only, no trade execution")
	case "/enable_trading":
		c.enabled.Store(true)
		c.logger.Info("signal analysis enabled")
		c.reply("✅ Trading analysis enabled")
	case "/disable_trading":
		c.enabled.Store(false)
		c.logger.Info("signal analysis disabled")
		c.reply("❌ Trading analysis disabled")
	case "/help", "/start":
		c.reply(helpText)
	case "/signals":
		c.reply(c.recentSignals(ctx, fields[1:]))
	default:
		c.reply(fmt.Sprintf("❓ Unknown command: %s\n\nUse /help to see available commands.", cmd))
	}
}

func (c *Controller) recentSignals(ctx context.Context, args []string) string {
	if c.journal == nil {
		return "🗂 Signal journal is disabled."
	}
	limit := defaultRecentSignals
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
			limit = min(n, maxRecentSignals)
		}
	}

	recs, err := c.journal.Recent(ctx, limit)
	if err != nil {
		c.logger.Error("journal read failed", "err", err)
		return "❌ Could not read the signal journal."
	}
	if len(recs) == 0 {
		return "🗂 No signals recorded yet."
	}

	var b strings.Builder
	b.WriteString("🗂 *Recent signals*\n")
	for _, r := range recs {
		fmt.Fprintf(&b, "\n%s %s %s x%s (%s)",
			r.CreatedAt.Format("2006-01-02 15:04"),
			r.Signal.Symbol,
			r.Signal.Side,
			num(r.Signal.Leverage),
			r.Source,
		)
	}
	return b.String()
}

func (c *Controller) reply(text string) {
	c.bus.SendOutbound(domain.OutboundMessage{
		Channel: c.channel,
		ChatID:  c.chatID,
		Content: text,
		Format:  "markdown",
	})
}
