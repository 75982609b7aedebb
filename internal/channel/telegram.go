package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"relaybot/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	telegramMaxMsgLen      = 4000
	telegramMaxSendRetries = 3
	telegramMaxGroupSize   = 10
)

// Telegram is the Telegram destination. It can also serve one chat as a
// command channel, publishing its messages to the bus and delivering
// outbound replies.
type Telegram struct {
	token              string
	apiEndpoint        string
	chatIDs            []int64
	commandChatID      int64
	parseMode          string
	disableLinkPreview bool
	httpClient         *http.Client
	sleep              func(ctx context.Context, d time.Duration) error

	connectOnce sync.Once
	connectErr  error
	bot         *tgbotapi.BotAPI
	logger      *slog.Logger
}

type TelegramConfig struct {
	Token string
	// APIEndpoint overrides the Bot API endpoint format, e.g.
	// "https://api.telegram.org/bot%s/%s".
	APIEndpoint        string
	ChatIDs            []string
	CommandChatID      string // optional
	ParseMode          string
	DisableLinkPreview bool
	HTTPClient         *http.Client
	Logger             *slog.Logger
}

func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	var chats []int64
	for _, s := range cfg.ChatIDs {
		id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("telegram chat id %q: %w", s, err)
		}
		chats = append(chats, id)
	}
	var commandChat int64
	if cfg.CommandChatID != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(cfg.CommandChatID), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("telegram command chat id %q: %w", cfg.CommandChatID, err)
		}
		commandChat = id
	}
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = tgbotapi.APIEndpoint
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Telegram{
		token:              cfg.Token,
		apiEndpoint:        cfg.APIEndpoint,
		chatIDs:            chats,
		commandChatID:      commandChat,
		parseMode:          cfg.ParseMode,
		disableLinkPreview: cfg.DisableLinkPreview,
		httpClient:         cfg.HTTPClient,
		sleep:              sleepCtx,
		logger:             cfg.Logger,
	}, nil
}

func (t *Telegram) Name() string { return "telegram" }

// Connect authenticates the bot. It is safe to call more than once.
func (t *Telegram) Connect() error {
	t.connectOnce.Do(func() {
		bot, err := tgbotapi.NewBotAPIWithClient(t.token, t.apiEndpoint, t.httpClient)
		if err != nil {
			t.connectErr = fmt.Errorf("telegram bot init: %w", err)
			return
		}
		t.bot = bot
		t.logger.Info("telegram bot connected",
			"username", bot.Self.UserName,
			"id", bot.Self.ID,
		)
	})
	return t.connectErr
}

// Send delivers texts then media to every configured chat. A failing chat
// does not stop the others; all failures are returned joined.
func (t *Telegram) Send(ctx context.Context, texts []string, media []domain.MediaItem) error {
	if len(texts) == 0 && len(media) == 0 {
		return nil
	}
	if err := t.Connect(); err != nil {
		return err
	}

	var errs []error
	for _, chatID := range t.chatIDs {
		for _, text := range texts {
			if strings.TrimSpace(text) == "" {
				continue
			}
			if err := t.sendMessage(ctx, chatID, text, t.parseMode); err != nil {
				errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
			}
		}
		if err := t.sendMedia(ctx, chatID, media); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

// ServeReplies delivers outbound messages addressed to "telegram" to their
// chat. Call it before anything can reply so early replies are not dropped.
func (t *Telegram) ServeReplies(ctx context.Context, bus domain.MessageBus) {
	bus.OnOutbound("telegram", func(msg domain.OutboundMessage) {
		if msg.Content == "" {
			return
		}
		chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
		if err != nil {
			t.logger.Error("invalid chat ID for telegram outbound", "chatID", msg.ChatID, "err", err)
			return
		}
		if err := t.Connect(); err != nil {
			t.logger.Error("telegram reply dropped", "chat_id", chatID, "err", err)
			return
		}
		parseMode := ""
		if msg.Format == "markdown" {
			parseMode = tgbotapi.ModeMarkdown
		}
		if err := t.sendMessage(ctx, chatID, msg.Content, parseMode); err != nil {
			t.logger.Error("telegram reply failed", "chat_id", chatID, "err", err)
		}
	})
}

// Start polls the bot for updates and publishes messages from the command
// chat to the bus. Start blocks until ctx is done.
func (t *Telegram) Start(ctx context.Context, bus domain.MessageBus) error {
	if err := t.Connect(); err != nil {
		return err
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)

	t.logger.Info("telegram polling started", "command_chat", t.commandChatID)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			t.bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(bus, update)
		}
	}
}

// Stop is a no-op: polling stops when Start's context is cancelled, and
// StopReceivingUpdates panics when called twice.
func (t *Telegram) Stop() error {
	return nil
}

func (t *Telegram) handleUpdate(bus domain.MessageBus, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	if msg.Chat.ID != t.commandChatID {
		t.logger.Debug("ignoring telegram message from other chat", "chat_id", msg.Chat.ID)
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	var sender string
	if msg.From != nil {
		sender = strconv.FormatInt(msg.From.ID, 10)
	}
	t.logger.Info("telegram message received",
		"chat_id", msg.Chat.ID,
		"sender", sender,
		"text_len", len(text),
	)

	if !bus.Publish(domain.InboundMessage{
		Channel:   "telegram",
		ChatID:    strconv.FormatInt(msg.Chat.ID, 10),
		SenderID:  sender,
		Content:   text,
		IsCommand: msg.IsCommand(),
		Timestamp: time.Unix(int64(msg.Date), 0),
	}) {
		t.logger.Warn("telegram message dropped, bus full", "chat_id", msg.Chat.ID)
	}
}

func (t *Telegram) sendMessage(ctx context.Context, chatID int64, text, parseMode string) error {
	for _, chunk := range splitMessage(text, telegramMaxMsgLen) {
		if err := t.sendChunk(ctx, chatID, chunk, parseMode); err != nil {
			return err
		}
	}
	return nil
}

// sendChunk sends a single message chunk with retry and rate limit handling.
// Strategy: try the parse mode first, on parse error fall back to plain
// text, otherwise retry with backoff.
func (t *Telegram) sendChunk(ctx context.Context, chatID int64, text, parseMode string) error {
	const maxRetries = telegramMaxSendRetries

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.DisableWebPagePreview = t.disableLinkPreview
		if attempt == 0 && parseMode != "" {
			msg.ParseMode = parseMode
		}
		// On subsequent attempts: send as plain text (parse mode may be malformed).

		if _, err = t.bot.Send(msg); err == nil {
			return nil
		}

		if wait, limited := rateLimited(err, attempt); limited {
			t.logger.Warn("telegram rate limited, backing off",
				"retry_after", wait, "attempt", attempt+1,
			)
			if serr := t.sleep(ctx, wait); serr != nil {
				return serr
			}
			continue
		}

		if attempt == 0 && msg.ParseMode != "" && strings.Contains(err.Error(), "can't parse entities") {
			t.logger.Warn("telegram markdown parse error, retrying as plain text",
				"err", err, "parseMode", parseMode,
			)
			plain := tgbotapi.NewMessage(chatID, text)
			plain.DisableWebPagePreview = t.disableLinkPreview
			if _, err2 := t.bot.Send(plain); err2 == nil {
				return nil
			}
		}

		if attempt < maxRetries {
			backoff := time.Duration(attempt+1) * time.Second
			t.logger.Warn("telegram send error, retrying", "err", err, "backoff", backoff)
			if serr := t.sleep(ctx, backoff); serr != nil {
				return serr
			}
		}
	}

	t.logger.Error("telegram send failed after retries", "err", err, "attempts", maxRetries+1)
	return fmt.Errorf("telegram send: %w", err)
}

// sendMedia sends one photo with sendPhoto and more as media groups of up
// to ten. A trailing group of one falls back to sendPhoto.
func (t *Telegram) sendMedia(ctx context.Context, chatID int64, media []domain.MediaItem) error {
	var errs []error
	for start := 0; start < len(media); start += telegramMaxGroupSize {
		group := media[start:min(start+telegramMaxGroupSize, len(media))]
		if err := t.sendGroup(ctx, chatID, group); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *Telegram) sendGroup(ctx context.Context, chatID int64, group []domain.MediaItem) error {
	files := make([]tgbotapi.RequestFileData, 0, len(group))
	for _, item := range group {
		file, closer, err := telegramFile(ctx, item)
		if err != nil {
			t.logger.Warn("skipping media item", "url", item.URL, "err", err)
			continue
		}
		if closer != nil {
			defer closer.Close()
		}
		files = append(files, file)
	}

	switch len(files) {
	case 0:
		return nil
	case 1:
		if _, err := t.bot.Send(tgbotapi.NewPhoto(chatID, files[0])); err != nil {
			return fmt.Errorf("telegram send photo: %w", err)
		}
		return nil
	}

	items := make([]interface{}, len(files))
	for i, f := range files {
		items[i] = tgbotapi.NewInputMediaPhoto(f)
	}
	if _, err := t.bot.SendMediaGroup(tgbotapi.NewMediaGroup(chatID, items)); err != nil {
		return fmt.Errorf("telegram send media group: %w", err)
	}
	return nil
}

// telegramFile maps a media item to request file data. Streamed items are
// opened here and must be closed by the caller after sending.
func telegramFile(ctx context.Context, item domain.MediaItem) (tgbotapi.RequestFileData, io.Closer, error) {
	if item.Kind != domain.MediaPhotoStream {
		return tgbotapi.FileURL(item.URL), nil, nil
	}
	if item.Open == nil {
		return nil, nil, errors.New("stream item has no opener")
	}
	rc, err := item.Open(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("open stream: %w", err)
	}
	name := item.Name
	if name == "" {
		name = "image"
	}
	return tgbotapi.FileReader{Name: name, Reader: rc}, rc, nil
}

// rateLimited reports whether err is a 429 and how long to wait.
func rateLimited(err error, attempt int) (time.Duration, bool) {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return time.Duration(apiErr.RetryAfter) * time.Second, true
	}
	msg := err.Error()
	if strings.Contains(msg, "Too Many Requests") || strings.Contains(msg, "429") {
		return time.Duration(attempt+1) * 3 * time.Second, true
	}
	return 0, false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
