package channel

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"relaybot/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ domain.Sender  = (*Telegram)(nil)
	_ domain.Channel = (*Telegram)(nil)
	_ domain.Source  = (*Discord)(nil)
	_ domain.Sender  = (*Webhook)(nil)
	_ domain.Sender  = (*Slack)(nil)
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

const tgOK = `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`

type tgCall struct {
	method    string
	chatID    string
	text      string
	parseMode string
	preview   string
	photo     string
	media     string
	files     int
}

// fakeBotAPI records Bot API calls. respond may override the reply for a
// method; returning "" falls back to success.
type fakeBotAPI struct {
	mu      sync.Mutex
	calls   []tgCall
	respond func(c tgCall, n int) (int, string)
	server  *httptest.Server
}

func newFakeBotAPI(t *testing.T) *fakeBotAPI {
	f := &fakeBotAPI{}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeBotAPI) serve(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	w.Header().Set("Content-Type", "application/json")

	if method == "getMe" {
		fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"relay","username":"relay_bot"}}`)
		return
	}

	_ = r.ParseMultipartForm(32 << 20)
	c := tgCall{
		method:    method,
		chatID:    r.FormValue("chat_id"),
		text:      r.FormValue("text"),
		parseMode: r.FormValue("parse_mode"),
		preview:   r.FormValue("disable_web_page_preview"),
		photo:     r.FormValue("photo"),
		media:     r.FormValue("media"),
	}
	if r.MultipartForm != nil {
		c.files = len(r.MultipartForm.File)
	}

	f.mu.Lock()
	f.calls = append(f.calls, c)
	n := len(f.calls)
	respond := f.respond
	f.mu.Unlock()

	if respond != nil {
		if status, body := respond(c, n); body != "" {
			w.WriteHeader(status)
			fmt.Fprint(w, body)
			return
		}
	}
	if method == "sendMediaGroup" {
		fmt.Fprint(w, `{"ok":true,"result":[{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}]}`)
		return
	}
	fmt.Fprint(w, tgOK)
}

func (f *fakeBotAPI) snapshot() []tgCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgCall(nil), f.calls...)
}

func newTestTelegram(t *testing.T, api *fakeBotAPI, cfg TelegramConfig) (*Telegram, *[]time.Duration) {
	t.Helper()
	cfg.Token = "test-token"
	cfg.APIEndpoint = api.server.URL + "/bot%s/%s"
	cfg.Logger = testLogger()
	if cfg.ChatIDs == nil {
		cfg.ChatIDs = []string{"42"}
	}
	tg, err := NewTelegram(cfg)
	require.NoError(t, err)

	var slept []time.Duration
	tg.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return tg, &slept
}

func TestNewTelegram_RejectsNonNumericChat(t *testing.T) {
	_, err := NewTelegram(TelegramConfig{ChatIDs: []string{"abc"}, Logger: testLogger()})
	assert.Error(t, err)
}

func TestTelegram_EmptyBatchIsNoop(t *testing.T) {
	api := newFakeBotAPI(t)
	tg, _ := newTestTelegram(t, api, TelegramConfig{})

	require.NoError(t, tg.Send(context.Background(), nil, nil))
	assert.Empty(t, api.snapshot())
}

func TestTelegram_SendsTextsToEveryChat(t *testing.T) {
	api := newFakeBotAPI(t)
	tg, _ := newTestTelegram(t, api, TelegramConfig{
		ChatIDs:            []string{"42", "-100"},
		ParseMode:          "Markdown",
		DisableLinkPreview: true,
	})

	err := tg.Send(context.Background(), []string{"one", "  ", "two"}, nil)
	require.NoError(t, err)

	calls := api.snapshot()
	require.Len(t, calls, 4)
	assert.Equal(t, []string{"42", "42", "-100", "-100"}, []string{calls[0].chatID, calls[1].chatID, calls[2].chatID, calls[3].chatID})
	assert.Equal(t, "one", calls[0].text)
	assert.Equal(t, "two", calls[1].text)
	assert.Equal(t, "Markdown", calls[0].parseMode)
	assert.Equal(t, "true", calls[0].preview)
}

func TestTelegram_ChunksLongText(t *testing.T) {
	api := newFakeBotAPI(t)
	tg, _ := newTestTelegram(t, api, TelegramConfig{})

	long := strings.Repeat("a", 3000) + "\n" + strings.Repeat("b", 3000)
	require.NoError(t, tg.Send(context.Background(), []string{long}, nil))

	calls := api.snapshot()
	require.Len(t, calls, 2)
	assert.Equal(t, strings.Repeat("a", 3000)+"\n", calls[0].text)
	assert.Equal(t, strings.Repeat("b", 3000), calls[1].text)
}

func TestTelegram_MarkdownErrorFallsBackToPlain(t *testing.T) {
	api := newFakeBotAPI(t)
	api.respond = func(c tgCall, n int) (int, string) {
		if c.parseMode != "" {
			return http.StatusBadRequest, `{"ok":false,"error_code":400,"description":"Bad Request: can't parse entities: unclosed"}`
		}
		return 0, ""
	}
	tg, slept := newTestTelegram(t, api, TelegramConfig{ParseMode: "Markdown"})

	require.NoError(t, tg.Send(context.Background(), []string{"*broken"}, nil))

	calls := api.snapshot()
	require.Len(t, calls, 2)
	assert.Equal(t, "Markdown", calls[0].parseMode)
	assert.Empty(t, calls[1].parseMode)
	assert.Empty(t, *slept)
}

func TestTelegram_RateLimitHonorsRetryAfter(t *testing.T) {
	api := newFakeBotAPI(t)
	api.respond = func(c tgCall, n int) (int, string) {
		if n == 1 {
			return http.StatusTooManyRequests, `{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 7","parameters":{"retry_after":7}}`
		}
		return 0, ""
	}
	tg, slept := newTestTelegram(t, api, TelegramConfig{})

	require.NoError(t, tg.Send(context.Background(), []string{"hi"}, nil))

	assert.Len(t, api.snapshot(), 2)
	assert.Equal(t, []time.Duration{7 * time.Second}, *slept)
}

func TestTelegram_GivesUpAfterRetries(t *testing.T) {
	api := newFakeBotAPI(t)
	api.respond = func(c tgCall, n int) (int, string) {
		return http.StatusInternalServerError, `{"ok":false,"error_code":500,"description":"Internal Server Error"}`
	}
	tg, slept := newTestTelegram(t, api, TelegramConfig{})

	err := tg.Send(context.Background(), []string{"hi"}, nil)

	assert.Error(t, err)
	assert.Len(t, api.snapshot(), telegramMaxSendRetries+1)
	assert.Len(t, *slept, telegramMaxSendRetries)
}

func urls(n int) []domain.MediaItem {
	items := make([]domain.MediaItem, n)
	for i := range items {
		items[i] = domain.PhotoURL(fmt.Sprintf("https://cdn.example/%d.png", i))
	}
	return items
}

func TestTelegram_MediaGrouping(t *testing.T) {
	tests := []struct {
		name    string
		count   int
		methods []string
	}{
		{name: "single photo", count: 1, methods: []string{"sendPhoto"}},
		{name: "three photos", count: 3, methods: []string{"sendMediaGroup"}},
		{name: "twelve photos", count: 12, methods: []string{"sendMediaGroup", "sendMediaGroup"}},
		{name: "eleven photos", count: 11, methods: []string{"sendMediaGroup", "sendPhoto"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeBotAPI(t)
			tg, _ := newTestTelegram(t, api, TelegramConfig{})

			require.NoError(t, tg.Send(context.Background(), nil, urls(tt.count)))

			var methods []string
			for _, c := range api.snapshot() {
				methods = append(methods, c.method)
			}
			assert.Equal(t, tt.methods, methods)
		})
	}
}

func TestTelegram_SinglePhotoByURL(t *testing.T) {
	api := newFakeBotAPI(t)
	tg, _ := newTestTelegram(t, api, TelegramConfig{})

	require.NoError(t, tg.Send(context.Background(), nil, urls(1)))

	calls := api.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "https://cdn.example/0.png", calls[0].photo)
	assert.Zero(t, calls[0].files)
}

func TestTelegram_StreamedPhotoIsUploaded(t *testing.T) {
	api := newFakeBotAPI(t)
	tg, _ := newTestTelegram(t, api, TelegramConfig{})

	var opened int
	stream := domain.MediaItem{
		Kind: domain.MediaPhotoStream,
		URL:  "https://cdn.example/big.png",
		Name: "big.png",
		Open: func(ctx context.Context) (io.ReadCloser, error) {
			opened++
			return io.NopCloser(bytes.NewReader([]byte("\x89PNG"))), nil
		},
	}

	require.NoError(t, tg.Send(context.Background(), nil, []domain.MediaItem{stream, domain.PhotoURL("https://cdn.example/a.png")}))

	calls := api.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "sendMediaGroup", calls[0].method)
	assert.Equal(t, 1, calls[0].files)
	assert.Contains(t, calls[0].media, "attach://")
	assert.Equal(t, 1, opened)
}

type recordingBus struct {
	mu        sync.Mutex
	published []domain.InboundMessage
	handlers  map[string]func(domain.OutboundMessage)
}

func (b *recordingBus) Publish(msg domain.InboundMessage) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, msg)
	return true
}
func (b *recordingBus) Subscribe() <-chan domain.InboundMessage { return nil }
func (b *recordingBus) SendOutbound(msg domain.OutboundMessage) {
	if h, ok := b.handlers[msg.Channel]; ok {
		h(msg)
	}
}
func (b *recordingBus) OnOutbound(name string, h func(domain.OutboundMessage)) {
	if b.handlers == nil {
		b.handlers = make(map[string]func(domain.OutboundMessage))
	}
	b.handlers[name] = h
}
func (b *recordingBus) Close() {}

func TestTelegram_HandleUpdatePublishesCommandChatOnly(t *testing.T) {
	api := newFakeBotAPI(t)
	tg, _ := newTestTelegram(t, api, TelegramConfig{CommandChatID: "42"})
	bus := &recordingBus{}

	cmd := &tgbotapi.Message{
		Text:     "/help",
		Date:     1700000000,
		Chat:     &tgbotapi.Chat{ID: 42},
		From:     &tgbotapi.User{ID: 7},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 5}},
	}
	other := &tgbotapi.Message{Text: "hi", Chat: &tgbotapi.Chat{ID: 99}}
	blank := &tgbotapi.Message{Text: "  ", Chat: &tgbotapi.Chat{ID: 42}}

	tg.handleUpdate(bus, tgbotapi.Update{Message: cmd})
	tg.handleUpdate(bus, tgbotapi.Update{Message: other})
	tg.handleUpdate(bus, tgbotapi.Update{Message: blank})
	tg.handleUpdate(bus, tgbotapi.Update{})

	require.Len(t, bus.published, 1)
	got := bus.published[0]
	assert.Equal(t, "42", got.ChatID)
	assert.Equal(t, "7", got.SenderID)
	assert.Equal(t, "/help", got.Content)
	assert.True(t, got.IsCommand)
}

func TestTelegram_ServeRepliesDeliversWithoutPolling(t *testing.T) {
	api := newFakeBotAPI(t)
	tg, _ := newTestTelegram(t, api, TelegramConfig{CommandChatID: "42"})
	bus := &recordingBus{}

	tg.ServeReplies(context.Background(), bus)
	require.Contains(t, bus.handlers, "telegram")

	bus.SendOutbound(domain.OutboundMessage{Channel: "telegram", ChatID: "42", Content: "*pong*", Format: "markdown"})
	bus.SendOutbound(domain.OutboundMessage{Channel: "telegram", ChatID: "42"})
	bus.SendOutbound(domain.OutboundMessage{Channel: "telegram", ChatID: "nope", Content: "x"})

	var sent []tgCall
	for _, c := range api.snapshot() {
		if c.method == "sendMessage" {
			sent = append(sent, c)
		}
	}
	require.Len(t, sent, 1)
	assert.Equal(t, "42", sent[0].chatID)
	assert.Equal(t, "*pong*", sent[0].text)
	assert.Equal(t, tgbotapi.ModeMarkdown, sent[0].parseMode)
}
