package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"relaybot/internal/domain"

	"github.com/bwmarrin/discordgo"
)

const (
	discordMaxMsgLen    = 2000
	discordMaxPerUpload = 10
)

var webhookURLRe = regexp.MustCompile(`/webhooks/(\d+)/([^/?]+)`)

// ParseWebhookURL returns the id and token of a Discord webhook URL.
func ParseWebhookURL(url string) (id, token string, err error) {
	m := webhookURLRe.FindStringSubmatch(url)
	if m == nil {
		return "", "", fmt.Errorf("not a discord webhook url: %q", url)
	}
	return m[1], m[2], nil
}

// Webhook is the Discord webhook destination.
type Webhook struct {
	id      string
	token   string
	session *discordgo.Session
	logger  *slog.Logger
}

// WebhookConfig configures the Discord webhook destination.
type WebhookConfig struct {
	URL        string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewWebhook creates the destination. Executing a webhook needs no bot
// token, so the session is never opened.
func NewWebhook(cfg WebhookConfig) (*Webhook, error) {
	id, token, err := ParseWebhookURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	session, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("discord webhook session: %w", err)
	}
	if cfg.HTTPClient != nil {
		session.Client = cfg.HTTPClient
	}
	return &Webhook{id: id, token: token, session: session, logger: cfg.Logger}, nil
}

func (w *Webhook) Name() string { return "discord_webhook" }

// ID is the webhook id. Messages it posts appear with this author id.
func (w *Webhook) ID() string { return w.id }

// Send posts texts in 2000-byte chunks, then media in groups of ten as image
// embeds linking each item's URL.
func (w *Webhook) Send(ctx context.Context, texts []string, media []domain.MediaItem) error {
	var errs []error
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		for _, chunk := range splitMessage(text, discordMaxMsgLen) {
			if err := w.execute(ctx, &discordgo.WebhookParams{Content: chunk}); err != nil {
				errs = append(errs, err)
				break
			}
		}
	}

	for start := 0; start < len(media); start += discordMaxPerUpload {
		group := media[start:min(start+discordMaxPerUpload, len(media))]
		if err := w.sendMedia(ctx, group); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *Webhook) sendMedia(ctx context.Context, group []domain.MediaItem) error {
	params := &discordgo.WebhookParams{}
	for _, item := range group {
		// Streamed items are linked too. Uploading them would buffer the
		// whole multipart body in memory.
		if item.URL == "" {
			w.logger.Debug("skipping media item without url", "name", item.Name)
			continue
		}
		params.Embeds = append(params.Embeds, &discordgo.MessageEmbed{
			Image: &discordgo.MessageEmbedImage{URL: item.URL},
		})
	}
	if len(params.Embeds) == 0 {
		return nil
	}
	return w.execute(ctx, params)
}

func (w *Webhook) execute(ctx context.Context, params *discordgo.WebhookParams) error {
	if _, err := w.session.WebhookExecute(w.id, w.token, false, params, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord webhook execute: %w", err)
	}
	return nil
}
