package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"relaybot/internal/domain"

	"github.com/slack-go/slack"
)

const slackMaxMsgLen = 4000

// Slack is the Slack destination. Photos are posted as links and unfurled
// by Slack.
type Slack struct {
	client     *slack.Client
	channelIDs []string
	logger     *slog.Logger
}

// SlackConfig configures the Slack destination.
type SlackConfig struct {
	BotToken   string
	ChannelIDs []string
	APIURL     string // optional, must end with "/"
	Logger     *slog.Logger
}

// NewSlack creates the Slack destination.
func NewSlack(cfg SlackConfig) *Slack {
	var opts []slack.Option
	if cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(cfg.APIURL))
	}
	return &Slack{
		client:     slack.New(cfg.BotToken, opts...),
		channelIDs: cfg.ChannelIDs,
		logger:     cfg.Logger,
	}
}

func (s *Slack) Name() string { return "slack" }

// Send posts every text and media link to every configured channel.
func (s *Slack) Send(ctx context.Context, texts []string, media []domain.MediaItem) error {
	var posts []string
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		posts = append(posts, splitMessage(text, slackMaxMsgLen)...)
	}
	for _, item := range media {
		if item.URL != "" {
			posts = append(posts, item.URL)
		}
	}
	if len(posts) == 0 {
		return nil
	}

	var errs []error
	for _, channelID := range s.channelIDs {
		for _, post := range posts {
			if _, _, err := s.client.PostMessageContext(ctx, channelID, slack.MsgOptionText(post, false)); err != nil {
				errs = append(errs, fmt.Errorf("slack post to %s: %w", channelID, err))
				break
			}
		}
	}
	return errors.Join(errs...)
}
