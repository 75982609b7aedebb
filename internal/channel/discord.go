package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"relaybot/internal/domain"

	"github.com/bwmarrin/discordgo"
)

// discordStateMessages is how many messages per channel the session keeps,
// so deletions can be rendered with their former content.
const discordStateMessages = 200

var channelMentionRe = regexp.MustCompile(`<#(\d+)>`)

// EventHandler consumes source events.
type EventHandler interface {
	Handle(ctx context.Context, ev *domain.InboundEvent) error
}

// Discord is the source adapter: it turns gateway message events into
// InboundEvents and implements domain.Source for rendering.
type Discord struct {
	token      string
	session    *discordgo.Session
	handler    EventHandler
	httpClient *http.Client
	logger     *slog.Logger
}

// DiscordConfig configures the Discord source.
type DiscordConfig struct {
	Token      string
	HTTPClient *http.Client // attachment downloads
	Logger     *slog.Logger
}

// NewDiscord creates the Discord source. The session is created here so the
// adapter can serve lookups before Run connects it.
func NewDiscord(cfg DiscordConfig) (*Discord, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent
	session.State.MaxMessageCount = discordStateMessages

	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Discord{
		token:      cfg.Token,
		session:    session,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
	}, nil
}

func (d *Discord) Name() string { return "discord" }

// Run connects to the gateway and hands every message event to h until ctx
// is done. Handler errors are logged; they never stop the stream.
func (d *Discord) Run(ctx context.Context, h EventHandler) error {
	d.handler = h

	d.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		d.logger.Info("discord connected", "user", r.User.Username, "guilds", len(r.Guilds))
	})
	d.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		d.dispatch(ctx, domain.EventCreated, m.Message)
	})
	d.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageUpdate) {
		d.dispatch(ctx, domain.EventUpdated, d.fillPartial(m.Message))
	})
	d.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageDelete) {
		msg := m.Message
		if m.BeforeDelete != nil {
			msg = m.BeforeDelete
		}
		d.dispatch(ctx, domain.EventDeleted, msg)
	})

	if err := d.session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}

	<-ctx.Done()
	d.logger.Info("discord disconnecting")
	return d.session.Close()
}

func (d *Discord) dispatch(ctx context.Context, kind domain.EventKind, m *discordgo.Message) {
	if m == nil {
		return
	}
	if u := d.session.State.User; u != nil && m.Author != nil && m.Author.ID == u.ID {
		return
	}

	ev := d.toEvent(kind, m)
	d.logger.Debug("discord event",
		"kind", kind,
		"channel_id", ev.ChannelID,
		"author_id", ev.AuthorID,
		"content_len", len(ev.Text),
	)
	if err := d.handler.Handle(ctx, ev); err != nil {
		d.logger.Warn("event dropped", "kind", kind, "message_id", ev.ID, "err", err)
	}
}

// fillPartial completes an update that arrived without an author from the
// session's message cache.
func (d *Discord) fillPartial(m *discordgo.Message) *discordgo.Message {
	if m == nil || m.Author != nil {
		return m
	}
	if cached, err := d.session.State.Message(m.ChannelID, m.ID); err == nil {
		merged := *cached
		if m.Content != "" {
			merged.Content = m.Content
		}
		if len(m.Embeds) > 0 {
			merged.Embeds = m.Embeds
		}
		return &merged
	}
	return m
}

// toEvent converts a discordgo message. A resolved referenced message is
// converted one level deep; deeper levels are fetched on demand.
func (d *Discord) toEvent(kind domain.EventKind, m *discordgo.Message) *domain.InboundEvent {
	ev := &domain.InboundEvent{
		Kind:      kind,
		ID:        m.ID,
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		Text:      m.Content,
		Timestamp: m.Timestamp,
	}
	if m.Author != nil {
		ev.AuthorID = m.Author.ID
		ev.AuthorName = displayName(m.Author)
		ev.AuthorIsBot = m.Author.Bot
	}

	for _, e := range m.Embeds {
		if e == nil {
			continue
		}
		embed := domain.Embed{Title: e.Title, Description: e.Description, URL: e.URL}
		if e.Image != nil {
			embed.ImageURL = e.Image.URL
		}
		ev.Embeds = append(ev.Embeds, embed)
	}

	for _, a := range m.Attachments {
		if a == nil {
			continue
		}
		ev.Attachments = append(ev.Attachments, domain.Attachment{
			ID:          a.ID,
			Name:        a.Filename,
			URL:         a.URL,
			ContentType: a.ContentType,
			Size:        int64(a.Size),
		})
	}

	ev.Mentions = d.mentions(m)

	if ref := m.MessageReference; ref != nil && ref.MessageID != "" {
		channelID := ref.ChannelID
		if channelID == "" {
			channelID = m.ChannelID
		}
		ev.Reference = &domain.Reference{ChannelID: channelID, MessageID: ref.MessageID}
		if m.ReferencedMessage != nil {
			resolved := *m.ReferencedMessage
			resolved.ReferencedMessage = nil
			if resolved.GuildID == "" {
				resolved.GuildID = m.GuildID
			}
			ev.Reference.Resolved = d.toEvent(domain.EventCreated, &resolved)
		}
	}
	return ev
}

func (d *Discord) mentions(m *discordgo.Message) domain.Mentions {
	var out domain.Mentions
	for _, u := range m.Mentions {
		if u != nil {
			out.Users = append(out.Users, domain.UserMention{ID: u.ID, DisplayName: displayName(u)})
		}
	}

	seen := make(map[string]bool)
	for _, match := range channelMentionRe.FindAllStringSubmatch(m.Content, -1) {
		if id := match[1]; !seen[id] {
			seen[id] = true
			out.Channels = append(out.Channels, domain.ChannelMention{ID: id})
		}
	}

	guildID := m.GuildID
	if guildID == "" {
		if ch, err := d.session.State.Channel(m.ChannelID); err == nil {
			guildID = ch.GuildID
		}
	}
	for _, roleID := range m.MentionRoles {
		role, err := d.session.State.Role(guildID, roleID)
		if err != nil {
			d.logger.Debug("role not in state", "role_id", roleID, "err", err)
			continue
		}
		out.Roles = append(out.Roles, domain.RoleMention{ID: role.ID, Name: role.Name})
	}
	return out
}

func displayName(u *discordgo.User) string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// FetchMessage implements domain.Source.
func (d *Discord) FetchMessage(ctx context.Context, channelID, messageID string) (*domain.InboundEvent, error) {
	if cached, err := d.session.State.Message(channelID, messageID); err == nil {
		return d.toEvent(domain.EventCreated, cached), nil
	}
	m, err := d.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("discord fetch message %s: %w", messageID, err)
	}
	if m.ChannelID == "" {
		m.ChannelID = channelID
	}
	return d.toEvent(domain.EventCreated, m), nil
}

// ChannelName implements domain.Source.
func (d *Discord) ChannelName(ctx context.Context, channelID string) (string, error) {
	if ch, err := d.session.State.Channel(channelID); err == nil {
		return ch.Name, nil
	}
	ch, err := d.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("discord fetch channel %s: %w", channelID, err)
	}
	if ch.Name == "" {
		return "", errors.New("channel has no name")
	}
	return ch.Name, nil
}

// OpenAttachment implements domain.Source by downloading the attachment.
func (d *Discord) OpenAttachment(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build attachment request: %w", err)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch attachment: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch attachment: HTTP %d", resp.StatusCode)
	}
	return resp.Body, nil
}
