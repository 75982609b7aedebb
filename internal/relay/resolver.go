package relay

import (
	"context"
	"log/slog"
	"strings"

	"relaybot/internal/domain"
)

// ChannelNamer looks up a channel's display name.
type ChannelNamer interface {
	ChannelName(ctx context.Context, channelID string) (string, error)
}

// ResolveMentions rewrites mention tokens in text into readable names:
// <@id> and <@!id> become @displayName, <#id> becomes #name and <@&id>
// becomes @roleName. Only the first occurrence of each id is replaced.
// A failed channel lookup is logged and leaves the token as is.
func ResolveMentions(ctx context.Context, text string, m domain.Mentions, namer ChannelNamer, logger *slog.Logger) string {
	for _, u := range m.Users {
		text = strings.Replace(text, "<@"+u.ID+">", "@"+u.DisplayName, 1)
		text = strings.Replace(text, "<@!"+u.ID+">", "@"+u.DisplayName, 1)
	}

	for _, c := range m.Channels {
		token := "<#" + c.ID + ">"
		if !strings.Contains(text, token) {
			continue
		}
		name, err := namer.ChannelName(ctx, c.ID)
		if err != nil {
			logger.Warn("channel name lookup failed", "channel_id", c.ID, "err", err)
			continue
		}
		text = strings.Replace(text, token, "#"+name, 1)
	}

	for _, r := range m.Roles {
		text = strings.Replace(text, "<@&"+r.ID+">", "@"+r.Name, 1)
	}

	return text
}
