package domain

import (
	"context"
	"io"
	"time"
)

// EventKind classifies a source-platform message event.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventDeleted EventKind = "deleted"
)

// InboundEvent is a message observed on the source platform.
type InboundEvent struct {
	Kind        EventKind
	ID          string
	GuildID     string
	ChannelID   string
	AuthorID    string
	AuthorName  string
	AuthorIsBot bool
	Text        string
	Embeds      []Embed
	Attachments []Attachment
	Mentions    Mentions
	Reference   *Reference
	Timestamp   time.Time
}

type Embed struct {
	Title       string
	Description string
	URL         string
	ImageURL    string
}

type Attachment struct {
	ID          string
	Name        string
	URL         string
	ContentType string
	Size        int64
}

type UserMention struct {
	ID          string
	DisplayName string
}

type ChannelMention struct {
	ID string
}

type RoleMention struct {
	ID   string
	Name string
}

// Mentions holds the mention collections of a message, in message order.
type Mentions struct {
	Users    []UserMention
	Channels []ChannelMention
	Roles    []RoleMention
}

// Reference points at a replied-to message. Resolved is set when the source
// delivered the referenced message together with the event.
type Reference struct {
	ChannelID string
	MessageID string
	Resolved  *InboundEvent
}

// Source is the read side of the source platform used while rendering.
type Source interface {
	FetchMessage(ctx context.Context, channelID, messageID string) (*InboundEvent, error)
	ChannelName(ctx context.Context, channelID string) (string, error)
	OpenAttachment(ctx context.Context, url string) (io.ReadCloser, error)
}
