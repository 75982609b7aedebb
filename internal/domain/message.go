package domain

import "time"

// InboundMessage is a message received on a command-capable channel.
type InboundMessage struct {
	Channel   string
	ChatID    string
	SenderID  string
	Content   string
	IsCommand bool
	Timestamp time.Time
}

type OutboundMessage struct {
	Channel string
	ChatID  string
	Content string
	Format  string // text | markdown
}
