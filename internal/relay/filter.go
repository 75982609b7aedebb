package relay

import (
	"log/slog"
	"sync"

	"relaybot/internal/domain"
)

// FilterConfig decides which inbound events are relayed. Empty allow-lists
// allow everything; the deny list is checked last and always wins.
type FilterConfig struct {
	AllowedChannels []string
	AllowedAuthors  []string
	DeniedIDs       []string
	ExcludeBots     bool
}

// Reason explains a filter decision.
type Reason string

const (
	ReasonAllowed       Reason = "allowed"
	ReasonChannel       Reason = "channel_not_allowed"
	ReasonBot           Reason = "bot_author"
	ReasonAuthor        Reason = "author_not_allowed"
	ReasonDeniedAuthor  Reason = "author_denied"
	ReasonDeniedChannel Reason = "channel_denied"
)

// Verdict is the outcome of Evaluate. Key identifies the rejected channel or
// author for skip logging.
type Verdict struct {
	Allowed bool
	Reason  Reason
	Key     string
}

// Evaluate applies, in order, the channel allow-list, bot exclusion, the
// author allow-list and the deny list.
func Evaluate(ev *domain.InboundEvent, cfg FilterConfig) Verdict {
	if len(cfg.AllowedChannels) > 0 && !contains(cfg.AllowedChannels, ev.ChannelID) {
		return Verdict{Reason: ReasonChannel, Key: "channel:" + ev.ChannelID}
	}
	if cfg.ExcludeBots && ev.AuthorIsBot {
		return Verdict{Reason: ReasonBot, Key: "author:" + ev.AuthorID}
	}
	if len(cfg.AllowedAuthors) > 0 && !contains(cfg.AllowedAuthors, ev.AuthorID) {
		return Verdict{Reason: ReasonAuthor, Key: "author:" + ev.AuthorID}
	}
	if contains(cfg.DeniedIDs, ev.AuthorID) {
		return Verdict{Reason: ReasonDeniedAuthor, Key: "author:" + ev.AuthorID}
	}
	if contains(cfg.DeniedIDs, ev.ChannelID) {
		return Verdict{Reason: ReasonDeniedChannel, Key: "channel:" + ev.ChannelID}
	}
	return Verdict{Allowed: true, Reason: ReasonAllowed}
}

// Allowed reports whether ev passes the filter.
func Allowed(ev *domain.InboundEvent, cfg FilterConfig) bool {
	return Evaluate(ev, cfg).Allowed
}

func contains(list []string, id string) bool {
	if id == "" {
		return false
	}
	for _, s := range list {
		if s == id {
			return true
		}
	}
	return false
}

// SkipLog logs filter rejections at reduced frequency: the first rejection
// for a key and then every Nth.
type SkipLog struct {
	every  int
	mu     sync.Mutex
	counts map[string]int
	logger *slog.Logger
}

func NewSkipLog(every int, logger *slog.Logger) *SkipLog {
	if every < 1 {
		every = 1
	}
	return &SkipLog{every: every, counts: make(map[string]int), logger: logger}
}

// Record counts a rejection and reports whether it was logged.
func (s *SkipLog) Record(v Verdict) bool {
	s.mu.Lock()
	s.counts[v.Key]++
	n := s.counts[v.Key]
	s.mu.Unlock()

	if n != 1 && n%s.every != 0 {
		return false
	}
	s.logger.Info("skipping message", "key", v.Key, "reason", v.Reason, "skipped", n)
	return true
}

// Count returns how many rejections were recorded for key.
func (s *SkipLog) Count(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[key]
}
