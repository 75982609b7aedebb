package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"relaybot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeSource serves messages and channel names from maps.
type fakeSource struct {
	mu       sync.Mutex
	messages map[string]*domain.InboundEvent
	channels map[string]string
	fetches  int
	opened   []string
}

func (f *fakeSource) FetchMessage(ctx context.Context, channelID, messageID string) (*domain.InboundEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	ev, ok := f.messages[messageID]
	if !ok {
		return nil, errors.New("unknown message")
	}
	return ev, nil
}

func (f *fakeSource) ChannelName(ctx context.Context, channelID string) (string, error) {
	name, ok := f.channels[channelID]
	if !ok {
		return "", errors.New("missing access")
	}
	return name, nil
}

func (f *fakeSource) OpenAttachment(ctx context.Context, url string) (io.ReadCloser, error) {
	f.mu.Lock()
	f.opened = append(f.opened, url)
	f.mu.Unlock()
	return io.NopCloser(strings.NewReader("blob:" + url)), nil
}

// recordingSender keeps every batch it is handed.
type recordingSender struct {
	mu      sync.Mutex
	batches []batch
	err     error
}

type batch struct {
	texts []string
	media []domain.MediaItem
}

func (s *recordingSender) Name() string { return "recording" }

func (s *recordingSender) Send(ctx context.Context, texts []string, media []domain.MediaItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, batch{texts: texts, media: media})
	return s.err
}

func (s *recordingSender) snapshot() []batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]batch(nil), s.batches...)
}

// suffixAnnotator appends the raw text it was given.
type suffixAnnotator struct{ raws []string }

func (a *suffixAnnotator) Annotate(ctx context.Context, rendered, raw string) string {
	a.raws = append(a.raws, raw)
	return rendered + "\n[annotated]"
}
