package relay

import (
	"context"
	"sync"
	"testing"

	"relaybot/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu    sync.Mutex
	texts []string
}

func (s *recordingSink) Observe(ctx context.Context, source, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, source+"|"+text)
}

func newTestPipeline(src *fakeSource, sender *recordingSender, sink SignalSink, filter FilterConfig) *Pipeline {
	return NewPipeline(PipelineConfig{
		Filter:      filter,
		Renderer:    newTestRenderer(src, nil),
		Batcher:     NewBatcher(BatcherConfig{Sender: sender, Logger: testLogger()}),
		SkipLog:     NewSkipLog(10, testLogger()),
		Signals:     sink,
		ShowUpdates: true,
		Logger:      testLogger(),
	})
}

func TestPipeline_RelaysAllowedEvent(t *testing.T) {
	sender := &recordingSender{}
	sink := &recordingSink{}
	p := newTestPipeline(&fakeSource{}, sender, sink, FilterConfig{AllowedChannels: []string{"c1"}})

	err := p.Handle(context.Background(), &domain.InboundEvent{Kind: domain.EventCreated, ChannelID: "c1", Text: "BTC long"})

	require.NoError(t, err)
	got := sender.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, []string{"BTC long"}, got[0].texts)
	assert.Equal(t, []string{"discord:c1|BTC long"}, sink.texts)
}

func TestPipeline_FilteredEventIsCountedNotSent(t *testing.T) {
	sender := &recordingSender{}
	p := newTestPipeline(&fakeSource{}, sender, nil, FilterConfig{AllowedChannels: []string{"c1"}})

	require.NoError(t, p.Handle(context.Background(), &domain.InboundEvent{Kind: domain.EventCreated, ChannelID: "other"}))

	assert.Empty(t, sender.snapshot())
	assert.Equal(t, 1, p.skips.Count("channel:other"))
}

func TestPipeline_RenderFailureDropsOnlyThatEvent(t *testing.T) {
	sender := &recordingSender{}
	p := newTestPipeline(&fakeSource{}, sender, nil, FilterConfig{})
	ctx := context.Background()

	err := p.Handle(ctx, &domain.InboundEvent{Kind: domain.EventCreated, ID: "bad", Text: "x", Reference: &domain.Reference{MessageID: "missing"}})
	assert.Error(t, err)

	require.NoError(t, p.Handle(ctx, &domain.InboundEvent{Kind: domain.EventCreated, ID: "good", Text: "fine"}))
	got := sender.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, []string{"fine"}, got[0].texts)
}

func TestPipeline_DeletionsIgnoredUnlessEnabled(t *testing.T) {
	sender := &recordingSender{}
	sink := &recordingSink{}
	p := newTestPipeline(&fakeSource{}, sender, sink, FilterConfig{})
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, &domain.InboundEvent{Kind: domain.EventDeleted, Text: "gone"}))
	assert.Empty(t, sender.snapshot())

	require.NoError(t, p.Handle(ctx, &domain.InboundEvent{Kind: domain.EventUpdated, Text: "edit"}))
	got := sender.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, []string{editedMarker + "\nedit"}, got[0].texts)
	assert.Empty(t, sink.texts, "only new messages are analyzed")
}
