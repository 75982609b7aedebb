package relay

import (
	"context"
	"testing"

	"relaybot/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestResolveMentions_AllKinds(t *testing.T) {
	src := &fakeSource{channels: map[string]string{"c1": "signals"}}
	m := domain.Mentions{
		Users:    []domain.UserMention{{ID: "u1", DisplayName: "alice"}},
		Channels: []domain.ChannelMention{{ID: "c1"}},
		Roles:    []domain.RoleMention{{ID: "r1", Name: "traders"}},
	}

	got := ResolveMentions(context.Background(), "<@u1> see <#c1> <@&r1>", m, src, testLogger())

	assert.Equal(t, "@alice see #signals @traders", got)
}

func TestResolveMentions_FirstOccurrenceOnly(t *testing.T) {
	m := domain.Mentions{Users: []domain.UserMention{{ID: "u1", DisplayName: "alice"}}}

	got := ResolveMentions(context.Background(), "<@u1> and <@u1>", m, &fakeSource{}, testLogger())

	assert.Equal(t, "@alice and <@u1>", got)
}

func TestResolveMentions_NicknameForm(t *testing.T) {
	m := domain.Mentions{Users: []domain.UserMention{{ID: "u1", DisplayName: "alice"}}}

	got := ResolveMentions(context.Background(), "hey <@!u1>", m, &fakeSource{}, testLogger())

	assert.Equal(t, "hey @alice", got)
}

func TestResolveMentions_ChannelLookupFailureKeepsToken(t *testing.T) {
	m := domain.Mentions{Channels: []domain.ChannelMention{{ID: "hidden"}}}

	got := ResolveMentions(context.Background(), "go to <#hidden>", m, &fakeSource{}, testLogger())

	assert.Equal(t, "go to <#hidden>", got)
}

func TestResolveMentions_NoMentions(t *testing.T) {
	got := ResolveMentions(context.Background(), "plain <@u9>", domain.Mentions{}, &fakeSource{}, testLogger())
	assert.Equal(t, "plain <@u9>", got)
}
