package signal

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"

	"relaybot/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type mockOracle struct {
	reply string
	err   error
	calls int
}

func (m *mockOracle) Summarize(ctx context.Context, text string) (string, error) { return "", nil }

func (m *mockOracle) Extract(ctx context.Context, text string) (string, error) {
	m.calls++
	return m.reply, m.err
}

const validReply = `Here is the analysis:
{"symbol":"BTC","side":"Buy","entries":[119000,119500],"riskPercent":5,"leverage":10,
 "stopLoss":115000,"stopLossCondition":"4H close below","confidence":0.95,
 "reasoning":"Clear signal with {braces} in text"}
Hope this helps {not json}`

// --- Extractor ---

func TestExtract_ValidReply(t *testing.T) {
	oracle := &mockOracle{reply: validReply}
	e := NewExtractor(ExtractorConfig{Oracle: oracle, Logger: testLogger()})

	sig, err := e.Extract(context.Background(), "BTC\nEntries 119000-119500\nRisk 5%\nLeverage 10x")

	require.NoError(t, err)
	assert.Equal(t, "BTC", sig.Symbol)
	assert.Equal(t, domain.SideBuy, sig.Side)
	assert.Equal(t, []float64{119000, 119500}, sig.Entries)
	assert.Equal(t, 5.0, sig.RiskPercent)
	assert.Equal(t, 10.0, sig.Leverage)
	assert.Equal(t, 115000.0, sig.StopLoss)
	assert.Equal(t, "4H close below", sig.StopLossCondition)
	assert.Equal(t, "Clear signal with {braces} in text", sig.Reasoning)
	assert.Equal(t, 1, oracle.calls, "no retry")
}

func TestExtract_Failures(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		err   error
		want  error
	}{
		{name: "oracle error", err: errors.New("timeout"), want: ErrOracle},
		{name: "no braces", reply: "I could not find a signal.", want: ErrNoJSON},
		{name: "unbalanced", reply: `{"symbol": "BTC"`, want: ErrNoJSON},
		{name: "not json", reply: "{symbol: BTC}", want: ErrMalformed},
		{name: "string entries", reply: `{"symbol":"BTC","side":"Buy","entries":["119000"],"riskPercent":5,"leverage":10,"stopLoss":1,"confidence":1}`, want: ErrMalformed},
		{name: "hold side", reply: `{"symbol":"BTC","side":"Hold","entries":[1],"riskPercent":5,"leverage":10,"stopLoss":1,"confidence":1}`, want: ErrInvalid},
		{name: "missing stop loss", reply: `{"symbol":"BTC","side":"Sell","entries":[1],"riskPercent":5,"leverage":10,"confidence":1}`, want: ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewExtractor(ExtractorConfig{Oracle: &mockOracle{reply: tt.reply, err: tt.err}, Logger: testLogger()})
			sig, err := e.Extract(context.Background(), "text")
			assert.Nil(t, sig)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestExtract_DefaultLeverage(t *testing.T) {
	reply := `{"symbol":"SOL","side":"Buy","entries":[150],"riskPercent":5,"stopLoss":142.5,"confidence":0.8}`

	e := NewExtractor(ExtractorConfig{Oracle: &mockOracle{reply: reply}, DefaultLeverage: 10, Logger: testLogger()})
	sig, err := e.Extract(context.Background(), "SOL\nEntries 150\nRisk 5%")
	require.NoError(t, err)
	assert.Equal(t, 10.0, sig.Leverage)

	e = NewExtractor(ExtractorConfig{Oracle: &mockOracle{reply: reply}, Logger: testLogger()})
	_, err = e.Extract(context.Background(), "SOL\nEntries 150\nRisk 5%")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestFindJSONObject(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: `x {"a":1} y {"b":2}`, want: `{"a":1}`, ok: true},
		{in: `{"a":{"b":"}"}}`, want: `{"a":{"b":"}"}}`, ok: true},
		{in: `{"a":"\"}"} tail`, want: `{"a":"\"}"}`, ok: true},
		{in: `{ open {"a":1}`, want: `{"a":1}`, ok: true},
		{in: `none`, ok: false},
		{in: `}{`, ok: false},
	}
	for _, tt := range tests {
		got, ok := FindJSONObject(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

// --- Validate ---

func ptr[T any](v T) *T { return &v }

func validCandidate() *Candidate {
	return &Candidate{
		Symbol:      ptr("BTC"),
		Side:        ptr("Buy"),
		Entries:     []float64{119000, 119500},
		RiskPercent: ptr(5.0),
		Leverage:    ptr(10.0),
		StopLoss:    ptr(115000.0),
		Confidence:  ptr(0.95),
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Candidate)
		valid  bool
	}{
		{name: "fully valid", mutate: func(c *Candidate) {}, valid: true},
		{name: "side Hold", mutate: func(c *Candidate) { c.Side = ptr("Hold") }},
		{name: "side lowercase", mutate: func(c *Candidate) { c.Side = ptr("buy") }},
		{name: "empty symbol", mutate: func(c *Candidate) { c.Symbol = ptr(" ") }},
		{name: "no entries", mutate: func(c *Candidate) { c.Entries = nil }},
		{name: "zero entry", mutate: func(c *Candidate) { c.Entries = []float64{100, 0} }},
		{name: "risk zero", mutate: func(c *Candidate) { c.RiskPercent = ptr(0.0) }},
		{name: "risk 100", mutate: func(c *Candidate) { c.RiskPercent = ptr(100.0) }, valid: true},
		{name: "risk over 100", mutate: func(c *Candidate) { c.RiskPercent = ptr(100.5) }},
		{name: "leverage 150", mutate: func(c *Candidate) { c.Leverage = ptr(150.0) }},
		{name: "leverage missing", mutate: func(c *Candidate) { c.Leverage = nil }},
		{name: "stop loss missing", mutate: func(c *Candidate) { c.StopLoss = nil }},
		{name: "stop loss zero", mutate: func(c *Candidate) { c.StopLoss = ptr(0.0) }},
		{name: "confidence 1", mutate: func(c *Candidate) { c.Confidence = ptr(1.0) }, valid: true},
		{name: "confidence 0", mutate: func(c *Candidate) { c.Confidence = ptr(0.0) }, valid: true},
		{name: "confidence over 1", mutate: func(c *Candidate) { c.Confidence = ptr(1.2) }},
		{name: "confidence missing", mutate: func(c *Candidate) { c.Confidence = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validCandidate()
			tt.mutate(c)
			assert.Equal(t, tt.valid, Valid(c))
			if !tt.valid {
				assert.ErrorIs(t, Validate(c), ErrInvalid)
			}
		})
	}
}

// --- Format ---

func TestFormat_MultipleEntries(t *testing.T) {
	sig := &domain.TradingSignal{
		Symbol:      "BTC",
		Side:        domain.SideBuy,
		Entries:     []float64{119000, 119500},
		RiskPercent: 5,
		Leverage:    10,
		StopLoss:    115000,
		Confidence:  0.95,
		Reasoning:   "Clear setup",
	}

	got := Format(sig)

	assert.Contains(t, got, "*BTC*")
	assert.Contains(t, got, "*119000, 119500* (2 entries)")
	assert.Contains(t, got, "*5%*")
	assert.Contains(t, got, "Risk per Entry: *2.5%*")
	assert.Contains(t, got, "*10x*")
	assert.Contains(t, got, "Stop Loss: 115000\n")
	assert.Contains(t, got, "*95.0%*")
	assert.Contains(t, got, "💭 Clear setup")
}

func TestFormat_SingleEntryWithCondition(t *testing.T) {
	sig := &domain.TradingSignal{
		Symbol:            "AAVE.P",
		Side:              domain.SideSell,
		Entries:           []float64{286.72},
		RiskPercent:       1.5,
		Leverage:          20,
		StopLoss:          275.44,
		StopLossCondition: "4H close below",
		Confidence:        0.5,
	}

	got := Format(sig)

	assert.Contains(t, got, "*Sell* at *286.72*\n")
	assert.NotContains(t, got, "entries)")
	assert.Contains(t, got, "Stop Loss: 275.44 (4H close below)")
	assert.Contains(t, got, "Risk per Entry: *1.5%*")
	assert.Contains(t, got, "*50.0%*")
}

func TestFormat_DefaultStopLoss(t *testing.T) {
	sig := &domain.TradingSignal{Symbol: "SOL", Side: domain.SideBuy, Entries: []float64{150}, RiskPercent: 5, Leverage: 10}

	assert.Contains(t, Format(sig), "Stop Loss: $142.50 (default: 5% below entry)")
}

func TestFormat_EmptyEntriesDoesNotPanic(t *testing.T) {
	sig := &domain.TradingSignal{Symbol: "BTC", Side: domain.SideSell, RiskPercent: 4, Leverage: 5}

	var got string
	require.NotPanics(t, func() { got = Format(sig) })
	assert.Contains(t, got, "*Sell* at *n/a*")
	assert.Contains(t, got, "Risk per Entry: *4%*")
	assert.Contains(t, got, "Stop Loss: not set")
}

// --- Controller ---

type fakeBus struct {
	mu  sync.Mutex
	out []domain.OutboundMessage
	in  chan domain.InboundMessage
}

func newFakeBus() *fakeBus { return &fakeBus{in: make(chan domain.InboundMessage, 8)} }

func (b *fakeBus) Publish(msg domain.InboundMessage) bool       { b.in <- msg; return true }
func (b *fakeBus) Subscribe() <-chan domain.InboundMessage       { return b.in }
func (b *fakeBus) OnOutbound(string, func(domain.OutboundMessage)) {}
func (b *fakeBus) Close()                                        { close(b.in) }

func (b *fakeBus) SendOutbound(msg domain.OutboundMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.out = append(b.out, msg)
}

func (b *fakeBus) replies() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, m := range b.out {
		out = append(out, m.Content)
	}
	return out
}

type memJournal struct {
	recs []domain.SignalRecord
}

func (j *memJournal) Record(ctx context.Context, rec domain.SignalRecord) error {
	j.recs = append(j.recs, rec)
	return nil
}

func (j *memJournal) Recent(ctx context.Context, limit int) ([]domain.SignalRecord, error) {
	if limit > len(j.recs) {
		limit = len(j.recs)
	}
	return j.recs[:limit], nil
}

func (j *memJournal) Close() error { return nil }

func newTestController(oracle *mockOracle, journal domain.SignalJournal) (*Controller, *fakeBus) {
	bus := newFakeBus()
	c := NewController(ControllerConfig{
		Extractor: NewExtractor(ExtractorConfig{Oracle: oracle, Logger: testLogger()}),
		Journal:   journal,
		Bus:       bus,
		ChatID:    "42",
		Logger:    testLogger(),
	})
	return c, bus
}

func TestController_SignalIsReportedAndJournaled(t *testing.T) {
	journal := &memJournal{}
	c, bus := newTestController(&mockOracle{reply: validReply}, journal)

	c.Handle(context.Background(), domain.InboundMessage{ChatID: "42", Content: "BTC entries 119000-119500"})

	replies := bus.replies()
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "AI Trading Signal Analysis")
	require.Len(t, journal.recs, 1)
	assert.Equal(t, "telegram:42", journal.recs[0].Source)
	assert.NotEmpty(t, journal.recs[0].ID)
}

func TestController_IgnoresOtherChats(t *testing.T) {
	oracle := &mockOracle{reply: validReply}
	c, bus := newTestController(oracle, nil)

	c.Handle(context.Background(), domain.InboundMessage{ChatID: "7", Content: "/help"})

	assert.Empty(t, bus.replies())
	assert.Zero(t, oracle.calls)
}

func TestController_EnableDisable(t *testing.T) {
	oracle := &mockOracle{reply: validReply}
	c, bus := newTestController(oracle, nil)
	ctx := context.Background()

	c.Handle(ctx, domain.InboundMessage{ChatID: "42", Content: "/disable_trading"})
	assert.False(t, c.Enabled())

	c.Handle(ctx, domain.InboundMessage{ChatID: "42", Content: "BTC long"})
	c.Observe(ctx, "discord:1", "BTC long")
	assert.Zero(t, oracle.calls)

	c.Handle(ctx, domain.InboundMessage{ChatID: "42", Content: "/trading_status"})
	c.Handle(ctx, domain.InboundMessage{ChatID: "42", Content: "/enable_trading@relay_bot"})
	assert.True(t, c.Enabled())

	replies := bus.replies()
	require.Len(t, replies, 3)
	assert.Contains(t, replies[0], "disabled")
	assert.Contains(t, replies[1], "DISABLED")
	assert.Contains(t, replies[2], "enabled")
}

func TestController_UnknownCommandAndHelp(t *testing.T) {
	c, bus := newTestController(&mockOracle{}, nil)
	ctx := context.Background()

	c.Handle(ctx, domain.InboundMessage{ChatID: "42", Content: "/moon"})
	c.Handle(ctx, domain.InboundMessage{ChatID: "42", Content: "/help"})

	replies := bus.replies()
	require.Len(t, replies, 2)
	assert.Contains(t, replies[0], "Unknown command: /moon")
	assert.Contains(t, replies[1], "/signals")
}

func TestController_OracleFailureRepliesOnce(t *testing.T) {
	c, bus := newTestController(&mockOracle{err: errors.New("quota")}, nil)

	c.Handle(context.Background(), domain.InboundMessage{ChatID: "42", Content: "BTC long"})

	replies := bus.replies()
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "unavailable")
}

func TestController_NoSignalIsSilent(t *testing.T) {
	c, bus := newTestController(&mockOracle{reply: "nothing here"}, nil)

	c.Handle(context.Background(), domain.InboundMessage{ChatID: "42", Content: "gm everyone"})
	c.Observe(context.Background(), "discord:1", "gm")

	assert.Empty(t, bus.replies())
}

func TestController_RecentSignals(t *testing.T) {
	journal := &memJournal{}
	c, bus := newTestController(&mockOracle{reply: validReply}, journal)
	ctx := context.Background()

	c.Observe(ctx, "discord:9", "BTC entries")
	c.Handle(ctx, domain.InboundMessage{ChatID: "42", Content: "/signals 3"})

	replies := bus.replies()
	require.Len(t, replies, 2)
	assert.True(t, strings.Contains(replies[1], "BTC Buy x10 (discord:9)"), replies[1])
}

func TestController_RunStopsWhenBusCloses(t *testing.T) {
	c, bus := newTestController(&mockOracle{}, nil)
	bus.Publish(domain.InboundMessage{ChatID: "42", Content: "/help"})
	bus.Close()

	c.Run(context.Background())

	assert.Len(t, bus.replies(), 1)
}
