package signal

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"relaybot/internal/domain"
)

// Format renders the human-readable report for s. It never fails; a signal
// without entries is reported with placeholders.
func Format(s *domain.TradingSignal) string {
	var b strings.Builder

	b.WriteString("🤖 *AI Trading Signal Analysis*\n\n")
	fmt.Fprintf(&b, "📊 *%s*\n", s.Symbol)

	entries := make([]string, len(s.Entries))
	for i, e := range s.Entries {
		entries[i] = num(e)
	}
	switch len(entries) {
	case 0:
		fmt.Fprintf(&b, "📈 *%s* at *n/a*\n", s.Side)
	case 1:
		fmt.Fprintf(&b, "📈 *%s* at *%s*\n", s.Side, entries[0])
	default:
		fmt.Fprintf(&b, "📈 *%s* at *%s* (%d entries)\n", s.Side, strings.Join(entries, ", "), len(entries))
	}

	perEntry := s.RiskPercent
	if len(entries) > 0 {
		perEntry /= float64(len(entries))
	}
	fmt.Fprintf(&b, "💰 Risk: *%s%%* of balance\n", num(s.RiskPercent))
	fmt.Fprintf(&b, "📊 Risk per Entry: *%s%%*\n", num(perEntry))
	fmt.Fprintf(&b, "⚡ Leverage: *%sx*\n", num(s.Leverage))
	fmt.Fprintf(&b, "🛑 Stop Loss: %s\n", stopLossText(s))
	if s.TakeProfit != nil {
		fmt.Fprintf(&b, "🎯 Take Profit: %s\n", num(*s.TakeProfit))
	}
	fmt.Fprintf(&b, "🔥 Confidence: *%.1f%%*\n", s.Confidence*100)
	if s.Reasoning != "" {
		fmt.Fprintf(&b, "💭 %s\n", s.Reasoning)
	}
	b.WriteString("\n⚠️ Analysis only. No orders are placed.")

	return b.String()
}

func stopLossText(s *domain.TradingSignal) string {
	if s.StopLoss > 0 {
		if s.StopLossCondition != "" {
			return fmt.Sprintf("%s (%s)", num(s.StopLoss), s.StopLossCondition)
		}
		return num(s.StopLoss)
	}
	if len(s.Entries) == 0 {
		return "not set"
	}
	return fmt.Sprintf("$%.2f (default: 5%% below entry)", s.Entries[0]*0.95)
}

// num prints v rounded to six decimals without trailing zeros.
func num(v float64) string {
	return strconv.FormatFloat(math.Round(v*1e6)/1e6, 'f', -1, 64)
}
