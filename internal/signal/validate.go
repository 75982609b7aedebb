package signal

import (
	"errors"
	"fmt"
	"strings"

	"relaybot/internal/domain"
)

// ErrInvalid marks a candidate that failed validation.
var ErrInvalid = errors.New("invalid signal")

// Candidate is the oracle's JSON reply decoded without coercion. Absent
// fields stay nil.
type Candidate struct {
	Symbol            *string   `json:"symbol"`
	Side              *string   `json:"side"`
	Entries           []float64 `json:"entries"`
	RiskPercent       *float64  `json:"riskPercent"`
	Leverage          *float64  `json:"leverage"`
	StopLoss          *float64  `json:"stopLoss"`
	StopLossCondition *string   `json:"stopLossCondition"`
	TakeProfit        *float64  `json:"takeProfit"`
	Quantity          *float64  `json:"quantity"`
	Confidence        *float64  `json:"confidence"`
	Reasoning         *string   `json:"reasoning"`
}

// Validate reports the first rule the candidate breaks, wrapped in ErrInvalid.
func Validate(c *Candidate) error {
	switch {
	case c.Symbol == nil || strings.TrimSpace(*c.Symbol) == "":
		return fmt.Errorf("%w: symbol is required", ErrInvalid)
	case c.Side == nil || (*c.Side != string(domain.SideBuy) && *c.Side != string(domain.SideSell)):
		return fmt.Errorf("%w: side must be Buy or Sell", ErrInvalid)
	case len(c.Entries) == 0:
		return fmt.Errorf("%w: at least one entry is required", ErrInvalid)
	}
	for i, e := range c.Entries {
		if e <= 0 {
			return fmt.Errorf("%w: entry %d must be positive", ErrInvalid, i)
		}
	}
	switch {
	case !inHalfOpen(c.RiskPercent, 100):
		return fmt.Errorf("%w: riskPercent must be in (0, 100]", ErrInvalid)
	case !inHalfOpen(c.Leverage, 100):
		return fmt.Errorf("%w: leverage must be in (0, 100]", ErrInvalid)
	case c.StopLoss == nil || *c.StopLoss <= 0:
		return fmt.Errorf("%w: stopLoss must be positive", ErrInvalid)
	case c.Confidence == nil || *c.Confidence < 0 || *c.Confidence > 1:
		return fmt.Errorf("%w: confidence must be in [0, 1]", ErrInvalid)
	}
	return nil
}

// Valid reports whether the candidate passes every validation rule.
func Valid(c *Candidate) bool {
	return Validate(c) == nil
}

func inHalfOpen(v *float64, upper float64) bool {
	return v != nil && *v > 0 && *v <= upper
}

// toSignal converts a validated candidate.
func (c *Candidate) toSignal() *domain.TradingSignal {
	s := &domain.TradingSignal{
		Symbol:      strings.TrimSpace(*c.Symbol),
		Side:        domain.Side(*c.Side),
		Entries:     append([]float64(nil), c.Entries...),
		RiskPercent: *c.RiskPercent,
		Leverage:    *c.Leverage,
		StopLoss:    *c.StopLoss,
		TakeProfit:  c.TakeProfit,
		Quantity:    c.Quantity,
		Confidence:  *c.Confidence,
	}
	if c.StopLossCondition != nil {
		s.StopLossCondition = strings.TrimSpace(*c.StopLossCondition)
	}
	if c.Reasoning != nil {
		s.Reasoning = *c.Reasoning
	}
	return s
}
