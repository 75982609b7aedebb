package domain

import (
	"context"
	"time"
)

type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// TradingSignal is a validated, advisory trade instruction.
type TradingSignal struct {
	Symbol            string    `json:"symbol"`
	Side              Side      `json:"side"`
	Entries           []float64 `json:"entries"`
	RiskPercent       float64   `json:"riskPercent"`
	Leverage          float64   `json:"leverage"`
	StopLoss          float64   `json:"stopLoss"`
	StopLossCondition string    `json:"stopLossCondition,omitempty"`
	TakeProfit        *float64  `json:"takeProfit,omitempty"`
	Quantity          *float64  `json:"quantity,omitempty"`
	Confidence        float64   `json:"confidence"`
	Reasoning         string    `json:"reasoning"`
}

// SignalRecord is a journaled signal.
type SignalRecord struct {
	ID        string
	Source    string
	Signal    TradingSignal
	CreatedAt time.Time
}

// SignalJournal stores accepted signals.
type SignalJournal interface {
	Record(ctx context.Context, rec SignalRecord) error
	Recent(ctx context.Context, limit int) ([]SignalRecord, error)
	Close() error
}
