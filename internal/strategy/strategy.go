package strategy

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"pmintel/internal/config"
	"pmintel/internal/market"
	"pmintel/internal/news"
)

// Signal is the recommendation attached to a scored market.
type Signal string

const (
	Buy  Signal = "BUY"
	Sell Signal = "SELL"
	Hold Signal = "HOLD"
)

// Scored is a market record with the result of a policy. Estimated and Gap
// are nil when the policy does not produce them.
type Scored struct {
	market.Record
	Estimated *float64 `json:"estimated,omitempty"`
	Gap       *float64 `json:"gap,omitempty"`
	Signal    Signal   `json:"signal"`
	Strategy  string   `json:"strategy"`
	Reason    string   `json:"reason"`
}

// Input is everything a policy may look at during one refresh.
type Input struct {
	Markets []market.Record
	News    []news.Item
}

// Strategy scores a batch of markets. Implementations hold no state between
// calls: the same Input always yields the same output.
type Strategy interface {
	Name() string
	Evaluate(ctx context.Context, in Input) ([]Scored, error)
}

// New returns the policy named by cfg.Policy.
func New(cfg config.StrategyConfig) (Strategy, error) {
	switch cfg.Policy {
	case config.PolicyNewsBiased:
		return NewNewsBiased(cfg.NewsBiased), nil
	case config.PolicyProbabilityThreshold:
		return NewProbabilityThreshold(cfg.ProbabilityThreshold), nil
	case config.PolicyChangeThreshold:
		return NewChangeThreshold(cfg.ChangeThreshold), nil
	default:
		return nil, fmt.Errorf("unknown strategy policy %q", cfg.Policy)
	}
}

// Alerts returns the scored markets whose signal is not HOLD, in order.
func Alerts(scored []Scored) []Scored {
	alerts := []Scored{}
	for _, s := range scored {
		if s.Signal != Hold {
			alerts = append(alerts, s)
		}
	}
	return alerts
}

// Clamp bounds v to [0, 1].
func Clamp(v float64) float64 {
	f, _ := clampDecimal(decimal.NewFromFloat(v)).Float64()
	return f
}

// Round2 rounds v to two decimal places, half away from zero.
func Round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

var (
	zero = decimal.Zero
	one  = decimal.NewFromInt(1)
)

func clampDecimal(d decimal.Decimal) decimal.Decimal {
	if d.LessThan(zero) {
		return zero
	}
	if d.GreaterThan(one) {
		return one
	}
	return d
}

func floatPtr(d decimal.Decimal) *float64 {
	f, _ := d.Float64()
	return &f
}
