package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"pmintel/internal/config"
)

// ProbabilityThreshold classifies a market by its reference probability
// alone. Both cutoffs are inclusive.
type ProbabilityThreshold struct {
	cfg config.ProbabilityThresholdConfig
}

func NewProbabilityThreshold(cfg config.ProbabilityThresholdConfig) *ProbabilityThreshold {
	return &ProbabilityThreshold{cfg: cfg}
}

func (p *ProbabilityThreshold) Name() string { return config.PolicyProbabilityThreshold }

func (p *ProbabilityThreshold) Evaluate(_ context.Context, in Input) ([]Scored, error) {
	scored := make([]Scored, 0, len(in.Markets))
	for _, m := range in.Markets {
		est := clampDecimal(decimal.NewFromFloat(m.Reference))

		sig := Hold
		reason := fmt.Sprintf("probability %s between %.2f and %.2f", est.String(), p.cfg.SellAt, p.cfg.BuyAt)
		switch {
		case m.Reference >= p.cfg.BuyAt:
			sig = Buy
			reason = fmt.Sprintf("probability %s at or above %.2f", est.String(), p.cfg.BuyAt)
		case m.Reference <= p.cfg.SellAt:
			sig = Sell
			reason = fmt.Sprintf("probability %s at or below %.2f", est.String(), p.cfg.SellAt)
		}

		scored = append(scored, Scored{
			Record:    m,
			Estimated: floatPtr(est),
			Signal:    sig,
			Strategy:  p.Name(),
			Reason:    reason,
		})
	}

	slog.Info("probability threshold evaluation complete", "markets", len(scored))
	return scored, nil
}

// ChangeThreshold classifies a market by its 24h percentage change. Both
// cutoffs are strict; a record without a change is HOLD.
type ChangeThreshold struct {
	cfg config.ChangeThresholdConfig
}

func NewChangeThreshold(cfg config.ChangeThresholdConfig) *ChangeThreshold {
	return &ChangeThreshold{cfg: cfg}
}

func (c *ChangeThreshold) Name() string { return config.PolicyChangeThreshold }

func (c *ChangeThreshold) Evaluate(_ context.Context, in Input) ([]Scored, error) {
	scored := make([]Scored, 0, len(in.Markets))
	missing := 0
	for _, m := range in.Markets {
		s := Scored{Record: m, Signal: Hold, Strategy: c.Name()}

		switch {
		case m.Change24h == nil:
			missing++
			s.Reason = "no 24h change reported"
		case *m.Change24h > c.cfg.BuyAbove:
			s.Signal = Buy
			s.Reason = fmt.Sprintf("24h change %.2f%% above %.2f%%", *m.Change24h, c.cfg.BuyAbove)
		case *m.Change24h < c.cfg.SellBelow:
			s.Signal = Sell
			s.Reason = fmt.Sprintf("24h change %.2f%% below %.2f%%", *m.Change24h, c.cfg.SellBelow)
		default:
			s.Reason = fmt.Sprintf("24h change %.2f%% within %.2f%% to %.2f%%", *m.Change24h, c.cfg.SellBelow, c.cfg.BuyAbove)
		}

		scored = append(scored, s)
	}

	if missing > 0 {
		slog.Warn("markets without 24h change", "count", missing)
	}
	slog.Info("change threshold evaluation complete", "markets", len(scored))
	return scored, nil
}
