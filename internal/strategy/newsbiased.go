package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"pmintel/internal/config"
)

// minTokenLen is the shortest market-name word used by the matched scope.
const minTokenLen = 4

// NewsBiased estimates a probability from headline keywords and compares it
// with each market's reference probability.
//
// With the default "all" scope every headline counts toward one estimate
// shared by the whole batch. The "matched" scope builds a separate estimate
// per market from headlines sharing a word with the market name.
type NewsBiased struct {
	base      decimal.Decimal
	threshold decimal.Decimal
	scope     string
	rules     []keywordRule
}

type keywordRule struct {
	terms []string
	delta decimal.Decimal
}

func NewNewsBiased(cfg config.NewsBiasedConfig) *NewsBiased {
	rules := make([]keywordRule, 0, len(cfg.Keywords))
	for _, k := range cfg.Keywords {
		terms := make([]string, 0, len(k.Terms))
		for _, t := range k.Terms {
			if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
				terms = append(terms, t)
			}
		}
		rules = append(rules, keywordRule{terms: terms, delta: decimal.NewFromFloat(k.Delta)})
	}

	scope := cfg.Scope
	if scope == "" {
		scope = config.ScopeAll
	}

	return &NewsBiased{
		base:      decimal.NewFromFloat(cfg.BaseProbability),
		threshold: decimal.NewFromFloat(cfg.GapThreshold),
		scope:     scope,
		rules:     rules,
	}
}

func (n *NewsBiased) Name() string { return config.PolicyNewsBiased }

func (n *NewsBiased) Evaluate(_ context.Context, in Input) ([]Scored, error) {
	titles := make([]string, len(in.News))
	for i, item := range in.News {
		titles[i] = item.Title
	}

	shared := n.estimate(titles)
	scored := make([]Scored, 0, len(in.Markets))
	alerts := 0

	for _, m := range in.Markets {
		est, used := shared, len(titles)
		if n.scope == config.ScopeMatched {
			relevant := matchingTitles(m.Name, titles)
			est, used = n.estimate(relevant), len(relevant)
		}

		gap := est.Sub(decimal.NewFromFloat(m.Reference))
		sig := n.classify(gap)
		if sig != Hold {
			alerts++
		}

		scored = append(scored, Scored{
			Record:    m,
			Estimated: floatPtr(est),
			Gap:       floatPtr(gap),
			Signal:    sig,
			Strategy:  n.Name(),
			Reason: fmt.Sprintf("estimated %s from %d headlines vs market %s, gap %s",
				est.StringFixed(2), used, decimal.NewFromFloat(m.Reference).String(), gap.StringFixed(2)),
		})
	}

	slog.Info("news-biased evaluation complete",
		"markets", len(scored), "headlines", len(titles), "alerts", alerts, "scope", n.scope)
	return scored, nil
}

// Estimate returns the clamped, two-decimal estimate for a set of titles.
func (n *NewsBiased) Estimate(titles []string) float64 {
	f, _ := n.estimate(titles).Float64()
	return f
}

func (n *NewsBiased) estimate(titles []string) decimal.Decimal {
	score := decimal.Zero
	for _, title := range titles {
		lower := strings.ToLower(title)
		for _, r := range n.rules {
			if r.matches(lower) {
				score = score.Add(r.delta)
			}
		}
	}
	return clampDecimal(n.base.Add(score)).Round(2)
}

func (r keywordRule) matches(lowerTitle string) bool {
	for _, t := range r.terms {
		if strings.Contains(lowerTitle, t) {
			return true
		}
	}
	return false
}

func (n *NewsBiased) classify(gap decimal.Decimal) Signal {
	switch {
	case gap.GreaterThan(n.threshold):
		return Buy
	case gap.LessThan(n.threshold.Neg()):
		return Sell
	default:
		return Hold
	}
}

// matchingTitles keeps titles sharing at least one significant word with name.
func matchingTitles(name string, titles []string) []string {
	words := make(map[string]struct{})
	for _, w := range tokens(name) {
		if len(w) >= minTokenLen {
			words[w] = struct{}{}
		}
	}
	if len(words) == 0 {
		return nil
	}

	var matched []string
	for _, title := range titles {
		for _, w := range tokens(title) {
			if _, ok := words[w]; ok {
				matched = append(matched, title)
				break
			}
		}
	}
	return matched
}

func tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
