package risk

import (
	"testing"

	"github.com/ramihomecare1-commits/Scalper/internal/signal"
)

func TestQuantity(t *testing.T) {
	limits := Limits{PositionSizePercent: 2, Leverage: 3}
	if got := limits.Quantity(1000, 60); got != 1 {
		t.Fatalf("expected qty 1, got %v", got)
	}
	if got := limits.Quantity(0, 60); got != 0 {
		t.Fatalf("expected zero qty on empty equity, got %v", got)
	}
}

func TestAllowLoss(t *testing.T) {
	limits := Limits{MaxLossPercent: 1}
	if !limits.AllowLoss(1000, 100, 95, 2) {
		t.Fatalf("expected loss of 10 on 1000 equity to pass")
	}
	if limits.AllowLoss(1000, 100, 94, 2) {
		t.Fatalf("expected loss of 12 on 1000 equity to fail")
	}
}

func decision(action signal.Action, conf float64, entry, stop, target *float64) *signal.Decision {
	return &signal.Decision{Action: action, Confidence: conf, EntryPrice: entry, StopLoss: stop, TakeProfit: target}
}

func TestGateValidate(t *testing.T) {
	gate := Gate{ConfidenceThreshold: DefaultConfidenceThreshold, MinRiskReward: DefaultMinRiskReward}
	p := signal.Price
	cases := []struct {
		name string
		d    *signal.Decision
		want Reason
	}{
		{"nil", nil, ReasonNoDecision},
		{"hold wins over everything", decision(signal.Hold, 99, p(100), p(99), p(110)), ReasonHold},
		{"just under threshold", decision(signal.Buy, 74.999, p(100), p(99), p(110)), ReasonConfidence},
		{"threshold accepted", decision(signal.Buy, 75, p(100), p(99), p(110)), ReasonNone},
		{"missing stop", decision(signal.Buy, 80, p(100), nil, p(110)), ReasonMissingPrices},
		{"missing entry", decision(signal.Sell, 80, nil, p(101), p(90)), ReasonMissingPrices},
		{"zero risk", decision(signal.Buy, 80, p(100), p(100), p(110)), ReasonZeroRisk},
		{"ratio 1.49", decision(signal.Buy, 80, p(100), p(99), p(101.49)), ReasonRiskReward},
		{"ratio 1.5", decision(signal.Buy, 80, p(100), p(99), p(101.5)), ReasonNone},
		{"ratio 1.5 with float error", decision(signal.Buy, 80, p(1.1), p(1.0), p(1.25)), ReasonNone},
		{"short ratio 1.5 with float error", decision(signal.Sell, 80, p(1.1), p(1.2), p(0.95)), ReasonNone},
		{"short side", decision(signal.Sell, 90, p(100), p(101), p(97)), ReasonNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := gate.Validate(tc.d)
			if v.Reason != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, v.Reason)
			}
			if v.Accepted != (tc.want == ReasonNone) {
				t.Fatalf("accepted=%v for reason %q", v.Accepted, v.Reason)
			}
		})
	}
}
