package risk

import (
	"math"

	"github.com/ramihomecare1-commits/Scalper/internal/signal"
)

const (
	// DefaultConfidenceThreshold is the lowest confidence, in percent, that may trade.
	DefaultConfidenceThreshold = 75.0
	// DefaultMinRiskReward is the smallest reward to risk ratio that may trade.
	DefaultMinRiskReward = 1.5

	// ratioTolerance absorbs float error in prices such as 1.1/1.0/1.25.
	ratioTolerance = 1e-9
)

// Reason names the first rule a decision failed. Empty means accepted.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonNoDecision    Reason = "no_decision"
	ReasonHold          Reason = "hold"
	ReasonConfidence    Reason = "low_confidence"
	ReasonMissingPrices Reason = "missing_prices"
	ReasonZeroRisk      Reason = "zero_risk"
	ReasonRiskReward    Reason = "low_risk_reward"
)

// Gate holds the hard thresholds every candidate decision must clear.
type Gate struct {
	ConfidenceThreshold float64
	MinRiskReward       float64
}

// Verdict is the outcome of Validate.
type Verdict struct {
	Accepted   bool
	Reason     Reason
	Risk       float64
	Reward     float64
	RiskReward float64
}

// Validate applies the rules in order and stops at the first failure.
// It touches no clock, network or exchange state.
func (g Gate) Validate(d *signal.Decision) Verdict {
	if d == nil {
		return Verdict{Reason: ReasonNoDecision}
	}
	if d.Action != signal.Buy && d.Action != signal.Sell {
		return Verdict{Reason: ReasonHold}
	}
	if d.Confidence < g.ConfidenceThreshold {
		return Verdict{Reason: ReasonConfidence}
	}
	if !finite(d.EntryPrice) || !finite(d.StopLoss) || !finite(d.TakeProfit) {
		return Verdict{Reason: ReasonMissingPrices}
	}
	entry := *d.EntryPrice
	v := Verdict{
		Risk:   math.Abs(entry - *d.StopLoss),
		Reward: math.Abs(*d.TakeProfit - entry),
	}
	if v.Risk == 0 {
		v.Reason = ReasonZeroRisk
		return v
	}
	v.RiskReward = v.Reward / v.Risk
	if v.RiskReward < g.MinRiskReward-ratioTolerance {
		v.Reason = ReasonRiskReward
		return v
	}
	v.Accepted = true
	return v
}

func finite(p *float64) bool {
	return p != nil && !math.IsNaN(*p) && !math.IsInf(*p, 0)
}
