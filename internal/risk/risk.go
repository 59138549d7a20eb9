// Package risk holds the decision gate and the position sizing limits.
package risk

import "math"

// Limits caps how much equity one trade may commit and lose.
type Limits struct {
	PositionSizePercent float64
	Leverage            float64
	MaxLossPercent      float64
}

// Quantity is the base-currency size for equity*pct*leverage at entry.
func (l Limits) Quantity(equity, entry float64) float64 {
	if equity <= 0 || entry <= 0 || l.PositionSizePercent <= 0 {
		return 0
	}
	lev := l.Leverage
	if lev <= 0 {
		lev = 1
	}
	return equity * l.PositionSizePercent / 100 * lev / entry
}

// AllowLoss reports whether hitting stop with qty stays within the max loss budget.
func (l Limits) AllowLoss(equity, entry, stop, qty float64) bool {
	if l.MaxLossPercent <= 0 {
		return true
	}
	return math.Abs(entry-stop)*qty <= equity*l.MaxLossPercent/100
}
