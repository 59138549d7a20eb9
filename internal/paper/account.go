// Package paper simulates a margin account so the bot can run end to end without touching a venue.
package paper

import (
	"errors"
	"math"
	"sort"
	"sync"

	"github.com/ramihomecare1-commits/Scalper/internal/execution"
)

// FillRecorder captures paper fills for later inspection.
type FillRecorder interface {
	Record(execution.Fill)
}

const epsilon = 1e-9

var (
	ErrInvalidOrder       = errors.New("invalid paper order")
	ErrInsufficientMargin = errors.New("insufficient margin")
)

type positionState struct {
	Qty     float64 // signed: negative is short
	AvgCost float64
	Margin  float64
}

// Account tracks wallet balance, realized PnL, margin and signed per-symbol positions.
type Account struct {
	mu           sync.Mutex
	startingCash float64
	cash         float64
	realizedPnL  float64
	positions    map[string]positionState
}

// PositionSnapshot exposes a read-only view of a single symbol position.
type PositionSnapshot struct {
	Symbol     string
	Qty        float64
	AvgCost    float64
	Margin     float64
	Unrealized float64
}

// Snapshot is a consistent view of the account, marked to market with the supplied prices.
type Snapshot struct {
	Cash        float64
	RealizedPnL float64
	UsedMargin  float64
	Equity      float64
	Positions   map[string]PositionSnapshot
}

// NewAccount constructs an account populated with starting cash.
func NewAccount(startingCash float64) *Account {
	return &Account{
		startingCash: startingCash,
		cash:         startingCash,
		positions:    make(map[string]positionState),
	}
}

// StartingCash returns the initial bankroll.
func (a *Account) StartingCash() float64 { return a.startingCash }

// Apply executes side/qty at price. Orders against an existing position reduce it
// first and realize PnL; any remainder opens in the new direction and must be
// covered by free margin at the given leverage.
func (a *Account) Apply(symbol, side string, qty, price, leverage float64) (float64, error) {
	if qty <= 0 || price <= 0 || math.IsNaN(qty) || math.IsNaN(price) {
		return 0, ErrInvalidOrder
	}
	var dir float64
	switch side {
	case "buy":
		dir = 1
	case "sell":
		dir = -1
	default:
		return 0, ErrInvalidOrder
	}
	if leverage <= 0 {
		leverage = 1
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	state := a.positions[symbol]
	others := a.usedMarginLocked() - state.Margin
	cash := a.cash
	var realized float64
	remaining := qty

	if state.Qty*dir < 0 {
		held := math.Abs(state.Qty)
		closing := math.Min(held, remaining)
		realized = (price - state.AvgCost) * closing * sign(state.Qty)
		state.Margin -= state.Margin * closing / held
		state.Qty += closing * dir
		remaining -= closing
		cash += realized
		if math.Abs(state.Qty) <= epsilon {
			state = positionState{}
		}
	}

	if remaining > epsilon {
		required := remaining * price / leverage
		if required > cash-others-state.Margin+epsilon {
			return 0, ErrInsufficientMargin
		}
		held := math.Abs(state.Qty)
		state.AvgCost = (held*state.AvgCost + remaining*price) / (held + remaining)
		state.Qty += remaining * dir
		state.Margin += required
	}

	a.cash = cash
	a.realizedPnL += realized
	a.store(symbol, state)
	return realized, nil
}

func (a *Account) store(symbol string, state positionState) {
	if math.Abs(state.Qty) <= epsilon {
		delete(a.positions, symbol)
		return
	}
	a.positions[symbol] = state
}

func (a *Account) usedMarginLocked() float64 {
	var used float64
	for _, p := range a.positions {
		used += p.Margin
	}
	return used
}

// Snapshot returns a copy of balances. Positions without a mark carry zero unrealized PnL.
func (a *Account) Snapshot(prices map[string]float64) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	positions := make(map[string]PositionSnapshot, len(a.positions))
	equity := a.cash
	for sym, pos := range a.positions {
		var unrealized float64
		if mark := prices[sym]; mark > 0 {
			unrealized = (mark - pos.AvgCost) * pos.Qty
		}
		positions[sym] = PositionSnapshot{
			Symbol:     sym,
			Qty:        pos.Qty,
			AvgCost:    pos.AvgCost,
			Margin:     pos.Margin,
			Unrealized: unrealized,
		}
		equity += unrealized
	}
	return Snapshot{
		Cash:        a.cash,
		RealizedPnL: a.realizedPnL,
		UsedMargin:  a.usedMarginLocked(),
		Equity:      equity,
		Positions:   positions,
	}
}

// Sorted lists the snapshot positions ordered by symbol.
func (s Snapshot) Sorted() []PositionSnapshot {
	out := make([]PositionSnapshot, 0, len(s.Positions))
	for _, p := range s.Positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Position returns the signed position size for the supplied symbol.
func (a *Account) Position(symbol string) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.positions[symbol].Qty
}

// RealizedPnL returns total closed-trade profit and loss.
func (a *Account) RealizedPnL() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.realizedPnL
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
