// Package lifecycle tracks which symbols hold positions and when each was last traded.
package lifecycle

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ramihomecare1-commits/Scalper/internal/signal"
)

// DefaultCooldown is the minimum spacing between two admitted trades on one symbol.
const DefaultCooldown = 300 * time.Second

var (
	// ErrPositionOpen means the symbol already holds a tracked position.
	ErrPositionOpen = errors.New("position already open")
	// ErrPending means an order for the symbol is between Begin and Commit or Abort.
	ErrPending = errors.New("order in flight")
	// ErrCooldown means the symbol traded too recently.
	ErrCooldown = errors.New("cooldown active")
)

// Intent records an admitted trade.
type Intent struct {
	ID        string
	Symbol    string
	Action    signal.Action
	Entry     float64
	Stop      float64
	Target    float64
	CreatedAt time.Time
}

// Position is the exchange-reported view of one open position.
type Position struct {
	Symbol   string
	Side     string
	Size     float64
	AvgPrice float64
}

// Tracker admits at most one live trade per symbol and spaces admissions by the cooldown.
// The cooldown clock is independent of the open set: Reconcile and Release never reset it.
type Tracker struct {
	mu        sync.Mutex
	cooldown  time.Duration
	open      map[string]Intent
	pending   map[string]Intent
	lastTrade map[string]time.Time
}

// New builds a tracker. A negative cooldown falls back to DefaultCooldown and
// zero disables spacing.
func New(cooldown time.Duration) *Tracker {
	if cooldown < 0 {
		cooldown = DefaultCooldown
	}
	return &Tracker{
		cooldown:  cooldown,
		open:      make(map[string]Intent),
		pending:   make(map[string]Intent),
		lastTrade: make(map[string]time.Time),
	}
}

// Pending is a reservation on a symbol while its order is in flight.
// Exactly one of Commit or Abort takes effect.
type Pending struct {
	t      *Tracker
	intent Intent
	done   bool
}

// Intent returns the reserved trade.
func (p *Pending) Intent() Intent { return p.intent }

// Commit marks the position open and starts the cooldown at the reservation time.
func (p *Pending) Commit() {
	p.t.mu.Lock()
	defer p.t.mu.Unlock()
	if p.done {
		return
	}
	p.done = true
	delete(p.t.pending, p.intent.Symbol)
	p.t.open[p.intent.Symbol] = p.intent
	p.t.lastTrade[p.intent.Symbol] = p.intent.CreatedAt
}

// Abort drops the reservation without touching the cooldown.
func (p *Pending) Abort() {
	p.t.mu.Lock()
	defer p.t.mu.Unlock()
	if p.done {
		return
	}
	p.done = true
	delete(p.t.pending, p.intent.Symbol)
}

// Check reports why symbol could not be admitted at now, or nil.
func (t *Tracker) Check(symbol string, now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.checkLocked(symbol, now)
}

func (t *Tracker) checkLocked(symbol string, now time.Time) error {
	if _, ok := t.open[symbol]; ok {
		return ErrPositionOpen
	}
	if _, ok := t.pending[symbol]; ok {
		return ErrPending
	}
	if last, ok := t.lastTrade[symbol]; ok && now.Sub(last) < t.cooldown {
		return ErrCooldown
	}
	return nil
}

// Begin reserves symbol for d. The caller must Commit once execution confirms or Abort otherwise.
func (t *Tracker) Begin(symbol string, d *signal.Decision, now time.Time) (*Pending, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkLocked(symbol, now); err != nil {
		return nil, err
	}
	in := Intent{ID: uuid.NewString(), Symbol: symbol, CreatedAt: now}
	if d != nil {
		in.Action = d.Action
		in.Entry = deref(d.EntryPrice)
		in.Stop = deref(d.StopLoss)
		in.Target = deref(d.TakeProfit)
	}
	t.pending[symbol] = in
	return &Pending{t: t, intent: in}, nil
}

// Admit is Begin followed by an immediate Commit.
func (t *Tracker) Admit(symbol string, d *signal.Decision, now time.Time) bool {
	p, err := t.Begin(symbol, d, now)
	if err != nil {
		return false
	}
	p.Commit()
	return true
}

// Reconcile replaces the open set with the positions of non-zero size.
// It returns the symbols that were tracked open and are no longer reported.
func (t *Tracker) Reconcile(positions []Position) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	next := make(map[string]Intent, len(positions))
	for _, p := range positions {
		if p.Size == 0 || p.Symbol == "" {
			continue
		}
		if in, ok := t.open[p.Symbol]; ok {
			next[p.Symbol] = in
			continue
		}
		next[p.Symbol] = Intent{Symbol: p.Symbol, Entry: p.AvgPrice, Action: actionForSide(p.Side, p.Size)}
	}
	var closed []string
	for sym := range t.open {
		if _, ok := next[sym]; !ok {
			closed = append(closed, sym)
		}
	}
	sort.Strings(closed)
	t.open = next
	return closed
}

// Release forgets the open position on symbol.
func (t *Tracker) Release(symbol string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.open, symbol)
}

// IsOpen reports whether symbol is tracked as open.
func (t *Tracker) IsOpen(symbol string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.open[symbol]
	return ok
}

// Open lists the tracked open intents ordered by symbol.
func (t *Tracker) Open() []Intent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Intent, 0, len(t.open))
	for _, in := range t.open {
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func actionForSide(side string, size float64) signal.Action {
	switch side {
	case "long":
		return signal.Buy
	case "short":
		return signal.Sell
	}
	if size < 0 {
		return signal.Sell
	}
	return signal.Buy
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
