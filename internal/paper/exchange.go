package paper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ramihomecare1-commits/Scalper/internal/exchange"
	"github.com/ramihomecare1-commits/Scalper/internal/execution"
)

type bracket struct {
	long   bool
	stop   float64
	target float64
}

// Exchange is a dry-run venue. Limit entries fill immediately at their price and
// attached stop/target orders fire when Mark crosses them.
type Exchange struct {
	account   *Account
	recorders []FillRecorder
	slippage  float64
	log       zerolog.Logger
	now       func() time.Time

	mu       sync.Mutex
	leverage map[string]float64
	brackets map[string]bracket
	marks    map[string]float64
	seq      int
}

// NewExchange wraps account. slippageBps worsens every triggered exit price.
func NewExchange(account *Account, slippageBps float64, log zerolog.Logger, recorders ...FillRecorder) *Exchange {
	return &Exchange{
		account:   account,
		recorders: recorders,
		slippage:  slippageBps / 10_000,
		log:       log.With().Str("venue", "paper").Logger(),
		now:       time.Now,
		leverage:  make(map[string]float64),
		brackets:  make(map[string]bracket),
		marks:     make(map[string]float64),
	}
}

// Balance returns account equity marked at the latest prices.
func (x *Exchange) Balance(ctx context.Context, _ string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return x.account.Snapshot(x.markPrices()).Equity, nil
}

// Positions lists open paper positions in exchange form.
func (x *Exchange) Positions(ctx context.Context, _ string) ([]exchange.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap := x.account.Snapshot(x.markPrices())
	out := make([]exchange.Position, 0, len(snap.Positions))
	for _, p := range snap.Sorted() {
		side := "long"
		if p.Qty < 0 {
			side = "short"
		}
		out = append(out, exchange.Position{
			InstID:        p.Symbol,
			Side:          side,
			Size:          p.Qty,
			AvgPrice:      p.AvgCost,
			UnrealizedPnL: p.Unrealized,
			Leverage:      x.leverageFor(p.Symbol),
		})
	}
	return out, nil
}

// SetLeverage records the leverage used for margin on the next entries of instID.
func (x *Exchange) SetLeverage(ctx context.Context, instID string, lever float64, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if lever <= 0 {
		return fmt.Errorf("%w: leverage %.2f", ErrInvalidOrder, lever)
	}
	x.mu.Lock()
	x.leverage[instID] = lever
	x.mu.Unlock()
	return nil
}

// PlaceOrder fills the entry at its limit price and arms the attached bracket.
func (x *Exchange) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return exchange.OrderResult{}, err
	}
	side := strings.ToLower(req.Side)
	if _, err := x.account.Apply(req.InstID, side, req.Size, req.Price, x.leverageFor(req.InstID)); err != nil {
		return exchange.OrderResult{}, fmt.Errorf("paper %s %s: %w", side, req.InstID, err)
	}

	x.mu.Lock()
	x.seq++
	orderID := fmt.Sprintf("paper-%d", x.seq)
	if req.StopLoss > 0 || req.TakeProfit > 0 {
		x.brackets[req.InstID] = bracket{long: side == "buy", stop: req.StopLoss, target: req.TakeProfit}
	}
	if _, ok := x.marks[req.InstID]; !ok {
		x.marks[req.InstID] = req.Price
	}
	x.mu.Unlock()

	clientID := req.ClientID
	if clientID == "" {
		clientID = exchange.NewClientOrderID()
	}
	x.record(execution.Fill{
		OrderID: orderID, ClientID: clientID, Symbol: req.InstID, Side: side,
		Qty: req.Size, Price: req.Price, StopLoss: req.StopLoss, TakeProfit: req.TakeProfit,
		DryRun: true, Time: x.now(),
	})
	return exchange.OrderResult{
		OrderID:  orderID,
		ClientID: clientID,
		Size:     decimal.NewFromFloat(req.Size).String(),
		Price:    decimal.NewFromFloat(req.Price).String(),
	}, nil
}

// Mark updates the last price for symbol and closes the position when its stop
// or target is crossed. It reports whether a close happened.
func (x *Exchange) Mark(symbol string, price float64) bool {
	if price <= 0 {
		return false
	}
	x.mu.Lock()
	x.marks[symbol] = price
	b, armed := x.brackets[symbol]
	x.mu.Unlock()
	if !armed {
		return false
	}

	qty := x.account.Position(symbol)
	if qty == 0 {
		x.disarm(symbol)
		return false
	}

	var trigger float64
	var reason string
	switch {
	case b.long && b.stop > 0 && price <= b.stop:
		trigger, reason = b.stop, "stop_loss"
	case b.long && b.target > 0 && price >= b.target:
		trigger, reason = b.target, "take_profit"
	case !b.long && b.stop > 0 && price >= b.stop:
		trigger, reason = b.stop, "stop_loss"
	case !b.long && b.target > 0 && price <= b.target:
		trigger, reason = b.target, "take_profit"
	default:
		return false
	}

	side, exit := "sell", trigger*(1-x.slippage)
	if qty < 0 {
		side, exit = "buy", trigger*(1+x.slippage)
		qty = -qty
	}
	realized, err := x.account.Apply(symbol, side, qty, exit, x.leverageFor(symbol))
	if err != nil {
		x.log.Error().Err(err).Str("symbol", symbol).Msg("paper bracket close failed")
		return false
	}
	x.disarm(symbol)

	x.mu.Lock()
	x.seq++
	orderID := fmt.Sprintf("paper-%d", x.seq)
	x.mu.Unlock()
	x.record(execution.Fill{OrderID: orderID, Symbol: symbol, Side: side, Qty: qty, Price: exit, DryRun: true, Time: x.now()})
	x.log.Info().Str("symbol", symbol).Str("reason", reason).Float64("px", exit).Float64("pnl", realized).Msg("paper position closed")
	return true
}

// Account exposes the simulated account for status reporting.
func (x *Exchange) Account() *Account { return x.account }

func (x *Exchange) disarm(symbol string) {
	x.mu.Lock()
	delete(x.brackets, symbol)
	x.mu.Unlock()
}

func (x *Exchange) leverageFor(symbol string) float64 {
	x.mu.Lock()
	defer x.mu.Unlock()
	if lev, ok := x.leverage[symbol]; ok {
		return lev
	}
	return 1
}

func (x *Exchange) markPrices() map[string]float64 {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make(map[string]float64, len(x.marks))
	for k, v := range x.marks {
		out[k] = v
	}
	return out
}

func (x *Exchange) record(fill execution.Fill) {
	for _, r := range x.recorders {
		r.Record(fill)
	}
}
