// Package execution turns an admitted trade intent into an order on a venue.
package execution

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ramihomecare1-commits/Scalper/internal/exchange"
	"github.com/ramihomecare1-commits/Scalper/internal/lifecycle"
	"github.com/ramihomecare1-commits/Scalper/internal/metrics"
	"github.com/ramihomecare1-commits/Scalper/internal/risk"
)

var (
	// ErrNoEquity means the account reported zero or negative equity.
	ErrNoEquity = errors.New("no equity available")
	// ErrSize means the computed quantity was not positive.
	ErrSize = errors.New("position size is zero")
	// ErrMaxLoss means the stop distance would lose more than the allowed share of equity.
	ErrMaxLoss = errors.New("max loss per trade exceeded")
)

// Trader is the venue surface the executor needs. The OKX client and the paper exchange satisfy it.
type Trader interface {
	Balance(ctx context.Context, ccy string) (float64, error)
	Positions(ctx context.Context, instType string) ([]exchange.Position, error)
	SetLeverage(ctx context.Context, instID string, lever float64, mgnMode string) error
	PlaceOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error)
}

// Canceler is implemented by venues that can withdraw an order by client id.
type Canceler interface {
	CancelOrder(ctx context.Context, instID, clientID string) error
}

const cancelTimeout = 5 * time.Second

// Fill is a confirmed order placement.
type Fill struct {
	IntentID   string    `json:"intent_id"`
	OrderID    string    `json:"order_id"`
	ClientID   string    `json:"client_id"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Qty        float64   `json:"qty"`
	Price      float64   `json:"price"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	Equity     float64   `json:"equity"`
	DryRun     bool      `json:"dry_run"`
	Time       time.Time `json:"time"`
}

// Config holds sizing and margin settings.
type Config struct {
	Limits     risk.Limits
	MarginMode string
	SettleCcy  string
	DryRun     bool
}

// Executor sizes and places orders through a Trader.
type Executor struct {
	trader Trader
	cfg    Config
	log    zerolog.Logger
	now    func() time.Time
}

// NewExecutor wires a Trader with sizing limits.
func NewExecutor(trader Trader, cfg Config, log zerolog.Logger) *Executor {
	if cfg.MarginMode == "" {
		cfg.MarginMode = "cross"
	}
	if cfg.SettleCcy == "" {
		cfg.SettleCcy = "USDT"
	}
	return &Executor{trader: trader, cfg: cfg, log: log, now: time.Now}
}

// Execute reads equity, sizes the trade, enforces the max loss budget, sets leverage
// and places a limit order with attached stop and target. A Fill is returned only
// when the venue accepted the order.
func (e *Executor) Execute(ctx context.Context, intent lifecycle.Intent) (Fill, error) {
	side := intent.Action.Side()
	if side == "" {
		return Fill{}, fmt.Errorf("execute %s: action %s is not tradable", intent.Symbol, intent.Action)
	}
	fill, err := e.execute(ctx, intent, side)
	result := "ok"
	if err != nil {
		result = "error"
		e.log.Warn().Err(err).Str("symbol", intent.Symbol).Str("side", side).Str("reason", "execution_failed").Msg("order not placed")
	}
	metrics.OrdersTotal.WithLabelValues(intent.Symbol, side, result).Inc()
	return fill, err
}

func (e *Executor) execute(ctx context.Context, intent lifecycle.Intent, side string) (Fill, error) {
	equity, err := e.trader.Balance(ctx, e.cfg.SettleCcy)
	if err != nil {
		return Fill{}, fmt.Errorf("balance: %w", err)
	}
	if equity <= 0 {
		return Fill{}, ErrNoEquity
	}
	qty := e.cfg.Limits.Quantity(equity, intent.Entry)
	if qty <= 0 {
		return Fill{}, ErrSize
	}
	if !e.cfg.Limits.AllowLoss(equity, intent.Entry, intent.Stop, qty) {
		return Fill{}, fmt.Errorf("%w: risk %.4f on equity %.2f", ErrMaxLoss, math.Abs(intent.Entry-intent.Stop)*qty, equity)
	}
	if e.cfg.Limits.Leverage > 0 {
		if err := e.trader.SetLeverage(ctx, intent.Symbol, e.cfg.Limits.Leverage, e.cfg.MarginMode); err != nil {
			return Fill{}, fmt.Errorf("set leverage: %w", err)
		}
	}
	req := exchange.OrderRequest{
		InstID:     intent.Symbol,
		MarginMode: e.cfg.MarginMode,
		Side:       side,
		Size:       qty,
		Price:      intent.Entry,
		StopLoss:   intent.Stop,
		TakeProfit: intent.Target,
		ClientID:   clientID(intent.ID),
	}
	res, err := e.trader.PlaceOrder(ctx, req)
	if err != nil {
		e.cancelAbandoned(ctx, req, err)
		return Fill{}, fmt.Errorf("place order: %w", err)
	}

	fill := Fill{
		IntentID:   intent.ID,
		OrderID:    res.OrderID,
		ClientID:   res.ClientID,
		Symbol:     intent.Symbol,
		Side:       side,
		Qty:        qty,
		Price:      intent.Entry,
		StopLoss:   intent.Stop,
		TakeProfit: intent.Target,
		Equity:     equity,
		DryRun:     e.cfg.DryRun,
		Time:       e.now(),
	}
	e.log.Info().Str("symbol", fill.Symbol).Str("side", side).Float64("qty", qty).Float64("px", fill.Price).
		Float64("sl", fill.StopLoss).Float64("tp", fill.TakeProfit).Str("order_id", fill.OrderID).
		Bool("dry_run", fill.DryRun).Msg("order placed")
	return fill, nil
}

// cancelAbandoned withdraws an order whose placement timed out, since the venue
// may have accepted it after the caller gave up.
func (e *Executor) cancelAbandoned(ctx context.Context, req exchange.OrderRequest, placeErr error) {
	if !errors.Is(placeErr, context.DeadlineExceeded) && !errors.Is(placeErr, context.Canceled) {
		return
	}
	c, ok := e.trader.(Canceler)
	if !ok {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer cancel()
	log := e.log.With().Str("symbol", req.InstID).Str("client_id", req.ClientID).Logger()
	if err := c.CancelOrder(cctx, req.InstID, req.ClientID); err != nil {
		log.Warn().Err(err).Msg("cancel after placement timeout failed")
		return
	}
	log.Info().Msg("cancelled order after placement timeout")
}

// clientID strips dashes so the intent id fits OKX's alphanumeric clOrdId.
func clientID(intentID string) string {
	id := strings.ReplaceAll(intentID, "-", "")
	if id == "" {
		return exchange.NewClientOrderID()
	}
	if len(id) > 32 {
		id = id[:32]
	}
	return id
}
