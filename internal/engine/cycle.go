package engine

import (
	"context"
	"errors"
	"time"

	"github.com/ramihomecare1-commits/Scalper/internal/lifecycle"
	"github.com/ramihomecare1-commits/Scalper/internal/metrics"
	"github.com/ramihomecare1-commits/Scalper/internal/notifier"
	"github.com/ramihomecare1-commits/Scalper/internal/recorder"
	"github.com/ramihomecare1-commits/Scalper/internal/risk"
	"github.com/ramihomecare1-commits/Scalper/internal/signal"
	"github.com/ramihomecare1-commits/Scalper/internal/snapshot"
)

// runCycle takes one pass over the ready symbols.
func (e *Engine) runCycle(ctx context.Context) {
	e.cycles.Add(1)
	e.mu.Lock()
	e.lastCycle = e.now()
	e.mu.Unlock()

	snaps := make([]snapshot.Consolidated, 0, len(e.cfg.Symbols))
	for _, sym := range e.cfg.Symbols {
		if !e.deps.Store.IsReady(sym) {
			continue
		}
		c, ok := snapshot.Take(e.deps.Store, sym)
		if !ok {
			continue
		}
		snaps = append(snaps, c)
	}
	if len(snaps) == 0 {
		e.log.Debug().Msg("no symbol ready")
		return
	}

	decisions := e.deps.Strategy.Decide(ctx, snaps)
	for _, c := range snaps {
		if ctx.Err() != nil {
			return
		}
		e.handleDecision(ctx, c, decisions[c.Symbol])
	}
}

func (e *Engine) handleDecision(ctx context.Context, c snapshot.Consolidated, d *signal.Decision) {
	sym := c.Symbol
	if d != nil {
		metrics.DecisionsTotal.WithLabelValues(string(d.Action)).Inc()
	}
	verdict := e.deps.Gate.Validate(d)
	if !verdict.Accepted {
		metrics.GateRejectionsTotal.WithLabelValues(string(verdict.Reason)).Inc()
		ev := e.log.Debug()
		if verdict.Reason != risk.ReasonHold && verdict.Reason != risk.ReasonNoDecision {
			ev = e.log.Info()
		}
		ev.Str("symbol", sym).Str("reason", string(verdict.Reason)).Msg("decision rejected")
		return
	}

	pending, err := e.deps.Tracker.Begin(sym, d, e.now())
	if err != nil {
		metrics.AdmissionsTotal.WithLabelValues(admissionResult(err)).Inc()
		e.log.Info().Str("symbol", sym).Str("reason", err.Error()).Msg("decision not admitted")
		return
	}
	metrics.AdmissionsTotal.WithLabelValues("admitted").Inc()

	intent := pending.Intent()
	fill, err := e.deps.Executor.Execute(ctx, intent)
	if err != nil {
		pending.Abort()
		e.notify(notifier.FormatExecutionFailed(sym, string(d.Action), err))
		return
	}
	pending.Commit()
	e.trades.Add(1)
	metrics.OpenPositions.Set(float64(len(e.deps.Tracker.Open())))

	rec := recorder.TradeRecord{
		Time:       fill.Time,
		Symbol:     sym,
		Action:     string(d.Action),
		Price:      fill.Price,
		Quantity:   fill.Qty,
		StopLoss:   fill.StopLoss,
		TakeProfit: fill.TakeProfit,
		Confidence: d.Confidence,
		Reasoning:  d.Reasoning,
		RiskLevel:  d.RiskLevel,
		OrderID:    fill.OrderID,
		DryRun:     fill.DryRun,
		Snapshot:   summarize(c, d),
	}
	if err := e.deps.Recorder.RecordTrade(rec); err != nil {
		e.log.Warn().Err(err).Str("symbol", sym).Msg("trade not journaled")
	}
	e.notify(notifier.FormatTradeOpened(notifier.TradeOpened{
		Symbol:     sym,
		Action:     string(d.Action),
		Entry:      fill.Price,
		StopLoss:   fill.StopLoss,
		TakeProfit: fill.TakeProfit,
		Size:       fill.Qty,
		RiskReward: verdict.RiskReward,
		Confidence: d.Confidence,
		Reasoning:  d.Reasoning,
		DryRun:     fill.DryRun,
	}))
}

func admissionResult(err error) string {
	switch {
	case errors.Is(err, lifecycle.ErrCooldown):
		return "cooldown"
	case errors.Is(err, lifecycle.ErrPositionOpen):
		return "open"
	case errors.Is(err, lifecycle.ErrPending):
		return "pending"
	}
	return "error"
}

// summarize keeps the market context worth storing next to a trade.
func summarize(c snapshot.Consolidated, d *signal.Decision) *recorder.SnapshotSummary {
	s := &recorder.SnapshotSummary{LastPrice: c.LastPrice(), Confluence: d.TimeframeConfluence}
	if c.HasBookMetrics {
		s.Imbalance = c.Book.Imbalance
		s.Spread = c.Book.Spread
	}
	if c.HasBook {
		s.Bids = topLevels(c.OrderBook.Bids)
		s.Asks = topLevels(c.OrderBook.Asks)
	}
	if len(c.Indicators) > 0 {
		s.RSI = make(map[string]float64, len(c.Indicators))
		s.Trend = make(map[string]string, len(c.Indicators))
		for tf, ind := range c.Indicators {
			s.RSI[tf] = ind.RSI
			s.Trend[tf] = ind.Trend
		}
	}
	return s
}

func topLevels[T any](levels []T) []T {
	const depth = 5
	if len(levels) > depth {
		levels = levels[:depth]
	}
	return append([]T(nil), levels...)
}

// reconcile syncs the tracker with venue positions and reports positions that closed.
func (e *Engine) reconcile(ctx context.Context) {
	before := make(map[string]lifecycle.Intent)
	for _, in := range e.deps.Tracker.Open() {
		before[in.Symbol] = in
	}
	positions, err := e.deps.Trader.Positions(ctx, e.cfg.InstType)
	if err != nil {
		e.log.Warn().Err(err).Msg("position reconcile failed")
		return
	}
	mapped := make([]lifecycle.Position, 0, len(positions))
	for _, p := range positions {
		mapped = append(mapped, lifecycle.Position{Symbol: p.InstID, Side: p.Side, Size: p.Size, AvgPrice: p.AvgPrice})
	}
	closed := e.deps.Tracker.Reconcile(mapped)
	for _, sym := range closed {
		e.reportClosed(before[sym])
	}
	metrics.OpenPositions.Set(float64(len(e.deps.Tracker.Open())))
}

// releaseClosed frees symbol once the venue confirmed its position closed.
// It is a no-op when the tracker no longer holds the symbol.
func (e *Engine) releaseClosed(symbol string) {
	var held *lifecycle.Intent
	for _, in := range e.deps.Tracker.Open() {
		if in.Symbol == symbol {
			held = &in
			break
		}
	}
	if held == nil {
		return
	}
	e.deps.Tracker.Release(symbol)
	e.reportClosed(*held)
	metrics.OpenPositions.Set(float64(len(e.deps.Tracker.Open())))
}

func (e *Engine) reportClosed(in lifecycle.Intent) {
	e.log.Info().Str("symbol", in.Symbol).Str("action", string(in.Action)).Msg("position closed")
	e.notify(notifier.FormatPositionClosed(in.Symbol, string(in.Action), in.Entry))
}

func (e *Engine) scheduledReconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	e.reconcile(ctx)
}

func (e *Engine) notify(text string) {
	if e.deps.Notifier == nil {
		return
	}
	e.deps.Notifier.Notify(text)
}
