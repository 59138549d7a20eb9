package engine

import (
	"context"
	"time"

	"github.com/ramihomecare1-commits/Scalper/internal/recorder"
)

// SymbolStatus is the per-symbol part of Status.
type SymbolStatus struct {
	Ready   bool           `json:"ready"`
	Candles map[string]int `json:"candles"`
	Open    bool           `json:"open"`
	Fills   int            `json:"fills,omitempty"`
}

// PaperStatus summarises the simulated account.
type PaperStatus struct {
	StartingCash float64 `json:"starting_cash"`
	Cash         float64 `json:"cash"`
	Equity       float64 `json:"equity"`
	RealizedPnL  float64 `json:"realized_pnl"`
	UsedMargin   float64 `json:"used_margin"`
	Fills        int     `json:"fills"`
}

// Status is what /stats serves.
type Status struct {
	Strategy  string                  `json:"strategy"`
	DryRun    bool                    `json:"dry_run"`
	Streams   map[string]string       `json:"streams"`
	Symbols   map[string]SymbolStatus `json:"symbols"`
	Cycles    int64                   `json:"cycles"`
	CycleErrs int64                   `json:"cycle_errors"`
	Trades    int64                   `json:"trades"`
	LastCycle time.Time               `json:"last_cycle,omitempty"`
	Paper     *PaperStatus            `json:"paper,omitempty"`
	Journal   *recorder.Stats         `json:"journal,omitempty"`
}

// Stats reports the live engine state.
func (e *Engine) Stats() any {
	st := Status{
		Strategy:  e.deps.Strategy.Name(),
		DryRun:    e.cfg.DryRun,
		Streams:   map[string]string{"public": e.deps.Public.State().String()},
		Symbols:   make(map[string]SymbolStatus, len(e.cfg.Symbols)),
		Cycles:    e.cycles.Load(),
		CycleErrs: e.cycleErrs.Load(),
		Trades:    e.trades.Load(),
	}
	if e.deps.Business != e.deps.Public {
		st.Streams["business"] = e.deps.Business.State().String()
	}
	e.mu.Lock()
	st.LastCycle = e.lastCycle
	e.mu.Unlock()

	for _, sym := range e.cfg.Symbols {
		ss := SymbolStatus{
			Ready:   e.deps.Store.IsReady(sym),
			Candles: e.deps.Store.Counts(sym),
			Open:    e.deps.Tracker.IsOpen(sym),
		}
		if e.deps.Fills != nil {
			ss.Fills = len(e.deps.Fills.ForSymbol(sym))
		}
		st.Symbols[sym] = ss
	}
	if e.deps.Paper != nil {
		acct := e.deps.Paper.Account()
		snap := acct.Snapshot(nil)
		st.Paper = &PaperStatus{
			StartingCash: acct.StartingCash(),
			Cash:         snap.Cash,
			Equity:       snap.Cash,
			RealizedPnL:  snap.RealizedPnL,
			UsedMargin:   snap.UsedMargin,
		}
		if e.deps.Fills != nil {
			st.Paper.Fills = e.deps.Fills.Len()
		}
		if eq, err := e.deps.Paper.Balance(context.Background(), ""); err == nil {
			st.Paper.Equity = eq
		}
	}
	if js, err := e.deps.Recorder.Stats(); err == nil {
		st.Journal = &js
	} else {
		e.log.Debug().Err(err).Msg("journal stats unavailable")
	}
	return st
}
