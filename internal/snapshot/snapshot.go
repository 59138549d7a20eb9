// Package snapshot assembles the read-only per-symbol view handed to strategies.
package snapshot

import (
	"github.com/ramihomecare1-commits/Scalper/internal/analysis"
	"github.com/ramihomecare1-commits/Scalper/internal/store"
)

// Consolidated is a store copy enriched with derived indicators and book metrics.
// It is built once per cycle and never mutated afterwards.
type Consolidated struct {
	store.Snapshot
	Indicators     map[string]analysis.Indicators `json:"indicators"`
	Book           analysis.BookMetrics           `json:"orderbook_analysis"`
	HasBookMetrics bool                           `json:"has_orderbook_analysis"`
}

// Build enriches raw. Timeframes with too little history are left out of Indicators.
func Build(raw store.Snapshot) Consolidated {
	c := Consolidated{
		Snapshot:   raw,
		Indicators: make(map[string]analysis.Indicators, len(raw.Timeframes)),
	}
	for _, tf := range raw.Timeframes {
		if ind, ok := analysis.Compute(raw.Candles[tf]); ok {
			c.Indicators[tf] = ind
		}
	}
	if raw.HasBook {
		c.Book, c.HasBookMetrics = analysis.AnalyzeBook(raw.OrderBook)
	}
	return c
}

// Take copies symbol out of st and enriches it. ok is false for unknown symbols.
func Take(st *store.Store, symbol string) (Consolidated, bool) {
	raw, ok := st.Snapshot(symbol)
	if !ok {
		return Consolidated{}, false
	}
	return Build(raw), true
}
