// Package recorder persists the trade history and derives summary statistics from it.
package recorder

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/ramihomecare1-commits/Scalper/internal/market"
)

// SnapshotSummary is the trimmed market context stored with each trade.
type SnapshotSummary struct {
	LastPrice  float64            `json:"last_price"`
	Imbalance  float64            `json:"imbalance"`
	Spread     float64            `json:"spread"`
	Bids       []market.Level     `json:"bids,omitempty"`
	Asks       []market.Level     `json:"asks,omitempty"`
	RSI        map[string]float64 `json:"rsi,omitempty"`
	Trend      map[string]string  `json:"trend,omitempty"`
	Confluence []string           `json:"timeframe_confluence,omitempty"`
}

// TradeRecord is one executed trade with the reasoning behind it.
type TradeRecord struct {
	Time       time.Time        `json:"timestamp"`
	Symbol     string           `json:"symbol"`
	Action     string           `json:"action"`
	Price      float64          `json:"price"`
	Quantity   float64          `json:"quantity"`
	StopLoss   float64          `json:"stop_loss"`
	TakeProfit float64          `json:"take_profit"`
	Confidence float64          `json:"confidence"`
	Reasoning  string           `json:"reasoning"`
	RiskLevel  string           `json:"risk_level,omitempty"`
	OrderID    string           `json:"order_id,omitempty"`
	DryRun     bool             `json:"dry_run"`
	Snapshot   *SnapshotSummary `json:"market_snapshot,omitempty"`
}

// Stats summarises the recorded history.
type Stats struct {
	TotalTrades   int            `json:"total_trades"`
	Symbols       []string       `json:"symbols"`
	Actions       map[string]int `json:"actions"`
	AvgConfidence float64        `json:"avg_confidence"`
}

// Recorder persists trades.
type Recorder interface {
	RecordTrade(rec TradeRecord) error
	Stats() (Stats, error)
	Close() error
}

// Open picks a backend by driver name: jsonl, sqlite or none.
func Open(driver, path string, log zerolog.Logger) (Recorder, error) {
	switch driver {
	case "", "none":
		return NewNoopRecorder(), nil
	case "jsonl":
		return NewJSONLRecorder(path, log)
	case "sqlite":
		return NewSQLiteRecorder(path, log)
	}
	return nil, fmt.Errorf("unknown journal driver %q", driver)
}

// accumulator folds records into Stats the same way for every backend.
type accumulator struct {
	total      int
	symbols    map[string]struct{}
	actions    map[string]int
	confidence float64
}

func newAccumulator() *accumulator {
	return &accumulator{symbols: make(map[string]struct{}), actions: make(map[string]int)}
}

func (a *accumulator) add(symbol, action string, confidence float64) {
	a.total++
	if symbol != "" {
		a.symbols[symbol] = struct{}{}
	}
	if action != "" {
		a.actions[action]++
	}
	a.confidence += confidence
}

func (a *accumulator) stats() Stats {
	out := Stats{TotalTrades: a.total, Symbols: make([]string, 0, len(a.symbols)), Actions: a.actions}
	for s := range a.symbols {
		out.Symbols = append(out.Symbols, s)
	}
	sort.Strings(out.Symbols)
	if a.total > 0 {
		out.AvgConfidence = a.confidence / float64(a.total)
	}
	return out
}
