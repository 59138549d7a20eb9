package store

import (
	"time"

	"github.com/ramihomecare1-commits/Scalper/internal/market"
)

// Snapshot is a detached copy of one symbol's consolidated state.
type Snapshot struct {
	Symbol     string                     `json:"symbol"`
	Timeframes []string                   `json:"timeframes"`
	Candles    map[string][]market.Candle `json:"candles"`
	OrderBook  market.OrderBook           `json:"orderbook"`
	HasBook    bool                       `json:"has_book"`
	Ticker     market.Ticker              `json:"ticker"`
	HasTicker  bool                       `json:"has_ticker"`
	TakenAt    time.Time                  `json:"taken_at"`
}

// LastPrice prefers the ticker and falls back to the close of the fastest timeframe.
func (s Snapshot) LastPrice() float64 {
	if s.HasTicker && s.Ticker.Last > 0 {
		return s.Ticker.Last
	}
	for _, tf := range s.Timeframes {
		if c := s.Candles[tf]; len(c) > 0 {
			return c[len(c)-1].Close
		}
	}
	return 0
}
