// Package market defines the typed payloads carried from the stream into the consolidation store.
package market

import "strings"

const (
	// ChannelTickers carries last price, best bid/ask and 24h volume.
	ChannelTickers = "tickers"
	// ChannelBooks5 carries a five level order book snapshot on every change.
	ChannelBooks5 = "books5"

	candlePrefix = "candle"
)

// CandleFamily is the generic dispatch key shared by every candle channel.
const CandleFamily = candlePrefix

// CandleChannel returns the channel name for a timeframe, e.g. "1m" -> "candle1m".
func CandleChannel(timeframe string) string { return candlePrefix + timeframe }

// IsCandleChannel reports whether the channel belongs to the candle family.
func IsCandleChannel(channel string) bool {
	return strings.HasPrefix(channel, candlePrefix) && len(channel) > len(candlePrefix)
}

// TimeframeOf extracts the timeframe from a candle channel name.
func TimeframeOf(channel string) (string, bool) {
	if !IsCandleChannel(channel) {
		return "", false
	}
	return strings.TrimPrefix(channel, candlePrefix), true
}

// Candle is one OHLCV bar. Timestamp is the bucket open in unix milliseconds and keys the bar within a series.
type Candle struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Confirmed bool    `json:"confirmed"`
}

// Level is a single price/size entry of one book side.
type Level struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderBook holds both sides best-first: bids descending, asks ascending.
type OrderBook struct {
	Bids      []Level `json:"bids"`
	Asks      []Level `json:"asks"`
	Timestamp int64   `json:"timestamp"`
}

// Clone returns a copy that shares no backing arrays with b.
func (b OrderBook) Clone() OrderBook {
	out := OrderBook{Timestamp: b.Timestamp}
	if b.Bids != nil {
		out.Bids = append(make([]Level, 0, len(b.Bids)), b.Bids...)
	}
	if b.Asks != nil {
		out.Asks = append(make([]Level, 0, len(b.Asks)), b.Asks...)
	}
	return out
}

// Empty reports whether either side has no levels.
func (b OrderBook) Empty() bool { return len(b.Bids) == 0 || len(b.Asks) == 0 }

// Ticker is the latest top-of-book summary for an instrument.
type Ticker struct {
	Last      float64 `json:"last"`
	BestBid   float64 `json:"best_bid"`
	BestAsk   float64 `json:"best_ask"`
	Volume24h float64 `json:"volume_24h"`
	Timestamp int64   `json:"timestamp"`
}
