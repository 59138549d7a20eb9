// Package analysis derives pure metrics from order books and candle history.
package analysis

import "github.com/ramihomecare1-commits/Scalper/internal/market"

const (
	// ImbalanceDepth is how many levels per side feed the imbalance ratio.
	ImbalanceDepth = 10
	// MicroPriceDepth is how many levels per side feed the size-weighted price.
	MicroPriceDepth = 5
	// WallFactor is the multiple of the side's mean size a level must exceed to count as a wall.
	WallFactor = 2.0
)

// BookMetrics is the microstructure summary of one order book.
type BookMetrics struct {
	Imbalance         float64 `json:"imbalance"`
	BidVolumeTop10    float64 `json:"bid_volume_top10"`
	AskVolumeTop10    float64 `json:"ask_volume_top10"`
	NearestSupport    float64 `json:"nearest_support"`
	NearestResistance float64 `json:"nearest_resistance"`
	Spread            float64 `json:"spread"`
	MicroPrice        float64 `json:"micro_price"`
}

// AnalyzeBook expects best-first sides. ok is false when either side is empty or carries no size.
func AnalyzeBook(book market.OrderBook) (BookMetrics, bool) {
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return BookMetrics{}, false
	}
	bidVol := sumSize(book.Bids, ImbalanceDepth)
	askVol := sumSize(book.Asks, ImbalanceDepth)
	if bidVol+askVol <= 0 {
		return BookMetrics{}, false
	}
	wapBid, okBid := weightedPrice(book.Bids, MicroPriceDepth)
	wapAsk, okAsk := weightedPrice(book.Asks, MicroPriceDepth)
	if !okBid || !okAsk {
		return BookMetrics{}, false
	}
	return BookMetrics{
		Imbalance:         (bidVol - askVol) / (bidVol + askVol),
		BidVolumeTop10:    bidVol,
		AskVolumeTop10:    askVol,
		NearestSupport:    firstWall(book.Bids),
		NearestResistance: firstWall(book.Asks),
		Spread:            book.Asks[0].Price - book.Bids[0].Price,
		MicroPrice:        (wapBid + wapAsk) / 2,
	}, true
}

func sumSize(levels []market.Level, depth int) float64 {
	if len(levels) > depth {
		levels = levels[:depth]
	}
	var total float64
	for _, l := range levels {
		total += l.Size
	}
	return total
}

func weightedPrice(levels []market.Level, depth int) (float64, bool) {
	if len(levels) > depth {
		levels = levels[:depth]
	}
	var num, den float64
	for _, l := range levels {
		num += l.Price * l.Size
		den += l.Size
	}
	if den <= 0 {
		return 0, false
	}
	return num / den, true
}

// firstWall returns the best-priced wall, falling back to the top of book.
func firstWall(levels []market.Level) float64 {
	mean := sumSize(levels, len(levels)) / float64(len(levels))
	for _, l := range levels {
		if l.Size > mean*WallFactor {
			return l.Price
		}
	}
	return levels[0].Price
}
