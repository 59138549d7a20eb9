package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramihomecare1-commits/Scalper/internal/market"
)

func levels(pairs ...[2]float64) []market.Level {
	out := make([]market.Level, len(pairs))
	for i, p := range pairs {
		out[i] = market.Level{Price: p[0], Size: p[1]}
	}
	return out
}

func TestAnalyzeBookBalanced(t *testing.T) {
	book := market.OrderBook{
		Bids: levels([2]float64{100, 5}, [2]float64{99, 1}),
		Asks: levels([2]float64{101, 5}, [2]float64{102, 1}),
	}
	m, ok := AnalyzeBook(book)
	require.True(t, ok)
	assert.Equal(t, 0.0, m.Imbalance)
	assert.Equal(t, 1.0, m.Spread)
	assert.Equal(t, 100.0, m.NearestSupport)
	assert.Equal(t, 101.0, m.NearestResistance)
	assert.InDelta(t, 100.5, m.MicroPrice, 1e-9)
}

func TestAnalyzeBookWalls(t *testing.T) {
	book := market.OrderBook{
		Bids: levels([2]float64{100, 1}, [2]float64{99, 1}, [2]float64{98, 10}, [2]float64{97, 1}),
		Asks: levels([2]float64{101, 1}, [2]float64{102, 1}, [2]float64{103, 1}, [2]float64{104, 12}),
	}
	m, ok := AnalyzeBook(book)
	require.True(t, ok)
	assert.Equal(t, 98.0, m.NearestSupport)
	assert.Equal(t, 104.0, m.NearestResistance)
	assert.InDelta(t, (13.0-15.0)/28.0, m.Imbalance, 1e-9)
	assert.True(t, m.Imbalance >= -1 && m.Imbalance <= 1)
}

func TestAnalyzeBookImbalanceUsesTopTen(t *testing.T) {
	bids := make([]market.Level, 0, 15)
	for i := 0; i < 15; i++ {
		bids = append(bids, market.Level{Price: float64(100 - i), Size: 1})
	}
	m, ok := AnalyzeBook(market.OrderBook{Bids: bids, Asks: levels([2]float64{101, 10})})
	require.True(t, ok)
	assert.Equal(t, 10.0, m.BidVolumeTop10)
	assert.Equal(t, 0.0, m.Imbalance)
}

func TestAnalyzeBookEmpty(t *testing.T) {
	cases := map[string]market.OrderBook{
		"no bids":   {Asks: levels([2]float64{101, 1})},
		"no asks":   {Bids: levels([2]float64{100, 1})},
		"zero size": {Bids: levels([2]float64{100, 0}), Asks: levels([2]float64{101, 0})},
	}
	for name, book := range cases {
		if _, ok := AnalyzeBook(book); ok {
			t.Fatalf("%s: expected empty result", name)
		}
	}
}

func series(closes ...float64) []market.Candle {
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		out[i] = market.Candle{Timestamp: int64(i + 1), Open: c, High: c, Low: c, Close: c, Volume: 1}
	}
	return out
}

func ramp(from, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = from + step*float64(i)
	}
	return out
}

func TestComputeRising(t *testing.T) {
	ind, ok := Compute(series(ramp(1, 1, 20)...))
	require.True(t, ok)
	assert.Equal(t, 100.0, ind.RSI)
	assert.Equal(t, 18.0, ind.SMA5)
	assert.Equal(t, 15.5, ind.SMA10)
	assert.Equal(t, TrendUp, ind.Trend)
	assert.InDelta(t, 10.5, ind.BBMiddle, 1e-9)
	assert.Equal(t, BandUpperHalf, ind.BBPosition)
	assert.InDelta(t, 10.5, ind.VWAP, 1e-9)
	assert.InDelta(t, 47.5, ind.VWAPDistance, 1e-9)
}

func TestComputeFalling(t *testing.T) {
	ind, ok := Compute(series(ramp(20, -1, 20)...))
	require.True(t, ok)
	assert.Equal(t, 0.0, ind.RSI)
	assert.Equal(t, TrendDown, ind.Trend)
	assert.Equal(t, BandLowerHalf, ind.BBPosition)
}

func TestComputeBandBreak(t *testing.T) {
	closes := ramp(100, 0, 19)
	ind, ok := Compute(series(append(closes, 50)...))
	require.True(t, ok)
	assert.Equal(t, BandBelowLower, ind.BBPosition)

	ind, ok = Compute(series(append(closes, 150)...))
	require.True(t, ok)
	assert.Equal(t, BandAboveUpper, ind.BBPosition)
}

func TestComputeNeedsHistory(t *testing.T) {
	_, ok := Compute(series(ramp(1, 1, MinCandles-1)...))
	assert.False(t, ok)
}

func TestRSIEdges(t *testing.T) {
	assert.Equal(t, 50.0, RSI([]float64{1, 2, 3}, 14))
	assert.InDelta(t, 50.0, RSI([]float64{1, 2, 1}, 2), 1e-9)
}

func TestSMAShortSeries(t *testing.T) {
	assert.Equal(t, 3.0, SMA([]float64{1, 2, 3}, 5))
	assert.Equal(t, 0.0, SMA(nil, 5))
}
