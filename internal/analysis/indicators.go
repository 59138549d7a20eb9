package analysis

import (
	"math"

	"github.com/ramihomecare1-commits/Scalper/internal/market"
)

// MinCandles is the history needed before any indicator is reported.
const MinCandles = 20

const (
	rsiPeriod       = 14
	fastPeriod      = 5
	slowPeriod      = 10
	bollingerPeriod = 20
	bollingerWidth  = 2.0
)

// Trend labels.
const (
	TrendUp   = "UP"
	TrendDown = "DOWN"
)

// Bollinger position labels.
const (
	BandAboveUpper = "ABOVE_UPPER"
	BandBelowLower = "BELOW_LOWER"
	BandUpperHalf  = "UPPER_HALF"
	BandLowerHalf  = "LOWER_HALF"
)

// Indicators is the derived set for one timeframe.
type Indicators struct {
	RSI          float64 `json:"rsi"`
	SMA5         float64 `json:"sma_5"`
	SMA10        float64 `json:"sma_10"`
	Trend        string  `json:"trend"`
	BBUpper      float64 `json:"bb_upper"`
	BBMiddle     float64 `json:"bb_middle"`
	BBLower      float64 `json:"bb_lower"`
	BBPosition   string  `json:"bb_position"`
	VWAP         float64 `json:"vwap"`
	VWAPDistance float64 `json:"vwap_dist"`
}

// Compute returns ok=false when fewer than MinCandles are supplied.
func Compute(candles []market.Candle) (Indicators, bool) {
	if len(candles) < MinCandles {
		return Indicators{}, false
	}
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	price := closes[len(closes)-1]

	out := Indicators{
		RSI:   RSI(closes, rsiPeriod),
		SMA5:  SMA(closes, fastPeriod),
		SMA10: SMA(closes, slowPeriod),
		VWAP:  VWAP(candles),
	}
	out.Trend = TrendDown
	if out.SMA5 > out.SMA10 {
		out.Trend = TrendUp
	}
	out.BBUpper, out.BBMiddle, out.BBLower = Bollinger(closes, bollingerPeriod, bollingerWidth)
	switch {
	case price > out.BBUpper:
		out.BBPosition = BandAboveUpper
	case price < out.BBLower:
		out.BBPosition = BandBelowLower
	case price > out.BBMiddle:
		out.BBPosition = BandUpperHalf
	default:
		out.BBPosition = BandLowerHalf
	}
	if out.VWAP > 0 && price != 0 {
		out.VWAPDistance = (price - out.VWAP) / price * 100
	}
	return out, true
}

// RSI uses the plain mean of the last period gains and losses.
// Returns 50 with too little data and 100 when there were no losses.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period+1 {
		return 50
	}
	var gain, loss float64
	for i := len(closes) - period; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gain += change
		} else {
			loss -= change
		}
	}
	if loss == 0 {
		return 100
	}
	rs := gain / loss
	return 100 - 100/(1+rs)
}

// SMA falls back to the last value when the series is shorter than period.
func SMA(values []float64, period int) float64 {
	if len(values) == 0 {
		return 0
	}
	if period <= 0 || len(values) < period {
		return values[len(values)-1]
	}
	var sum float64
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// Bollinger uses the population standard deviation of the last period values.
func Bollinger(values []float64, period int, width float64) (upper, middle, lower float64) {
	if period <= 0 || len(values) < period {
		return 0, 0, 0
	}
	window := values[len(values)-period:]
	middle = SMA(window, period)
	var sq float64
	for _, v := range window {
		d := v - middle
		sq += d * d
	}
	std := math.Sqrt(sq / float64(period))
	return middle + width*std, middle, middle - width*std
}

// VWAP weights the typical price (high+low+close)/3 by volume.
func VWAP(candles []market.Candle) float64 {
	var num, vol float64
	for _, c := range candles {
		num += (c.High + c.Low + c.Close) / 3 * c.Volume
		vol += c.Volume
	}
	if vol == 0 {
		return 0
	}
	return num / vol
}
