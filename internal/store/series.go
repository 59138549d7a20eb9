package store

import (
	"fmt"

	"github.com/ramihomecare1-commits/Scalper/internal/market"
)

// series is a fixed-capacity chronological run of candles for one (symbol, timeframe).
type series struct {
	capacity int
	candles  []market.Candle
}

func newSeries(capacity int) *series {
	return &series{capacity: capacity, candles: make([]market.Candle, 0, capacity)}
}

func (s *series) len() int { return len(s.candles) }

func (s *series) upsert(c market.Candle) error {
	n := len(s.candles)
	if n > 0 {
		last := s.candles[n-1].Timestamp
		switch {
		case c.Timestamp == last:
			s.candles[n-1] = c
			return nil
		case c.Timestamp < last:
			return fmt.Errorf("%w: ts %d before %d", ErrStaleCandle, c.Timestamp, last)
		}
	}
	if n == s.capacity {
		copy(s.candles, s.candles[1:])
		s.candles[n-1] = c
		return nil
	}
	s.candles = append(s.candles, c)
	return nil
}

func (s *series) copyOut() []market.Candle {
	out := make([]market.Candle, len(s.candles))
	copy(out, s.candles)
	return out
}
