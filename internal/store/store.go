// Package store consolidates fragmented stream updates into bounded per-(symbol, timeframe) history
// and hands out independent point-in-time copies of it.
package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ramihomecare1-commits/Scalper/internal/market"
)

const (
	// DefaultCapacity bounds each series regardless of stream uptime.
	DefaultCapacity = 100
	// DefaultMinBars is the floor below which indicators are not meaningful.
	DefaultMinBars = 20
)

var (
	// ErrUnknownTimeframe rejects candles for timeframes the store was not configured with.
	ErrUnknownTimeframe = errors.New("unknown timeframe")
	// ErrStaleCandle rejects candles older than the newest stored bar.
	ErrStaleCandle = errors.New("stale candle")
)

// Config describes the shape of the history kept per symbol.
type Config struct {
	Timeframes []string
	Capacity   int
	MinBars    int
}

// Store is the single owner and mutator of candle, book and ticker state.
// Every exported method is one short critical section.
type Store struct {
	mu         sync.RWMutex
	timeframes []string
	capacity   int
	minBars    int
	symbols    map[string]*symbolState
	now        func() time.Time
}

type symbolState struct {
	series    map[string]*series
	book      market.OrderBook
	hasBook   bool
	ticker    market.Ticker
	hasTicker bool
}

// New builds an empty store. Zero capacity or min bars fall back to the defaults.
func New(cfg Config) *Store {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.MinBars <= 0 {
		cfg.MinBars = DefaultMinBars
	}
	return &Store{
		timeframes: append([]string(nil), cfg.Timeframes...),
		capacity:   cfg.Capacity,
		minBars:    cfg.MinBars,
		symbols:    make(map[string]*symbolState),
		now:        time.Now,
	}
}

// Timeframes returns the configured timeframes in order.
func (s *Store) Timeframes() []string { return append([]string(nil), s.timeframes...) }

func (s *Store) state(symbol string) *symbolState {
	st := s.symbols[symbol]
	if st == nil {
		st = &symbolState{series: make(map[string]*series, len(s.timeframes))}
		for _, tf := range s.timeframes {
			st.series[tf] = newSeries(s.capacity)
		}
		s.symbols[symbol] = st
	}
	return st
}

func (s *Store) configured(timeframe string) bool {
	for _, tf := range s.timeframes {
		if tf == timeframe {
			return true
		}
	}
	return false
}

// UpdateCandle normalizes a raw OKX candle row and upserts it. Malformed rows leave state untouched.
func (s *Store) UpdateCandle(symbol, timeframe string, row []string) error {
	c, err := market.ParseCandle(row)
	if err != nil {
		return err
	}
	return s.UpsertCandle(symbol, timeframe, c)
}

// UpsertCandle replaces the newest bar when timestamps match and appends otherwise.
func (s *Store) UpsertCandle(symbol, timeframe string, c market.Candle) error {
	if !s.configured(timeframe) {
		return fmt.Errorf("%w: %s", ErrUnknownTimeframe, timeframe)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state(symbol).series[timeframe].upsert(c)
}

// UpdateOrderBook replaces the latest book for symbol.
func (s *Store) UpdateOrderBook(symbol string, book market.OrderBook) {
	book = book.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(symbol)
	st.book = book
	st.hasBook = true
}

// UpdateTicker replaces the latest ticker for symbol.
func (s *Store) UpdateTicker(symbol string, t market.Ticker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(symbol)
	st.ticker = t
	st.hasTicker = true
}

// IsReady reports whether every configured timeframe holds at least the minimum bar count.
func (s *Store) IsReady(symbol string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.symbols[symbol]
	if st == nil || len(s.timeframes) == 0 {
		return false
	}
	for _, tf := range s.timeframes {
		if st.series[tf].len() < s.minBars {
			return false
		}
	}
	return true
}

// Counts reports the stored bar count per timeframe.
func (s *Store) Counts(symbol string) map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.timeframes))
	st := s.symbols[symbol]
	for _, tf := range s.timeframes {
		if st != nil {
			out[tf] = st.series[tf].len()
		} else {
			out[tf] = 0
		}
	}
	return out
}

// Snapshot copies the current state of symbol. The result shares no memory with the store.
func (s *Store) Snapshot(symbol string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.symbols[symbol]
	if st == nil {
		return Snapshot{}, false
	}
	snap := Snapshot{
		Symbol:     symbol,
		Timeframes: append([]string(nil), s.timeframes...),
		Candles:    make(map[string][]market.Candle, len(s.timeframes)),
		Ticker:     st.ticker,
		HasTicker:  st.hasTicker,
		HasBook:    st.hasBook,
		TakenAt:    s.now(),
	}
	if st.hasBook {
		snap.OrderBook = st.book.Clone()
	}
	for _, tf := range s.timeframes {
		snap.Candles[tf] = st.series[tf].copyOut()
	}
	return snap, true
}
