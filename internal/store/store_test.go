package store

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramihomecare1-commits/Scalper/internal/market"
)

func row(ts int64, px float64) []string {
	c := strconv.FormatFloat(px, 'f', -1, 64)
	return []string{strconv.FormatInt(ts, 10), c, c, c, c, "1", "0", "0", "0"}
}

func TestUpdateCandleUpsertsSameTimestamp(t *testing.T) {
	s := New(Config{Timeframes: []string{"1m"}})
	require.NoError(t, s.UpdateCandle("BTC-USDT", "1m", row(1000, 100)))
	require.NoError(t, s.UpdateCandle("BTC-USDT", "1m", row(1000, 101)))

	snap, ok := s.Snapshot("BTC-USDT")
	require.True(t, ok)
	require.Len(t, snap.Candles["1m"], 1)
	assert.Equal(t, 101.0, snap.Candles["1m"][0].Close)

	require.NoError(t, s.UpdateCandle("BTC-USDT", "1m", row(2000, 102)))
	snap, _ = s.Snapshot("BTC-USDT")
	assert.Len(t, snap.Candles["1m"], 2)
}

func TestUpdateCandleEvictsOldest(t *testing.T) {
	s := New(Config{Timeframes: []string{"1m"}, Capacity: 5})
	for i := int64(1); i <= 8; i++ {
		require.NoError(t, s.UpdateCandle("ETH-USDT", "1m", row(i*60000, float64(i))))
	}
	snap, _ := s.Snapshot("ETH-USDT")
	candles := snap.Candles["1m"]
	require.Len(t, candles, 5)
	assert.Equal(t, int64(4*60000), candles[0].Timestamp)
	assert.Equal(t, int64(8*60000), candles[4].Timestamp)
	for i := 1; i < len(candles); i++ {
		assert.Greater(t, candles[i].Timestamp, candles[i-1].Timestamp)
	}
}

func TestUpdateCandleRejectsWithoutMutation(t *testing.T) {
	s := New(Config{Timeframes: []string{"1m"}})
	require.NoError(t, s.UpdateCandle("BTC-USDT", "1m", row(5000, 100)))

	err := s.UpdateCandle("BTC-USDT", "1m", []string{"5000", "bad"})
	assert.ErrorIs(t, err, market.ErrMalformed)

	err = s.UpdateCandle("BTC-USDT", "1m", row(4000, 99))
	assert.ErrorIs(t, err, ErrStaleCandle)

	err = s.UpdateCandle("BTC-USDT", "4H", row(6000, 99))
	assert.ErrorIs(t, err, ErrUnknownTimeframe)

	snap, _ := s.Snapshot("BTC-USDT")
	require.Len(t, snap.Candles["1m"], 1)
	assert.Equal(t, 100.0, snap.Candles["1m"][0].Close)
}

func TestIsReadyNeedsEveryTimeframe(t *testing.T) {
	s := New(Config{Timeframes: []string{"1m", "5m"}, MinBars: 3})
	assert.False(t, s.IsReady("BTC-USDT"))

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, s.UpdateCandle("BTC-USDT", "1m", row(i, 100)))
	}
	assert.False(t, s.IsReady("BTC-USDT"))

	for i := int64(1); i <= 2; i++ {
		require.NoError(t, s.UpdateCandle("BTC-USDT", "5m", row(i, 100)))
	}
	assert.False(t, s.IsReady("BTC-USDT"))

	require.NoError(t, s.UpdateCandle("BTC-USDT", "5m", row(3, 100)))
	assert.True(t, s.IsReady("BTC-USDT"))
	assert.Equal(t, map[string]int{"1m": 3, "5m": 3}, s.Counts("BTC-USDT"))
}

func TestSnapshotIsDetached(t *testing.T) {
	s := New(Config{Timeframes: []string{"1m"}})
	book := market.OrderBook{
		Bids: []market.Level{{Price: 100, Size: 1}},
		Asks: []market.Level{{Price: 101, Size: 1}},
	}
	s.UpdateOrderBook("BTC-USDT", book)
	book.Bids[0].Size = 42
	s.UpdateTicker("BTC-USDT", market.Ticker{Last: 100.5})
	require.NoError(t, s.UpdateCandle("BTC-USDT", "1m", row(1000, 100)))

	snap, ok := s.Snapshot("BTC-USDT")
	require.True(t, ok)
	assert.Equal(t, 1.0, snap.OrderBook.Bids[0].Size)

	snap.OrderBook.Bids[0].Size = 99
	snap.Candles["1m"][0].Close = -1

	again, _ := s.Snapshot("BTC-USDT")
	assert.Equal(t, 1.0, again.OrderBook.Bids[0].Size)
	assert.Equal(t, 100.0, again.Candles["1m"][0].Close)
	assert.Equal(t, 100.5, again.LastPrice())
}

func TestSnapshotUnknownSymbol(t *testing.T) {
	s := New(Config{Timeframes: []string{"1m"}})
	_, ok := s.Snapshot("DOGE-USDT")
	assert.False(t, ok)
}

func TestConcurrentWritersAndReaders(t *testing.T) {
	s := New(Config{Timeframes: []string{"1m"}, Capacity: 50})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := int64(1); i <= 500; i++ {
			_ = s.UpdateCandle("BTC-USDT", "1m", row(i, float64(i)))
			s.UpdateTicker("BTC-USDT", market.Ticker{Last: float64(i)})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			if snap, ok := s.Snapshot("BTC-USDT"); ok {
				c := snap.Candles["1m"]
				for j := 1; j < len(c); j++ {
					if c[j].Timestamp <= c[j-1].Timestamp {
						t.Errorf("snapshot out of order at %d", j)
						return
					}
				}
			}
		}
	}()
	wg.Wait()
	assert.Equal(t, 50, s.Counts("BTC-USDT")["1m"])
}
