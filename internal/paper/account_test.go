package paper

import (
	"errors"
	"math"
	"testing"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestApplyAveragesAndRealizes(t *testing.T) {
	account := NewAccount(1000)

	if _, err := account.Apply("BTC-USDT", "buy", 0.5, 1000, 1); err != nil {
		t.Fatalf("unexpected buy error: %v", err)
	}
	if _, err := account.Apply("BTC-USDT", "buy", 0.25, 1100, 1); err != nil {
		t.Fatalf("unexpected second buy error: %v", err)
	}

	snap := account.Snapshot(map[string]float64{"BTC-USDT": 1150})
	pos := snap.Positions["BTC-USDT"]
	if !near(pos.Qty, 0.75) || !near(pos.AvgCost, 775.0/0.75) {
		t.Fatalf("unexpected position %+v", pos)
	}
	if !near(snap.UsedMargin, 775) {
		t.Fatalf("expected margin 775, got %.4f", snap.UsedMargin)
	}

	realized, err := account.Apply("BTC-USDT", "sell", 0.25, 1200, 1)
	if err != nil {
		t.Fatalf("unexpected sell error: %v", err)
	}
	if !near(realized, (1200-775.0/0.75)*0.25) || !near(account.RealizedPnL(), realized) {
		t.Fatalf("unexpected realized pnl %.4f", realized)
	}

	snap = account.Snapshot(map[string]float64{"BTC-USDT": 1180})
	if !near(snap.Equity, snap.Cash+snap.Positions["BTC-USDT"].Unrealized) {
		t.Fatalf("equity did not balance: %+v", snap)
	}
}

func TestApplyShortThenFlip(t *testing.T) {
	account := NewAccount(1000)
	if _, err := account.Apply("ETH-USDT", "sell", 1, 100, 10); err != nil {
		t.Fatalf("unexpected short error: %v", err)
	}
	if got := account.Position("ETH-USDT"); got != -1 {
		t.Fatalf("expected -1, got %.4f", got)
	}

	realized, err := account.Apply("ETH-USDT", "buy", 1.5, 90, 10)
	if err != nil {
		t.Fatalf("unexpected flip error: %v", err)
	}
	if !near(realized, 10) {
		t.Fatalf("expected short profit 10, got %.4f", realized)
	}
	snap := account.Snapshot(nil)
	pos := snap.Positions["ETH-USDT"]
	if !near(pos.Qty, 0.5) || !near(pos.AvgCost, 90) || !near(pos.Margin, 4.5) {
		t.Fatalf("unexpected flipped position %+v", pos)
	}
	if !near(snap.Cash, 1010) {
		t.Fatalf("expected cash 1010, got %.4f", snap.Cash)
	}
}

func TestApplyInsufficientMarginLeavesStateUntouched(t *testing.T) {
	account := NewAccount(10)
	if _, err := account.Apply("BTC-USDT", "buy", 1, 200, 1); !errors.Is(err, ErrInsufficientMargin) {
		t.Fatalf("expected margin error, got %v", err)
	}
	if account.Position("BTC-USDT") != 0 {
		t.Fatalf("position should not change")
	}
	if _, err := account.Apply("BTC-USDT", "buy", 1, 200, 25); err != nil {
		t.Fatalf("leverage should make room: %v", err)
	}
}

func TestApplyRejectsInvalidOrders(t *testing.T) {
	account := NewAccount(1000)
	for _, tc := range []struct {
		side       string
		qty, price float64
	}{
		{"hold", 1, 1},
		{"buy", 0, 1},
		{"sell", 1, 0},
		{"buy", math.NaN(), 1},
	} {
		if _, err := account.Apply("X", tc.side, tc.qty, tc.price, 1); !errors.Is(err, ErrInvalidOrder) {
			t.Fatalf("%+v: expected ErrInvalidOrder, got %v", tc, err)
		}
	}
}
