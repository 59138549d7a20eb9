package signal

import (
	"errors"
	"testing"
)

func TestParseDecision(t *testing.T) {
	body := []byte("```json\n{\"action\":\"buy\",\"confidence\":82,\"entry_price\":100,\"stop_loss\":\"99\",\"take_profit\":102,\"timeframe_confluence\":[\"1m\",\"5m\"],\"risk_level\":\"low\"}\n```")
	d, err := ParseDecision(body)
	if err != nil {
		t.Fatalf("ParseDecision returned error: %v", err)
	}
	if d.Action != Buy || d.Confidence != 82 {
		t.Fatalf("unexpected decision: %+v", d)
	}
	if d.EntryPrice == nil || *d.EntryPrice != 100 || d.StopLoss == nil || *d.StopLoss != 99 {
		t.Fatalf("expected numeric prices, got entry=%v stop=%v", d.EntryPrice, d.StopLoss)
	}
	if len(d.TimeframeConfluence) != 2 || d.RiskLevel != "LOW" {
		t.Fatalf("unexpected metadata: %+v", d)
	}
}

func TestParseDecisionNonNumericPrice(t *testing.T) {
	d, err := ParseDecision([]byte(`{"action":"SELL","confidence":"90","entry_price":"market","stop_loss":null}`))
	if err != nil {
		t.Fatalf("ParseDecision returned error: %v", err)
	}
	if d.EntryPrice != nil || d.StopLoss != nil || d.TakeProfit != nil {
		t.Fatalf("expected missing prices, got %+v", d)
	}
	if d.Confidence != 90 {
		t.Fatalf("expected string confidence to parse, got %v", d.Confidence)
	}
}

func TestParseDecisionRejectsGarbage(t *testing.T) {
	for _, body := range []string{"", "null", "I think you should buy", "[1,2]"} {
		if _, err := ParseDecision([]byte(body)); !errors.Is(err, ErrNoDecision) {
			t.Fatalf("%q: expected ErrNoDecision, got %v", body, err)
		}
	}
}

func TestParseBatchSkipsNullAndBroken(t *testing.T) {
	body := []byte(`{"BTC-USDT-SWAP":{"action":"BUY","confidence":80},"ETH-USDT-SWAP":null,"SOL-USDT-SWAP":"n/a"}`)
	got, err := ParseBatch(body)
	if err != nil {
		t.Fatalf("ParseBatch returned error: %v", err)
	}
	if len(got) != 1 || got["BTC-USDT-SWAP"] == nil {
		t.Fatalf("expected only BTC decision, got %v", got)
	}
}

func TestParseAction(t *testing.T) {
	cases := map[string]Action{"BUY": Buy, " sell ": Sell, "hold": Hold, "long": Hold, "": Hold}
	for in, want := range cases {
		if got := ParseAction(in); got != want {
			t.Fatalf("ParseAction(%q) = %s, want %s", in, got, want)
		}
	}
	if Buy.Side() != "buy" || Hold.Side() != "" {
		t.Fatalf("unexpected sides")
	}
}
