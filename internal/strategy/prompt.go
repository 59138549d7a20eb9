package strategy

import (
	"fmt"
	"strings"

	"github.com/ramihomecare1-commits/Scalper/internal/snapshot"
)

// SystemPrompt frames every request to the reasoning service.
const SystemPrompt = `You are an expert high-frequency crypto scalping AI.
Your goal is to identify high-probability scalping opportunities (1-2% moves) with strict risk management.
You will receive multi-timeframe market data, technical indicators, and order book analysis.

Output your decision in the following JSON format ONLY:
{
    "action": "BUY" | "SELL" | "HOLD",
    "confidence": 0-100,
    "reasoning": "Brief explanation of the trade rationale",
    "entry_price": float (limit price),
    "stop_loss": float,
    "take_profit": float,
    "timeframe_confluence": ["1m", "5m", "15m", "1H"],
    "risk_level": "LOW" | "MEDIUM" | "HIGH"
}

Rules:
1. Only trade if confidence is at least 75.
2. Ensure Risk/Reward ratio is at least 1.5:1.
3. Confirm signals across at least 2 timeframes.
4. Respect support/resistance levels from the order book.`

// FormatSnapshot renders one symbol's indicators and book metrics as plain text.
func FormatSnapshot(c snapshot.Consolidated) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Symbol: %s\n", c.Symbol)
	for _, tf := range c.Timeframes {
		candles := c.Candles[tf]
		ind, ok := c.Indicators[tf]
		if !ok || len(candles) == 0 {
			fmt.Fprintf(&b, "%s: insufficient history (%d candles)\n", tf, len(candles))
			continue
		}
		last := candles[len(candles)-1]
		fmt.Fprintf(&b, "%s: close=%.6g rsi=%.2f sma5=%.6g sma10=%.6g trend=%s bb=[%.6g %.6g %.6g] bb_position=%s vwap=%.6g vwap_dist=%.3f%%\n",
			tf, last.Close, ind.RSI, ind.SMA5, ind.SMA10, ind.Trend,
			ind.BBLower, ind.BBMiddle, ind.BBUpper, ind.BBPosition, ind.VWAP, ind.VWAPDistance)
	}
	if c.HasBookMetrics {
		m := c.Book
		fmt.Fprintf(&b, "Order Book: imbalance=%.3f bid_vol_top10=%.6g ask_vol_top10=%.6g support=%.6g resistance=%.6g spread=%.6g micro_price=%.6g\n",
			m.Imbalance, m.BidVolumeTop10, m.AskVolumeTop10, m.NearestSupport, m.NearestResistance, m.Spread, m.MicroPrice)
	} else {
		b.WriteString("Order Book: unavailable\n")
	}
	if c.HasTicker {
		fmt.Fprintf(&b, "Ticker: last=%.6g bid=%.6g ask=%.6g vol24h=%.6g\n", c.Ticker.Last, c.Ticker.BestBid, c.Ticker.BestAsk, c.Ticker.Volume24h)
	}
	fmt.Fprintf(&b, "Current Price: %.6g\n", c.LastPrice())
	return b.String()
}

// SinglePrompt asks for one decision object.
func SinglePrompt(c snapshot.Consolidated) string {
	return "Analyze this market and respond with ONLY a JSON decision object.\n\n" + FormatSnapshot(c)
}

// BatchPrompt asks for one decision per symbol, keyed by symbol.
func BatchPrompt(snaps []snapshot.Consolidated) string {
	var b strings.Builder
	b.WriteString("Analyze the following markets and provide trading decisions for each:\n")
	for _, c := range snaps {
		fmt.Fprintf(&b, "\n=== %s ===\n", c.Symbol)
		b.WriteString(FormatSnapshot(c))
	}
	b.WriteString("\nRespond with a JSON object where keys are symbols and values are decision objects:\n")
	b.WriteString(`{"BTC-USDT-SWAP": {"action":"BUY","confidence":80,...}, "ETH-USDT-SWAP": {"action":"HOLD",...}}`)
	return b.String()
}
