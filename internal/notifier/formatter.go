package notifier

import (
	"fmt"
	"html"
	"strings"
)

const header = "🤖 <b>SCALPER BOT</b>\n"

// TradeOpened describes an executed entry.
type TradeOpened struct {
	Symbol     string
	Action     string
	Entry      float64
	StopLoss   float64
	TakeProfit float64
	Size       float64
	RiskReward float64
	Confidence float64
	Reasoning  string
	DryRun     bool
}

// FormatTradeOpened renders an entry alert.
func FormatTradeOpened(t TradeOpened) string {
	arrow := "📉"
	if t.Action == "BUY" {
		arrow = "📈"
	}
	reasoning := t.Reasoning
	if reasoning == "" {
		reasoning = "model decision"
	}
	var b strings.Builder
	b.WriteString(header)
	if t.DryRun {
		b.WriteString("🧪 <b>PAPER TRADE OPENED</b>\n\n")
	} else {
		b.WriteString("🚀 <b>TRADE OPENED</b>\n\n")
	}
	fmt.Fprintf(&b, "<b>Pair:</b> %s\n", html.EscapeString(t.Symbol))
	fmt.Fprintf(&b, "<b>Side:</b> %s %s\n", html.EscapeString(t.Action), arrow)
	fmt.Fprintf(&b, "<b>Entry:</b> $%.2f\n", t.Entry)
	fmt.Fprintf(&b, "<b>Stop Loss:</b> $%.2f\n", t.StopLoss)
	fmt.Fprintf(&b, "<b>Take Profit:</b> $%.2f\n", t.TakeProfit)
	fmt.Fprintf(&b, "<b>Size:</b> %.6g\n", t.Size)
	fmt.Fprintf(&b, "<b>Risk/Reward:</b> %.2f:1\n", t.RiskReward)
	fmt.Fprintf(&b, "<b>Confidence:</b> %.0f%%\n\n", t.Confidence)
	fmt.Fprintf(&b, "<i>Reasoning:</i> %s\n", html.EscapeString(reasoning))
	return b.String()
}

// FormatPositionClosed renders an alert for a position that disappeared from the venue.
func FormatPositionClosed(symbol, action string, entry float64) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("⚪ <b>POSITION CLOSED</b>\n\n")
	fmt.Fprintf(&b, "<b>Pair:</b> %s\n", html.EscapeString(symbol))
	if action != "" {
		fmt.Fprintf(&b, "<b>Side:</b> %s\n", html.EscapeString(action))
	}
	if entry > 0 {
		fmt.Fprintf(&b, "<b>Entry:</b> $%.2f\n", entry)
	}
	return b.String()
}

// FormatExecutionFailed renders an alert for an admitted trade the venue did not accept.
func FormatExecutionFailed(symbol, action string, err error) string {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return fmt.Sprintf("%s❌ <b>EXECUTION FAILED</b>\n\n<b>Pair:</b> %s\n<b>Side:</b> %s\n<code>%s</code>\n",
		header, html.EscapeString(symbol), html.EscapeString(action), html.EscapeString(msg))
}

// FormatError renders a generic bot error.
func FormatError(message string) string {
	return fmt.Sprintf("%s⚠️ <b>BOT ERROR</b>\n\n%s\n", header, html.EscapeString(message))
}
