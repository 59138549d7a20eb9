// Package signal standardizes the candidate decisions passed from strategies to the gate.
package signal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Action is the direction a strategy proposes.
type Action string

const (
	// Buy opens a long.
	Buy Action = "BUY"
	// Sell opens a short.
	Sell Action = "SELL"
	// Hold means stand aside. Unknown actions normalize to it.
	Hold Action = "HOLD"
)

// ParseAction maps free-form text onto an Action. Anything unrecognised is HOLD.
func ParseAction(s string) Action {
	switch Action(strings.ToUpper(strings.TrimSpace(s))) {
	case Buy:
		return Buy
	case Sell:
		return Sell
	default:
		return Hold
	}
}

// Side is the order side for the action, empty for HOLD.
func (a Action) Side() string {
	switch a {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	}
	return ""
}

// Decision is an immutable candidate action for one symbol.
// Prices are nil when the strategy left them out or sent something non-numeric.
type Decision struct {
	Action              Action   `json:"action"`
	Confidence          float64  `json:"confidence"`
	EntryPrice          *float64 `json:"entry_price,omitempty"`
	StopLoss            *float64 `json:"stop_loss,omitempty"`
	TakeProfit          *float64 `json:"take_profit,omitempty"`
	Reasoning           string   `json:"reasoning,omitempty"`
	TimeframeConfluence []string `json:"timeframe_confluence,omitempty"`
	RiskLevel           string   `json:"risk_level,omitempty"`
}

// Price is a convenience for building decisions by hand.
func Price(v float64) *float64 { return &v }

// ErrNoDecision reports an empty or undecodable response.
var ErrNoDecision = errors.New("no decision")

type rawDecision struct {
	Action              string          `json:"action"`
	Confidence          json.RawMessage `json:"confidence"`
	EntryPrice          json.RawMessage `json:"entry_price"`
	StopLoss            json.RawMessage `json:"stop_loss"`
	TakeProfit          json.RawMessage `json:"take_profit"`
	Reasoning           string          `json:"reasoning"`
	TimeframeConfluence json.RawMessage `json:"timeframe_confluence"`
	RiskLevel           string          `json:"risk_level"`
}

// ParseDecision decodes a single decision object, tolerating markdown fences around it.
func ParseDecision(body []byte) (*Decision, error) {
	body = stripFences(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, ErrNoDecision
	}
	var raw rawDecision
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDecision, err)
	}
	return raw.decision(), nil
}

// ParseBatch decodes a symbol-keyed map of decisions. Null or undecodable entries are left out.
func ParseBatch(body []byte) (map[string]*Decision, error) {
	body = stripFences(body)
	if len(body) == 0 {
		return nil, ErrNoDecision
	}
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDecision, err)
	}
	out := make(map[string]*Decision, len(entries))
	for symbol, entry := range entries {
		d, err := ParseDecision(entry)
		if err != nil {
			continue
		}
		out[symbol] = d
	}
	return out, nil
}

func (r rawDecision) decision() *Decision {
	d := &Decision{
		Action:     ParseAction(r.Action),
		EntryPrice: number(r.EntryPrice),
		StopLoss:   number(r.StopLoss),
		TakeProfit: number(r.TakeProfit),
		Reasoning:  r.Reasoning,
		RiskLevel:  strings.ToUpper(strings.TrimSpace(r.RiskLevel)),
	}
	if c := number(r.Confidence); c != nil {
		d.Confidence = math.Max(0, math.Min(100, *c))
	}
	var frames []string
	if err := json.Unmarshal(r.TimeframeConfluence, &frames); err == nil {
		d.TimeframeConfluence = frames
	} else {
		var single string
		if err := json.Unmarshal(r.TimeframeConfluence, &single); err == nil && single != "" {
			d.TimeframeConfluence = strings.Split(single, ",")
		}
	}
	return d
}

// number accepts JSON numbers and numeric strings. Anything else is nil.
func number(raw json.RawMessage) *float64 {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		if v, err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return nil
		}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func stripFences(body []byte) []byte {
	body = bytes.TrimSpace(body)
	if !bytes.HasPrefix(body, []byte("```")) {
		return body
	}
	body = body[3:]
	if nl := bytes.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	}
	body = bytes.TrimSuffix(bytes.TrimSpace(body), []byte("```"))
	return bytes.TrimSpace(body)
}
