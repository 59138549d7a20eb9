package stream

import (
	"bytes"
	"encoding/json"

	"github.com/ramihomecare1-commits/Scalper/internal/market"
	"github.com/ramihomecare1-commits/Scalper/internal/metrics"
)

// State is the connection lifecycle position.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	case Reconnecting:
		return "RECONNECTING"
	case Closed:
		return "CLOSED"
	}
	return "UNKNOWN"
}

// Arg identifies one subscription: a channel on one instrument.
type Arg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

// Key returns the exact dispatch key for the arg.
func (a Arg) Key() string { return Key(a.Channel, a.InstID) }

// Key builds a handler key. An empty instID yields the channel-wide key.
func Key(channel, instID string) string {
	if instID == "" {
		return channel
	}
	return channel + ":" + instID
}

// Message is one data push. Data holds the channel-specific entries undecoded.
type Message struct {
	Arg    Arg
	Action string
	Data   []json.RawMessage
}

// Handler consumes a data push. Handlers run on the read loop and must not block.
type Handler func(Message)

type envelope struct {
	Event  string            `json:"event"`
	Code   string            `json:"code"`
	Msg    string            `json:"msg"`
	Arg    *Arg              `json:"arg"`
	Action string            `json:"action"`
	Data   []json.RawMessage `json:"data"`
}

// Dispatch routes one raw frame. Keepalive replies, undecodable frames and
// envelopes without channel, instrument or data are dropped. Control events are logged.
func (m *Manager) Dispatch(raw []byte) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		metrics.StreamDroppedTotal.WithLabelValues("malformed").Inc()
		m.log.Debug().Err(err).Msg("discarding undecodable stream frame")
		return
	}
	if env.Event != "" {
		m.logEvent(env)
		return
	}
	if env.Arg == nil || env.Arg.Channel == "" || env.Arg.InstID == "" || env.Data == nil {
		metrics.StreamDroppedTotal.WithLabelValues("incomplete").Inc()
		return
	}

	msg := Message{Arg: *env.Arg, Action: env.Action, Data: env.Data}
	m.mu.RLock()
	var targets []Handler
	targets = append(targets, m.handlers[msg.Arg.Key()]...)
	targets = append(targets, m.handlers[msg.Arg.Channel]...)
	if market.IsCandleChannel(msg.Arg.Channel) {
		targets = append(targets, m.handlers[market.CandleFamily]...)
	}
	m.mu.RUnlock()

	metrics.StreamMessagesTotal.WithLabelValues(msg.Arg.Channel).Inc()
	for _, h := range targets {
		m.invoke(h, msg)
	}
}

func (m *Manager) invoke(h Handler, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Interface("panic", r).Str("channel", msg.Arg.Channel).Str("inst_id", msg.Arg.InstID).Msg("stream handler panicked")
		}
	}()
	h(msg)
}

func (m *Manager) logEvent(env envelope) {
	ev := m.log.Debug()
	if env.Event == "error" {
		ev = m.log.Warn()
	}
	if env.Arg != nil {
		ev = ev.Str("channel", env.Arg.Channel).Str("inst_id", env.Arg.InstID)
	}
	if env.Code != "" {
		ev = ev.Str("code", env.Code).Str("msg", env.Msg)
	}
	ev.Str("event", env.Event).Msg("stream event")
}
