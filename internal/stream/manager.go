// Package stream keeps an OKX websocket subscription alive and routes pushes to registered handlers.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ramihomecare1-commits/Scalper/internal/metrics"
)

const (
	defaultReconnectDelay   = 5 * time.Second
	defaultMaxReconnect     = 60 * time.Second
	defaultPingInterval     = 20 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	backoffFactor           = 1.8
	writeTimeout            = 5 * time.Second
)

// ErrClosed is returned by operations on a closed manager.
var ErrClosed = errors.New("stream closed")

// Config tunes the connection lifecycle.
type Config struct {
	Name              string
	URL               string
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	Exponential       bool
	PingInterval      time.Duration
	HandshakeTimeout  time.Duration
}

// Manager owns one websocket connection at a time and survives disconnects.
type Manager struct {
	cfg    Config
	log    zerolog.Logger
	dialer websocket.Dialer

	mu       sync.RWMutex
	state    State
	conn     *websocket.Conn
	subs     []Arg
	subIndex map[Arg]struct{}
	handlers map[string][]Handler
	onState  []func(State)

	writeMu   sync.Mutex
	closed    chan struct{}
	closeOnce sync.Once
}

// New builds a manager in the DISCONNECTED state. Nothing is dialled until Run.
func New(cfg Config, log zerolog.Logger) *Manager {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.MaxReconnectDelay < cfg.ReconnectDelay {
		cfg.MaxReconnectDelay = defaultMaxReconnect
		if cfg.MaxReconnectDelay < cfg.ReconnectDelay {
			cfg.MaxReconnectDelay = cfg.ReconnectDelay
		}
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.Name == "" {
		cfg.Name = "okx"
	}
	return &Manager{
		cfg:      cfg,
		log:      log.With().Str("stream", cfg.Name).Logger(),
		dialer:   websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		subIndex: make(map[Arg]struct{}),
		handlers: make(map[string][]Handler),
		closed:   make(chan struct{}),
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// OnStateChange registers an observer called synchronously on every transition.
func (m *Manager) OnStateChange(fn func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onState = append(m.onState, fn)
}

func (m *Manager) setState(next State) {
	m.mu.Lock()
	if m.state == Closed || m.state == next {
		m.mu.Unlock()
		return
	}
	prev := m.state
	m.state = next
	observers := append(([]func(State))(nil), m.onState...)
	m.mu.Unlock()

	m.log.Debug().Str("from", prev.String()).Str("to", next.String()).Msg("stream state")
	for _, fn := range observers {
		fn(next)
	}
}

// RegisterHandler appends h to the handlers for key. Handlers for one key run in registration order.
func (m *Manager) RegisterHandler(key string, h Handler) {
	if h == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[key] = append(m.handlers[key], h)
}

// Subscribe records interest in args. Interest survives reconnects and is replayed on each one.
// When connected, the new args are also sent immediately.
func (m *Manager) Subscribe(args ...Arg) error {
	m.mu.Lock()
	if m.state == Closed {
		m.mu.Unlock()
		return ErrClosed
	}
	var fresh []Arg
	for _, a := range args {
		if _, ok := m.subIndex[a]; ok {
			continue
		}
		m.subIndex[a] = struct{}{}
		m.subs = append(m.subs, a)
		fresh = append(fresh, a)
	}
	conn := m.conn
	connected := m.state == Connected
	m.mu.Unlock()

	if !connected || conn == nil || len(fresh) == 0 {
		return nil
	}
	return m.sendSubscribe(conn, fresh)
}

// Subscriptions returns the persisted subscription set in insertion order.
func (m *Manager) Subscriptions() []Arg {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Arg(nil), m.subs...)
}

// Run connects and keeps reconnecting until ctx is done or Close is called.
// Connection failures never surface here; they schedule the next attempt.
// Cancelling ctx is treated as a stop request and closes the manager.
func (m *Manager) Run(ctx context.Context) error {
	bo := &backoff{base: m.cfg.ReconnectDelay, max: m.cfg.MaxReconnectDelay, exponential: m.cfg.Exponential}
	for {
		if done, err := m.stopped(ctx); done {
			return err
		}
		m.setState(Connecting)
		connected, err := m.session(ctx)
		if done, stopErr := m.stopped(ctx); done {
			return stopErr
		}
		if connected {
			bo.reset()
		}
		delay := bo.next()
		m.setState(Reconnecting)
		metrics.StreamReconnectsTotal.Inc()
		m.log.Warn().Err(err).Dur("delay", delay).Msg("stream disconnected, reconnecting")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			_ = m.Close()
			return ctx.Err()
		case <-m.closed:
			timer.Stop()
			return nil
		}
	}
}

// backoff yields the wait before each redial. Exponential mode grows it by
// backoffFactor up to max; reset returns it to base.
type backoff struct {
	base        time.Duration
	max         time.Duration
	exponential bool
	cur         time.Duration
}

func (b *backoff) reset() { b.cur = b.base }

func (b *backoff) next() time.Duration {
	if b.cur <= 0 {
		b.cur = b.base
	}
	d := b.cur
	if b.exponential {
		b.cur = min(b.max, time.Duration(float64(b.cur)*backoffFactor))
	}
	return d
}

func (m *Manager) stopped(ctx context.Context) (bool, error) {
	if m.IsClosed() {
		return true, nil
	}
	if ctx.Err() != nil {
		_ = m.Close()
		return true, ctx.Err()
	}
	return false, nil
}

// IsClosed reports whether Close was called.
func (m *Manager) IsClosed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}

// session dials once and reads until the connection fails. connected reports whether the dial succeeded.
func (m *Manager) session(ctx context.Context) (connected bool, err error) {
	if m.IsClosed() {
		return false, ErrClosed
	}
	conn, _, err := m.dialer.DialContext(ctx, m.cfg.URL, nil)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", m.cfg.URL, err)
	}
	defer conn.Close()

	m.mu.Lock()
	if m.state == Closed {
		m.mu.Unlock()
		return true, ErrClosed
	}
	m.conn = conn
	subs := append([]Arg(nil), m.subs...)
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		if m.conn == conn {
			m.conn = nil
		}
		m.mu.Unlock()
	}()

	m.setState(Connected)
	m.log.Info().Str("url", m.cfg.URL).Int("subscriptions", len(subs)).Msg("connected market data stream")

	if len(subs) > 0 {
		if err := m.sendSubscribe(conn, subs); err != nil {
			return true, err
		}
	}

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-sessCtx.Done():
		case <-m.closed:
		}
		_ = conn.Close()
	}()
	go m.keepalive(sessCtx, conn)

	readTimeout := 2*m.cfg.PingInterval + writeTimeout
	conn.SetReadLimit(1 << 22)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		m.Dispatch(raw)
	}
}

// keepalive sends OKX's text "ping" on a fixed interval until ctx ends.
func (m *Manager) keepalive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(m.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := m.write(conn, websocket.TextMessage, []byte("ping")); err != nil {
				m.log.Warn().Err(err).Msg("stream ping failed")
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

type subscribeRequest struct {
	Op   string `json:"op"`
	Args []Arg  `json:"args"`
}

func (m *Manager) sendSubscribe(conn *websocket.Conn, args []Arg) error {
	body, err := json.Marshal(subscribeRequest{Op: "subscribe", Args: args})
	if err != nil {
		return err
	}
	if err := m.write(conn, websocket.TextMessage, body); err != nil {
		return fmt.Errorf("send subscribe: %w", err)
	}
	m.log.Info().Int("channels", len(args)).Msg("subscribed")
	return nil
}

func (m *Manager) write(conn *websocket.Conn, kind int, body []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(kind, body)
}

// Close moves the manager to CLOSED, drops the connection and cancels any pending reconnect wait.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		conn := m.conn
		m.mu.Unlock()
		m.setState(Closed)
		close(m.closed)
		if conn != nil {
			m.writeMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			m.writeMu.Unlock()
			_ = conn.Close()
		}
		m.log.Info().Msg("stream closed")
	})
	return nil
}
