// Package engine wires the stream, store, strategy, gate, tracker and executor into the trading loop.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/ramihomecare1-commits/Scalper/internal/exchange"
	"github.com/ramihomecare1-commits/Scalper/internal/execution"
	"github.com/ramihomecare1-commits/Scalper/internal/lifecycle"
	"github.com/ramihomecare1-commits/Scalper/internal/market"
	"github.com/ramihomecare1-commits/Scalper/internal/notifier"
	"github.com/ramihomecare1-commits/Scalper/internal/paper"
	"github.com/ramihomecare1-commits/Scalper/internal/recorder"
	"github.com/ramihomecare1-commits/Scalper/internal/risk"
	"github.com/ramihomecare1-commits/Scalper/internal/store"
	"github.com/ramihomecare1-commits/Scalper/internal/strategy"
	"github.com/ramihomecare1-commits/Scalper/internal/stream"
)

// Streamer is the subset of stream.Manager the engine drives.
type Streamer interface {
	RegisterHandler(key string, h stream.Handler)
	Subscribe(args ...stream.Arg) error
	Run(ctx context.Context) error
	Close() error
	State() stream.State
}

// CandleSource backfills history before the stream delivers it.
type CandleSource interface {
	Candles(ctx context.Context, instID, bar string, limit int) ([]market.Candle, error)
}

// InstrumentLoader caches contract specs so order sizes can be converted to contracts.
type InstrumentLoader interface {
	Instruments(ctx context.Context, instType string) ([]exchange.Instrument, error)
}

// Settings are the engine's scheduling knobs.
type Settings struct {
	Symbols           []string
	InstType          string
	CycleInterval     time.Duration
	ErrorBackoff      time.Duration
	ReconcileSchedule string
	ShutdownGrace     time.Duration
	Warmup            bool
	WarmupBars        int
	DryRun            bool
}

// Deps are the collaborators. Public carries books and tickers, Business carries candles;
// they may be the same Streamer. Only Store, Public, Strategy, Tracker, Trader and Executor are required.
type Deps struct {
	Store       *store.Store
	Public      Streamer
	Business    Streamer
	History     CandleSource
	Instruments InstrumentLoader
	Strategy    strategy.Strategy
	Gate        risk.Gate
	Tracker     *lifecycle.Tracker
	Trader      execution.Trader
	Executor    *execution.Executor
	Paper       *paper.Exchange
	Fills       *paper.Ledger
	Recorder    recorder.Recorder
	Notifier    *notifier.Notifier
}

// Engine runs the analysis cycle until its context ends.
type Engine struct {
	cfg  Settings
	deps Deps
	log  zerolog.Logger
	now  func() time.Time
	cron *cron.Cron

	closers []io.Closer

	cycles    atomic.Int64
	cycleErrs atomic.Int64
	trades    atomic.Int64
	mu        sync.Mutex
	lastCycle time.Time
}

// New validates deps and fills scheduling defaults.
func New(cfg Settings, deps Deps, log zerolog.Logger) (*Engine, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("engine: store is required")
	case deps.Public == nil:
		return nil, errors.New("engine: public stream is required")
	case deps.Strategy == nil:
		return nil, errors.New("engine: strategy is required")
	case deps.Tracker == nil:
		return nil, errors.New("engine: tracker is required")
	case deps.Trader == nil || deps.Executor == nil:
		return nil, errors.New("engine: trader and executor are required")
	}
	if deps.Business == nil {
		deps.Business = deps.Public
	}
	if deps.Recorder == nil {
		deps.Recorder = recorder.NewNoopRecorder()
	}
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = time.Second
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 5 * time.Second
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}
	if cfg.WarmupBars <= 0 {
		cfg.WarmupBars = 100
	}
	e := &Engine{cfg: cfg, deps: deps, log: log, now: time.Now, cron: cron.New()}
	if cfg.ReconcileSchedule != "" {
		if _, err := e.cron.AddFunc(cfg.ReconcileSchedule, e.scheduledReconcile); err != nil {
			return nil, fmt.Errorf("register reconcile schedule %q: %w", cfg.ReconcileSchedule, err)
		}
	}
	e.registerHandlers()
	return e, nil
}

// Run warms up, subscribes and cycles until ctx is cancelled, then shuts down in order:
// cycle loop, streams (including any pending reconnect wait), scheduler, notifier drain, journal.
func (e *Engine) Run(ctx context.Context) error {
	if e.deps.Instruments != nil {
		insts, err := e.deps.Instruments.Instruments(ctx, e.cfg.InstType)
		if err != nil {
			return fmt.Errorf("load instruments: %w", err)
		}
		e.log.Info().Int("instruments", len(insts)).Str("inst_type", e.cfg.InstType).Msg("instrument specs loaded")
	}
	if e.cfg.Warmup && e.deps.History != nil {
		e.warmup(ctx)
	}
	if err := e.subscribe(); err != nil {
		return err
	}

	var streams sync.WaitGroup
	for _, s := range e.streamers() {
		streams.Add(1)
		go func(s Streamer) {
			defer streams.Done()
			if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				e.log.Error().Err(err).Msg("stream stopped")
			}
		}(s)
	}

	notifyCtx, cancelNotify := context.WithCancel(context.Background())
	defer cancelNotify()
	if e.deps.Notifier != nil {
		go e.deps.Notifier.Run(notifyCtx)
	}

	e.reconcile(ctx)
	e.cron.Start()
	e.log.Info().Strs("symbols", e.cfg.Symbols).Str("strategy", e.deps.Strategy.Name()).
		Bool("dry_run", e.cfg.DryRun).Dur("cycle", e.cfg.CycleInterval).Msg("engine started")

	e.loop(ctx)
	return e.shutdown(&streams, cancelNotify)
}

func (e *Engine) loop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.CycleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := e.safeCycle(ctx); err != nil {
			e.cycleErrs.Add(1)
			e.log.Error().Err(err).Dur("backoff", e.cfg.ErrorBackoff).Msg("analysis cycle failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(e.cfg.ErrorBackoff):
			}
		}
	}
}

// safeCycle turns a panic inside one iteration into an error so the loop survives.
func (e *Engine) safeCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v", r)
		}
	}()
	e.runCycle(ctx)
	return nil
}

func (e *Engine) shutdown(streams *sync.WaitGroup, cancelNotify context.CancelFunc) error {
	deadline := time.Now().Add(e.cfg.ShutdownGrace)
	graceCtx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	var errs []error
	for _, s := range e.streamers() {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if !waitGroup(graceCtx, streams) {
		errs = append(errs, errors.New("streams did not stop within grace period"))
	}

	select {
	case <-e.cron.Stop().Done():
	case <-graceCtx.Done():
		errs = append(errs, errors.New("reconcile job did not finish within grace period"))
	}

	if e.deps.Notifier != nil {
		if err := e.deps.Notifier.Close(graceCtx); err != nil {
			errs = append(errs, err)
		}
	}
	cancelNotify()

	if err := e.deps.Recorder.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close journal: %w", err))
	}
	for _, c := range e.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.log.Info().Int64("cycles", e.cycles.Load()).Int64("trades", e.trades.Load()).Msg("engine stopped")
	return errors.Join(errs...)
}

func (e *Engine) streamers() []Streamer {
	if e.deps.Business == e.deps.Public {
		return []Streamer{e.deps.Public}
	}
	return []Streamer{e.deps.Public, e.deps.Business}
}

func (e *Engine) subscribe() error {
	var public, business []stream.Arg
	for _, sym := range e.cfg.Symbols {
		public = append(public,
			stream.Arg{Channel: market.ChannelBooks5, InstID: sym},
			stream.Arg{Channel: market.ChannelTickers, InstID: sym},
		)
		for _, tf := range e.deps.Store.Timeframes() {
			business = append(business, stream.Arg{Channel: market.CandleChannel(tf), InstID: sym})
		}
	}
	if err := e.deps.Public.Subscribe(public...); err != nil {
		return fmt.Errorf("subscribe public channels: %w", err)
	}
	if err := e.deps.Business.Subscribe(business...); err != nil {
		return fmt.Errorf("subscribe candle channels: %w", err)
	}
	return nil
}

func (e *Engine) warmup(ctx context.Context) {
	for _, sym := range e.cfg.Symbols {
		for _, tf := range e.deps.Store.Timeframes() {
			candles, err := e.deps.History.Candles(ctx, sym, tf, e.cfg.WarmupBars)
			if err != nil {
				e.log.Warn().Err(err).Str("symbol", sym).Str("timeframe", tf).Msg("warm-up fetch failed")
				continue
			}
			var loaded int
			for _, c := range candles {
				if err := e.deps.Store.UpsertCandle(sym, tf, c); err == nil {
					loaded++
				}
			}
			e.log.Info().Str("symbol", sym).Str("timeframe", tf).Int("candles", loaded).Msg("warm-up loaded")
		}
	}
}

func waitGroup(ctx context.Context, wg *sync.WaitGroup) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
