package engine

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/ramihomecare1-commits/Scalper/internal/config"
	"github.com/ramihomecare1-commits/Scalper/internal/exchange"
	"github.com/ramihomecare1-commits/Scalper/internal/execution"
	"github.com/ramihomecare1-commits/Scalper/internal/lifecycle"
	"github.com/ramihomecare1-commits/Scalper/internal/notifier"
	"github.com/ramihomecare1-commits/Scalper/internal/paper"
	"github.com/ramihomecare1-commits/Scalper/internal/recorder"
	"github.com/ramihomecare1-commits/Scalper/internal/risk"
	"github.com/ramihomecare1-commits/Scalper/internal/store"
	"github.com/ramihomecare1-commits/Scalper/internal/strategy"
	"github.com/ramihomecare1-commits/Scalper/internal/stream"
)

// Build assembles a production engine from cfg.
func Build(cfg *config.Config, log zerolog.Logger) (*Engine, error) {
	ex := cfg.Exchange
	client := exchange.NewClient(
		exchange.Credentials{APIKey: ex.APIKey, Secret: ex.APISecret, Passphrase: ex.Passphrase},
		log,
		exchange.WithBaseURL(ex.RESTURL),
		exchange.WithTimeout(ex.Timeout()),
		exchange.WithDemo(ex.Demo),
	)

	var closers []io.Closer
	var trader execution.Trader = client
	var paperEx *paper.Exchange
	var ledger *paper.Ledger
	if cfg.App.DryRun() {
		ledger = paper.NewLedger(64)
		recorders := []paper.FillRecorder{ledger}
		if cfg.Paper.FillsPath != "" {
			fills, err := paper.OpenFillLog(cfg.Paper.FillsPath, log)
			if err != nil {
				return nil, fmt.Errorf("open paper fills: %w", err)
			}
			recorders = append(recorders, fills)
			closers = append(closers, fills)
		}
		paperEx = paper.NewExchange(paper.NewAccount(cfg.Paper.StartingCash), cfg.Paper.SlippageBps, log, recorders...)
		trader = paperEx
	}

	journal, err := recorder.Open(cfg.Journal.Driver, cfg.Journal.Path, log)
	if err != nil {
		closeAll(closers)
		return nil, fmt.Errorf("open journal: %w", err)
	}

	var sink notifier.Sink = notifier.LogSink(func(text string) {
		log.Debug().Str("text", text).Msg("notification")
	})
	if cfg.Telegram.Enabled {
		sink = notifier.NewTelegramSink(cfg.Telegram.BaseURL, cfg.Telegram.BotToken, cfg.Telegram.ChatID, ex.Timeout())
	}

	streamCfg := func(name, url string) stream.Config {
		return stream.Config{
			Name:              name,
			URL:               url,
			ReconnectDelay:    ex.ReconnectDelay(),
			MaxReconnectDelay: ex.MaxReconnectDelay(),
			Exponential:       ex.ExponentialBackoff,
			PingInterval:      ex.PingInterval(),
			HandshakeTimeout:  ex.Timeout(),
		}
	}
	public := stream.New(streamCfg("public", ex.WSURL), log)
	var business Streamer = public
	if ex.WSBusinessURL != "" && ex.WSBusinessURL != ex.WSURL {
		business = stream.New(streamCfg("business", ex.WSBusinessURL), log)
	}

	sp := cfg.Strategy.Params
	deps := Deps{
		Store: store.New(store.Config{
			Timeframes: cfg.Store.Timeframes,
			Capacity:   cfg.Store.Capacity,
			MinBars:    cfg.Store.MinBars,
		}),
		Public:   public,
		Business: business,
		History:  client,
		Strategy: strategy.Build(cfg.Strategy.Mode, strategy.Params{
			BaseURL:     sp.BaseURL,
			APIKey:      sp.APIKey,
			Model:       sp.Model,
			Timeout:     sp.Timeout(),
			MaxTokens:   sp.MaxTokens,
			Temperature: sp.Temperature,
			Batch:       sp.Batch,
		}, log),
		Gate:    risk.Gate{ConfidenceThreshold: cfg.Risk.ConfidenceThreshold, MinRiskReward: cfg.Risk.MinRiskReward},
		Tracker: lifecycle.New(cfg.Risk.Cooldown()),
		Trader:  trader,
		Executor: execution.NewExecutor(trader, execution.Config{
			Limits: risk.Limits{
				PositionSizePercent: cfg.Risk.PositionSizePercent,
				Leverage:            cfg.Risk.Leverage,
				MaxLossPercent:      cfg.Risk.MaxLossPercent,
			},
			MarginMode: cfg.Risk.MarginMode,
			DryRun:     cfg.App.DryRun(),
		}, log),
		Paper:    paperEx,
		Fills:    ledger,
		Recorder: journal,
		Notifier: notifier.New(sink, cfg.Telegram.QueueSize, log),
	}

	if !cfg.App.DryRun() {
		deps.Instruments = client
	}

	eng, err := New(Settings{
		Symbols:           ex.Symbols,
		InstType:          ex.InstType,
		CycleInterval:     cfg.Engine.CycleInterval(),
		ErrorBackoff:      cfg.Engine.ErrorBackoff(),
		ReconcileSchedule: cfg.Engine.ReconcileSchedule,
		ShutdownGrace:     cfg.Engine.ShutdownGrace(),
		Warmup:            ex.Warmup,
		WarmupBars:        cfg.Store.Capacity,
		DryRun:            cfg.App.DryRun(),
	}, deps, log)
	if err != nil {
		_ = journal.Close()
		closeAll(closers)
		return nil, err
	}
	eng.closers = closers
	return eng, nil
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		_ = c.Close()
	}
}
