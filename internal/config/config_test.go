package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var envKeys = []string{
	"OKX_API_KEY", "OKX_SECRET_KEY", "OKX_PASSPHRASE", "DEEPSEEK_API_KEY", "DEEPSEEK_MODEL",
	"TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "LOG_LEVEL", "ENV", "TRADING_PAIRS", "DRY_RUN",
	"OKX_DEMO_TRADING", "LEVERAGE", "POSITION_SIZE_PERCENT", "MAX_LOSS_PER_TRADE_PERCENT",
	"RISK_REWARD_RATIO", "CONFIDENCE_THRESHOLD",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join("testdata", "config.yaml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.App.Name != "scalper-test" || cfg.App.LogFormat != "console" {
		t.Fatalf("unexpected App: %+v", cfg.App)
	}
	if !cfg.App.DryRun() {
		t.Fatalf("expected paper trade mode")
	}
	if len(cfg.Exchange.Symbols) != 2 || cfg.Exchange.Symbols[0] != "BTC-USDT-SWAP" {
		t.Fatalf("unexpected symbols: %+v", cfg.Exchange.Symbols)
	}
	if cfg.Exchange.ReconnectDelay() != 2*time.Second || !cfg.Exchange.ExponentialBackoff {
		t.Fatalf("unexpected reconnect settings: %+v", cfg.Exchange)
	}
	if cfg.Exchange.PingInterval() != 20*time.Second {
		t.Fatalf("expected default ping interval, got %s", cfg.Exchange.PingInterval())
	}
	if len(cfg.Store.Timeframes) != 2 || cfg.Store.Capacity != 50 {
		t.Fatalf("unexpected store: %+v", cfg.Store)
	}
	if cfg.Risk.ConfidenceThreshold != 80 || cfg.Risk.MinRiskReward != 2 || cfg.Risk.Cooldown() != 2*time.Minute {
		t.Fatalf("unexpected risk: %+v", cfg.Risk)
	}
	if cfg.Risk.PositionSizePercent != 2 || cfg.Risk.MaxLossPercent != 1 || cfg.Risk.MarginMode != "cross" {
		t.Fatalf("expected risk defaults, got %+v", cfg.Risk)
	}
	if cfg.Engine.CycleInterval() != 500*time.Millisecond || cfg.Engine.ReconcileSchedule != "@every 1m" {
		t.Fatalf("unexpected engine: %+v", cfg.Engine)
	}
	if cfg.Journal.Driver != "sqlite" || cfg.Journal.Path != "trades.db" {
		t.Fatalf("unexpected journal: %+v", cfg.Journal)
	}
	if cfg.Paper.StartingCash != 2500 {
		t.Fatalf("unexpected paper cash: %.2f", cfg.Paper.StartingCash)
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if strings.Join(cfg.Store.Timeframes, ",") != "1m,5m,15m,1H" {
		t.Fatalf("unexpected default timeframes: %v", cfg.Store.Timeframes)
	}
	if cfg.Store.Capacity != 100 || cfg.Store.MinBars != 20 {
		t.Fatalf("unexpected default store: %+v", cfg.Store)
	}
	if cfg.Risk.ConfidenceThreshold != 75 || cfg.Risk.MinRiskReward != 1.5 || cfg.Risk.Cooldown() != 300*time.Second {
		t.Fatalf("unexpected default risk: %+v", cfg.Risk)
	}
	if cfg.Exchange.ReconnectDelay() != 5*time.Second {
		t.Fatalf("unexpected default reconnect delay: %s", cfg.Exchange.ReconnectDelay())
	}
	if cfg.Strategy.Mode != "hold" {
		t.Fatalf("expected hold strategy without api key, got %s", cfg.Strategy.Mode)
	}
	if cfg.Engine.ReconcileSchedule != "@every 300s" {
		t.Fatalf("unexpected reconcile schedule %q", cfg.Engine.ReconcileSchedule)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRADING_PAIRS", "SOL-USDT, DOGE-USDT ,")
	t.Setenv("DEEPSEEK_API_KEY", "sk-test")
	t.Setenv("LEVERAGE", "10")
	t.Setenv("LOG_LEVEL", "WARNING")
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("TELEGRAM_CHAT_ID", "42")

	cfg, err := Load(filepath.Join("testdata", "config.yaml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if strings.Join(cfg.Exchange.Symbols, ",") != "SOL-USDT,DOGE-USDT" {
		t.Fatalf("unexpected symbols: %v", cfg.Exchange.Symbols)
	}
	if cfg.Strategy.Params.APIKey != "sk-test" || cfg.Risk.Leverage != 10 || cfg.App.LogLevel != "warn" {
		t.Fatalf("env overrides not applied: %+v %+v", cfg.Strategy.Params, cfg.Risk)
	}
	if !cfg.Telegram.Enabled {
		t.Fatalf("expected telegram enabled from env")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	clearEnv(t)
	t.Setenv("DRY_RUN", "false")
	if _, err := Load(filepath.Join("testdata", "config.yaml")); err == nil {
		t.Fatalf("expected live mode without credentials to fail")
	}

	clearEnv(t)
	t.Setenv("LEVERAGE", "lots")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected bad LEVERAGE to fail")
	}

	cfg := &Config{}
	cfg.ApplyDefaults()
	cfg.Risk.ConfidenceThreshold = 150
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected confidence above 100 to fail")
	}
}

func TestExplicitZeroSurvivesDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "zero.yaml")
	body := "risk:\n  cooldown_secs: 0\nstrategy:\n  params:\n    temperature: 0\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Risk.Cooldown() != 0 {
		t.Fatalf("expected cooldown disabled, got %s", cfg.Risk.Cooldown())
	}
	if cfg.Strategy.Params.Temperature == nil || *cfg.Strategy.Params.Temperature != 0 {
		t.Fatalf("expected temperature 0, got %v", cfg.Strategy.Params.Temperature)
	}

	defaults, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if *defaults.Strategy.Params.Temperature != 0.1 {
		t.Fatalf("expected default temperature, got %v", *defaults.Strategy.Params.Temperature)
	}

	cfg.Risk.CooldownSecs = ptr(-1)
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected negative cooldown to fail")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join("testdata", "config.yaml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload returned error: %v", err)
	}
	if again.Risk.ConfidenceThreshold != cfg.Risk.ConfidenceThreshold || again.App.Name != cfg.App.Name {
		t.Fatalf("round trip mismatch")
	}
}
