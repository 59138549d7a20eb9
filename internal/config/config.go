// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn error"`
	LogFormat   string `yaml:"log_format" validate:"omitempty,oneof=json console"`
	TradeMode   string `yaml:"trade_mode" validate:"oneof=paper live"`
}

// DryRun reports whether orders go to the paper exchange.
func (a App) DryRun() bool { return a.TradeMode != "live" }

// Exchange describes the OKX connectivity the bot streams from and trades on.
type Exchange struct {
	Name                string   `yaml:"name" validate:"required,eq=okx"`
	Symbols             []string `yaml:"symbols" validate:"required,min=1,dive,required"`
	InstType            string   `yaml:"inst_type" validate:"required,oneof=SPOT MARGIN SWAP FUTURES"`
	WSURL               string   `yaml:"ws_url" validate:"required,url"`
	WSBusinessURL       string   `yaml:"ws_business_url" validate:"omitempty,url"`
	RESTURL             string   `yaml:"rest_url" validate:"required,url"`
	APIKey              string   `yaml:"api_key"`
	APISecret           string   `yaml:"api_secret"`
	Passphrase          string   `yaml:"passphrase"`
	Demo                bool     `yaml:"demo"`
	TimeoutMs           int      `yaml:"timeout_ms" validate:"gt=0"`
	ReconnectDelayMs    int      `yaml:"reconnect_delay_ms" validate:"gt=0"`
	MaxReconnectDelayMs int      `yaml:"max_reconnect_delay_ms" validate:"gtefield=ReconnectDelayMs"`
	ExponentialBackoff  bool     `yaml:"exponential_backoff"`
	PingIntervalMs      int      `yaml:"ping_interval_ms" validate:"gt=0"`
	Warmup              bool     `yaml:"warmup"`
}

// Store shapes the per-symbol candle history.
type Store struct {
	Timeframes []string `yaml:"timeframes" validate:"required,min=1,dive,required"`
	Capacity   int      `yaml:"capacity" validate:"gtefield=MinBars"`
	MinBars    int      `yaml:"min_bars" validate:"gt=0"`
}

// Risk encodes the gate thresholds and sizing guard-rails.
type Risk struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold" validate:"gte=0,lte=100"`
	MinRiskReward       float64 `yaml:"min_risk_reward" validate:"gt=0"`
	CooldownSecs        *int    `yaml:"cooldown_secs" validate:"omitempty,gte=0"`
	PositionSizePercent float64 `yaml:"position_size_percent" validate:"gt=0,lte=100"`
	MaxLossPercent      float64 `yaml:"max_loss_percent" validate:"gt=0,lte=100"`
	Leverage            float64 `yaml:"leverage" validate:"gte=1,lte=125"`
	MarginMode          string  `yaml:"margin_mode" validate:"oneof=cross isolated cash"`
}

// StrategyParams groups the reasoning service knobs.
type StrategyParams struct {
	BaseURL     string   `yaml:"base_url"`
	APIKey      string   `yaml:"api_key"`
	Model       string   `yaml:"model"`
	TimeoutMs   int      `yaml:"timeout_ms" validate:"gte=0"`
	MaxTokens   int      `yaml:"max_tokens" validate:"gte=0"`
	Temperature *float64 `yaml:"temperature" validate:"omitempty,gte=0,lte=2"`
	Batch       bool     `yaml:"batch"`
}

// Strategy specifies which strategy is active along with the parameter bundle.
type Strategy struct {
	Mode   string         `yaml:"mode" validate:"oneof=deepseek hold"`
	Params StrategyParams `yaml:"params"`
}

// Engine controls the analysis cycle and its background jobs.
type Engine struct {
	CycleIntervalMs   int    `yaml:"cycle_interval_ms" validate:"gt=0"`
	ErrorBackoffMs    int    `yaml:"error_backoff_ms" validate:"gte=0"`
	ReconcileSchedule string `yaml:"reconcile_schedule"`
	ShutdownGraceMs   int    `yaml:"shutdown_grace_ms" validate:"gt=0"`
}

// Telegram configures outbound notifications.
type Telegram struct {
	Enabled   bool   `yaml:"enabled"`
	BotToken  string `yaml:"bot_token" validate:"required_if=Enabled true"`
	ChatID    string `yaml:"chat_id" validate:"required_if=Enabled true"`
	BaseURL   string `yaml:"base_url"`
	QueueSize int    `yaml:"queue_size" validate:"gte=0"`
}

// Journal selects where executed trades are recorded.
type Journal struct {
	Driver string `yaml:"driver" validate:"oneof=jsonl sqlite none"`
	Path   string `yaml:"path" validate:"required_unless=Driver none"`
}

// Paper captures dry-run account settings.
type Paper struct {
	StartingCash float64 `yaml:"starting_cash" validate:"gte=0"`
	SlippageBps  float64 `yaml:"slippage_bps" validate:"gte=0"`
	FillsPath    string  `yaml:"fills_path"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App      App      `yaml:"app"`
	Exchange Exchange `yaml:"exchange"`
	Store    Store    `yaml:"store"`
	Risk     Risk     `yaml:"risk"`
	Strategy Strategy `yaml:"strategy"`
	Engine   Engine   `yaml:"engine"`
	Telegram Telegram `yaml:"telegram"`
	Journal  Journal  `yaml:"journal"`
	Paper    Paper    `yaml:"paper"`
}

// Load reads .env (if present), the YAML file at path (if non-empty), applies
// environment overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

var validate = validator.New()

// Validate checks struct tags plus the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if !c.App.DryRun() && (c.Exchange.APIKey == "" || c.Exchange.APISecret == "" || c.Exchange.Passphrase == "") {
		return errors.New("invalid config: live trading requires exchange api_key, api_secret and passphrase")
	}
	if c.Strategy.Mode == "deepseek" && c.Strategy.Params.APIKey == "" {
		return errors.New("invalid config: deepseek strategy requires params.api_key")
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := map[string]*string{
		"OKX_API_KEY":        &c.Exchange.APIKey,
		"OKX_SECRET_KEY":     &c.Exchange.APISecret,
		"OKX_PASSPHRASE":     &c.Exchange.Passphrase,
		"DEEPSEEK_API_KEY":   &c.Strategy.Params.APIKey,
		"DEEPSEEK_MODEL":     &c.Strategy.Params.Model,
		"TELEGRAM_BOT_TOKEN": &c.Telegram.BotToken,
		"TELEGRAM_CHAT_ID":   &c.Telegram.ChatID,
		"ENV":                &c.App.Env,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.App.LogLevel = strings.ToLower(v)
		if c.App.LogLevel == "warning" {
			c.App.LogLevel = "warn"
		}
	}
	if v, ok := lookup("TRADING_PAIRS"); ok && v != "" {
		c.Exchange.Symbols = splitList(v)
	}
	if v, ok := lookup("DRY_RUN"); ok && v != "" {
		dry, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("env DRY_RUN: %w", err)
		}
		c.App.TradeMode = "live"
		if dry {
			c.App.TradeMode = "paper"
		}
	}
	if v, ok := lookup("OKX_DEMO_TRADING"); ok && v != "" {
		demo, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("env OKX_DEMO_TRADING: %w", err)
		}
		c.Exchange.Demo = demo
	}
	floats := map[string]*float64{
		"LEVERAGE":                   &c.Risk.Leverage,
		"POSITION_SIZE_PERCENT":      &c.Risk.PositionSizePercent,
		"MAX_LOSS_PER_TRADE_PERCENT": &c.Risk.MaxLossPercent,
		"RISK_REWARD_RATIO":          &c.Risk.MinRiskReward,
		"CONFIDENCE_THRESHOLD":       &c.Risk.ConfidenceThreshold,
	}
	for key, dst := range floats {
		if v, ok := lookup(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("env %s: %w", key, err)
			}
			*dst = f
		}
	}
	if c.Telegram.BotToken != "" && c.Telegram.ChatID != "" {
		c.Telegram.Enabled = true
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ApplyDefaults fills every zero-valued knob.
func (c *Config) ApplyDefaults() {
	setString(&c.App.Name, "scalper")
	setString(&c.App.Env, "development")
	setString(&c.App.LogLevel, "info")
	setString(&c.App.LogFormat, "json")
	setString(&c.App.TradeMode, "paper")

	setString(&c.Exchange.Name, "okx")
	setString(&c.Exchange.InstType, "SWAP")
	wsHost := "wss://ws.okx.com:8443"
	if c.Exchange.Demo {
		wsHost = "wss://wspap.okx.com:8443"
	}
	setString(&c.Exchange.WSURL, wsHost+"/ws/v5/public")
	setString(&c.Exchange.WSBusinessURL, wsHost+"/ws/v5/business")
	setString(&c.Exchange.RESTURL, "https://www.okx.com")
	setInt(&c.Exchange.TimeoutMs, 10000)
	setInt(&c.Exchange.ReconnectDelayMs, 5000)
	setInt(&c.Exchange.MaxReconnectDelayMs, 60000)
	setInt(&c.Exchange.PingIntervalMs, 20000)
	if len(c.Exchange.Symbols) == 0 {
		c.Exchange.Symbols = []string{"BTC-USDT-SWAP", "ETH-USDT-SWAP"}
	}

	if len(c.Store.Timeframes) == 0 {
		c.Store.Timeframes = []string{"1m", "5m", "15m", "1H"}
	}
	setInt(&c.Store.Capacity, 100)
	setInt(&c.Store.MinBars, 20)

	setFloat(&c.Risk.ConfidenceThreshold, 75)
	setFloat(&c.Risk.MinRiskReward, 1.5)
	if c.Risk.CooldownSecs == nil {
		c.Risk.CooldownSecs = ptr(300)
	}
	setFloat(&c.Risk.PositionSizePercent, 2)
	setFloat(&c.Risk.MaxLossPercent, 1)
	setFloat(&c.Risk.Leverage, 3)
	setString(&c.Risk.MarginMode, "cross")

	if c.Strategy.Mode == "" {
		c.Strategy.Mode = "hold"
		if c.Strategy.Params.APIKey != "" {
			c.Strategy.Mode = "deepseek"
		}
	}
	setString(&c.Strategy.Params.BaseURL, "https://api.deepseek.com/v1")
	setString(&c.Strategy.Params.Model, "deepseek-chat")
	setInt(&c.Strategy.Params.TimeoutMs, 30000)
	setInt(&c.Strategy.Params.MaxTokens, 1000)
	if c.Strategy.Params.Temperature == nil {
		c.Strategy.Params.Temperature = ptr(0.1)
	}

	setInt(&c.Engine.CycleIntervalMs, 1000)
	setInt(&c.Engine.ErrorBackoffMs, 5000)
	setString(&c.Engine.ReconcileSchedule, "@every 300s")
	setInt(&c.Engine.ShutdownGraceMs, 10000)

	setString(&c.Telegram.BaseURL, "https://api.telegram.org")
	setInt(&c.Telegram.QueueSize, 64)

	setString(&c.Journal.Driver, "jsonl")
	if c.Journal.Driver != "none" {
		setString(&c.Journal.Path, "trade_history.jsonl")
	}

	setFloat(&c.Paper.StartingCash, 10000)
}

func ptr[T any](v T) *T { return &v }

func setString(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if *dst == 0 {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if *dst == 0 {
		*dst = v
	}
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// Timeout is the per-request REST deadline.
func (e Exchange) Timeout() time.Duration { return ms(e.TimeoutMs) }

// ReconnectDelay is the wait before each reconnect attempt.
func (e Exchange) ReconnectDelay() time.Duration { return ms(e.ReconnectDelayMs) }

// MaxReconnectDelay caps exponential growth of the reconnect delay.
func (e Exchange) MaxReconnectDelay() time.Duration { return ms(e.MaxReconnectDelayMs) }

// PingInterval is the keepalive cadence while connected.
func (e Exchange) PingInterval() time.Duration { return ms(e.PingIntervalMs) }

// Cooldown is the minimum spacing between trades on one symbol. Zero disables it.
func (r Risk) Cooldown() time.Duration {
	if r.CooldownSecs == nil {
		return 0
	}
	return time.Duration(*r.CooldownSecs) * time.Second
}

// Timeout bounds one reasoning request.
func (p StrategyParams) Timeout() time.Duration { return ms(p.TimeoutMs) }

// CycleInterval is the analysis loop period.
func (e Engine) CycleInterval() time.Duration { return ms(e.CycleIntervalMs) }

// ErrorBackoff is the pause after a failed cycle.
func (e Engine) ErrorBackoff() time.Duration { return ms(e.ErrorBackoffMs) }

// ShutdownGrace bounds the ordered shutdown.
func (e Engine) ShutdownGrace() time.Duration { return ms(e.ShutdownGraceMs) }
