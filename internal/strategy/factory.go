// Package strategy is the reasoning boundary: it turns consolidated snapshots into candidate decisions.
package strategy

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ramihomecare1-commits/Scalper/internal/signal"
	"github.com/ramihomecare1-commits/Scalper/internal/snapshot"
)

// Strategy defines behaviour shared by strategy implementations used by the bot.
// Decide never fails: symbols without a usable answer are simply absent from the result.
type Strategy interface {
	Decide(ctx context.Context, snaps []snapshot.Consolidated) map[string]*signal.Decision
	Name() string
}

// Params expresses tunable knobs required by strategy constructors.
type Params struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	MaxTokens   int
	Temperature *float64
	Batch       bool
}

// Build returns a strategy implementation matching the configured mode.
// DeepSeek without an API key degrades to Hold.
func Build(mode string, params Params, log zerolog.Logger) Strategy {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "deepseek":
		if params.APIKey == "" {
			log.Warn().Msg("deepseek api key missing, falling back to hold strategy")
			return Hold{}
		}
		return NewDeepSeek(params, log)
	default:
		return Hold{}
	}
}

// Hold never trades. It keeps the pipeline running when no reasoning service is configured.
type Hold struct{}

func (Hold) Name() string { return "hold" }

func (Hold) Decide(_ context.Context, snaps []snapshot.Consolidated) map[string]*signal.Decision {
	out := make(map[string]*signal.Decision, len(snaps))
	for _, s := range snaps {
		out[s.Symbol] = &signal.Decision{Action: signal.Hold, Reasoning: "no reasoning service configured"}
	}
	return out
}
