// scalper trades OKX perpetuals from live order book and candle data.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ramihomecare1-commits/Scalper/internal/config"
	"github.com/ramihomecare1-commits/Scalper/internal/engine"
	"github.com/ramihomecare1-commits/Scalper/internal/metrics"
	"github.com/ramihomecare1-commits/Scalper/internal/recorder"
	"github.com/ramihomecare1-commits/Scalper/internal/util"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "scalper",
		Short:         "Order-book scalping bot for OKX",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runBot,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (environment and .env override it)")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Stream market data and trade until interrupted",
		RunE:  runBot,
	})
	root.AddCommand(configCmd())
	root.AddCommand(statsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runBot(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := util.NewLogger(cfg.App.LogLevel, cfg.App.LogFormat).With().Str("app", cfg.App.Name).Logger()

	eng, err := engine.Build(cfg, log)
	if err != nil {
		return err
	}

	if cfg.App.MetricsAddr != "" {
		srv := metrics.Serve(cfg.App.MetricsAddr, eng.Stats)
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	ctx, cancel := ossignal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	mode := "LIVE"
	if cfg.App.DryRun() {
		mode = "PAPER"
	}
	log.Info().Str("mode", mode).Bool("demo", cfg.Exchange.Demo).Strs("symbols", cfg.Exchange.Symbols).
		Str("strategy", cfg.Strategy.Mode).Msg("starting")

	if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("shut down cleanly")
	return nil
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(redact(*cfg))
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write a config file populated with defaults",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); err == nil {
				return fmt.Errorf("%s already exists", args[0])
			}
			var cfg config.Config
			cfg.ApplyDefaults()
			if err := config.Save(args[0], &cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
			return nil
		},
	})
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarise the trade journal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			log := util.NewLogger("error", "console")
			rec, err := recorder.Open(cfg.Journal.Driver, cfg.Journal.Path, log)
			if err != nil {
				return err
			}
			defer rec.Close()
			stats, err := rec.Stats()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}
}

func redact(cfg config.Config) config.Config {
	mask := func(s *string) {
		if *s != "" {
			*s = "****"
		}
	}
	mask(&cfg.Exchange.APIKey)
	mask(&cfg.Exchange.APISecret)
	mask(&cfg.Exchange.Passphrase)
	mask(&cfg.Strategy.Params.APIKey)
	mask(&cfg.Telegram.BotToken)
	return cfg
}
