package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"lendledger/config"
	"lendledger/core/events"
	"lendledger/core/ledger"
	nativecommon "lendledger/native/common"
	"lendledger/observability/logging"
	"lendledger/observability/metrics"
	telemetry "lendledger/observability/otel"
	"lendledger/storage"
)

const serviceName = "lendd"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "lendd",
		Short:        "Collateralized multi-asset lending ledger",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "./config.toml", "config file path")
	root.PersistentFlags().String("data-dir", "", "override the configured data directory")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(serveCommand(), replayCommand(), rankingsCommand(), rootCommand())
	return root
}

// node is the opened data directory plus everything wired around it.
type node struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *storage.LevelDB
	ledger   *ledger.Ledger
	shutdown func(context.Context) error
}

// openNode loads the config and opens the ledger. Serving nodes also start
// telemetry; one-shot commands log to stderr so stdout carries only results.
func openNode(ctx context.Context, cmd *cobra.Command, serving bool) (*node, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dir, _ := cmd.Flags().GetString("data-dir"); strings.TrimSpace(dir) != "" {
		cfg.DataDir = dir
	}
	level := cfg.Log.Level
	if flagLevel, _ := cmd.Flags().GetString("log-level"); flagLevel != "" {
		level = flagLevel
	}
	env := cfg.Environment
	if env == "" {
		env = strings.TrimSpace(os.Getenv("LENDLEDGER_ENV"))
	}
	logOpts := logging.Options{Service: serviceName, Env: env, Level: level}
	if cfg.Log.File != "" {
		logOpts.File = &logging.FileSink{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Compress:   true,
		}
	}
	if !serving {
		logOpts.Output = cmd.ErrOrStderr()
	}
	logger := logging.SetupWithOptions(logOpts)

	shutdown := func(context.Context) error { return nil }
	if serving {
		shutdown, err = telemetry.Init(ctx, telemetry.Config{
			ServiceName: serviceName,
			Environment: env,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     cfg.Telemetry.Headers,
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
			SampleRatio: cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			return nil, fmt.Errorf("init telemetry: %w", err)
		}
	}

	params, err := cfg.Lending.Params()
	if err != nil {
		return nil, err
	}
	actionPauses, err := cfg.Lending.ActionPauses()
	if err != nil {
		return nil, err
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("open data dir %s: %w", cfg.DataDir, err)
	}
	opts := ledger.Options{
		Params:       params,
		ActionPauses: actionPauses,
		Logger:       logger,
		Metrics:      metrics.Lending(),
		Emitter:      events.LogEmitter{Logger: logger.With(slog.String("component", "events"))},
	}
	if cfg.Lending.Paused {
		opts.Pauses = nativecommon.NewStaticPauses("lending")
	}
	l, err := ledger.New(db, opts)
	if err != nil {
		db.Close()
		_ = shutdown(ctx)
		return nil, err
	}
	if n, err := l.SeedPools(ctx, cfg.Assets); err != nil {
		db.Close()
		_ = shutdown(ctx)
		return nil, fmt.Errorf("seed pools: %w", err)
	} else if n > 0 {
		logger.Info("listed configured assets", slog.Int("count", n))
	}
	return &node{cfg: cfg, logger: logger, db: db, ledger: l, shutdown: shutdown}, nil
}

func (n *node) Close(ctx context.Context) {
	if err := n.shutdown(ctx); err != nil {
		n.logger.Warn("telemetry shutdown", slog.String("error", err.Error()))
	}
	n.db.Close()
}
