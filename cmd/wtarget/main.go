package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/mumumio1/wtarget/internal/config"
	"github.com/mumumio1/wtarget/internal/log"
	"github.com/mumumio1/wtarget/internal/metrics"
	"github.com/mumumio1/wtarget/internal/readiness"
	"github.com/mumumio1/wtarget/internal/server"
)

var (
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	cmd := &cli.Command{
		Name:    "wtarget",
		Usage:   "HTTP target with simulated latency, errors and readiness",
		Version: server.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML or JSON configuration file",
				Sources: cli.EnvVars("WTARGET_CONFIG"),
			},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "wtarget: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}
	// readiness counts from process start, not from the listener coming up
	gate := readiness.After(cfg.ReadinessDelay())

	logger, err := log.NewLogger(log.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting wtarget",
		log.String("version", server.Version),
		log.String("commit", commit),
		log.String("build_time", buildTime),
		log.Int("slow_ms", cfg.Simulation.DefaultSlowMs),
		log.Duration("readiness_delay", cfg.ReadinessDelay()),
		log.Bool("metrics_enabled", cfg.Metrics.Enabled),
		log.Bool("rate_limit_enabled", cfg.RateLimit.Enabled),
	)
	warnMissingSecret(logger, cfg)

	var opts []server.Option
	if cfg.Metrics.Enabled {
		m := metrics.NewMetrics()
		m.TrackReadiness(gate.Ready)
		opts = append(opts, server.WithMetrics(m))
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go logWhenReady(ctx, logger, gate)

	srv := server.New(cfg, logger, gate, opts...)
	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", log.Error(err))
		return err
	}
	return nil
}

// warnMissingSecret reports an empty SECRET_TOKEN. The token is never
// used for authorization.
func warnMissingSecret(logger log.Logger, cfg *config.Config) {
	if cfg.App.SecretToken == "" {
		logger.Warn("SECRET_TOKEN is not set")
	}
}

// logWhenReady logs once when gate flips, or returns when ctx is done first
func logWhenReady(ctx context.Context, logger log.Logger, gate *readiness.Gate) {
	select {
	case <-gate.Done():
		logger.Info("service ready", log.Duration("after", gate.Since()))
	case <-ctx.Done():
	}
}
