package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/geoinvestbtc-x/x-trend-digest/internal/cli"
	"github.com/geoinvestbtc-x/x-trend-digest/internal/pipeline"
)

func runSchedule(args []string) int {
	fs := flag.NewFlagSet("schedule", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	spec := fs.String("cron", "", "Cron expression (overrides TREND_CRON)")
	noReddit := fs.Bool("no-reddit", false, "Skip Reddit discovery even when enabled")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, logger, err := setup(envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	cronSpec := *spec
	if cronSpec == "" {
		cronSpec = cfg.CronSpec
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		cancel()
	}()

	p, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("pipeline setup failed")
		fmt.Fprintf(os.Stderr, "Pipeline setup failed: %v\n", err)
		return 1
	}

	// Runs never overlap: a tick that fires while the previous run is
	// still going is skipped.
	var running sync.Mutex
	job := func() {
		if !running.TryLock() {
			logger.Warn().Msg("previous run still in progress, skipping tick")
			return
		}
		defer running.Unlock()

		result, err := p.Run(ctx, pipeline.Options{NoReddit: *noReddit})
		if err != nil {
			logger.Error().Err(err).Msg("scheduled run failed")
			return
		}
		logger.Info().
			Str("ts", result.Timestamp).
			Int("picks", len(result.Picks)).
			Int("reddit_picks", len(result.RedditPicks)).
			Int("sent", result.Sent).
			Msg("scheduled run finished")
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cronSpec, job); err != nil {
		logger.Error().Err(err).Str("cron", cronSpec).Msg("invalid cron expression")
		fmt.Fprintf(os.Stderr, "Invalid cron expression %q: %v\n", cronSpec, err)
		return 2
	}

	scheduler.Start()
	logger.Info().Str("cron", cronSpec).Msg("scheduler started")

	<-ctx.Done()
	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
	logger.Info().Msg("scheduler stopped")
	return 0
}
