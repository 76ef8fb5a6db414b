package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/geoinvestbtc-x/x-trend-digest/internal/cli"
	"github.com/geoinvestbtc-x/x-trend-digest/internal/pipeline"
)

func runPipeline(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	dryRun := fs.Bool("dry-run", false, "Run the full pipeline but skip Telegram sends and memory writes")
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

	result, err := p.Run(ctx, pipeline.Options{DryRun: *dryRun, NoReddit: *noReddit})
	if err != nil {
		logger.Error().Err(err).Msg("pipeline run failed")
		fmt.Fprintf(os.Stderr, "Run failed: %v\n", err)
		return 1
	}

	fmt.Printf(
		"run ts=%s picks=%d reddit_picks=%d sent=%d llm_calls=%d tokens=%d\n",
		result.Timestamp,
		len(result.Picks),
		len(result.RedditPicks),
		result.Sent,
		result.Usage.Calls,
		result.Usage.TotalTokens,
	)
	return 0
}
