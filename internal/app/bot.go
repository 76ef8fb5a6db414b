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
	"github.com/geoinvestbtc-x/x-trend-digest/internal/telegram"
)

func runBot(args []string) int {
	fs := flag.NewFlagSet("bot", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")

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
	if cfg.TelegramBotToken == "" {
		fmt.Fprintln(os.Stderr, "TELEGRAM_BOT_TOKEN is required for the bot command")
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

	bot := telegram.NewBot(
		telegram.NewHTTPClient(cfg.TelegramBotToken),
		newBookmarkStore(cfg, logger),
		newMemoryStore(cfg, logger),
		logger,
	)

	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("bot handler failed")
		fmt.Fprintf(os.Stderr, "Bot failed: %v\n", err)
		return 1
	}
	return 0
}
