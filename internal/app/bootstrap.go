package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/geoinvestbtc-x/x-trend-digest/internal/bookmarks"
	"github.com/geoinvestbtc-x/x-trend-digest/internal/cli"
	"github.com/geoinvestbtc-x/x-trend-digest/internal/config"
	"github.com/geoinvestbtc-x/x-trend-digest/internal/discover"
	"github.com/geoinvestbtc-x/x-trend-digest/internal/logging"
	"github.com/geoinvestbtc-x/x-trend-digest/internal/memory"
	"github.com/geoinvestbtc-x/x-trend-digest/internal/pipeline"
	"github.com/geoinvestbtc-x/x-trend-digest/internal/summarize"
	"github.com/geoinvestbtc-x/x-trend-digest/internal/telegram"
)

// setup loads the env file, the config, and the logger in the order
// every command needs them.
func setup(envLoader *cli.EnvLoader) (*config.Config, zerolog.Logger, error) {
	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Logger{}, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return nil, zerolog.Logger{}, fmt.Errorf("initialize logger: %w", err)
	}

	return cfg, logger, nil
}

func newMemoryStore(cfg *config.Config, logger zerolog.Logger) *memory.FileStore {
	return memory.NewFileStore(cfg.MemoryPath, cfg.PickTTL(), cfg.RankedTTL(), logger)
}

func newBookmarkStore(cfg *config.Config, logger zerolog.Logger) *bookmarks.Store {
	return bookmarks.NewStore(cfg.BookmarksPath, logger)
}

// buildPipeline wires the full run dependency graph from config.
func buildPipeline(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*pipeline.Pipeline, error) {
	categories, err := discover.LoadCategories(cfg.CategoriesPath)
	if err != nil {
		return nil, err
	}
	if len(categories) == 0 {
		return nil, fmt.Errorf("no categories configured in %s", cfg.CategoriesPath)
	}

	window := time.Duration(cfg.WindowHours) * time.Hour
	var source discover.Source
	if cfg.PayloadDir != "" {
		source = discover.NewFileSource(cfg.PayloadDir, logger)
	} else {
		source = discover.NewTwitterSource(cfg.TwitterAPIKey, categories, window, cfg.MaxSearchPages, logger)
	}

	var reddit *discover.RedditSource
	if cfg.RedditEnabled {
		subreddits, err := discover.LoadSubreddits(cfg.SubredditsPath)
		if err != nil {
			return nil, err
		}
		if len(subreddits) > 0 {
			reddit = discover.NewRedditSource(subreddits, discover.RedditOptions{
				UserAgent: cfg.RedditUserAgent,
				MinScore:  cfg.RedditMinScore,
				HotLimit:  cfg.RedditHotLimit,
				TopLimit:  cfg.RedditTopLimit,
				Window:    window,
			}, logger)
		} else {
			logger.Warn().Str("path", cfg.SubredditsPath).Msg("reddit enabled but no subreddits configured")
		}
	}

	picker, err := summarize.NewGeminiPicker(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, logger)
	if err != nil {
		return nil, fmt.Errorf("summarizer: %w", err)
	}

	var sender *telegram.Sender
	if cfg.SendTelegram {
		if cfg.TelegramBotToken == "" || cfg.TelegramTarget == "" {
			return nil, fmt.Errorf("SEND_TELEGRAM is set but TELEGRAM_BOT_TOKEN or TELEGRAM_TARGET is missing")
		}
		sender = telegram.NewSender(telegram.NewHTTPClient(cfg.TelegramBotToken), cfg.TelegramTarget, logger)
	}

	store := newMemoryStore(cfg, logger)
	return pipeline.New(cfg, categories, source, reddit, store, picker, sender, logger), nil
}
