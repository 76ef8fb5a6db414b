package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/geoinvestbtc-x/x-trend-digest/internal/rank"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Paths. Everything lives under plain files so the pipeline and the
	// bot handler can share state without a database.
	MemoryPath    string `envconfig:"TREND_MEMORY_PATH" default:"memory/trend-radar.jsonl"`
	BookmarksPath string `envconfig:"TREND_BOOKMARKS_PATH" default:"data/bookmarks.jsonl"`
	OutDir        string `envconfig:"TREND_OUT_DIR" default:"out_trends"`
	DataDir       string `envconfig:"TREND_DATA_DIR" default:"data"`

	CategoriesPath string `envconfig:"TREND_CATEGORIES_PATH" default:"data/categories.yaml"`
	SubredditsPath string `envconfig:"TREND_SUBREDDITS_PATH" default:"data/subreddits.yaml"`

	// Memory TTLs.
	PickTTLDays   int `envconfig:"TREND_MEMORY_DAYS" default:"30"`
	RankedTTLDays int `envconfig:"TREND_RANKED_TTL_DAYS" default:"3"`

	// Discovery. PayloadDir replays captured candidate block files
	// instead of hitting the live APIs.
	PayloadDir      string `envconfig:"TREND_PAYLOAD_DIR" default:""`
	TwitterAPIKey   string `envconfig:"TWITTERAPI_IO_KEY" default:""`
	WindowHours     int    `envconfig:"DISCOVER_STOP_OLDER_H" default:"48"`
	MaxSearchPages  int    `envconfig:"DISCOVER_MAX_PAGES" default:"2"`
	OnlyCategory    string `envconfig:"DIGEST_ONLY_CATEGORY" default:""`
	RedditEnabled   bool   `envconfig:"REDDIT_DISCOVER_ENABLED" default:"false"`
	RedditMinScore  int    `envconfig:"REDDIT_MIN_SCORE" default:"10"`
	RedditHotLimit  int    `envconfig:"REDDIT_HOT_LIMIT" default:"50"`
	RedditTopLimit  int    `envconfig:"REDDIT_TOP_LIMIT" default:"25"`
	RedditUserAgent string `envconfig:"REDDIT_USER_AGENT" default:"x-trend-digest/1.0 (personal digest bot)"`
	RedditComments  int    `envconfig:"REDDIT_TOP_COMMENTS" default:"5"`

	// Ranking.
	MaxPerCategory  int     `envconfig:"TREND_MAX_PER_CATEGORY" default:"25"`
	MinWords        int     `envconfig:"TREND_GATE_MIN_WORDS" default:"8"`
	MaxMentions     int     `envconfig:"TREND_GATE_MAX_MENTIONS" default:"4"`
	MinForumScore   int     `envconfig:"TREND_GATE_MIN_FORUM_SCORE" default:"10"`
	WeightVelocity  float64 `envconfig:"TREND_WEIGHT_VELOCITY" default:"2"`
	WeightRelative  float64 `envconfig:"TREND_WEIGHT_RELATIVE" default:"1"`
	WeightVirality  float64 `envconfig:"TREND_WEIGHT_VIRALITY" default:"5"`
	FreshnessLambda float64 `envconfig:"TREND_FRESHNESS_LAMBDA" default:"0.01444"`

	// Summarizer.
	GeminiAPIKey string `envconfig:"GEMINI_API_KEY" default:""`
	GeminiModel  string `envconfig:"DIGEST_MODEL" default:"gemini-2.0-flash"`
	PicksPerCat  int    `envconfig:"DIGEST_MAX_PER_TOPIC" default:"5"`

	// Telegram.
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN" default:""`
	TelegramTarget   string `envconfig:"TELEGRAM_TARGET" default:""`
	SendTelegram     bool   `envconfig:"SEND_TELEGRAM" default:"false"`

	// schedule command.
	CronSpec string `envconfig:"TREND_CRON" default:"30 7,15 * * *"`

	// serve command.
	ServeHost string `envconfig:"TREND_SERVE_HOST" default:"0.0.0.0"`
	ServePort int    `envconfig:"TREND_SERVE_PORT" default:"8090"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.MemoryPath) == "" {
		return fmt.Errorf("TREND_MEMORY_PATH is required")
	}
	if c.PickTTLDays < 1 {
		return fmt.Errorf("TREND_MEMORY_DAYS must be >= 1")
	}
	if c.RankedTTLDays < 1 {
		return fmt.Errorf("TREND_RANKED_TTL_DAYS must be >= 1")
	}
	if c.MaxPerCategory < 1 {
		return fmt.Errorf("TREND_MAX_PER_CATEGORY must be >= 1")
	}
	if c.PicksPerCat < 1 {
		return fmt.Errorf("DIGEST_MAX_PER_TOPIC must be >= 1")
	}
	if c.WindowHours < 1 {
		return fmt.Errorf("DISCOVER_STOP_OLDER_H must be >= 1")
	}
	if c.FreshnessLambda <= 0 {
		return fmt.Errorf("TREND_FRESHNESS_LAMBDA must be > 0")
	}
	return nil
}

func (c *Config) PickTTL() time.Duration {
	return time.Duration(c.PickTTLDays) * 24 * time.Hour
}

func (c *Config) RankedTTL() time.Duration {
	return time.Duration(c.RankedTTLDays) * 24 * time.Hour
}

// RankConfig projects the env surface onto the ranker's tunables,
// keeping the engagement weight ordering fixed.
func (c *Config) RankConfig() rank.Config {
	rc := rank.DefaultConfig()
	rc.MaxPerCategory = c.MaxPerCategory
	rc.MinWords = c.MinWords
	rc.MaxMentions = c.MaxMentions
	rc.MinForumScore = c.MinForumScore
	rc.WeightVelocity = c.WeightVelocity
	rc.WeightRelative = c.WeightRelative
	rc.WeightVirality = c.WeightVirality
	rc.FreshnessLambda = c.FreshnessLambda
	return rc
}
