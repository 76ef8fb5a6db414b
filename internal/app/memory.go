package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/geoinvestbtc-x/x-trend-digest/internal/cli"
	"github.com/geoinvestbtc-x/x-trend-digest/internal/globaltime"
)

func runMemory(args []string) int {
	if len(args) == 0 {
		printMemoryUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "stats":
		return runMemoryStats(args[1:])
	case "cleanup":
		return runMemoryCleanup(args[1:])
	case "remove":
		return runMemoryRemove(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown memory subcommand: %s\n\n", args[0])
		printMemoryUsage()
		return 2
	}
}

func printMemoryUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  trendradar memory stats              Show record counts per tier")
	fmt.Fprintln(os.Stderr, "  trendradar memory cleanup            Drop expired records")
	fmt.Fprintln(os.Stderr, "  trendradar memory remove --key KEY   Drop one key")
}

func runMemoryStats(args []string) int {
	fs := flag.NewFlagSet("memory stats", flag.ContinueOnError)
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

	stats, err := newMemoryStore(cfg, logger).Stats()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read memory stats: %v\n", err)
		return 1
	}

	fmt.Printf("memory total=%d picks=%d ranked=%d path=%s\n", stats.Total, stats.Picks, stats.Ranked, cfg.MemoryPath)
	return 0
}

func runMemoryCleanup(args []string) int {
	fs := flag.NewFlagSet("memory cleanup", flag.ContinueOnError)
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

	removed, err := newMemoryStore(cfg, logger).Cleanup(globaltime.UTC())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cleanup failed: %v\n", err)
		return 1
	}

	fmt.Printf("memory cleanup removed=%d\n", removed)
	return 0
}

func runMemoryRemove(args []string) int {
	fs := flag.NewFlagSet("memory remove", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	key := fs.String("key", "", "Memory key to remove (e.g. tweet:123 or url:abcdef)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if strings.TrimSpace(*key) == "" {
		fmt.Fprintln(os.Stderr, "--key is required")
		return 2
	}

	cfg, logger, err := setup(envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	removed, err := newMemoryStore(cfg, logger).Remove(strings.TrimSpace(*key))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Remove failed: %v\n", err)
		return 1
	}
	if !removed {
		fmt.Printf("memory remove key=%s not found\n", *key)
		return 0
	}

	fmt.Printf("memory remove key=%s removed\n", *key)
	return 0
}
