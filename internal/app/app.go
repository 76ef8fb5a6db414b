// Package app implements the trendradar CLI.
package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "run":
		return runPipeline(args[1:])
	case "schedule":
		return runSchedule(args[1:])
	case "bot":
		return runBot(args[1:])
	case "memory":
		return runMemory(args[1:])
	case "serve":
		return runServe(args[1:])
	case "validate":
		return runValidate(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "trendradar CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  trendradar <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  run       Execute one pipeline run (discover, rank, summarize, publish)")
	fmt.Fprintln(os.Stderr, "  schedule  Run the pipeline on a cron schedule")
	fmt.Fprintln(os.Stderr, "  bot       Long-poll Telegram for interesting-button callbacks")
	fmt.Fprintln(os.Stderr, "  memory    Inspect and maintain the seen-keys memory log")
	fmt.Fprintln(os.Stderr, "  serve     Start the Echo API server")
	fmt.Fprintln(os.Stderr, "  validate  Validate candidate block JSON files against the schema")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"trendradar <command> -h\" for command-specific flags.")
}
