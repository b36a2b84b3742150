// Command sentix runs the verified-event synthesis pipeline.
//
// Usage:
//
//	sentix                  Show help
//	sentix run              Run one cycle and exit
//	sentix daemon           Run cycles on the configured schedule
//	sentix events           Audit event viewer
//	sentix stats            Sentiment distribution and recent runs
//	sentix init             Write the default config file
package main

import (
	"fmt"
	"os"
)

const usage = `sentix - verified crypto news synthesis

Usage:
  sentix <command> [flags]

Commands:
  run         Run one fetch/verify/generate/publish cycle
  daemon      Run cycles every schedule.interval_minutes until interrupted
  events      Audit event viewer (events.jsonl)
  stats       Sentiment distribution, recent runs and breaker state
  init        Write the default config to ~/.sentix/config.json

Environment:
  GEMINI_API_KEY     Gemini API key (GOOGLE_API_KEY also accepted)
  OPENAI_API_KEY     Key for backend.provider = "openai"
  OLLAMA_HOST        Host for backend.provider = "ollama"
  SENTIX_LANGUAGE    Narrative language: en or th
  SENTIX_DATA_DIR    Data directory (default ~/.sentix)
  SENTIX_TRACE       Set to 1 to log backend response sizes at debug level

A .env file in the working directory is loaded first.
Run 'sentix <command> -h' for command-specific help.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(0)
	}

	cmd := os.Args[1]
	// Strip the program name + subcommand so flag sets see only their flags
	os.Args = os.Args[1:]

	switch cmd {
	case "run":
		runOnce()
	case "daemon":
		runDaemon()
	case "events":
		runEvents()
	case "stats":
		runStats()
	case "init":
		runInit()
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "sentix: unknown command %q\n\n", cmd)
		fmt.Print(usage)
		os.Exit(1)
	}
}
