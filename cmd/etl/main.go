// Package main ETL Runner
// @title ETL Runner API
// @version 1.0
// @description Lists and runs extract-transform-load tasks
// @license.name Apache 2.0
// @license.url https://opensource.org/licenses/Apache-2.0
// @BasePath /
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

const usage = `Usage: etl <command> [flags]

Commands:
  list             list the available tasks
  stages           list the registered stages
  run <task>       run a task
  serve            serve the HTTP API
  schema           write JSON schemas for task and mapping files
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	os.Exit(dispatch(os.Args[1], os.Args[2:], os.Stdout, os.Stderr))
}

func dispatch(command string, args []string, stdout, stderr io.Writer) int {
	if command == "schema" {
		return exit(schemaCmd(args, stdout))
	}
	if command == "help" || command == "-h" || command == "--help" {
		fmt.Fprint(stdout, usage)
		return 0
	}

	cfg, err := NewAppConfig().Load()
	if err != nil {
		slog.Error("Failed to load app configuration", "error", err)
		return 1
	}
	slog.SetLogLoggerLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "serve":
		return exit(serveCmd(cfg))
	case "list", "stages", "run":
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", command, usage)
		return 2
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error("Failed to start", "error", err)
		return 1
	}
	defer a.Close()

	switch command {
	case "list":
		return exit(listCmd(a, args, stdout))
	case "stages":
		return exit(stagesCmd(a, args, stdout))
	default:
		return runCmd(ctx, a, args, stdout)
	}
}

func exit(err error) int {
	if err != nil {
		slog.Error("Command failed", "error", err)
		return 1
	}
	return 0
}
