package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"storefront/internal/config"
	"storefront/internal/platform/logging"
)

const usage = `usage: authagent [command] [flags]

commands:
  serve    run the auth agent HTTP service (default)
  status   print the current session
  logout   end the current session

flags:
  -json    print status and logout results as JSON (default when stdout is not a terminal)
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command := "serve"
	args := os.Args[1:]
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		command, args = args[0], args[1:]
	}

	flags := flag.NewFlagSet("authagent", flag.ExitOnError)
	flags.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	jsonOutput := flags.Bool("json", false, "print results as JSON")
	_ = flags.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := newCommandLogger(command, cfg, os.Stdout, os.Stderr)

	switch command {
	case "serve":
		err = runServe(ctx, cfg, logger)
	case "status":
		err = runStatus(ctx, cfg, logger, newPrinter(os.Stdout, *jsonOutput))
	case "logout":
		err = runLogout(ctx, cfg, logger, newPrinter(os.Stdout, *jsonOutput))
	default:
		flags.Usage()
		os.Exit(2)
	}

	if err != nil {
		logger.Error("authagent failed", "command", command, "error", err)
		os.Exit(1)
	}
}

// newCommandLogger logs to stdout for the long-running service. One-shot commands print
// their result on stdout, so their logs go to stderr.
func newCommandLogger(command string, cfg config.Config, stdout, stderr io.Writer) *slog.Logger {
	if command == "serve" {
		return logging.NewWithWriter(stdout, cfg.LogLevel, cfg.LogFormat)
	}
	return logging.NewWithWriter(stderr, cfg.LogLevel, cfg.LogFormat)
}
