package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"wxstats/internal/app"
	"wxstats/internal/config"
	"wxstats/internal/logging"
	"wxstats/internal/pipeline"
)

const (
	appName = "wxstats"
	// Default version is "dev" if not set with -ldflags "-X main.version=..."
	version = "dev"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitConfig  = 2
)

type command func(ctx context.Context, cfg config.Config, logger *slog.Logger) error

var commands = map[string]command{
	"migrate":   app.RunMigrate,
	"ingest":    app.RunIngest,
	"aggregate": app.RunAggregate,
	"serve":     app.RunServe,
}

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	if len(args) != 1 {
		usage(stderr)
		return exitConfig
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		usage(stderr)
		return exitConfig
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "config error: %v\n", err)
		return exitConfig
	}

	logger := logging.New(cfg, version, appName)
	slog.SetDefault(logger)

	logger.Info("starting",
		"command", args[0],
		"version", version,
		"env", cfg.AppEnv,
		"log_level", cfg.LogLevel.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = cmd(ctx, cfg, logger)
	if args[0] == "serve" && errors.Is(err, context.Canceled) {
		// Signalled shutdown of the server is a clean exit.
		err = nil
	}
	code := exitCode(err)
	if code != exitOK {
		logger.Error("run failed", "command", args[0], "err", err)
		return code
	}

	logger.Info("shutting down")
	return exitOK
}

func exitCode(err error) int {
	var cfgErr *pipeline.ConfigurationError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &cfgErr):
		return exitConfig
	default:
		return exitFailure
	}
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "usage: %s <migrate|ingest|aggregate|serve>\n", appName)
}
