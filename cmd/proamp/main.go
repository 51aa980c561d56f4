// Command proamp is the terminal client for the medical-record session API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prontuario/proamp/internal/cli"
	"github.com/prontuario/proamp/internal/pkg/config"
	"github.com/prontuario/proamp/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx)
	stop()
	os.Exit(code)
}

func run(ctx context.Context) int {
	cfg, err := config.Load(ctx, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "proamp:", err)
		return 1
	}
	log := logger.Init(logger.Options{
		Level:    cfg.LogLevel,
		Pretty:   cfg.LogPretty,
		Output:   os.Stderr,
		NoCaller: true,
	})

	app := &cli.App{Log: log}
	switch err := app.Run(ctx, cfg, os.Args[1:]); {
	case err == nil:
		return 0
	case errors.Is(err, cli.ErrUsage):
		return 2
	case errors.Is(err, cli.ErrNotSignedIn):
		return 1
	default:
		fmt.Fprintln(os.Stderr, "proamp:", err)
		return 1
	}
}
