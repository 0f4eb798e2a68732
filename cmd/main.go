package main

import (
	"context"
	"errors"
	"os"

	"github.com/desertthunder/subshift/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)

	runner := NewRunner(RunnerOpts{Logger: logger})

	app := &cli.Command{
		Name:     "subshift",
		Usage:    "Move a recurring-billing book between Stripe accounts",
		Version:  "0.3.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, shared.ErrAborted) {
			logger.Warn("aborted, nothing changed")
			os.Exit(0)
		}
		logger.Fatalf("application error: %v", err)
	}
}
