// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// accountFlags are shared by every command that opens the two billing
// accounts.
func accountFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			Value:   "config.toml",
		},
		&cli.StringFlag{
			Name:  "from",
			Usage: "Source account secret key (sk_...)",
		},
		&cli.StringFlag{
			Name:  "to",
			Usage: "Target account secret key (sk_...)",
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "Walk the full migration without writing to either account",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Log per-object progress",
		},
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "Log API-level detail",
		},
		&cli.BoolFlag{
			Name:  "very-verbose",
			Usage: "Log everything, including retries and pacing",
		},
	}
}

func yesFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:    "yes",
		Aliases: []string{"y"},
		Usage:   "Skip the interactive review",
	}
}

// copyCommand migrates the catalog and subscriptions.
func copyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "copy",
		Usage: "Copy products, prices and subscriptions to the target account",
		Flags: append(accountFlags(),
			&cli.StringFlag{
				Name:    "subscription",
				Aliases: []string{"s"},
				Usage:   "Copy a single subscription (and the catalog it uses)",
			},
			&cli.Float64Flag{
				Name:  "delay",
				Usage: "Minimum hours before a copied subscription can charge",
			},
			yesFlag(),
		),
		Action: r.Copy,
	}
}

// confirmCommand finalizes the handover.
func confirmCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "confirm",
		Usage:  "Finalize the handover by canceling the paused source subscriptions",
		Flags:  append(accountFlags(), yesFlag()),
		Action: r.Confirm,
	}
}

// revertCommand tears a migration down.
func revertCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "revert",
		Usage:  "Cancel migrated target subscriptions and resume the sources",
		Flags:  append(accountFlags(), yesFlag()),
		Action: r.Revert,
	}
}

// touchCommand nudges webhook consumers.
func touchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "touch",
		Usage:  "Rewrite a marker tag on migrated subscriptions so webhook consumers resync",
		Flags:  accountFlags(),
		Action: r.Touch,
	}
}

// resendCommand replays undelivered events.
func resendCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "resend",
		Usage:  "Replay undelivered target-account events via marker rewrites",
		Flags:  accountFlags(),
		Action: r.Resend,
	}
}

// accountsCommand validates both credentials.
func accountsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "accounts",
		Usage: "Validate both credentials and show which accounts they reach",
		Flags: append(accountFlags(),
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		),
		Action: r.Accounts,
	}
}

// setupCommand writes a starter configuration file.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Write a starter config.toml",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
		},
		Action: r.Setup,
	}
}
