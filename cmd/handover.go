package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/subshift/internal/shared"
	"github.com/desertthunder/subshift/internal/tasks"
	"github.com/desertthunder/subshift/internal/ui"
)

// Confirm finalizes the handover: source subscriptions cancel for good and
// the migrated targets are tagged confirmed. Already-confirmed subscriptions
// are skipped, so the command is safe to repeat.
func (r *Runner) Confirm(ctx context.Context, cmd *cli.Command) error {
	source, target, opts, err := r.connect(ctx, cmd)
	if err != nil {
		return err
	}
	session := tasks.NewSession(source, target, opts)

	if !cmd.Bool("yes") && !cmd.Bool("dry-run") {
		migrated, err := session.Migrated(ctx)
		if err != nil {
			return err
		}
		if len(migrated) == 0 {
			r.writePlain("Nothing to confirm.\n")
			return nil
		}

		prompt := fmt.Sprintf("Cancel %d source subscriptions for good? This cannot be reverted.", len(migrated))
		accepted, err := ui.Confirm("Migrated subscriptions", prompt, reviewItems(migrated))
		if err != nil {
			return fmt.Errorf("interactive review failed (use --yes to skip it): %w", err)
		}
		if !accepted {
			return fmt.Errorf("%w: confirm declined", shared.ErrAborted)
		}
	}

	r.logger.Info("confirming handover", "source", source.Label(), "target", target.Label())

	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		r.renderProgress(progress)
		close(done)
	}()

	err = session.Confirm(ctx, progress)
	close(progress)
	<-done

	r.writePlain("%s", session.Stats().Report(fmt.Sprintf("confirm handover to %s", target.Label())))
	return err
}

// Revert tears the migration down: target copies cancel, the source
// subscriptions resume collection, and the migrated catalog deactivates.
func (r *Runner) Revert(ctx context.Context, cmd *cli.Command) error {
	source, target, opts, err := r.connect(ctx, cmd)
	if err != nil {
		return err
	}
	session := tasks.NewSession(source, target, opts)

	if !cmd.Bool("yes") && !cmd.Bool("dry-run") {
		migrated, err := session.Migrated(ctx)
		if err != nil {
			return err
		}
		if len(migrated) == 0 {
			r.writePlain("Nothing to revert.\n")
			return nil
		}

		prompt := fmt.Sprintf("Cancel %d migrated subscriptions and resume their sources?", len(migrated))
		accepted, err := ui.Confirm("Migrated subscriptions", prompt, reviewItems(migrated))
		if err != nil {
			return fmt.Errorf("interactive review failed (use --yes to skip it): %w", err)
		}
		if !accepted {
			return fmt.Errorf("%w: revert declined", shared.ErrAborted)
		}
	}

	r.logger.Info("reverting migration", "source", source.Label(), "target", target.Label())

	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		r.renderProgress(progress)
		close(done)
	}()

	err = session.Revert(ctx, progress)
	close(progress)
	<-done

	r.writePlain("%s", session.Stats().Report(fmt.Sprintf("revert on %s", target.Label())))
	return err
}
