package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/subshift/internal/tasks"
)

// Touch rewrites a marker tag on every migrated target subscription. The
// writes change nothing the customer can see; their only effect is the
// updated events they emit, which lets webhook consumers resync state they
// missed during the handover.
func (r *Runner) Touch(ctx context.Context, cmd *cli.Command) error {
	source, target, opts, err := r.connect(ctx, cmd)
	if err != nil {
		return err
	}
	session := tasks.NewSession(source, target, opts)

	r.logger.Info("touching migrated subscriptions", "target", target.Label())

	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		r.renderProgress(progress)
		close(done)
	}()

	err = session.Touch(ctx, progress)
	close(progress)
	<-done

	r.writePlain("%s", session.Stats().Report(fmt.Sprintf("touch on %s", target.Label())))
	return err
}

// Resend replays undelivered target-account events. Each affected object
// gets one marker rewrite no matter how many deliveries failed against it,
// which emits a fresh event with the object's current state.
func (r *Runner) Resend(ctx context.Context, cmd *cli.Command) error {
	source, target, opts, err := r.connect(ctx, cmd)
	if err != nil {
		return err
	}
	session := tasks.NewSession(source, target, opts)

	r.logger.Info("replaying undelivered events", "target", target.Label())

	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		r.renderProgress(progress)
		close(done)
	}()

	err = session.Resend(ctx, progress)
	close(progress)
	<-done

	r.writePlain("%s", session.Stats().Report(fmt.Sprintf("resend on %s", target.Label())))
	return err
}
