package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/subshift/internal/models"
	"github.com/desertthunder/subshift/internal/shared"
	"github.com/desertthunder/subshift/internal/tasks"
	"github.com/desertthunder/subshift/internal/ui"
)

// Copy migrates the catalog and subscriptions from the source account to the
// target. Without --yes the planned set is shown in an interactive review
// first; --dry-run walks the whole migration without writing anything.
func (r *Runner) Copy(ctx context.Context, cmd *cli.Command) error {
	source, target, opts, err := r.connect(ctx, cmd)
	if err != nil {
		return err
	}
	session := tasks.NewSession(source, target, opts)
	onlySubID := cmd.String("subscription")

	if !cmd.Bool("yes") && !cmd.Bool("dry-run") {
		planned, err := session.Planned(ctx)
		if err != nil {
			return err
		}
		if onlySubID != "" {
			planned = filterPlanned(planned, onlySubID)
		}
		if len(planned) == 0 {
			r.writePlain("Nothing to copy.\n")
			return nil
		}

		prompt := fmt.Sprintf("Copy %d subscriptions to %s?", len(planned), target.Label())
		accepted, err := ui.Confirm("Subscriptions to migrate", prompt, reviewItems(planned))
		if err != nil {
			return fmt.Errorf("interactive review failed (use --yes to skip it): %w", err)
		}
		if !accepted {
			return fmt.Errorf("%w: copy declined", shared.ErrAborted)
		}
	}

	r.logger.Info("starting copy", "source", source.Label(), "target", target.Label())

	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		r.renderProgress(progress)
		close(done)
	}()

	err = session.Copy(ctx, onlySubID, progress)
	close(progress)
	<-done

	r.writePlain("%s", session.Stats().Report(fmt.Sprintf("copy to %s", target.Label())))
	var group *shared.ErrorGroup
	if errors.As(err, &group) {
		r.writePlain("Some objects failed. Re-run copy to resume; finished objects are reused.\n")
	}
	return err
}

func filterPlanned(planned []*stripe.Subscription, onlySubID string) []*stripe.Subscription {
	for _, sub := range planned {
		if sub.ID == onlySubID {
			return []*stripe.Subscription{sub}
		}
	}
	return nil
}

// reviewItems shapes the planned set for the review TUI.
func reviewItems(planned []*stripe.Subscription) []ui.SubscriptionItem {
	items := make([]ui.SubscriptionItem, 0, len(planned))
	for _, sub := range planned {
		item := ui.SubscriptionItem{
			ID:     sub.ID,
			Status: string(sub.Status),
		}
		if sub.Customer != nil {
			item.Customer = sub.Customer.ID
			if sub.Customer.Email != "" {
				item.Customer = sub.Customer.Email
			}
		}
		item.Monthly = monthlyLabel(sub)
		items = append(items, item)
	}
	return items
}

// monthlyLabel renders a subscription's normalized monthly volume, or "" when
// it has no recurring items.
func monthlyLabel(sub *stripe.Subscription) string {
	if sub.Items == nil {
		return ""
	}
	total := decimal.Zero
	currency := ""
	for _, si := range sub.Items.Data {
		if si.Price == nil {
			continue
		}
		total = total.Add(models.MonthlyAmount(si.Price, si.Quantity))
		if currency == "" {
			currency = strings.ToUpper(string(si.Price.Currency))
		}
	}
	if total.IsZero() || currency == "" {
		return ""
	}
	return fmt.Sprintf("%s %s", total.Shift(-2).StringFixed(2), currency)
}
