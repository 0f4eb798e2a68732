package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stripe/stripe-go/v82"

	"github.com/desertthunder/subshift/internal/formatter"
	"github.com/desertthunder/subshift/internal/models"
	"github.com/desertthunder/subshift/internal/queue"
	"github.com/desertthunder/subshift/internal/services"
	"github.com/desertthunder/subshift/internal/shared"
)

// defaultFanout bounds how many subscriptions migrate at once. Each account
// additionally paces its own requests, so this only caps in-flight work.
const defaultFanout = 4

// Session wires the per-resource importers over one source/target account
// pair and drives the top-level operations: copy, confirm, revert, touch and
// resend.
type Session struct {
	source services.API
	target services.API
	stats  *formatter.Stats
	logger *log.Logger
	fanout *queue.Queue

	products    *Importer[*stripe.Product]
	prices      *Importer[*stripe.Price]
	coupons     *Importer[*stripe.Coupon]
	subs        *Importer[*stripe.Subscription]
	subProvider *SubscriptionProvider
}

type SessionOpts struct {
	// Delay pushes the target's first charge out past the handover window.
	Delay time.Duration

	// PauseSource stops source collection as each subscription moves.
	PauseSource bool

	// MaxRunning bounds concurrent subscription migrations.
	MaxRunning int

	Logger *log.Logger
}

func NewSession(source, target services.API, opts SessionOpts) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	maxRunning := opts.MaxRunning
	if maxRunning <= 0 {
		maxRunning = defaultFanout
	}

	stats := formatter.NewStats()

	productProvider := NewProductProvider(source, target)
	products := NewImporter(productProvider, stats, logger)

	priceProvider := NewPriceProvider(source, target, products)
	prices := NewImporter(priceProvider, stats, logger)

	couponProvider := NewCouponProvider(source, target)
	coupons := NewImporter(couponProvider, stats, logger)

	subProvider := NewSubscriptionProvider(source, target, prices, coupons, stats, SubscriptionOpts{
		Delay:       opts.Delay,
		PauseSource: opts.PauseSource,
		Logger:      logger,
	})
	subs := NewImporter(subProvider, stats, logger)

	return &Session{
		source:      source,
		target:      target,
		stats:       stats,
		logger:      shared.WithLogger(logger, "source", source.Label(), "target", target.Label()),
		fanout:      queue.New(maxRunning, 0),
		products:    products,
		prices:      prices,
		coupons:     coupons,
		subs:        subs,
		subProvider: subProvider,
	}
}

// Stats exposes the run's counters for the end-of-run report.
func (s *Session) Stats() *formatter.Stats { return s.stats }

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (s *Session) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Planned returns the subscriptions a full copy would migrate, for the
// pre-flight review. Ineligible statuses are left out here; the copy itself
// still sees them and counts them as skipped.
func (s *Session) Planned(ctx context.Context) ([]*stripe.Subscription, error) {
	var planned []*stripe.Subscription
	for sub, err := range s.subProvider.GetAll(ctx) {
		if err != nil {
			return nil, fmt.Errorf("%w: listing source subscriptions: %v", shared.ErrAPIRequest, err)
		}
		if !migratable[sub.Status] {
			continue
		}
		planned = append(planned, sub)
	}
	return planned, nil
}

// Copy migrates the catalog and then the subscriptions. With onlySubID set,
// it migrates that one subscription and whatever catalog objects it pulls
// in. Objects already on the target are reused, so an interrupted copy picks
// up where it stopped.
func (s *Session) Copy(ctx context.Context, onlySubID string, progress chan<- ProgressUpdate) error {
	if onlySubID != "" {
		s.sendProgress(progress, planUpdate(1))
		_, err := s.subs.RecreateByID(ctx, onlySubID)
		if shared.IsWarning(err) {
			s.logger.Warn("skipped", "source_id", onlySubID, "reason", err)
			s.stats.Record("subscription", formatter.Skipped)
			s.stats.Warn("%v", err)
			return nil
		}
		if err != nil {
			s.stats.Record("subscription", formatter.Failed)
		}
		return err
	}

	var subs []*stripe.Subscription
	for sub, err := range s.subProvider.GetAll(ctx) {
		if err != nil {
			return fmt.Errorf("%w: listing source subscriptions: %v", shared.ErrAPIRequest, err)
		}
		subs = append(subs, sub)
	}
	s.sendProgress(progress, planUpdate(len(subs)))

	s.sendProgress(progress, catalogUpdate("product"))
	if err := s.products.RecreateAll(ctx); err != nil {
		return err
	}
	s.sendProgress(progress, catalogUpdate("price"))
	if err := s.prices.RecreateAll(ctx); err != nil {
		return err
	}

	group := shared.NewErrorGroup("subscription")
	total := len(subs)
	for i, sub := range subs {
		s.sendProgress(progress, subscriptionUpdate(i+1, total, sub.ID))
		s.fanout.Add(ctx, func() error {
			if _, err := s.subs.Recreate(ctx, sub); err != nil {
				if shared.IsWarning(err) {
					s.logger.Warn("skipped", "source_id", sub.ID, "reason", err)
					s.stats.Record("subscription", formatter.Skipped)
					s.stats.Warn("%v", err)
				} else {
					s.logger.Error("failed", "source_id", sub.ID, "error", err)
					s.stats.Record("subscription", formatter.Failed)
				}
				group.Append(err)
			}
			return nil
		})
	}
	if err := s.fanout.WaitUntilFinished(); err != nil {
		group.Append(err)
	}

	return group.ErrIfFatal()
}

// Migrated enumerates non-canceled target subscriptions created by a
// migration, in their current target state.
func (s *Session) Migrated(ctx context.Context) ([]*stripe.Subscription, error) {
	var out []*stripe.Subscription
	for sub, err := range s.target.ListSubscriptions(ctx) {
		if err != nil {
			return nil, fmt.Errorf("%w: listing target subscriptions: %v", shared.ErrAPIRequest, err)
		}
		if models.SourceID(sub.Metadata) == "" {
			continue
		}
		if sub.Status == stripe.SubscriptionStatusCanceled {
			continue
		}
		out = append(out, sub)
	}
	return out, nil
}

// Confirm finalizes the handover: every migrated, unconfirmed target
// subscription has its source counterpart canceled and is tagged confirmed.
// After confirm, revert no longer applies.
func (s *Session) Confirm(ctx context.Context, progress chan<- ProgressUpdate) error {
	targets, err := s.Migrated(ctx)
	if err != nil {
		return err
	}

	group := shared.NewErrorGroup("subscription")
	now := time.Now().UTC().Format(time.RFC3339)

	for i, sub := range targets {
		if sub.Metadata[models.TagConfirmedAt] != "" {
			continue
		}
		s.sendProgress(progress, confirmUpdate(i+1, len(targets), sub.ID))

		sourceID := models.SourceID(sub.Metadata)
		if _, err := s.source.CancelSubscription(ctx, sourceID); err != nil && !isNotFound(err) {
			group.Append(&shared.ImportError{Resource: "subscription", SourceID: sourceID, Phase: "confirm", Err: err})
			s.stats.Record("subscription", formatter.Failed)
			continue
		}

		_, err := s.target.UpdateSubscription(ctx, sub.ID, &stripe.SubscriptionUpdateParams{
			Metadata: map[string]string{models.TagConfirmedAt: now},
		})
		if err != nil {
			group.Append(&shared.ImportError{Resource: "subscription", SourceID: sourceID, Phase: "confirm", Err: err})
			s.stats.Record("subscription", formatter.Failed)
			continue
		}

		s.logger.Info("confirmed", "target_id", sub.ID, "source_id", sourceID)
		s.stats.Record("subscription", formatter.Confirmed)
	}

	if err := s.collectCarriedInvoices(ctx); err != nil {
		group.Append(err)
	}

	return group.ErrIfFatal()
}

// collectCarriedInvoices retries payment on carried-over target invoices
// that are still open, typically ones whose first collection attempt failed
// during copy. A charge that fails again stays open for dunning and is
// reported as a warning rather than a fatal error.
func (s *Session) collectCarriedInvoices(ctx context.Context) error {
	params := &stripe.InvoiceListParams{
		Status: stripe.String(string(stripe.InvoiceStatusOpen)),
	}
	for inv, err := range s.target.ListInvoices(ctx, params) {
		if err != nil {
			return &shared.ImportError{Resource: "invoice", Phase: "confirm", Err: err}
		}
		if models.SourceID(inv.Metadata) == "" {
			continue
		}
		if _, err := s.target.PayInvoice(ctx, inv.ID); err != nil {
			s.logger.Warn("carried-over invoice still will not collect", "invoice", inv.ID, "error", err)
			s.stats.Warn("invoice %s still will not collect", inv.ID)
			continue
		}
		s.logger.Info("collected", "invoice", inv.ID)
		s.stats.Record("invoice", formatter.Confirmed)
	}
	return nil
}

// Revert tears the migration down: target subscriptions cancel and their
// sources resume, then migrated prices deactivate and migrated products go.
func (s *Session) Revert(ctx context.Context, progress chan<- ProgressUpdate) error {
	var errs []error

	s.sendProgress(progress, revertUpdate("subscription"))
	if err := s.subs.RevertAll(ctx); err != nil {
		errs = append(errs, err)
	}
	s.sendProgress(progress, revertUpdate("price"))
	if err := s.prices.RevertAll(ctx); err != nil {
		errs = append(errs, err)
	}
	s.sendProgress(progress, revertUpdate("product"))
	if err := s.products.RevertAll(ctx); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Touch rewrites a marker tag on every migrated target subscription. The
// writes are semantic no-ops whose only purpose is the updated events they
// emit, so downstream webhook consumers resync.
func (s *Session) Touch(ctx context.Context, progress chan<- ProgressUpdate) error {
	targets, err := s.Migrated(ctx)
	if err != nil {
		return err
	}

	group := shared.NewErrorGroup("subscription")
	now := time.Now().UTC().Format(time.RFC3339)

	for i, sub := range targets {
		s.sendProgress(progress, touchUpdate(i+1, len(targets), sub.ID))
		_, err := s.target.UpdateSubscription(ctx, sub.ID, &stripe.SubscriptionUpdateParams{
			Metadata: map[string]string{models.TagTouchedAt: now},
		})
		if err != nil {
			group.Append(&shared.ImportError{Resource: "subscription", SourceID: sub.ID, Phase: "touch", Err: err})
			s.stats.Record("subscription", formatter.Failed)
			continue
		}
		s.stats.Record("subscription", formatter.Touched)
	}

	return group.ErrIfFatal()
}

// Resend replays undelivered target events. The underlying object gets a
// marker-tag rewrite, which emits a fresh event carrying the object's
// current state. Each object is touched at most once per run no matter how
// many events piled up against it.
func (s *Session) Resend(ctx context.Context, progress chan<- ProgressUpdate) error {
	group := shared.NewErrorGroup("event")
	now := time.Now().UTC().Format(time.RFC3339)
	seen := map[string]bool{}
	step := 0

	params := &stripe.EventListParams{DeliverySuccess: stripe.Bool(false)}
	for ev, err := range s.target.ListEvents(ctx, params) {
		if err != nil {
			group.Append(&shared.ImportError{Resource: "event", Phase: "list", Err: err})
			break
		}

		objectID := eventObjectID(ev)
		if objectID == "" || seen[objectID] {
			continue
		}
		seen[objectID] = true
		step++
		s.sendProgress(progress, resendUpdate(step, step, ev.ID))

		switch {
		case strings.HasPrefix(objectID, "sub_"):
			_, err = s.target.UpdateSubscription(ctx, objectID, &stripe.SubscriptionUpdateParams{
				Metadata: map[string]string{models.TagTouchedAt: now},
			})
		case strings.HasPrefix(objectID, "prod_"):
			_, err = s.target.UpdateProduct(ctx, objectID, &stripe.ProductUpdateParams{
				Metadata: map[string]string{models.TagTouchedAt: now},
			})
		case strings.HasPrefix(objectID, "price_"):
			_, err = s.target.UpdatePrice(ctx, objectID, &stripe.PriceUpdateParams{
				Metadata: map[string]string{models.TagTouchedAt: now},
			})
		default:
			s.logger.Debug("cannot replay event for object", "event", ev.ID, "object", objectID)
			s.stats.Record("event", formatter.Skipped)
			continue
		}
		if err != nil {
			if isNotFound(err) {
				s.stats.Record("event", formatter.Skipped)
				continue
			}
			group.Append(&shared.ImportError{Resource: "event", SourceID: ev.ID, Phase: "resend", Err: err})
			s.stats.Record("event", formatter.Failed)
			continue
		}
		s.stats.Record("event", formatter.Resent)
	}

	return group.ErrIfFatal()
}

func eventObjectID(ev *stripe.Event) string {
	if ev.Data == nil {
		return ""
	}
	id, _ := ev.Data.Object["id"].(string)
	return id
}
