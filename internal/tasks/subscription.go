package tasks

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stripe/stripe-go/v82"

	"github.com/desertthunder/subshift/internal/formatter"
	"github.com/desertthunder/subshift/internal/models"
	"github.com/desertthunder/subshift/internal/services"
	"github.com/desertthunder/subshift/internal/shared"
)

// migratable are the source statuses worth moving. Everything else is
// finished or stuck on the source side and skips with a warning.
var migratable = map[stripe.SubscriptionStatus]bool{
	stripe.SubscriptionStatusActive:   true,
	stripe.SubscriptionStatusTrialing: true,
	stripe.SubscriptionStatusPastDue:  true,
}

// SubscriptionProvider migrates subscriptions, pulling their prices (and
// through them, products) and coupons across on demand. Customers are
// expected to already exist on the target under the same ids.
type SubscriptionProvider struct {
	source services.API
	target services.API

	prices  *Importer[*stripe.Price]
	coupons *Importer[*stripe.Coupon]
	stats   *formatter.Stats
	logger  *log.Logger

	// delay pushes the target's first charge out past the handover window
	// when the source period has already ended.
	delay       time.Duration
	pauseSource bool

	now func() time.Time
}

type SubscriptionOpts struct {
	Delay       time.Duration
	PauseSource bool
	Logger      *log.Logger
}

func NewSubscriptionProvider(source, target services.API, prices *Importer[*stripe.Price], coupons *Importer[*stripe.Coupon], stats *formatter.Stats, opts SubscriptionOpts) *SubscriptionProvider {
	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &SubscriptionProvider{
		source:      source,
		target:      target,
		prices:      prices,
		coupons:     coupons,
		stats:       stats,
		logger:      shared.WithLogger(logger, "resource", "subscription"),
		delay:       opts.Delay,
		pauseSource: opts.PauseSource,
		now:         time.Now,
	}
}

func (p *SubscriptionProvider) Name() string { return "subscription" }

func (p *SubscriptionProvider) ID(item *stripe.Subscription) string { return item.ID }

func (p *SubscriptionProvider) GetByID(ctx context.Context, id string) (*stripe.Subscription, error) {
	return p.source.GetSubscription(ctx, id)
}

// GetAll yields every source subscription, ineligible statuses included.
// Recreate's status gate turns those into warnings so the run report counts
// them instead of silently dropping them.
func (p *SubscriptionProvider) GetAll(ctx context.Context) iter.Seq2[*stripe.Subscription, error] {
	return p.source.ListSubscriptions(ctx)
}

func (p *SubscriptionProvider) FindExisting(ctx context.Context, sourceID string) (string, error) {
	query := fmt.Sprintf("metadata['%s']:'%s'", models.TagSourceID, sourceID)
	for sub, err := range p.target.SearchSubscriptions(ctx, query) {
		if err != nil {
			return "", err
		}
		if sub.Status == stripe.SubscriptionStatusCanceled {
			continue
		}
		return sub.ID, nil
	}
	return "", nil
}

func (p *SubscriptionProvider) FindMigrated(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for sub, err := range p.target.ListSubscriptions(ctx) {
			if err != nil {
				yield("", err)
				return
			}
			if models.SourceID(sub.Metadata) == "" {
				continue
			}
			if sub.Status == stripe.SubscriptionStatusCanceled {
				continue
			}
			if !yield(sub.ID, nil) {
				return
			}
		}
	}
}

func (p *SubscriptionProvider) warn(sub *stripe.Subscription, reason string, err error) error {
	return &shared.ImportWarning{Resource: "subscription", SourceID: sub.ID, Reason: reason, Err: err}
}

func (p *SubscriptionProvider) fatal(sub *stripe.Subscription, phase string, err error) error {
	return &shared.ImportError{Resource: "subscription", SourceID: sub.ID, Phase: phase, Err: err}
}

func (p *SubscriptionProvider) Recreate(ctx context.Context, item *stripe.Subscription) (string, error) {
	if !migratable[item.Status] {
		return "", p.warn(item, fmt.Sprintf("status %s is not migratable", item.Status), nil)
	}
	if item.Customer == nil {
		return "", p.fatal(item, "recreate", fmt.Errorf("%w: subscription has no customer", shared.ErrInvalidInput))
	}

	// Customers move ahead of time, under preserved ids. A missing target
	// customer means the handover is incomplete and continuing would bill
	// the wrong book.
	customer, err := p.target.GetCustomer(ctx, item.Customer.ID)
	if err != nil {
		if isNotFound(err) {
			return "", p.fatal(item, "recreate", fmt.Errorf("%w: %s", shared.ErrCustomerNotFound, item.Customer.ID))
		}
		return "", p.fatal(item, "recreate", err)
	}

	params := &stripe.SubscriptionCreateParams{
		Customer: stripe.String(customer.ID),
	}

	for _, si := range item.Items.Data {
		if si.Price == nil {
			return "", p.fatal(item, "recreate", fmt.Errorf("%w: item %s has no price", shared.ErrInvalidInput, si.ID))
		}
		targetPrice, err := p.prices.RecreateByObjectOrID(ctx, si.Price.ID, si.Price, si.Price.Currency != "")
		if err != nil {
			return "", err
		}
		itemParams := &stripe.SubscriptionCreateItemParams{
			Price: stripe.String(targetPrice),
		}
		if si.Quantity > 0 {
			itemParams.Quantity = stripe.Int64(si.Quantity)
		}
		params.Items = append(params.Items, itemParams)
	}

	pmID, err := p.matchPaymentMethod(ctx, item, customer)
	if err != nil {
		return "", err
	}
	if pmID != "" {
		params.DefaultPaymentMethod = stripe.String(pmID)
	}

	for _, discount := range item.Discounts {
		if discount == nil || discount.Coupon == nil {
			continue
		}
		targetCoupon, err := p.coupons.RecreateByObjectOrID(ctx, discount.Coupon.ID, discount.Coupon, discount.Coupon.Duration != "")
		if shared.IsWarning(err) {
			// A coupon with nothing left to honor drops off; the
			// subscription itself still moves.
			p.logger.Warn("discount dropped", "source_id", item.ID, "coupon", discount.Coupon.ID, "reason", err)
			p.stats.Record("coupon", formatter.Skipped)
			p.stats.Warn("%v", err)
			continue
		}
		if err != nil {
			return "", err
		}
		params.Discounts = append(params.Discounts, &stripe.SubscriptionCreateDiscountParams{
			Coupon: stripe.String(targetCoupon),
		})
	}

	now := p.now()
	if item.Status == stripe.SubscriptionStatusTrialing && item.TrialEnd > now.Unix() {
		// Mid-trial: the target keeps the remaining trial and bills when
		// the source would have.
		params.TrialEnd = stripe.Int64(item.TrialEnd)
	} else {
		anchor := models.PeriodEnd(item)
		if floor := now.Add(p.delay); anchor.Before(floor) {
			anchor = floor
		}
		params.BillingCycleAnchor = stripe.Int64(anchor.Unix())
		params.ProrationBehavior = stripe.String("none")
	}

	metadata := models.Tag(item.ID, item.Created)
	for k, v := range item.Metadata {
		metadata[k] = v
	}
	params.Metadata = metadata

	created, err := p.target.CreateSubscription(ctx, params)
	if err != nil {
		return "", p.fatal(item, "recreate", err)
	}

	p.stats.RecordSubscriptionStatus(string(item.Status))
	for _, si := range item.Items.Data {
		p.stats.AddMonthlyVolume(string(si.Price.Currency), models.MonthlyAmount(si.Price, si.Quantity))
	}

	if err := p.duplicateOpenInvoices(ctx, item, customer.ID); err != nil {
		return "", err
	}

	if p.pauseSource {
		if err := p.pause(ctx, item.ID); err != nil {
			return "", p.fatal(item, "pause", err)
		}
	}

	return created.ID, nil
}

// matchPaymentMethod decides which target payment method the new
// subscription charges. The source instrument, when one is pinned, must
// exist on the target customer with the same card identity; otherwise the
// target customer's own default serves.
func (p *SubscriptionProvider) matchPaymentMethod(ctx context.Context, item *stripe.Subscription, customer *stripe.Customer) (string, error) {
	sourcePM := item.DefaultPaymentMethod
	if sourcePM == nil && item.Customer != nil && item.Customer.InvoiceSettings != nil {
		sourcePM = item.Customer.InvoiceSettings.DefaultPaymentMethod
	}
	if sourcePM != nil && sourcePM.Type == "" && sourcePM.ID != "" {
		// List expansion stops one level short of the customer's default
		// instrument, so it arrives as an id-only stub. Resolve it before
		// fingerprinting or the fingerprint is empty and matches nothing.
		full, err := p.source.GetPaymentMethod(ctx, sourcePM.ID)
		if err != nil {
			return "", p.fatal(item, "recreate", err)
		}
		sourcePM = full
	}

	if sourcePM == nil {
		if customer.InvoiceSettings != nil && customer.InvoiceSettings.DefaultPaymentMethod != nil {
			return customer.InvoiceSettings.DefaultPaymentMethod.ID, nil
		}
		return "", p.fatal(item, "recreate",
			fmt.Errorf("%w: customer %s has no default on either account", shared.ErrNoPaymentMethod, customer.ID))
	}

	want := models.FingerprintOf(sourcePM)
	for pm, err := range p.target.ListPaymentMethods(ctx, customer.ID) {
		if err != nil {
			return "", p.fatal(item, "recreate", err)
		}
		if want.Matches(models.FingerprintOf(pm)) {
			return pm.ID, nil
		}
	}

	return "", p.fatal(item, "recreate",
		fmt.Errorf("%w: no target instrument matches %s %s ...%s", shared.ErrNoPaymentMethod, sourcePM.Type, cardBrand(sourcePM), cardLast4(sourcePM)))
}

func cardBrand(pm *stripe.PaymentMethod) string {
	if pm.Card == nil {
		return ""
	}
	return string(pm.Card.Brand)
}

func cardLast4(pm *stripe.PaymentMethod) string {
	if pm.Card == nil {
		return ""
	}
	return pm.Card.Last4
}

// duplicateOpenInvoices copies the source subscription's open invoices to
// the target as one-line invoices, finalizes them and attempts collection.
// A failed charge is the customer's problem to resolve, not a migration
// failure.
func (p *SubscriptionProvider) duplicateOpenInvoices(ctx context.Context, item *stripe.Subscription, customerID string) error {
	listParams := &stripe.InvoiceListParams{
		Customer: stripe.String(item.Customer.ID),
		Status:   stripe.String(string(stripe.InvoiceStatusOpen)),
	}

	for inv, err := range p.source.ListInvoices(ctx, listParams) {
		if err != nil {
			return p.fatal(item, "invoices", err)
		}
		if sub := invoiceSubscriptionID(inv); sub != "" && sub != item.ID {
			continue
		}
		if inv.AmountDue <= 0 {
			continue
		}

		metadata := models.Tag(inv.ID, inv.Created)
		created, err := p.target.CreateInvoice(ctx, &stripe.InvoiceCreateParams{
			Customer: stripe.String(customerID),
			Currency: stripe.String(string(inv.Currency)),
			Metadata: metadata,
		})
		if err != nil {
			return p.fatal(item, "invoices", err)
		}

		description := fmt.Sprintf("Balance carried over from invoice %s", inv.Number)
		if inv.Number == "" {
			description = "Carried-over open balance"
		}
		_, err = p.target.CreateInvoiceItem(ctx, &stripe.InvoiceItemCreateParams{
			Customer:    stripe.String(customerID),
			Invoice:     stripe.String(created.ID),
			Amount:      stripe.Int64(inv.AmountDue),
			Currency:    stripe.String(string(inv.Currency)),
			Description: stripe.String(description),
		})
		if err != nil {
			return p.fatal(item, "invoices", err)
		}

		if _, err := p.target.FinalizeInvoice(ctx, created.ID); err != nil {
			return p.fatal(item, "invoices", err)
		}
		if _, err := p.target.PayInvoice(ctx, created.ID); err != nil {
			p.logger.Warn("carried-over invoice did not collect", "invoice", created.ID, "error", err)
			p.stats.Warn("invoice %s for %s did not collect", created.ID, item.ID)
		}
		p.stats.Record("invoice", formatter.Recreated)
	}

	return nil
}

func invoiceSubscriptionID(inv *stripe.Invoice) string {
	if inv.Parent == nil || inv.Parent.SubscriptionDetails == nil || inv.Parent.SubscriptionDetails.Subscription == nil {
		return ""
	}
	return inv.Parent.SubscriptionDetails.Subscription.ID
}

// pause stops the source subscription from generating further charges while
// keeping it resumable for revert.
func (p *SubscriptionProvider) pause(ctx context.Context, sourceID string) error {
	params := &stripe.SubscriptionUpdateParams{
		PauseCollection: &stripe.SubscriptionUpdatePauseCollectionParams{
			Behavior: stripe.String(string(stripe.SubscriptionPauseCollectionBehaviorVoid)),
		},
		Metadata: map[string]string{models.TagPaused: "true"},
	}
	_, err := p.source.UpdateSubscription(ctx, sourceID, params)
	return err
}

// resume lifts the collection pause on the source subscription.
func (p *SubscriptionProvider) resume(ctx context.Context, sourceID string) error {
	params := &stripe.SubscriptionUpdateParams{
		Metadata: map[string]string{models.TagPaused: ""},
	}
	params.AddExtra("pause_collection", "")
	_, err := p.source.UpdateSubscription(ctx, sourceID, params)
	return err
}

// Revert cancels the target subscription and puts the source back in
// service: collection resumes and any coupon the migration copied over is
// removed from the target.
func (p *SubscriptionProvider) Revert(ctx context.Context, targetID string) error {
	sub, err := p.target.GetSubscription(ctx, targetID)
	if isNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}

	sourceID := models.SourceID(sub.Metadata)
	if sourceID == "" {
		return &shared.ImportWarning{
			Resource: "subscription",
			SourceID: targetID,
			Reason:   "not created by a migration, leaving it alone",
		}
	}

	if sub.Status != stripe.SubscriptionStatusCanceled {
		if _, err := p.target.CancelSubscription(ctx, targetID); err != nil {
			return err
		}
	}

	if err := p.resume(ctx, sourceID); err != nil {
		if !isNotFound(err) {
			return err
		}
		p.logger.Warn("source subscription is gone, cannot resume", "source_id", sourceID)
	}

	for _, discount := range sub.Discounts {
		if discount == nil || discount.Coupon == nil {
			continue
		}
		if err := p.coupons.Revert(ctx, discount.Coupon.ID); err != nil && !shared.IsWarning(err) {
			p.logger.Warn("coupon revert failed", "coupon", discount.Coupon.ID, "error", err)
			p.stats.Warn("coupon %s could not be reverted", discount.Coupon.ID)
		}
	}

	return nil
}

var _ Provider[*stripe.Subscription] = (*SubscriptionProvider)(nil)
