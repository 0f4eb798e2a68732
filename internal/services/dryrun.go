package services

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stripe/stripe-go/v82"

	"github.com/desertthunder/subshift/internal/shared"
)

// DryRun wraps an API, passing every read through and substituting a
// fabricated result for every mutating call. Control flow and dependency
// resolution are identical to a live run, but the wrapped account is never
// written to. Fabricated ids carry a "dry_" prefix.
type DryRun struct {
	API
	logger *log.Logger
}

// NewDryRun wraps api in a mutation-free decorator.
func NewDryRun(api API, logger *log.Logger) *DryRun {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &DryRun{API: api, logger: shared.WithLogger(logger, "dry_run", true)}
}

func (d *DryRun) Label() string {
	return fmt.Sprintf("%s [dry-run]", d.API.Label())
}

func strOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

func i64Or(v *int64, fallback int64) int64 {
	if v == nil {
		return fallback
	}
	return *v
}

func (d *DryRun) CreateProduct(ctx context.Context, params *stripe.ProductCreateParams) (*stripe.Product, error) {
	id := shared.SyntheticID("prod")
	d.logger.Debug("skipping product create", "synthetic_id", id)
	return &stripe.Product{
		ID:          id,
		Name:        strOr(params.Name, ""),
		Description: strOr(params.Description, ""),
		Active:      true,
		Metadata:    params.Metadata,
		Created:     time.Now().Unix(),
	}, nil
}

func (d *DryRun) UpdateProduct(ctx context.Context, id string, params *stripe.ProductUpdateParams) (*stripe.Product, error) {
	d.logger.Debug("skipping product update", "id", id)
	return &stripe.Product{ID: id, Metadata: params.Metadata}, nil
}

func (d *DryRun) DeleteProduct(ctx context.Context, id string) error {
	d.logger.Debug("skipping product delete", "id", id)
	return nil
}

func (d *DryRun) CreatePrice(ctx context.Context, params *stripe.PriceCreateParams) (*stripe.Price, error) {
	id := shared.SyntheticID("price")
	d.logger.Debug("skipping price create", "synthetic_id", id)
	price := &stripe.Price{
		ID:         id,
		Currency:   stripe.Currency(strOr(params.Currency, "")),
		UnitAmount: i64Or(params.UnitAmount, 0),
		Active:     true,
		Metadata:   params.Metadata,
		Product:    &stripe.Product{ID: strOr(params.Product, "")},
		Created:    time.Now().Unix(),
	}
	if params.Recurring != nil {
		price.Recurring = &stripe.PriceRecurring{
			Interval:      stripe.PriceRecurringInterval(strOr(params.Recurring.Interval, "")),
			IntervalCount: i64Or(params.Recurring.IntervalCount, 1),
		}
	}
	return price, nil
}

func (d *DryRun) UpdatePrice(ctx context.Context, id string, params *stripe.PriceUpdateParams) (*stripe.Price, error) {
	d.logger.Debug("skipping price update", "id", id)
	return &stripe.Price{ID: id, Metadata: params.Metadata}, nil
}

func (d *DryRun) CreateCoupon(ctx context.Context, params *stripe.CouponCreateParams) (*stripe.Coupon, error) {
	id := strOr(params.ID, shared.SyntheticID("coupon"))
	d.logger.Debug("skipping coupon create", "id", id)
	return &stripe.Coupon{
		ID:             id,
		Name:           strOr(params.Name, ""),
		AmountOff:      i64Or(params.AmountOff, 0),
		Currency:       stripe.Currency(strOr(params.Currency, "")),
		Duration:       stripe.CouponDuration(strOr(params.Duration, "")),
		MaxRedemptions: i64Or(params.MaxRedemptions, 0),
		Metadata:       params.Metadata,
		Valid:          true,
	}, nil
}

func (d *DryRun) DeleteCoupon(ctx context.Context, id string) error {
	d.logger.Debug("skipping coupon delete", "id", id)
	return nil
}

func (d *DryRun) CreateSubscription(ctx context.Context, params *stripe.SubscriptionCreateParams) (*stripe.Subscription, error) {
	id := shared.SyntheticID("sub")
	d.logger.Debug("skipping subscription create", "synthetic_id", id)

	items := &stripe.SubscriptionItemList{}
	for _, item := range params.Items {
		items.Data = append(items.Data, &stripe.SubscriptionItem{
			ID:       shared.SyntheticID("si"),
			Price:    &stripe.Price{ID: strOr(item.Price, "")},
			Quantity: i64Or(item.Quantity, 1),
		})
	}

	return &stripe.Subscription{
		ID:       id,
		Status:   stripe.SubscriptionStatusActive,
		Customer: &stripe.Customer{ID: strOr(params.Customer, "")},
		Items:    items,
		Metadata: params.Metadata,
		Created:  time.Now().Unix(),
	}, nil
}

func (d *DryRun) UpdateSubscription(ctx context.Context, id string, params *stripe.SubscriptionUpdateParams) (*stripe.Subscription, error) {
	d.logger.Debug("skipping subscription update", "id", id)
	return &stripe.Subscription{ID: id, Metadata: params.Metadata}, nil
}

func (d *DryRun) CancelSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	d.logger.Debug("skipping subscription cancel", "id", id)
	return &stripe.Subscription{ID: id, Status: stripe.SubscriptionStatusCanceled}, nil
}

func (d *DryRun) CreateInvoice(ctx context.Context, params *stripe.InvoiceCreateParams) (*stripe.Invoice, error) {
	id := shared.SyntheticID("in")
	d.logger.Debug("skipping invoice create", "synthetic_id", id)
	return &stripe.Invoice{
		ID:       id,
		Status:   stripe.InvoiceStatusDraft,
		Currency: stripe.Currency(strOr(params.Currency, "")),
		Metadata: params.Metadata,
	}, nil
}

func (d *DryRun) CreateInvoiceItem(ctx context.Context, params *stripe.InvoiceItemCreateParams) (*stripe.InvoiceItem, error) {
	id := shared.SyntheticID("ii")
	d.logger.Debug("skipping invoice item create", "synthetic_id", id)
	return &stripe.InvoiceItem{
		ID:       id,
		Amount:   i64Or(params.Amount, 0),
		Currency: stripe.Currency(strOr(params.Currency, "")),
	}, nil
}

func (d *DryRun) FinalizeInvoice(ctx context.Context, id string) (*stripe.Invoice, error) {
	d.logger.Debug("skipping invoice finalize", "id", id)
	return &stripe.Invoice{ID: id, Status: stripe.InvoiceStatusOpen}, nil
}

func (d *DryRun) PayInvoice(ctx context.Context, id string) (*stripe.Invoice, error) {
	d.logger.Debug("skipping invoice pay", "id", id)
	return &stripe.Invoice{ID: id, Status: stripe.InvoiceStatusPaid}, nil
}

var _ API = (*DryRun)(nil)
