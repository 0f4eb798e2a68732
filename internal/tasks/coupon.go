package tasks

import (
	"context"
	"iter"

	"github.com/stripe/stripe-go/v82"

	"github.com/desertthunder/subshift/internal/models"
	"github.com/desertthunder/subshift/internal/services"
	"github.com/desertthunder/subshift/internal/shared"
)

// CouponProvider migrates coupons. Coupon ids are operator-chosen promo
// codes, so the target copy keeps the literal source id and existence on the
// target is checked by direct lookup rather than a tag scan. The tag is
// still written so revert can tell migrated coupons from native ones.
type CouponProvider struct {
	source services.API
	target services.API
}

func NewCouponProvider(source, target services.API) *CouponProvider {
	return &CouponProvider{source: source, target: target}
}

func (p *CouponProvider) Name() string { return "coupon" }

func (p *CouponProvider) ID(item *stripe.Coupon) string { return item.ID }

func (p *CouponProvider) GetByID(ctx context.Context, id string) (*stripe.Coupon, error) {
	return p.source.GetCoupon(ctx, id)
}

// GetAll is empty: coupons migrate on demand, pulled in by the
// subscriptions that discount with them.
func (p *CouponProvider) GetAll(ctx context.Context) iter.Seq2[*stripe.Coupon, error] {
	return func(yield func(*stripe.Coupon, error) bool) {}
}

func (p *CouponProvider) FindExisting(ctx context.Context, sourceID string) (string, error) {
	c, err := p.target.GetCoupon(ctx, sourceID)
	if isNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

// FindMigrated is empty for the same reason GetAll is: there is no coupon
// listing on the API surface this tool consumes. Revert reaches coupons
// through the subscriptions that reference them.
func (p *CouponProvider) FindMigrated(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {}
}

func (p *CouponProvider) Recreate(ctx context.Context, item *stripe.Coupon) (string, error) {
	metadata := models.Tag(item.ID, item.Created)
	for k, v := range item.Metadata {
		metadata[k] = v
	}

	params := &stripe.CouponCreateParams{
		ID:       stripe.String(item.ID),
		Duration: stripe.String(string(item.Duration)),
		Metadata: metadata,
	}
	if item.Name != "" {
		params.Name = stripe.String(item.Name)
	}
	if item.PercentOff > 0 {
		params.PercentOff = stripe.Float64(item.PercentOff)
	} else {
		params.AmountOff = stripe.Int64(item.AmountOff)
		params.Currency = stripe.String(string(item.Currency))
	}
	if item.Duration == stripe.CouponDurationRepeating && item.DurationInMonths > 0 {
		params.DurationInMonths = stripe.Int64(item.DurationInMonths)
	}
	if item.MaxRedemptions > 0 {
		// The target only gets what is left to redeem.
		remaining := item.MaxRedemptions - item.TimesRedeemed
		if remaining <= 0 {
			return "", &shared.ImportWarning{
				Resource: "coupon",
				SourceID: item.ID,
				Reason:   "every redemption is already used",
			}
		}
		params.MaxRedemptions = stripe.Int64(remaining)
	}
	if item.RedeemBy > 0 {
		params.RedeemBy = stripe.Int64(item.RedeemBy)
	}

	created, err := p.target.CreateCoupon(ctx, params)
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

// Revert deletes the target coupon only when it was written by a migration.
func (p *CouponProvider) Revert(ctx context.Context, targetID string) error {
	c, err := p.target.GetCoupon(ctx, targetID)
	if isNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if models.SourceID(c.Metadata) == "" {
		return &shared.ImportWarning{
			Resource: "coupon",
			SourceID: targetID,
			Reason:   "not created by a migration, leaving it alone",
		}
	}
	err = p.target.DeleteCoupon(ctx, targetID)
	if isNotFound(err) {
		return nil
	}
	return err
}

var _ Provider[*stripe.Coupon] = (*CouponProvider)(nil)
