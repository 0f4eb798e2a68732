// package models defines the billing data model shared by the migration engine
package models

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
)

// Metadata keys written onto target-account objects. The source-id tag is
// the only durable cross-run migration state: a target object carrying it is
// the recreated counterpart of the source object it names.
const (
	TagSourceID      = "subshift_source_id"
	TagSourceCreated = "subshift_source_created"
	TagMigratedAt    = "subshift_migrated_at"
	TagPaused        = "subshift_paused"
	TagConfirmedAt   = "subshift_confirmed_at"
	TagTouchedAt     = "subshift_touched_at"
)

// SourceID returns the source-account counterpart id recorded on a target
// object's metadata, or "" when the object was not created by a migration.
func SourceID(metadata map[string]string) string {
	if metadata == nil {
		return ""
	}
	return metadata[TagSourceID]
}

// Tag builds the metadata written onto every recreated target object.
func Tag(sourceID string, sourceCreated int64) map[string]string {
	return map[string]string{
		TagSourceID:      sourceID,
		TagSourceCreated: strconv.FormatInt(sourceCreated, 10),
		TagMigratedAt:    time.Now().UTC().Format(time.RFC3339),
	}
}

// Fingerprint identifies a card payment method well enough to match it
// across two billing accounts, where ids and provider fingerprints differ.
type Fingerprint struct {
	Type     stripe.PaymentMethodType
	Brand    stripe.PaymentMethodCardBrand
	Last4    string
	ExpMonth int64
	ExpYear  int64
}

// FingerprintOf derives a Fingerprint from a payment method. Non-card
// methods fingerprint by type only.
func FingerprintOf(pm *stripe.PaymentMethod) Fingerprint {
	fp := Fingerprint{Type: pm.Type}
	if pm.Card != nil {
		fp.Brand = pm.Card.Brand
		fp.Last4 = pm.Card.Last4
		fp.ExpMonth = pm.Card.ExpMonth
		fp.ExpYear = pm.Card.ExpYear
	}
	return fp
}

// Matches reports whether two payment methods describe the same underlying
// instrument.
func (f Fingerprint) Matches(other Fingerprint) bool {
	return f == other
}

// MonthlyAmount normalizes a recurring price (times quantity) to its
// per-month volume, in the price's smallest currency unit.
func MonthlyAmount(price *stripe.Price, quantity int64) decimal.Decimal {
	if price == nil || price.Recurring == nil {
		return decimal.Zero
	}
	if quantity <= 0 {
		quantity = 1
	}
	amount := decimal.NewFromInt(price.UnitAmount * quantity)

	count := price.Recurring.IntervalCount
	if count <= 0 {
		count = 1
	}
	per := decimal.NewFromInt(count)

	switch price.Recurring.Interval {
	case stripe.PriceRecurringIntervalDay:
		return amount.Mul(decimal.NewFromFloat(365.0 / 12.0)).Div(per)
	case stripe.PriceRecurringIntervalWeek:
		return amount.Mul(decimal.NewFromFloat(52.0 / 12.0)).Div(per)
	case stripe.PriceRecurringIntervalMonth:
		return amount.Div(per)
	case stripe.PriceRecurringIntervalYear:
		return amount.Div(per.Mul(decimal.NewFromInt(12)))
	default:
		return amount.Div(per)
	}
}

// PeriodEnd returns the subscription's current period end: the latest
// per-item period end on the subscription.
func PeriodEnd(sub *stripe.Subscription) time.Time {
	var max int64
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item.CurrentPeriodEnd > max {
				max = item.CurrentPeriodEnd
			}
		}
	}
	if max == 0 {
		return time.Time{}
	}
	return time.Unix(max, 0).UTC()
}
