package tasks

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/stripe/stripe-go/v82"

	"github.com/desertthunder/subshift/internal/models"
	"github.com/desertthunder/subshift/internal/services"
	"github.com/desertthunder/subshift/internal/shared"
)

// PriceProvider migrates prices. Recreating a price recreates its product
// first through the product importer, so a subscription can pull in its
// whole catalog dependency chain from one call.
type PriceProvider struct {
	source   services.API
	target   services.API
	products *Importer[*stripe.Product]

	once      sync.Once
	indexErr  error
	targetIDs map[string]string
}

func NewPriceProvider(source, target services.API, products *Importer[*stripe.Product]) *PriceProvider {
	return &PriceProvider{source: source, target: target, products: products}
}

func (p *PriceProvider) Name() string { return "price" }

func (p *PriceProvider) ID(item *stripe.Price) string { return item.ID }

func (p *PriceProvider) GetByID(ctx context.Context, id string) (*stripe.Price, error) {
	return p.source.GetPrice(ctx, id)
}

func (p *PriceProvider) GetAll(ctx context.Context) iter.Seq2[*stripe.Price, error] {
	return func(yield func(*stripe.Price, error) bool) {
		for price, err := range p.source.ListPrices(ctx) {
			if err != nil {
				yield(nil, err)
				return
			}
			if !price.Active {
				continue
			}
			if !yield(price, nil) {
				return
			}
		}
	}
}

func (p *PriceProvider) index(ctx context.Context) (map[string]string, error) {
	p.once.Do(func() {
		p.targetIDs = map[string]string{}
		for price, err := range p.target.ListPrices(ctx) {
			if err != nil {
				p.indexErr = err
				return
			}
			if src := models.SourceID(price.Metadata); src != "" {
				p.targetIDs[src] = price.ID
			}
		}
	})
	return p.targetIDs, p.indexErr
}

func (p *PriceProvider) FindExisting(ctx context.Context, sourceID string) (string, error) {
	idx, err := p.index(ctx)
	if err != nil {
		return "", err
	}
	return idx[sourceID], nil
}

func (p *PriceProvider) FindMigrated(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for price, err := range p.target.ListPrices(ctx) {
			if err != nil {
				yield("", err)
				return
			}
			if models.SourceID(price.Metadata) == "" {
				continue
			}
			if !yield(price.ID, nil) {
				return
			}
		}
	}
}

func (p *PriceProvider) Recreate(ctx context.Context, item *stripe.Price) (string, error) {
	if item.Product == nil {
		return "", fmt.Errorf("%w: price %s has no product", shared.ErrInvalidInput, item.ID)
	}

	// Listings expand the product, so the object is usually in hand.
	fetched := item.Product.Name != "" || item.Product.Metadata != nil
	targetProduct, err := p.products.RecreateByObjectOrID(ctx, item.Product.ID, item.Product, fetched)
	if err != nil {
		return "", err
	}

	metadata := models.Tag(item.ID, item.Created)
	for k, v := range item.Metadata {
		metadata[k] = v
	}

	params := &stripe.PriceCreateParams{
		Product:  stripe.String(targetProduct),
		Currency: stripe.String(string(item.Currency)),
		Metadata: metadata,
	}
	if item.UnitAmount == 0 && item.UnitAmountDecimal != 0 {
		params.UnitAmountDecimal = stripe.Float64(item.UnitAmountDecimal)
	} else {
		params.UnitAmount = stripe.Int64(item.UnitAmount)
	}
	if item.Nickname != "" {
		params.Nickname = stripe.String(item.Nickname)
	}
	if item.Recurring != nil {
		params.Recurring = &stripe.PriceCreateRecurringParams{
			Interval: stripe.String(string(item.Recurring.Interval)),
		}
		if item.Recurring.IntervalCount > 0 {
			params.Recurring.IntervalCount = stripe.Int64(item.Recurring.IntervalCount)
		}
		if item.Recurring.UsageType != "" {
			params.Recurring.UsageType = stripe.String(string(item.Recurring.UsageType))
		}
	}
	if item.TaxBehavior != "" {
		params.TaxBehavior = stripe.String(string(item.TaxBehavior))
	}

	created, err := p.target.CreatePrice(ctx, params)
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

// Revert deactivates the target price. Prices cannot be deleted through the
// API once created.
func (p *PriceProvider) Revert(ctx context.Context, targetID string) error {
	_, err := p.target.UpdatePrice(ctx, targetID, &stripe.PriceUpdateParams{
		Active: stripe.Bool(false),
	})
	if isNotFound(err) {
		return nil
	}
	return err
}

var _ Provider[*stripe.Price] = (*PriceProvider)(nil)
