package tasks

import (
	"context"
	"iter"
	"sync"

	"github.com/stripe/stripe-go/v82"

	"github.com/desertthunder/subshift/internal/models"
	"github.com/desertthunder/subshift/internal/services"
)

// ProductProvider migrates products. The target index (source id tag ->
// target id) is built lazily from a single full listing on first lookup,
// which is cheaper than probing per object.
type ProductProvider struct {
	source services.API
	target services.API

	once      sync.Once
	indexErr  error
	targetIDs map[string]string
}

func NewProductProvider(source, target services.API) *ProductProvider {
	return &ProductProvider{source: source, target: target}
}

func (p *ProductProvider) Name() string { return "product" }

func (p *ProductProvider) ID(item *stripe.Product) string { return item.ID }

func (p *ProductProvider) GetByID(ctx context.Context, id string) (*stripe.Product, error) {
	return p.source.GetProduct(ctx, id)
}

func (p *ProductProvider) GetAll(ctx context.Context) iter.Seq2[*stripe.Product, error] {
	return func(yield func(*stripe.Product, error) bool) {
		for prod, err := range p.source.ListProducts(ctx) {
			if err != nil {
				yield(nil, err)
				return
			}
			if !prod.Active {
				continue
			}
			if !yield(prod, nil) {
				return
			}
		}
	}
}

func (p *ProductProvider) index(ctx context.Context) (map[string]string, error) {
	p.once.Do(func() {
		p.targetIDs = map[string]string{}
		for prod, err := range p.target.ListProducts(ctx) {
			if err != nil {
				p.indexErr = err
				return
			}
			if src := models.SourceID(prod.Metadata); src != "" {
				p.targetIDs[src] = prod.ID
			}
		}
	})
	return p.targetIDs, p.indexErr
}

func (p *ProductProvider) FindExisting(ctx context.Context, sourceID string) (string, error) {
	idx, err := p.index(ctx)
	if err != nil {
		return "", err
	}
	return idx[sourceID], nil
}

func (p *ProductProvider) FindMigrated(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for prod, err := range p.target.ListProducts(ctx) {
			if err != nil {
				yield("", err)
				return
			}
			if models.SourceID(prod.Metadata) == "" {
				continue
			}
			if !yield(prod.ID, nil) {
				return
			}
		}
	}
}

func (p *ProductProvider) Recreate(ctx context.Context, item *stripe.Product) (string, error) {
	metadata := models.Tag(item.ID, item.Created)
	for k, v := range item.Metadata {
		metadata[k] = v
	}

	params := &stripe.ProductCreateParams{
		Name:     stripe.String(item.Name),
		Metadata: metadata,
	}
	if item.Description != "" {
		params.Description = stripe.String(item.Description)
	}
	if item.UnitLabel != "" {
		params.UnitLabel = stripe.String(item.UnitLabel)
	}
	if item.StatementDescriptor != "" {
		params.StatementDescriptor = stripe.String(item.StatementDescriptor)
	}
	if item.TaxCode != nil {
		params.TaxCode = stripe.String(item.TaxCode.ID)
	}

	created, err := p.target.CreateProduct(ctx, params)
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

// Revert deactivates the target product. Deletion fails once prices hang off
// it, and a dangling inactive product is harmless.
func (p *ProductProvider) Revert(ctx context.Context, targetID string) error {
	err := p.target.DeleteProduct(ctx, targetID)
	if err == nil || isNotFound(err) {
		return nil
	}
	_, err = p.target.UpdateProduct(ctx, targetID, &stripe.ProductUpdateParams{
		Active: stripe.Bool(false),
	})
	return err
}

var _ Provider[*stripe.Product] = (*ProductProvider)(nil)
