package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stripe/stripe-go/v82"
)

// stubAPI covers the read surface a dry run delegates to. Mutating calls
// must never reach it.
type stubAPI struct {
	API
	products map[string]*stripe.Product
	mutated  bool
}

func (s *stubAPI) Label() string { return "acct stub (test)" }
func (s *stubAPI) Mode() Mode    { return ModeTest }

func (s *stubAPI) GetProduct(ctx context.Context, id string) (*stripe.Product, error) {
	return s.products[id], nil
}

func (s *stubAPI) CreateProduct(ctx context.Context, params *stripe.ProductCreateParams) (*stripe.Product, error) {
	s.mutated = true
	return nil, nil
}

func TestDryRun(t *testing.T) {
	ctx := context.Background()

	t.Run("Label Marks the Account", func(t *testing.T) {
		d := NewDryRun(&stubAPI{}, nil)
		if !strings.Contains(d.Label(), "dry-run") {
			t.Errorf("expected dry-run marker in label, got %q", d.Label())
		}
		if !strings.Contains(d.Label(), "acct stub") {
			t.Errorf("expected inner label to survive, got %q", d.Label())
		}
	})

	t.Run("Reads Pass Through", func(t *testing.T) {
		inner := &stubAPI{products: map[string]*stripe.Product{
			"prod_123": {ID: "prod_123", Name: "Pro Plan"},
		}}
		d := NewDryRun(inner, nil)

		prod, err := d.GetProduct(ctx, "prod_123")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if prod == nil || prod.Name != "Pro Plan" {
			t.Errorf("expected inner product, got %+v", prod)
		}
	})

	t.Run("Create Product Never Reaches the Account", func(t *testing.T) {
		inner := &stubAPI{}
		d := NewDryRun(inner, nil)

		prod, err := d.CreateProduct(ctx, &stripe.ProductCreateParams{
			Name:     stripe.String("Pro Plan"),
			Metadata: map[string]string{"k": "v"},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if inner.mutated {
			t.Error("dry run forwarded a create to the account")
		}
		if !strings.HasPrefix(prod.ID, "dry_prod_") {
			t.Errorf("expected synthetic id, got %q", prod.ID)
		}
		if prod.Name != "Pro Plan" {
			t.Errorf("expected name to carry over, got %q", prod.Name)
		}
		if prod.Metadata["k"] != "v" {
			t.Error("expected metadata to carry over")
		}
	})

	t.Run("Synthetic Ids Are Unique", func(t *testing.T) {
		d := NewDryRun(&stubAPI{}, nil)

		a, _ := d.CreatePrice(ctx, &stripe.PriceCreateParams{})
		b, _ := d.CreatePrice(ctx, &stripe.PriceCreateParams{})
		if a.ID == b.ID {
			t.Errorf("expected distinct synthetic ids, both %q", a.ID)
		}
	})

	t.Run("Coupon Keeps Its Literal Id", func(t *testing.T) {
		d := NewDryRun(&stubAPI{}, nil)

		c, err := d.CreateCoupon(ctx, &stripe.CouponCreateParams{
			ID:   stripe.String("SPRING20"),
			Name: stripe.String("Spring Sale"),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.ID != "SPRING20" {
			t.Errorf("expected literal coupon id, got %q", c.ID)
		}
	})

	t.Run("Subscription Echoes Items and Customer", func(t *testing.T) {
		d := NewDryRun(&stubAPI{}, nil)

		sub, err := d.CreateSubscription(ctx, &stripe.SubscriptionCreateParams{
			Customer: stripe.String("cus_123"),
			Items: []*stripe.SubscriptionCreateItemParams{
				{Price: stripe.String("price_a"), Quantity: stripe.Int64(3)},
				{Price: stripe.String("price_b")},
			},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sub.Status != stripe.SubscriptionStatusActive {
			t.Errorf("expected active status, got %s", sub.Status)
		}
		if sub.Customer.ID != "cus_123" {
			t.Errorf("expected customer to carry over, got %q", sub.Customer.ID)
		}
		if len(sub.Items.Data) != 2 {
			t.Fatalf("expected 2 items, got %d", len(sub.Items.Data))
		}
		if sub.Items.Data[0].Price.ID != "price_a" || sub.Items.Data[0].Quantity != 3 {
			t.Errorf("unexpected first item %+v", sub.Items.Data[0])
		}
		if sub.Items.Data[1].Quantity != 1 {
			t.Errorf("expected default quantity 1, got %d", sub.Items.Data[1].Quantity)
		}
	})

	t.Run("Invoice Lifecycle Statuses", func(t *testing.T) {
		d := NewDryRun(&stubAPI{}, nil)

		inv, _ := d.CreateInvoice(ctx, &stripe.InvoiceCreateParams{})
		if inv.Status != stripe.InvoiceStatusDraft {
			t.Errorf("expected draft after create, got %s", inv.Status)
		}

		inv, _ = d.FinalizeInvoice(ctx, inv.ID)
		if inv.Status != stripe.InvoiceStatusOpen {
			t.Errorf("expected open after finalize, got %s", inv.Status)
		}

		inv, _ = d.PayInvoice(ctx, inv.ID)
		if inv.Status != stripe.InvoiceStatusPaid {
			t.Errorf("expected paid after pay, got %s", inv.Status)
		}
	})

	t.Run("Cancel Fabricates a Canceled Subscription", func(t *testing.T) {
		d := NewDryRun(&stubAPI{}, nil)

		sub, err := d.CancelSubscription(ctx, "sub_123")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sub.ID != "sub_123" || sub.Status != stripe.SubscriptionStatusCanceled {
			t.Errorf("unexpected cancel result %+v", sub)
		}
	})

	t.Run("Deletes Are No-ops", func(t *testing.T) {
		d := NewDryRun(&stubAPI{}, nil)

		if err := d.DeleteProduct(ctx, "prod_123"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if err := d.DeleteCoupon(ctx, "SPRING20"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
