package services

import (
	"context"
	"iter"

	"github.com/stripe/stripe-go/v82"
)

// Mode is the request-budget tier associated with a credential. Test-mode
// keys get a smaller budget than live keys.
type Mode string

const (
	ModeTest Mode = "test"
	ModeLive Mode = "live"
)

// Rate classes per credential mode. A queue of N slots, each call holding
// its slot for at least callPadding, caps throughput near the per-second
// budget for that mode.
const (
	testMaxRunning = 2
	testPerSecond  = 4.0
	liveMaxRunning = 4
	livePerSecond  = 8.0
)

// API is the surface this tool consumes from a billing account:
// retrieve-by-id, paginated list, create, update, delete/deactivate and
// metadata-filtered search over products, prices, coupons, subscriptions,
// invoices, customers, payment methods and events.
//
// Listings are lazy, forward-only sequences; iteration stops early by
// breaking out of the range loop.
type API interface {
	// Label identifies the account for logs and reports.
	Label() string

	// Mode returns the credential's rate class (test or live).
	Mode() Mode

	// Validate performs one authenticated call, returning the account
	// identity or an authentication error.
	Validate(ctx context.Context) (string, error)

	GetProduct(ctx context.Context, id string) (*stripe.Product, error)
	ListProducts(ctx context.Context) iter.Seq2[*stripe.Product, error]
	CreateProduct(ctx context.Context, params *stripe.ProductCreateParams) (*stripe.Product, error)
	UpdateProduct(ctx context.Context, id string, params *stripe.ProductUpdateParams) (*stripe.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	GetPrice(ctx context.Context, id string) (*stripe.Price, error)
	ListPrices(ctx context.Context) iter.Seq2[*stripe.Price, error]
	CreatePrice(ctx context.Context, params *stripe.PriceCreateParams) (*stripe.Price, error)
	UpdatePrice(ctx context.Context, id string, params *stripe.PriceUpdateParams) (*stripe.Price, error)

	GetCoupon(ctx context.Context, id string) (*stripe.Coupon, error)
	CreateCoupon(ctx context.Context, params *stripe.CouponCreateParams) (*stripe.Coupon, error)
	DeleteCoupon(ctx context.Context, id string) error

	GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
	ListSubscriptions(ctx context.Context) iter.Seq2[*stripe.Subscription, error]
	SearchSubscriptions(ctx context.Context, query string) iter.Seq2[*stripe.Subscription, error]
	CreateSubscription(ctx context.Context, params *stripe.SubscriptionCreateParams) (*stripe.Subscription, error)
	UpdateSubscription(ctx context.Context, id string, params *stripe.SubscriptionUpdateParams) (*stripe.Subscription, error)
	CancelSubscription(ctx context.Context, id string) (*stripe.Subscription, error)

	ListInvoices(ctx context.Context, params *stripe.InvoiceListParams) iter.Seq2[*stripe.Invoice, error]
	CreateInvoice(ctx context.Context, params *stripe.InvoiceCreateParams) (*stripe.Invoice, error)
	CreateInvoiceItem(ctx context.Context, params *stripe.InvoiceItemCreateParams) (*stripe.InvoiceItem, error)
	FinalizeInvoice(ctx context.Context, id string) (*stripe.Invoice, error)
	PayInvoice(ctx context.Context, id string) (*stripe.Invoice, error)

	GetCustomer(ctx context.Context, id string) (*stripe.Customer, error)
	GetPaymentMethod(ctx context.Context, id string) (*stripe.PaymentMethod, error)
	ListPaymentMethods(ctx context.Context, customerID string) iter.Seq2[*stripe.PaymentMethod, error]

	ListEvents(ctx context.Context, params *stripe.EventListParams) iter.Seq2[*stripe.Event, error]
}
