package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/stripe/stripe-go/v82"

	"github.com/desertthunder/subshift/internal/queue"
	"github.com/desertthunder/subshift/internal/shared"
)

// callPadding is the minimum wall-clock occupancy of a queue slot per call.
const callPadding = 500 * time.Millisecond

const defaultListPageSize = 100

// Account is a rate-limited client for one Stripe account.
type Account struct {
	key      string
	mode     Mode
	client   *stripe.Client
	queue    *queue.Queue
	logger   *log.Logger
	pageSize int64
}

// AccountOpts contains configuration options for creating an Account.
type AccountOpts struct {
	Logger *log.Logger
	// MaxRunning and PerSecond override the credential mode's rate class
	// when greater than zero.
	MaxRunning   int
	PerSecond    float64
	ListPageSize int
}

// NewAccount creates a rate-limited client for the given secret key. The
// credential mode is derived from the key's literal form and selects the
// rate class unless opts override it.
func NewAccount(key string, opts AccountOpts) (*Account, error) {
	if key == "" {
		return nil, shared.ErrMissingCredentials
	}
	if !strings.HasPrefix(key, "sk_") && !strings.HasPrefix(key, "rk_") {
		return nil, fmt.Errorf("%w: expected a secret key (sk_...)", shared.ErrInvalidCredentials)
	}

	mode := ModeLive
	maxRunning, perSecond := liveMaxRunning, livePerSecond
	if strings.HasPrefix(key, "sk_test_") || strings.HasPrefix(key, "rk_test_") {
		mode = ModeTest
		maxRunning, perSecond = testMaxRunning, testPerSecond
	}
	if opts.MaxRunning > 0 {
		maxRunning = opts.MaxRunning
	}
	if opts.PerSecond > 0 {
		perSecond = opts.PerSecond
	}
	pageSize := int64(defaultListPageSize)
	if opts.ListPageSize > 0 {
		pageSize = int64(opts.ListPageSize)
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &Account{
		key:      key,
		mode:     mode,
		client:   stripe.NewClient(key, nil),
		queue:    queue.New(maxRunning, perSecond),
		logger:   shared.WithLogger(opts.Logger, "account", shared.RedactKey(key), "mode", mode),
		pageSize: pageSize,
	}, nil
}

// Label identifies the account in logs and reports.
func (a *Account) Label() string {
	return fmt.Sprintf("%s (%s)", shared.RedactKey(a.key), a.mode)
}

// Mode returns the credential's rate class.
func (a *Account) Mode() Mode { return a.mode }

// Use runs fn against the underlying client inside the queue. Transient
// failures (rate-limit contention, 5xx) are retried with capped exponential
// backoff; each attempt occupies its own paced slot.
func (a *Account) Use(ctx context.Context, fn func(*stripe.Client) error) error {
	attempt := func() error {
		err := a.queue.AddAndWait(ctx, callPadding, func() error {
			return fn(a.client)
		})
		if err == nil || retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	return backoff.Retry(attempt, policy)
}

// retryable reports whether err is a transient Stripe failure worth another
// attempt: lock contention, rate limiting, or a server-side error.
func retryable(err error) bool {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.HTTPStatusCode == 429 || se.HTTPStatusCode >= 500
}

// Validate performs one authenticated read, confirming the credential works
// and returning the account identity.
func (a *Account) Validate(ctx context.Context) (string, error) {
	err := a.Use(ctx, func(sc *stripe.Client) error {
		params := &stripe.CustomerListParams{}
		params.Limit = stripe.Int64(1)
		for _, err := range sc.V1Customers.List(ctx, params) {
			if err != nil {
				return err
			}
			break
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}
	return a.Label(), nil
}

func (a *Account) GetProduct(ctx context.Context, id string) (*stripe.Product, error) {
	var p *stripe.Product
	err := a.Use(ctx, func(sc *stripe.Client) (err error) {
		p, err = sc.V1Products.Retrieve(ctx, id, nil)
		return err
	})
	return p, err
}

func (a *Account) ListProducts(ctx context.Context) iter.Seq2[*stripe.Product, error] {
	params := &stripe.ProductListParams{Active: stripe.Bool(true)}
	params.Limit = stripe.Int64(a.pageSize)
	a.logger.Debug("listing products")
	return Paced(iter.Seq2[*stripe.Product, error](a.client.V1Products.List(ctx, params)), listPauseEvery, listPause)
}

func (a *Account) CreateProduct(ctx context.Context, params *stripe.ProductCreateParams) (*stripe.Product, error) {
	var p *stripe.Product
	err := a.Use(ctx, func(sc *stripe.Client) (err error) {
		p, err = sc.V1Products.Create(ctx, params)
		return err
	})
	return p, err
}

func (a *Account) UpdateProduct(ctx context.Context, id string, params *stripe.ProductUpdateParams) (*stripe.Product, error) {
	var p *stripe.Product
	err := a.Use(ctx, func(sc *stripe.Client) (err error) {
		p, err = sc.V1Products.Update(ctx, id, params)
		return err
	})
	return p, err
}

func (a *Account) DeleteProduct(ctx context.Context, id string) error {
	return a.Use(ctx, func(sc *stripe.Client) error {
		_, err := sc.V1Products.Delete(ctx, id, nil)
		return err
	})
}

func (a *Account) GetPrice(ctx context.Context, id string) (*stripe.Price, error) {
	var p *stripe.Price
	err := a.Use(ctx, func(sc *stripe.Client) (err error) {
		params := &stripe.PriceRetrieveParams{
			Expand: []*string{stripe.String("product")},
		}
		p, err = sc.V1Prices.Retrieve(ctx, id, params)
		return err
	})
	return p, err
}

func (a *Account) ListPrices(ctx context.Context) iter.Seq2[*stripe.Price, error] {
	params := &stripe.PriceListParams{Active: stripe.Bool(true)}
	params.Limit = stripe.Int64(a.pageSize)
	params.Expand = []*string{stripe.String("data.product")}
	a.logger.Debug("listing prices")
	return Paced(iter.Seq2[*stripe.Price, error](a.client.V1Prices.List(ctx, params)), listPauseEvery, listPause)
}

func (a *Account) CreatePrice(ctx context.Context, params *stripe.PriceCreateParams) (*stripe.Price, error) {
	var p *stripe.Price
	err := a.Use(ctx, func(sc *stripe.Client) (err error) {
		p, err = sc.V1Prices.Create(ctx, params)
		return err
	})
	return p, err
}

func (a *Account) UpdatePrice(ctx context.Context, id string, params *stripe.PriceUpdateParams) (*stripe.Price, error) {
	var p *stripe.Price
	err := a.Use(ctx, func(sc *stripe.Client) (err error) {
		p, err = sc.V1Prices.Update(ctx, id, params)
		return err
	})
	return p, err
}

func (a *Account) GetCoupon(ctx context.Context, id string) (*stripe.Coupon, error) {
	var c *stripe.Coupon
	err := a.Use(ctx, func(sc *stripe.Client) (err error) {
		c, err = sc.V1Coupons.Retrieve(ctx, id, nil)
		return err
	})
	return c, err
}

func (a *Account) CreateCoupon(ctx context.Context, params *stripe.CouponCreateParams) (*stripe.Coupon, error) {
	var c *stripe.Coupon
	err := a.Use(ctx, func(sc *stripe.Client) (err error) {
		c, err = sc.V1Coupons.Create(ctx, params)
		return err
	})
	return c, err
}

func (a *Account) DeleteCoupon(ctx context.Context, id string) error {
	return a.Use(ctx, func(sc *stripe.Client) error {
		_, err := sc.V1Coupons.Delete(ctx, id, nil)
		return err
	})
}

func (a *Account) GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	var s *stripe.Subscription
	err := a.Use(ctx, func(sc *stripe.Client) (err error) {
		params := &stripe.SubscriptionRetrieveParams{
			Expand: []*string{
				stripe.String("customer"),
				stripe.String("items.data.price"),
				stripe.String("default_payment_method"),
				stripe.String("discounts"),
			},
		}
		s, err = sc.V1Subscriptions.Retrieve(ctx, id, params)
		return err
	})
	return s, err
}

func (a *Account) ListSubscriptions(ctx context.Context) iter.Seq2[*stripe.Subscription, error] {
	params := &stripe.SubscriptionListParams{Status: stripe.String("all")}
	params.Limit = stripe.Int64(a.pageSize)
	params.Expand = []*string{
		stripe.String("data.customer"),
		stripe.String("data.items.data.price"),
		stripe.String("data.default_payment_method"),
		stripe.String("data.discounts"),
	}
	a.logger.Debug("listing subscriptions")
	return Paced(iter.Seq2[*stripe.Subscription, error](a.client.V1Subscriptions.List(ctx, params)), listPauseEvery, listPause)
}

func (a *Account) SearchSubscriptions(ctx context.Context, query string) iter.Seq2[*stripe.Subscription, error] {
	params := &stripe.SubscriptionSearchParams{}
	params.Query = query
	a.logger.Debug("searching subscriptions", "query", query)
	return Paced(iter.Seq2[*stripe.Subscription, error](a.client.V1Subscriptions.Search(ctx, params)), listPauseEvery, listPause)
}

func (a *Account) CreateSubscription(ctx context.Context, params *stripe.SubscriptionCreateParams) (*stripe.Subscription, error) {
	var s *stripe.Subscription
	err := a.Use(ctx, func(sc *stripe.Client) (err error) {
		s, err = sc.V1Subscriptions.Create(ctx, params)
		return err
	})
	return s, err
}

func (a *Account) UpdateSubscription(ctx context.Context, id string, params *stripe.SubscriptionUpdateParams) (*stripe.Subscription, error) {
	var s *stripe.Subscription
	err := a.Use(ctx, func(sc *stripe.Client) (err error) {
		s, err = sc.V1Subscriptions.Update(ctx, id, params)
		return err
	})
	return s, err
}

func (a *Account) CancelSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	var s *stripe.Subscription
	err := a.Use(ctx, func(sc *stripe.Client) (err error) {
		s, err = sc.V1Subscriptions.Cancel(ctx, id, nil)
		return err
	})
	return s, err
}

func (a *Account) ListInvoices(ctx context.Context, params *stripe.InvoiceListParams) iter.Seq2[*stripe.Invoice, error] {
	if params == nil {
		params = &stripe.InvoiceListParams{}
	}
	params.Limit = stripe.Int64(a.pageSize)
	a.logger.Debug("listing invoices")
	return Paced(iter.Seq2[*stripe.Invoice, error](a.client.V1Invoices.List(ctx, params)), listPauseEvery, listPause)
}

func (a *Account) CreateInvoice(ctx context.Context, params *stripe.InvoiceCreateParams) (*stripe.Invoice, error) {
	var inv *stripe.Invoice
	err := a.Use(ctx, func(sc *stripe.Client) (err error) {
		inv, err = sc.V1Invoices.Create(ctx, params)
		return err
	})
	return inv, err
}

func (a *Account) CreateInvoiceItem(ctx context.Context, params *stripe.InvoiceItemCreateParams) (*stripe.InvoiceItem, error) {
	var item *stripe.InvoiceItem
	err := a.Use(ctx, func(sc *stripe.Client) (err error) {
		item, err = sc.V1InvoiceItems.Create(ctx, params)
		return err
	})
	return item, err
}

func (a *Account) FinalizeInvoice(ctx context.Context, id string) (*stripe.Invoice, error) {
	var inv *stripe.Invoice
	err := a.Use(ctx, func(sc *stripe.Client) (err error) {
		params := &stripe.InvoiceFinalizeInvoiceParams{AutoAdvance: stripe.Bool(false)}
		inv, err = sc.V1Invoices.FinalizeInvoice(ctx, id, params)
		return err
	})
	return inv, err
}

func (a *Account) PayInvoice(ctx context.Context, id string) (*stripe.Invoice, error) {
	var inv *stripe.Invoice
	err := a.Use(ctx, func(sc *stripe.Client) (err error) {
		inv, err = sc.V1Invoices.Pay(ctx, id, nil)
		return err
	})
	return inv, err
}

func (a *Account) GetCustomer(ctx context.Context, id string) (*stripe.Customer, error) {
	var c *stripe.Customer
	err := a.Use(ctx, func(sc *stripe.Client) (err error) {
		params := &stripe.CustomerRetrieveParams{
			Expand: []*string{
				stripe.String("invoice_settings.default_payment_method"),
				stripe.String("default_source"),
			},
		}
		c, err = sc.V1Customers.Retrieve(ctx, id, params)
		return err
	})
	return c, err
}

func (a *Account) GetPaymentMethod(ctx context.Context, id string) (*stripe.PaymentMethod, error) {
	var pm *stripe.PaymentMethod
	err := a.Use(ctx, func(sc *stripe.Client) (err error) {
		pm, err = sc.V1PaymentMethods.Retrieve(ctx, id, nil)
		return err
	})
	return pm, err
}

func (a *Account) ListPaymentMethods(ctx context.Context, customerID string) iter.Seq2[*stripe.PaymentMethod, error] {
	params := &stripe.PaymentMethodListParams{
		Customer: stripe.String(customerID),
	}
	params.Limit = stripe.Int64(a.pageSize)
	return Paced(iter.Seq2[*stripe.PaymentMethod, error](a.client.V1PaymentMethods.List(ctx, params)), listPauseEvery, listPause)
}

func (a *Account) ListEvents(ctx context.Context, params *stripe.EventListParams) iter.Seq2[*stripe.Event, error] {
	if params == nil {
		params = &stripe.EventListParams{}
	}
	params.Limit = stripe.Int64(a.pageSize)
	a.logger.Debug("listing events")
	return Paced(iter.Seq2[*stripe.Event, error](a.client.V1Events.List(ctx, params)), listPauseEvery, listPause)
}

var _ API = (*Account)(nil)
