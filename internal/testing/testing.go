// package testing contains shared testing utilities
package testing

import (
	"context"
	"fmt"
	"iter"
	"os"
	"regexp"
	"sort"
	"sync"
	"testing"

	"github.com/stripe/stripe-go/v82"

	"github.com/desertthunder/subshift/internal/services"
)

// MockAPI is an in-memory test double for [services.API]. Objects live in
// exported maps so tests can seed and inspect them directly. Every mutating
// call increments Mutations and appends the method name to Calls; FailOn
// injects an error for one method name.
type MockAPI struct {
	mu sync.Mutex

	AccountLabel string
	AccountMode  services.Mode

	Products       map[string]*stripe.Product
	Prices         map[string]*stripe.Price
	Coupons        map[string]*stripe.Coupon
	Subscriptions  map[string]*stripe.Subscription
	Invoices       map[string]*stripe.Invoice
	InvoiceItems   map[string]*stripe.InvoiceItem
	Customers      map[string]*stripe.Customer
	PaymentMethods map[string]*stripe.PaymentMethod
	Events         []*stripe.Event

	customerPMs map[string][]*stripe.PaymentMethod

	Mutations int
	Calls     []string
	FailOn    map[string]error

	nextID int
}

func NewMockAPI() *MockAPI {
	return &MockAPI{
		AccountLabel:   "mock (test)",
		AccountMode:    services.ModeTest,
		Products:       map[string]*stripe.Product{},
		Prices:         map[string]*stripe.Price{},
		Coupons:        map[string]*stripe.Coupon{},
		Subscriptions:  map[string]*stripe.Subscription{},
		Invoices:       map[string]*stripe.Invoice{},
		InvoiceItems:   map[string]*stripe.InvoiceItem{},
		Customers:      map[string]*stripe.Customer{},
		PaymentMethods: map[string]*stripe.PaymentMethod{},
		customerPMs:    map[string][]*stripe.PaymentMethod{},
		FailOn:         map[string]error{},
	}
}

var _ services.API = (*MockAPI)(nil)

func (m *MockAPI) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s_mock%d", prefix, m.nextID)
}

// record logs the call and returns the injected error, if any.
func (m *MockAPI) record(method string, mutating bool) error {
	m.Calls = append(m.Calls, method)
	if mutating {
		m.Mutations++
	}
	return m.FailOn[method]
}

func notFound(id string) error {
	return &stripe.Error{
		HTTPStatusCode: 404,
		Code:           stripe.ErrorCodeResourceMissing,
		Msg:            fmt.Sprintf("No such object: %s", id),
	}
}

func sortedValues[T any](byID map[string]T) []T {
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	vals := make([]T, 0, len(ids))
	for _, id := range ids {
		vals = append(vals, byID[id])
	}
	return vals
}

func seq[T any](items []T, err error) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		if err != nil {
			var zero T
			yield(zero, err)
			return
		}
		for _, item := range items {
			if !yield(item, nil) {
				return
			}
		}
	}
}

func (m *MockAPI) Label() string       { return m.AccountLabel }
func (m *MockAPI) Mode() services.Mode { return m.AccountMode }

func (m *MockAPI) Validate(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("Validate", false); err != nil {
		return "", err
	}
	return m.AccountLabel, nil
}

func (m *MockAPI) GetProduct(ctx context.Context, id string) (*stripe.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("GetProduct", false); err != nil {
		return nil, err
	}
	p, ok := m.Products[id]
	if !ok {
		return nil, notFound(id)
	}
	return p, nil
}

func (m *MockAPI) ListProducts(ctx context.Context) iter.Seq2[*stripe.Product, error] {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.record("ListProducts", false)
	return seq(sortedValues(m.Products), err)
}

func (m *MockAPI) CreateProduct(ctx context.Context, params *stripe.ProductCreateParams) (*stripe.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("CreateProduct", true); err != nil {
		return nil, err
	}
	p := &stripe.Product{
		ID:       m.id("prod"),
		Active:   true,
		Metadata: params.Metadata,
	}
	if params.Name != nil {
		p.Name = *params.Name
	}
	if params.Description != nil {
		p.Description = *params.Description
	}
	m.Products[p.ID] = p
	return p, nil
}

func (m *MockAPI) UpdateProduct(ctx context.Context, id string, params *stripe.ProductUpdateParams) (*stripe.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("UpdateProduct", true); err != nil {
		return nil, err
	}
	p, ok := m.Products[id]
	if !ok {
		return nil, notFound(id)
	}
	for k, v := range params.Metadata {
		if p.Metadata == nil {
			p.Metadata = map[string]string{}
		}
		p.Metadata[k] = v
	}
	if params.Active != nil {
		p.Active = *params.Active
	}
	return p, nil
}

func (m *MockAPI) DeleteProduct(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("DeleteProduct", true); err != nil {
		return err
	}
	if _, ok := m.Products[id]; !ok {
		return notFound(id)
	}
	delete(m.Products, id)
	return nil
}

func (m *MockAPI) GetPrice(ctx context.Context, id string) (*stripe.Price, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("GetPrice", false); err != nil {
		return nil, err
	}
	p, ok := m.Prices[id]
	if !ok {
		return nil, notFound(id)
	}
	return p, nil
}

func (m *MockAPI) ListPrices(ctx context.Context) iter.Seq2[*stripe.Price, error] {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.record("ListPrices", false)
	return seq(sortedValues(m.Prices), err)
}

func (m *MockAPI) CreatePrice(ctx context.Context, params *stripe.PriceCreateParams) (*stripe.Price, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("CreatePrice", true); err != nil {
		return nil, err
	}
	p := &stripe.Price{
		ID:       m.id("price"),
		Active:   true,
		Metadata: params.Metadata,
	}
	if params.Currency != nil {
		p.Currency = stripe.Currency(*params.Currency)
	}
	if params.UnitAmount != nil {
		p.UnitAmount = *params.UnitAmount
	}
	if params.Product != nil {
		p.Product = &stripe.Product{ID: *params.Product}
	}
	if params.Recurring != nil {
		p.Recurring = &stripe.PriceRecurring{IntervalCount: 1}
		if params.Recurring.Interval != nil {
			p.Recurring.Interval = stripe.PriceRecurringInterval(*params.Recurring.Interval)
		}
		if params.Recurring.IntervalCount != nil {
			p.Recurring.IntervalCount = *params.Recurring.IntervalCount
		}
	}
	m.Prices[p.ID] = p
	return p, nil
}

func (m *MockAPI) UpdatePrice(ctx context.Context, id string, params *stripe.PriceUpdateParams) (*stripe.Price, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("UpdatePrice", true); err != nil {
		return nil, err
	}
	p, ok := m.Prices[id]
	if !ok {
		return nil, notFound(id)
	}
	for k, v := range params.Metadata {
		if p.Metadata == nil {
			p.Metadata = map[string]string{}
		}
		p.Metadata[k] = v
	}
	if params.Active != nil {
		p.Active = *params.Active
	}
	return p, nil
}

func (m *MockAPI) GetCoupon(ctx context.Context, id string) (*stripe.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("GetCoupon", false); err != nil {
		return nil, err
	}
	c, ok := m.Coupons[id]
	if !ok {
		return nil, notFound(id)
	}
	return c, nil
}

func (m *MockAPI) CreateCoupon(ctx context.Context, params *stripe.CouponCreateParams) (*stripe.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("CreateCoupon", true); err != nil {
		return nil, err
	}
	c := &stripe.Coupon{
		ID:       m.id("coupon"),
		Valid:    true,
		Metadata: params.Metadata,
	}
	if params.ID != nil {
		c.ID = *params.ID
	}
	if params.Name != nil {
		c.Name = *params.Name
	}
	if params.AmountOff != nil {
		c.AmountOff = *params.AmountOff
	}
	if params.PercentOff != nil {
		c.PercentOff = *params.PercentOff
	}
	if params.Currency != nil {
		c.Currency = stripe.Currency(*params.Currency)
	}
	if params.Duration != nil {
		c.Duration = stripe.CouponDuration(*params.Duration)
	}
	if params.DurationInMonths != nil {
		c.DurationInMonths = *params.DurationInMonths
	}
	if params.MaxRedemptions != nil {
		c.MaxRedemptions = *params.MaxRedemptions
	}
	if params.RedeemBy != nil {
		c.RedeemBy = *params.RedeemBy
	}
	m.Coupons[c.ID] = c
	return c, nil
}

func (m *MockAPI) DeleteCoupon(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("DeleteCoupon", true); err != nil {
		return err
	}
	if _, ok := m.Coupons[id]; !ok {
		return notFound(id)
	}
	delete(m.Coupons, id)
	return nil
}

func (m *MockAPI) GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("GetSubscription", false); err != nil {
		return nil, err
	}
	s, ok := m.Subscriptions[id]
	if !ok {
		return nil, notFound(id)
	}
	return s, nil
}

func (m *MockAPI) ListSubscriptions(ctx context.Context) iter.Seq2[*stripe.Subscription, error] {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.record("ListSubscriptions", false)
	return seq(sortedValues(m.Subscriptions), err)
}

var metadataQuery = regexp.MustCompile(`metadata\['([^']+)'\]:'([^']+)'`)

// SearchSubscriptions supports the metadata['key']:'value' query form.
func (m *MockAPI) SearchSubscriptions(ctx context.Context, query string) iter.Seq2[*stripe.Subscription, error] {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.record("SearchSubscriptions", false)

	match := metadataQuery.FindStringSubmatch(query)
	var hits []*stripe.Subscription
	if match != nil {
		key, value := match[1], match[2]
		for _, s := range sortedValues(m.Subscriptions) {
			if s.Metadata[key] == value {
				hits = append(hits, s)
			}
		}
	}
	return seq(hits, err)
}

func (m *MockAPI) CreateSubscription(ctx context.Context, params *stripe.SubscriptionCreateParams) (*stripe.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("CreateSubscription", true); err != nil {
		return nil, err
	}
	s := &stripe.Subscription{
		ID:       m.id("sub"),
		Status:   stripe.SubscriptionStatusActive,
		Metadata: params.Metadata,
		Items:    &stripe.SubscriptionItemList{},
	}
	if params.Customer != nil {
		s.Customer = m.Customers[*params.Customer]
		if s.Customer == nil {
			return nil, notFound(*params.Customer)
		}
	}
	if params.TrialEnd != nil {
		s.Status = stripe.SubscriptionStatusTrialing
		s.TrialEnd = *params.TrialEnd
	}
	if params.DefaultPaymentMethod != nil {
		s.DefaultPaymentMethod = m.PaymentMethods[*params.DefaultPaymentMethod]
	}
	for _, d := range params.Discounts {
		if d.Coupon != nil {
			s.Discounts = append(s.Discounts, &stripe.Discount{Coupon: m.Coupons[*d.Coupon]})
		}
	}
	var anchor int64
	if params.BillingCycleAnchor != nil {
		anchor = *params.BillingCycleAnchor
	}
	for _, item := range params.Items {
		si := &stripe.SubscriptionItem{
			ID:               m.id("si"),
			Quantity:         1,
			CurrentPeriodEnd: anchor,
		}
		if item.Price != nil {
			si.Price = m.Prices[*item.Price]
			if si.Price == nil {
				si.Price = &stripe.Price{ID: *item.Price}
			}
		}
		if item.Quantity != nil {
			si.Quantity = *item.Quantity
		}
		s.Items.Data = append(s.Items.Data, si)
	}
	m.Subscriptions[s.ID] = s
	return s, nil
}

func (m *MockAPI) UpdateSubscription(ctx context.Context, id string, params *stripe.SubscriptionUpdateParams) (*stripe.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("UpdateSubscription", true); err != nil {
		return nil, err
	}
	s, ok := m.Subscriptions[id]
	if !ok {
		return nil, notFound(id)
	}
	for k, v := range params.Metadata {
		if s.Metadata == nil {
			s.Metadata = map[string]string{}
		}
		s.Metadata[k] = v
	}
	if params.PauseCollection != nil && params.PauseCollection.Behavior != nil {
		s.PauseCollection = &stripe.SubscriptionPauseCollection{
			Behavior: stripe.SubscriptionPauseCollectionBehavior(*params.PauseCollection.Behavior),
		}
	}
	if params.Extra != nil {
		for key, values := range params.Extra.Values {
			if key == "pause_collection" && len(values) > 0 && values[0] == "" {
				s.PauseCollection = nil
			}
		}
	}
	return s, nil
}

func (m *MockAPI) CancelSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("CancelSubscription", true); err != nil {
		return nil, err
	}
	s, ok := m.Subscriptions[id]
	if !ok {
		return nil, notFound(id)
	}
	s.Status = stripe.SubscriptionStatusCanceled
	return s, nil
}

func (m *MockAPI) ListInvoices(ctx context.Context, params *stripe.InvoiceListParams) iter.Seq2[*stripe.Invoice, error] {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.record("ListInvoices", false)

	var hits []*stripe.Invoice
	for _, inv := range sortedValues(m.Invoices) {
		if params != nil && params.Customer != nil {
			if inv.Customer == nil || inv.Customer.ID != *params.Customer {
				continue
			}
		}
		if params != nil && params.Status != nil && string(inv.Status) != *params.Status {
			continue
		}
		hits = append(hits, inv)
	}
	return seq(hits, err)
}

func (m *MockAPI) CreateInvoice(ctx context.Context, params *stripe.InvoiceCreateParams) (*stripe.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("CreateInvoice", true); err != nil {
		return nil, err
	}
	inv := &stripe.Invoice{
		ID:       m.id("in"),
		Status:   stripe.InvoiceStatusDraft,
		Metadata: params.Metadata,
	}
	if params.Customer != nil {
		inv.Customer = m.Customers[*params.Customer]
		if inv.Customer == nil {
			return nil, notFound(*params.Customer)
		}
	}
	if params.Currency != nil {
		inv.Currency = stripe.Currency(*params.Currency)
	}
	m.Invoices[inv.ID] = inv
	return inv, nil
}

func (m *MockAPI) CreateInvoiceItem(ctx context.Context, params *stripe.InvoiceItemCreateParams) (*stripe.InvoiceItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("CreateInvoiceItem", true); err != nil {
		return nil, err
	}
	item := &stripe.InvoiceItem{ID: m.id("ii")}
	if params.Amount != nil {
		item.Amount = *params.Amount
	}
	if params.Currency != nil {
		item.Currency = stripe.Currency(*params.Currency)
	}
	if params.Description != nil {
		item.Description = *params.Description
	}
	if params.Invoice != nil {
		inv, ok := m.Invoices[*params.Invoice]
		if !ok {
			return nil, notFound(*params.Invoice)
		}
		inv.Total += item.Amount
		inv.AmountDue += item.Amount
	}
	m.InvoiceItems[item.ID] = item
	return item, nil
}

func (m *MockAPI) FinalizeInvoice(ctx context.Context, id string) (*stripe.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("FinalizeInvoice", true); err != nil {
		return nil, err
	}
	inv, ok := m.Invoices[id]
	if !ok {
		return nil, notFound(id)
	}
	inv.Status = stripe.InvoiceStatusOpen
	return inv, nil
}

func (m *MockAPI) PayInvoice(ctx context.Context, id string) (*stripe.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("PayInvoice", true); err != nil {
		return nil, err
	}
	inv, ok := m.Invoices[id]
	if !ok {
		return nil, notFound(id)
	}
	inv.Status = stripe.InvoiceStatusPaid
	inv.AmountDue = 0
	return inv, nil
}

func (m *MockAPI) GetCustomer(ctx context.Context, id string) (*stripe.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("GetCustomer", false); err != nil {
		return nil, err
	}
	c, ok := m.Customers[id]
	if !ok {
		return nil, notFound(id)
	}
	return c, nil
}

func (m *MockAPI) GetPaymentMethod(ctx context.Context, id string) (*stripe.PaymentMethod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("GetPaymentMethod", false); err != nil {
		return nil, err
	}
	pm, ok := m.PaymentMethods[id]
	if !ok {
		return nil, notFound(id)
	}
	return pm, nil
}

func (m *MockAPI) ListPaymentMethods(ctx context.Context, customerID string) iter.Seq2[*stripe.PaymentMethod, error] {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.record("ListPaymentMethods", false)
	return seq(m.customerPMs[customerID], err)
}

func (m *MockAPI) ListEvents(ctx context.Context, params *stripe.EventListParams) iter.Seq2[*stripe.Event, error] {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.record("ListEvents", false)

	hits := m.Events
	if params != nil && params.DeliverySuccess != nil && !*params.DeliverySuccess {
		hits = nil
		for _, ev := range m.Events {
			if ev.PendingWebhooks > 0 {
				hits = append(hits, ev)
			}
		}
	}
	return seq(hits, err)
}

// Seed helpers. Each returns the object it stored.

func (m *MockAPI) SeedProduct(id, name string, metadata map[string]string) *stripe.Product {
	p := &stripe.Product{ID: id, Name: name, Active: true, Metadata: metadata}
	m.Products[id] = p
	return p
}

func (m *MockAPI) SeedPrice(id, productID, currency string, amount int64, interval stripe.PriceRecurringInterval, metadata map[string]string) *stripe.Price {
	p := &stripe.Price{
		ID:         id,
		Active:     true,
		Currency:   stripe.Currency(currency),
		UnitAmount: amount,
		Product:    m.Products[productID],
		Metadata:   metadata,
	}
	if p.Product == nil {
		p.Product = &stripe.Product{ID: productID}
	}
	if interval != "" {
		p.Recurring = &stripe.PriceRecurring{Interval: interval, IntervalCount: 1}
	}
	m.Prices[id] = p
	return p
}

func (m *MockAPI) SeedCoupon(id, name string, amountOff int64, currency string) *stripe.Coupon {
	c := &stripe.Coupon{
		ID:        id,
		Name:      name,
		AmountOff: amountOff,
		Currency:  stripe.Currency(currency),
		Duration:  stripe.CouponDurationForever,
		Valid:     true,
	}
	m.Coupons[id] = c
	return c
}

func (m *MockAPI) SeedCustomer(id, email string) *stripe.Customer {
	c := &stripe.Customer{ID: id, Email: email}
	m.Customers[id] = c
	return c
}

func (m *MockAPI) SeedCardPaymentMethod(id, customerID, brand, last4 string, expMonth, expYear int64) *stripe.PaymentMethod {
	pm := &stripe.PaymentMethod{
		ID:   id,
		Type: stripe.PaymentMethodTypeCard,
		Card: &stripe.PaymentMethodCard{
			Brand:    stripe.PaymentMethodCardBrand(brand),
			Last4:    last4,
			ExpMonth: expMonth,
			ExpYear:  expYear,
		},
	}
	if c, ok := m.Customers[customerID]; ok {
		pm.Customer = c
	}
	m.PaymentMethods[id] = pm
	m.customerPMs[customerID] = append(m.customerPMs[customerID], pm)
	return pm
}

// SetDefaultPaymentMethod wires a customer's invoice settings to pm.
func (m *MockAPI) SetDefaultPaymentMethod(customerID, pmID string) {
	c := m.Customers[customerID]
	c.InvoiceSettings = &stripe.CustomerInvoiceSettings{
		DefaultPaymentMethod: m.PaymentMethods[pmID],
	}
}

func (m *MockAPI) SeedSubscription(id, customerID string, status stripe.SubscriptionStatus, periodEnd int64, prices ...*stripe.Price) *stripe.Subscription {
	s := &stripe.Subscription{
		ID:       id,
		Status:   status,
		Customer: m.Customers[customerID],
		Items:    &stripe.SubscriptionItemList{},
	}
	for _, p := range prices {
		s.Items.Data = append(s.Items.Data, &stripe.SubscriptionItem{
			ID:               m.id("si"),
			Price:            p,
			Quantity:         1,
			CurrentPeriodEnd: periodEnd,
		})
	}
	m.Subscriptions[id] = s
	return s
}

func (m *MockAPI) SeedOpenInvoice(id, customerID, subscriptionID string, total int64, currency string) *stripe.Invoice {
	inv := &stripe.Invoice{
		ID:        id,
		Status:    stripe.InvoiceStatusOpen,
		Customer:  m.Customers[customerID],
		Total:     total,
		AmountDue: total,
		Currency:  stripe.Currency(currency),
	}
	if subscriptionID != "" {
		inv.Parent = &stripe.InvoiceParent{
			SubscriptionDetails: &stripe.InvoiceParentSubscriptionDetails{
				Subscription: &stripe.Subscription{ID: subscriptionID},
			},
		}
	}
	m.Invoices[id] = inv
	return inv
}

func (m *MockAPI) SeedEvent(id string, kind stripe.EventType, delivered bool, objectID string) *stripe.Event {
	ev := &stripe.Event{
		ID:   id,
		Type: kind,
		Data: &stripe.EventData{Object: map[string]any{"id": objectID}},
	}
	if !delivered {
		ev.PendingWebhooks = 1
	}
	m.Events = append(m.Events, ev)
	return ev
}

// File helpers shared by config tests.

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
