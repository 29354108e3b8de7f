package gateway

import (
	"context"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FixtureEmail is the customer email on every fixture order.
const FixtureEmail = "test@test.com"

var (
	fixtureDaysAgo  = []int{2, 5, 1, 10, 3, 7, 15, 4, 20, 6, 12, 8, 25, 9, 30}
	fixturePrices   = []float64{150.00, 250.00, 89.99, 399.90, 599.00, 129.50, 799.99, 199.00, 449.00, 99.90, 1299.00, 349.50, 899.00, 179.90, 2499.00}
	fixturePackages = []string{"DELIVERED", "DELIVERED", "SHIPPED", "DELIVERED", "DELIVERED", "SHIPPED", "DELIVERED", "DELIVERED", "DELIVERED", "SHIPPED", "DELIVERED", "DELIVERED", "DELIVERED", "SHIPPED", "DELIVERED"}
)

// Fixture is an in-memory Gateway holding 15 deterministic orders numbered
// 1001..1015 (id == order number). It is used for local development and
// tests. Refunds are recorded and flip the order's package status to
// REFUNDED.
type Fixture struct {
	mu       sync.Mutex
	orders   []Order
	merchant MerchantProfile
	refunds  []RefundInput

	// RefundErr, when set, fails every RefundOrderLine call.
	RefundErr error
}

// NewFixture builds the fixture dataset with orderedAt relative to now.
func NewFixture(now time.Time) *Fixture {
	first, last, email := "Test", "Müşteri", FixtureEmail
	storeName, storeEmail := "Demo Store", "store@example.com"
	f := &Fixture{
		merchant: MerchantProfile{ID: "dev-merchant", StoreName: &storeName, Email: &storeEmail},
	}
	for i := range fixtureDaysAgo {
		num := strconv.Itoa(1001 + i)
		price := fixturePrices[i]
		f.orders = append(f.orders, Order{
			ID:                 num,
			OrderNumber:        num,
			Status:             "COMPLETED",
			OrderPaymentStatus: "PAID",
			OrderPackageStatus: fixturePackages[i],
			TotalFinalPrice:    price,
			TotalPrice:         price,
			CurrencyCode:       "TRY",
			CurrencySymbol:     "₺",
			OrderedAt:          Timestamp{now.Add(-time.Duration(fixtureDaysAgo[i]) * 24 * time.Hour).UTC()},
			Customer:           &Customer{ID: "cust-" + num, FirstName: &first, LastName: &last, Email: &email},
			OrderLineItems: []LineItem{{
				ID:             "line-" + num,
				Quantity:       1,
				Price:          price,
				UnitPrice:      price,
				FinalPrice:     price,
				FinalUnitPrice: price,
				Status:         "DELIVERED",
				Variant:        &Variant{ID: "var-" + num, Name: "Product " + num, SKU: "SKU-" + num},
			}},
		})
	}
	return f
}

// ListOrders implements Gateway.
func (f *Fixture) ListOrders(ctx context.Context, q OrderQuery) ([]Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	search := strings.ToLower(strings.TrimSpace(q.Search))
	out := make([]Order, 0, len(f.orders))
	for _, o := range f.orders {
		if q.OrderNumber != "" && o.OrderNumber != q.OrderNumber {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(o.OrderNumber), search) &&
			!strings.Contains(strings.ToLower(o.Customer.EmailValue()), search) {
			continue
		}
		if !q.OrderedAfter.IsZero() && o.OrderedAt.Before(q.OrderedAfter) {
			continue
		}
		if len(q.PackageStatuses) > 0 && !slices.Contains(q.PackageStatuses, o.OrderPackageStatus) {
			continue
		}
		out = append(out, o)
	}
	switch q.Sort {
	case "-orderedAt":
		sort.SliceStable(out, func(i, j int) bool { return out[i].OrderedAt.After(out[j].OrderedAt.Time) })
	case "orderedAt":
		sort.SliceStable(out, func(i, j int) bool { return out[i].OrderedAt.Before(out[j].OrderedAt.Time) })
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// GetOrder implements Gateway.
func (f *Fixture) GetOrder(ctx context.Context, id string) (*Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.ID == id {
			cp := o
			return &cp, nil
		}
	}
	return nil, ErrOrderNotFound
}

// GetMerchant implements Gateway.
func (f *Fixture) GetMerchant(ctx context.Context) (*MerchantProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m := f.merchant
	return &m, nil
}

// RefundOrderLine implements Gateway.
func (f *Fixture) RefundOrderLine(ctx context.Context, in RefundInput) (*Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RefundErr != nil {
		return nil, f.RefundErr
	}
	for i := range f.orders {
		if f.orders[i].ID == in.OrderID {
			f.refunds = append(f.refunds, in)
			f.orders[i].OrderPackageStatus = PackageRefunded
			cp := f.orders[i]
			return &cp, nil
		}
	}
	return nil, &Error{Op: "refundOrderLine", Entries: []ErrorEntry{{Message: "order not found: " + in.OrderID}}}
}

// Refunds returns the mutations received so far.
func (f *Fixture) Refunds() []RefundInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.refunds)
}
