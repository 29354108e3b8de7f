// Package gateway talks to the external commerce platform that owns orders.
//
// The Gateway interface is the only surface the services use. Concrete
// implementations are composed as decorators:
//
//	Instrumented(Cached(Retrying(GraphQLClient)))
//
// Fixture replaces the whole chain for local development.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Package statuses that mark an order as part of a refund on the platform side.
const (
	PackageRefundRequested = "REFUND_REQUESTED"
	PackageRefunded        = "REFUNDED"
	PackageRefundDelivered = "REFUND_DELIVERED"
)

// RefundPackageStatuses is the package-status set used by refund candidate
// queries.
var RefundPackageStatuses = []string{PackageRefundRequested, PackageRefunded, PackageRefundDelivered}

// ErrOrderNotFound is returned by GetOrder when the platform has no such order.
var ErrOrderNotFound = errors.New("order not found")

// Gateway is the order/merchant API of the commerce platform.
type Gateway interface {
	ListOrders(ctx context.Context, q OrderQuery) ([]Order, error)
	GetOrder(ctx context.Context, id string) (*Order, error)
	GetMerchant(ctx context.Context) (*MerchantProfile, error)
	RefundOrderLine(ctx context.Context, in RefundInput) (*Order, error)
}

// OrderQuery narrows ListOrders. Zero values are omitted from the request.
type OrderQuery struct {
	Limit           int
	Sort            string
	Search          string
	OrderNumber     string
	OrderedAfter    time.Time
	PackageStatuses []string
}

// RefundInput is the payload of the refundOrderLine mutation.
type RefundInput struct {
	OrderID                    string       `json:"orderId"`
	OrderRefundLines           []RefundLine `json:"orderRefundLines"`
	Reason                     string       `json:"reason"`
	RefundShipping             bool         `json:"refundShipping"`
	SendNotificationToCustomer bool         `json:"sendNotificationToCustomer"`
}

// RefundLine refunds one order line item.
type RefundLine struct {
	OrderLineItemID string  `json:"orderLineItemId"`
	Price           float64 `json:"price"`
	Quantity        int     `json:"quantity"`
	RestockItems    bool    `json:"restockItems"`
}

// MerchantProfile is the platform's view of the store.
type MerchantProfile struct {
	ID        string  `json:"id"`
	Email     *string `json:"email"`
	StoreName *string `json:"storeName"`
}

// Order is an order as returned by the platform. Optional objects are
// pointers so an absent value serializes as null.
type Order struct {
	ID                 string         `json:"id"`
	OrderNumber        string         `json:"orderNumber"`
	Status             string         `json:"status,omitempty"`
	OrderPaymentStatus string         `json:"orderPaymentStatus,omitempty"`
	OrderPackageStatus string         `json:"orderPackageStatus,omitempty"`
	TotalFinalPrice    float64        `json:"totalFinalPrice"`
	TotalPrice         float64        `json:"totalPrice,omitempty"`
	CurrencyCode       string         `json:"currencyCode,omitempty"`
	CurrencySymbol     string         `json:"currencySymbol,omitempty"`
	OrderedAt          Timestamp      `json:"orderedAt"`
	Note               *string        `json:"note,omitempty"`
	Customer           *Customer      `json:"customer"`
	OrderLineItems     []LineItem     `json:"orderLineItems,omitempty"`
	ShippingAddress    *Address       `json:"shippingAddress,omitempty"`
	BillingAddress     *Address       `json:"billingAddress,omitempty"`
	OrderPackages      []OrderPackage `json:"orderPackages,omitempty"`
}

// Customer is the buyer of an order.
type Customer struct {
	ID        string  `json:"id,omitempty"`
	Email     *string `json:"email"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Phone     *string `json:"phone,omitempty"`
}

// FullName joins first and last name, skipping empty parts.
func (c *Customer) FullName() string {
	if c == nil {
		return ""
	}
	parts := make([]string, 0, 2)
	for _, p := range []*string{c.FirstName, c.LastName} {
		if p != nil && strings.TrimSpace(*p) != "" {
			parts = append(parts, strings.TrimSpace(*p))
		}
	}
	return strings.Join(parts, " ")
}

// EmailValue returns the email or "".
func (c *Customer) EmailValue() string {
	if c == nil || c.Email == nil {
		return ""
	}
	return *c.Email
}

// LineItem is one line of an order.
type LineItem struct {
	ID             string   `json:"id"`
	Quantity       int      `json:"quantity"`
	Price          float64  `json:"price,omitempty"`
	UnitPrice      float64  `json:"unitPrice,omitempty"`
	FinalPrice     float64  `json:"finalPrice"`
	FinalUnitPrice float64  `json:"finalUnitPrice,omitempty"`
	Status         string   `json:"status,omitempty"`
	Variant        *Variant `json:"variant,omitempty"`
}

// Variant is the product variant of a line item.
type Variant struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	SKU       string `json:"sku,omitempty"`
	ProductID string `json:"productId,omitempty"`
}

// Address is a shipping or billing address.
type Address struct {
	ID           string     `json:"id,omitempty"`
	FirstName    string     `json:"firstName,omitempty"`
	LastName     string     `json:"lastName,omitempty"`
	AddressLine1 string     `json:"addressLine1,omitempty"`
	AddressLine2 *string    `json:"addressLine2,omitempty"`
	City         *NamedItem `json:"city,omitempty"`
	District     *NamedItem `json:"district,omitempty"`
	Country      *NamedItem `json:"country,omitempty"`
	Phone        *string    `json:"phone,omitempty"`
	PostalCode   *string    `json:"postalCode,omitempty"`
}

// NamedItem is an id/name pair (city, district, country).
type NamedItem struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// OrderPackage is a shipment of an order.
type OrderPackage struct {
	ID                        string        `json:"id"`
	OrderPackageNumber        string        `json:"orderPackageNumber"`
	OrderPackageFulfillStatus string        `json:"orderPackageFulfillStatus,omitempty"`
	TrackingInfo              *TrackingInfo `json:"trackingInfo,omitempty"`
}

// TrackingInfo is the carrier tracking of a package.
type TrackingInfo struct {
	TrackingNumber *string `json:"trackingNumber"`
	TrackingLink   *string `json:"trackingLink"`
}

// Timestamp decodes the platform's timestamps, which arrive either as epoch
// milliseconds or as RFC 3339 strings. It always encodes as RFC 3339.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			t.Time = time.Time{}
			return nil
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			t.Time = time.UnixMilli(ms).UTC()
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("timestamp %q: %w", s, err)
		}
		t.Time = parsed.UTC()
		return nil
	}
	ms, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("timestamp %s: %w", b, err)
	}
	t.Time = time.UnixMilli(int64(ms)).UTC()
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// Error is a GraphQL-level failure reported by the platform. Entries keeps
// the structured error list so callers can surface it to the merchant.
type Error struct {
	Op      string       `json:"-"`
	Entries []ErrorEntry `json:"errors"`
}

// ErrorEntry is one GraphQL error.
type ErrorEntry struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

func (e *Error) Error() string {
	if e == nil || len(e.Entries) == 0 {
		return "gateway: graphql error"
	}
	msgs := make([]string, 0, len(e.Entries))
	for _, en := range e.Entries {
		msgs = append(msgs, en.Message)
	}
	if e.Op != "" {
		return fmt.Sprintf("gateway %s: %s", e.Op, strings.Join(msgs, "; "))
	}
	return "gateway: " + strings.Join(msgs, "; ")
}

// IsTransient reports whether err is worth retrying: transport failures and
// timeouts are, GraphQL-level errors and missing orders are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrOrderNotFound) {
		return false
	}
	var gqlErr *Error
	if errors.As(err, &gqlErr) {
		return false
	}
	var tErr *TransportError
	if errors.As(err, &tErr) {
		return tErr.StatusCode == 0 || tErr.StatusCode >= 500 || tErr.StatusCode == 429
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// TransportError is a failure below the GraphQL layer (network, non-2xx).
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("gateway %s: http %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
