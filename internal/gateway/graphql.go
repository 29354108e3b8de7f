package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	graphql "github.com/hasura/go-graphql-client"
	"golang.org/x/oauth2"
)

// DefaultEndpoint is the platform's admin GraphQL endpoint.
const DefaultEndpoint = "https://api.myikas.com/api/v1/admin/graphql"

// hasura wraps transport failures in graphql.Errors with this extension code.
const requestErrorCode = "request_error"

const orderListFields = `
      id
      orderNumber
      status
      orderPaymentStatus
      orderPackageStatus
      totalFinalPrice
      totalPrice
      currencyCode
      currencySymbol
      orderedAt
      note
      customer { id email firstName lastName phone }
      orderLineItems {
        id quantity finalPrice status
        variant { id name sku productId }
      }
      shippingAddress {
        id firstName lastName addressLine1 addressLine2
        city { id name }
        district { id name }
        phone
      }
      orderPackages {
        id orderPackageNumber orderPackageFulfillStatus
        trackingInfo { trackingNumber trackingLink }
      }`

const orderDetailFields = `
      id
      orderNumber
      status
      orderPaymentStatus
      orderPackageStatus
      totalFinalPrice
      totalPrice
      currencyCode
      currencySymbol
      orderedAt
      note
      customer { id email firstName lastName phone }
      orderLineItems {
        id quantity finalPrice finalUnitPrice price unitPrice status
        variant { id name sku productId }
      }
      shippingAddress {
        id firstName lastName addressLine1 addressLine2
        city { id name }
        district { id name }
        country { id name }
        phone postalCode
      }
      billingAddress {
        id firstName lastName addressLine1 addressLine2
        city { id name }
        district { id name }
        country { id name }
        phone postalCode
      }
      orderPackages {
        id orderPackageNumber orderPackageFulfillStatus
        trackingInfo { trackingNumber trackingLink }
      }`

const queryGetMerchant = `query getMerchant {
  getMerchant { id email storeName }
}`

const queryListOrders = `query listOrder($pagination: PaginationInput, $sort: String, $search: String, $orderNumber: StringFilterInput, $orderedAt: DateFilterInput) {
  listOrder(pagination: $pagination, sort: $sort, search: $search, orderNumber: $orderNumber, orderedAt: $orderedAt) {
    data {` + orderListFields + `
    }
  }
}`

// Package statuses are enum literals and are spliced in after validation.
const queryListOrdersByPackage = `query listRefundOrders($pagination: PaginationInput, $sort: String, $search: String, $orderNumber: StringFilterInput, $orderedAt: DateFilterInput) {
  listOrder(pagination: $pagination, sort: $sort, search: $search, orderNumber: $orderNumber, orderedAt: $orderedAt, orderPackageStatus: { in: [%s] }) {
    data {` + orderListFields + `
    }
  }
}`

const queryOrderDetail = `query listOrderDetail($id: StringFilterInput) {
  listOrder(id: $id) {
    data {` + orderDetailFields + `
    }
  }
}`

const mutationRefundOrderLine = `mutation refundOrderLine($input: PublicOrderRefundInput!) {
  refundOrderLine(input: $input) {
    id
    orderNumber
    status
    orderPaymentStatus
    orderPackageStatus
    totalFinalPrice
    totalPrice
    currencyCode
    currencySymbol
    orderedAt
    customer { id email firstName lastName }
    orderLineItems {
      id quantity finalPrice status
      variant { id name sku }
    }
  }
}`

// GraphQLClient is the Gateway backed by the platform's GraphQL admin API.
type GraphQLClient struct {
	gql *graphql.Client
}

// NewGraphQLClient builds a client for endpoint that authenticates with the
// merchant's bearer token. timeout bounds each HTTP round trip.
func NewGraphQLClient(ctx context.Context, endpoint, accessToken string, timeout time.Duration) *GraphQLClient {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	httpClient := oauth2.NewClient(ctx, src)
	httpClient.Timeout = timeout
	return NewGraphQLClientWithHTTP(endpoint, httpClient)
}

// NewGraphQLClientWithHTTP builds a client over an existing HTTP client.
func NewGraphQLClientWithHTTP(endpoint string, httpClient *http.Client) *GraphQLClient {
	return &GraphQLClient{gql: graphql.NewClient(endpoint, httpClient)}
}

type listOrderData struct {
	ListOrder struct {
		Data []Order `json:"data"`
	} `json:"listOrder"`
}

// ListOrders implements Gateway.
func (c *GraphQLClient) ListOrders(ctx context.Context, q OrderQuery) ([]Order, error) {
	vars := map[string]any{}
	if q.Limit > 0 {
		vars["pagination"] = map[string]any{"limit": q.Limit}
	}
	if q.Sort != "" {
		vars["sort"] = q.Sort
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		vars["search"] = s
	}
	if q.OrderNumber != "" {
		vars["orderNumber"] = map[string]any{"eq": q.OrderNumber}
	}
	if !q.OrderedAfter.IsZero() {
		vars["orderedAt"] = map[string]any{"gte": q.OrderedAfter.UnixMilli()}
	}

	query := queryListOrders
	if len(q.PackageStatuses) > 0 {
		statuses, err := packageStatusList(q.PackageStatuses)
		if err != nil {
			return nil, err
		}
		query = fmt.Sprintf(queryListOrdersByPackage, statuses)
	}

	var out listOrderData
	if err := c.exec(ctx, "listOrder", query, vars, &out); err != nil {
		return nil, err
	}
	if out.ListOrder.Data == nil {
		return []Order{}, nil
	}
	return out.ListOrder.Data, nil
}

// GetOrder implements Gateway.
func (c *GraphQLClient) GetOrder(ctx context.Context, id string) (*Order, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrOrderNotFound
	}
	var out listOrderData
	vars := map[string]any{"id": map[string]any{"eq": id}}
	if err := c.exec(ctx, "listOrderDetail", queryOrderDetail, vars, &out); err != nil {
		return nil, err
	}
	if len(out.ListOrder.Data) == 0 {
		return nil, ErrOrderNotFound
	}
	o := out.ListOrder.Data[0]
	return &o, nil
}

// GetMerchant implements Gateway.
func (c *GraphQLClient) GetMerchant(ctx context.Context) (*MerchantProfile, error) {
	var out struct {
		GetMerchant *MerchantProfile `json:"getMerchant"`
	}
	if err := c.exec(ctx, "getMerchant", queryGetMerchant, nil, &out); err != nil {
		return nil, err
	}
	if out.GetMerchant == nil {
		return nil, &Error{Op: "getMerchant", Entries: []ErrorEntry{{Message: "empty merchant payload"}}}
	}
	return out.GetMerchant, nil
}

// RefundOrderLine implements Gateway.
func (c *GraphQLClient) RefundOrderLine(ctx context.Context, in RefundInput) (*Order, error) {
	var out struct {
		RefundOrderLine *Order `json:"refundOrderLine"`
	}
	vars := map[string]any{"input": in}
	if err := c.exec(ctx, "refundOrderLine", mutationRefundOrderLine, vars, &out); err != nil {
		return nil, err
	}
	if out.RefundOrderLine == nil {
		return nil, &Error{Op: "refundOrderLine", Entries: []ErrorEntry{{Message: "empty refund payload"}}}
	}
	return out.RefundOrderLine, nil
}

func (c *GraphQLClient) exec(ctx context.Context, op, query string, vars map[string]any, dst any) error {
	raw, err := c.gql.ExecRaw(ctx, query, vars)
	if err != nil {
		return translateError(op, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

// translateError splits hasura's error list into transport failures (retried)
// and GraphQL errors (surfaced to the caller).
func translateError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &TransportError{Op: op, Err: err}
	}
	var gqlErrs graphql.Errors
	if !errors.As(err, &gqlErrs) {
		return &TransportError{Op: op, Err: err}
	}
	entries := make([]ErrorEntry, 0, len(gqlErrs))
	for _, e := range gqlErrs {
		if code, _ := e.Extensions["code"].(string); code == requestErrorCode {
			return &TransportError{Op: op, StatusCode: statusCodeOf(err), Err: err}
		}
		entries = append(entries, ErrorEntry{Message: e.Message, Path: e.Path, Extensions: e.Extensions})
	}
	return &Error{Op: op, Entries: entries}
}

func statusCodeOf(err error) int {
	var sc interface{ StatusCode() int }
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return 0
}

func packageStatusList(statuses []string) (string, error) {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		s = strings.ToUpper(strings.TrimSpace(s))
		if !validPackageStatus(s) {
			return "", fmt.Errorf("gateway: unsupported package status %q", s)
		}
		out = append(out, s)
	}
	return strings.Join(out, ", "), nil
}

func validPackageStatus(s string) bool {
	switch s {
	case PackageRefundRequested, PackageRefunded, PackageRefundDelivered,
		"DELIVERED", "SHIPPED", "READY_FOR_SHIPMENT", "UNFULFILLED", "FULFILLED", "CANCELLED", "PARTIALLY_FULFILLED":
		return true
	}
	return false
}
