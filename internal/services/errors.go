// Package services defines the business logic of the refund desk: the refund
// lifecycle, the dashboard read layer, the customer portal and merchant
// settings. This file centralizes the service-level error values so that
// they can be consistently returned by service methods and checked by
// callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import (
	"errors"
	"fmt"

	"github.com/tbourn/go-refund-backend/internal/gateway"
)

var (
	// ErrUnauthorized indicates a missing or invalid merchant identity.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrValidation is returned for missing or malformed input. It is usually
	// wrapped with the offending field.
	ErrValidation = errors.New("validation failed")

	// ErrRefundNotFound indicates that the refund does not exist or belongs
	// to another merchant.
	ErrRefundNotFound = errors.New("refund request not found")

	// ErrOrderNotFound indicates that the platform has no such order, or the
	// order has no line items to refund.
	ErrOrderNotFound = errors.New("order not found")

	// ErrMerchantNotFound indicates that no merchant row could be resolved.
	ErrMerchantNotFound = errors.New("merchant not found")

	// ErrAuthContextMissing means the merchant has no usable stored platform
	// credential.
	ErrAuthContextMissing = errors.New("auth context missing")

	// ErrConflict is returned when a refund already exists for the order.
	ErrConflict = errors.New("refund request already exists for this order")

	// ErrExternal wraps a failure reported by the commerce platform.
	ErrExternal = errors.New("commerce platform request failed")

	// ErrInvalidState is returned when an action is not allowed in the
	// refund's current status.
	ErrInvalidState = errors.New("refund already approved")

	// ErrEmailMismatch is returned when the portal email does not match the
	// order's customer.
	ErrEmailMismatch = errors.New("email does not match order")
)

// ConflictError carries the id of the refund that already exists.
type ConflictError struct {
	ExistingID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s (refund %s)", ErrConflict, e.ExistingID)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// ExternalError carries the platform's structured error details.
type ExternalError struct {
	Op      string
	Details []gateway.ErrorEntry
	Err     error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrExternal, e.Op, e.Err)
}

// Unwrap exposes both the sentinel and the underlying gateway error.
func (e *ExternalError) Unwrap() []error { return []error{ErrExternal, e.Err} }

// external wraps a gateway failure. Structured GraphQL entries are kept;
// transport failures surface their message as a single entry.
func external(op string, err error) error {
	var gqlErr *gateway.Error
	if errors.As(err, &gqlErr) {
		return &ExternalError{Op: op, Details: gqlErr.Entries, Err: err}
	}
	return &ExternalError{Op: op, Details: []gateway.ErrorEntry{{Message: err.Error()}}, Err: err}
}
