package gateway

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Retrying retries transient read failures with exponential backoff. The
// refund mutation is passed through exactly once.
type Retrying struct {
	Next       Gateway
	MaxRetries int

	// InitialInterval and MaxInterval tune the backoff; zero values use
	// 200ms and 2s.
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// NewRetrying wraps next. maxRetries <= 0 disables retries.
func NewRetrying(next Gateway, maxRetries int) *Retrying {
	return &Retrying{Next: next, MaxRetries: maxRetries}
}

// ListOrders implements Gateway.
func (r *Retrying) ListOrders(ctx context.Context, q OrderQuery) ([]Order, error) {
	return retryRead(ctx, r, func() ([]Order, error) { return r.Next.ListOrders(ctx, q) })
}

// GetOrder implements Gateway.
func (r *Retrying) GetOrder(ctx context.Context, id string) (*Order, error) {
	return retryRead(ctx, r, func() (*Order, error) { return r.Next.GetOrder(ctx, id) })
}

// GetMerchant implements Gateway.
func (r *Retrying) GetMerchant(ctx context.Context) (*MerchantProfile, error) {
	return retryRead(ctx, r, func() (*MerchantProfile, error) { return r.Next.GetMerchant(ctx) })
}

// RefundOrderLine implements Gateway. It is never retried.
func (r *Retrying) RefundOrderLine(ctx context.Context, in RefundInput) (*Order, error) {
	return r.Next.RefundOrderLine(ctx, in)
}

func (r *Retrying) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	if r.InitialInterval > 0 {
		b.InitialInterval = r.InitialInterval
	}
	if r.MaxInterval > 0 {
		b.MaxInterval = r.MaxInterval
	}
	return b
}

func retryRead[T any](ctx context.Context, r *Retrying, op func() (T, error)) (T, error) {
	if r.MaxRetries <= 0 {
		return op()
	}
	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && !IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(r.backOff()),
		backoff.WithMaxTries(uint(r.MaxRetries+1)),
		backoff.WithMaxElapsedTime(0),
	)
}
