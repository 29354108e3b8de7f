package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-refund-backend/internal/domain"
	"github.com/tbourn/go-refund-backend/internal/repo"
)

// IdempotencyService stores the outcome of creation requests so that a retry
// with the same key returns the original resource.
type IdempotencyService struct {
	DB  *gorm.DB
	TTL time.Duration
}

// NewIdempotencyService constructs an IdempotencyService. A non-positive ttl
// defaults to 24h.
func NewIdempotencyService(db *gorm.DB, ttl time.Duration) *IdempotencyService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyService{DB: db, TTL: ttl}
}

// Lookup reports whether a live record exists. It matches the middleware's
// lookup signature.
func (s *IdempotencyService) Lookup(ctx context.Context, ownerID, scope, key string, now time.Time) (bool, error) {
	_, err := repo.GetIdempotency(ctx, s.DB, ownerID, scope, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Find returns the live record for the key, or nil.
func (s *IdempotencyService) Find(ctx context.Context, ownerID, scope, key string) *domain.Idempotency {
	if key == "" {
		return nil
	}
	rec, err := repo.GetIdempotency(ctx, s.DB, ownerID, scope, key, time.Now().UTC())
	if err != nil {
		return nil
	}
	return rec
}

// Remember records resourceID for the key. Concurrent duplicates are
// ignored; the first writer wins.
func (s *IdempotencyService) Remember(ctx context.Context, ownerID, scope, key, resourceID string, status int) error {
	if key == "" {
		return nil
	}
	_, err := repo.CreateIdempotency(ctx, s.DB, ownerID, scope, key, resourceID, status, s.TTL)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}

// Purge deletes expired records.
func (s *IdempotencyService) Purge(ctx context.Context) (int64, error) {
	return repo.PurgeExpiredIdempotency(ctx, s.DB, time.Now().UTC())
}

// PortalOwner normalizes a customer email into an idempotency owner.
func PortalOwner(email string) string {
	return "portal:" + strings.ToLower(strings.TrimSpace(email))
}
