// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for refund
// requests.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They follow the "thin repository"
// approach: no business logic, only persistence and query composition.
//
// Error semantics:
//   - Missing rows are reported as ErrNotFound (alias of gorm.ErrRecordNotFound).
//   - Unique violations are reported as ErrDuplicate.
//   - Other DB errors are propagated unchanged.
//
// Tenant scoping: every function taking a merchantID filters on it. The only
// unscoped reads are GetRefundByID (public tracking) and FindRefundByOrder
// (global duplicate check).
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-refund-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates a unique constraint violation.
var ErrDuplicate = errors.New("duplicate")

// IsDuplicate reports whether err is a unique constraint violation. Postgres
// errors are translated by GORM; glebarez/sqlite often returns plain text.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDuplicate) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key value")
}

// RefundFilter narrows ListRefunds. Zero values mean "any".
type RefundFilter struct {
	Status domain.RefundStatus
	Source domain.Source
}

// CreateRefund inserts r, assigning an ID and timestamps when unset.
// A second refund for the same order yields ErrDuplicate.
func CreateRefund(ctx context.Context, db *gorm.DB, r *domain.RefundRequest) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
	if err := db.WithContext(ctx).Omit("Notes", "Timeline").Create(r).Error; err != nil {
		if IsDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// FindRefundByOrder looks up the refund for orderID across all merchants.
func FindRefundByOrder(ctx context.Context, db *gorm.DB, orderID string) (*domain.RefundRequest, error) {
	var r domain.RefundRequest
	if err := db.WithContext(ctx).Where("order_id = ?", orderID).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// FindMerchantRefundByOrder looks up the refund for orderID owned by merchantID.
func FindMerchantRefundByOrder(ctx context.Context, db *gorm.DB, merchantID, orderID string) (*domain.RefundRequest, error) {
	var r domain.RefundRequest
	err := db.WithContext(ctx).
		Where("order_id = ? AND merchant_id = ?", orderID, merchantID).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRefund fetches a refund by id owned by merchantID.
func GetRefund(ctx context.Context, db *gorm.DB, id, merchantID string) (*domain.RefundRequest, error) {
	var r domain.RefundRequest
	err := db.WithContext(ctx).
		Where("id = ? AND merchant_id = ?", id, merchantID).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRefundWithNotes is GetRefund with notes preloaded newest first.
func GetRefundWithNotes(ctx context.Context, db *gorm.DB, id, merchantID string) (*domain.RefundRequest, error) {
	var r domain.RefundRequest
	err := db.WithContext(ctx).
		Preload("Notes", notesNewestFirst).
		Where("id = ? AND merchant_id = ?", id, merchantID).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRefundByID fetches a refund without tenant scope, with notes newest
// first and timeline in creation order. Used by the public tracking lookup.
func GetRefundByID(ctx context.Context, db *gorm.DB, id string) (*domain.RefundRequest, error) {
	var r domain.RefundRequest
	err := db.WithContext(ctx).
		Preload("Notes", notesNewestFirst).
		Preload("Timeline", timelineOldestFirst).
		Where("id = ?", id).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRefunds returns the merchant's refunds newest first with notes
// preloaded newest first.
func ListRefunds(ctx context.Context, db *gorm.DB, merchantID string, f RefundFilter) ([]domain.RefundRequest, error) {
	q := db.WithContext(ctx).
		Preload("Notes", notesNewestFirst).
		Where("merchant_id = ?", merchantID)
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.Source != "" {
		q = q.Where("source = ?", string(f.Source))
	}
	var out []domain.RefundRequest
	err := q.Order("created_at desc").Order("id").Find(&out).Error
	return out, err
}

// UpdateRefund applies cols to the refund (id, merchantID). It returns
// ErrNotFound when no row matches.
func UpdateRefund(ctx context.Context, db *gorm.DB, id, merchantID string, cols map[string]any) error {
	res := db.WithContext(ctx).
		Model(&domain.RefundRequest{}).
		Where("id = ? AND merchant_id = ?", id, merchantID).
		Updates(cols)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimRefundApproval marks the refund (id, merchantID) as being approved.
// It matches only a refund that is not completed and carries no claim newer
// than lease, so at most one approver reaches the platform. ErrNotFound means
// the refund is missing, completed or claimed by someone else.
func ClaimRefundApproval(ctx context.Context, db *gorm.DB, id, merchantID string, now time.Time, lease time.Duration) error {
	now = now.UTC()
	res := db.WithContext(ctx).
		Model(&domain.RefundRequest{}).
		Where("id = ? AND merchant_id = ? AND status <> ?", id, merchantID, string(domain.StatusCompleted)).
		Where("(approval_claimed_at IS NULL OR approval_claimed_at < ?)", now.Add(-lease)).
		UpdateColumn("approval_claimed_at", now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReleaseRefundApproval drops the approval claim on (id, merchantID).
func ReleaseRefundApproval(ctx context.Context, db *gorm.DB, id, merchantID string) error {
	return db.WithContext(ctx).
		Model(&domain.RefundRequest{}).
		Where("id = ? AND merchant_id = ?", id, merchantID).
		UpdateColumn("approval_claimed_at", nil).Error
}

// CompleteRefund moves the refund (id, merchantID) to completed and clears
// its approval claim. A refund that is already completed is reported as
// ErrNotFound.
func CompleteRefund(ctx context.Context, db *gorm.DB, id, merchantID string) error {
	res := db.WithContext(ctx).
		Model(&domain.RefundRequest{}).
		Where("id = ? AND merchant_id = ? AND status <> ?", id, merchantID, string(domain.StatusCompleted)).
		Updates(map[string]any{"status": string(domain.StatusCompleted), "approval_claimed_at": nil})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func notesNewestFirst(db *gorm.DB) *gorm.DB {
	return db.Order("created_at desc").Order("id desc")
}

func timelineOldestFirst(db *gorm.DB) *gorm.DB {
	return db.Order("created_at asc").Order("id asc")
}
