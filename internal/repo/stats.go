// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides aggregate queries: list metadata for
// conditional responses (ETag generation) and the dashboard KPI inputs.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-refund-backend/internal/domain"
)

// RefundsStats returns aggregate metadata for a merchant's refunds: the total
// number of rows and the maximum UpdatedAt timestamp among those rows.
//
// When the merchant has no refunds, the returned count is 0 and maxUpdatedAt
// is nil.
func RefundsStats(ctx context.Context, db *gorm.DB, merchantID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.RefundRequest{}).Where("merchant_id = ?", merchantID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// NotesStats returns the number of notes on a merchant's refunds and the
// newest note's CreatedAt. Notes are embedded in the refund list, so the
// list validator covers them too.
func NotesStats(ctx context.Context, db *gorm.DB, merchantID string) (count int64, maxCreatedAt *time.Time, err error) {
	owned := db.Model(&domain.RefundRequest{}).Select("id").Where("merchant_id = ?", merchantID)
	q := db.WithContext(ctx).Model(&domain.RefundNote{}).Where("refund_request_id IN (?)", owned)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}
	var row struct {
		CreatedAt time.Time
	}
	if err = q.Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}

// CountByStatus returns the number of the merchant's refunds per status,
// optionally restricted to one source.
func CountByStatus(ctx context.Context, db *gorm.DB, merchantID string, source domain.Source) (map[domain.RefundStatus]int64, error) {
	q := db.WithContext(ctx).Model(&domain.RefundRequest{}).Where("merchant_id = ?", merchantID)
	if source != "" {
		q = q.Where("source = ?", string(source))
	}
	var rows []struct {
		Status string
		N      int64
	}
	if err := q.Select("status, COUNT(*) AS n").Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[domain.RefundStatus]int64, len(domain.Statuses))
	for _, s := range domain.Statuses {
		out[s] = 0
	}
	for _, r := range rows {
		out[domain.RefundStatus(r.Status)] = r.N
	}
	return out, nil
}

// CountPendingBefore counts pending refunds created before cutoff.
func CountPendingBefore(ctx context.Context, db *gorm.DB, merchantID string, source domain.Source, cutoff time.Time) (int64, error) {
	q := db.WithContext(ctx).Model(&domain.RefundRequest{}).
		Where("merchant_id = ? AND status = ? AND created_at < ?", merchantID, string(domain.StatusPending), cutoff)
	if source != "" {
		q = q.Where("source = ?", string(source))
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}

// CompletionSpan is the creation and last update time of a completed refund.
type CompletionSpan struct {
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CompletedSpans returns creation/update times of completed refunds. Date
// arithmetic happens in Go so the query is portable across backends.
func CompletedSpans(ctx context.Context, db *gorm.DB, merchantID string, source domain.Source) ([]CompletionSpan, error) {
	q := db.WithContext(ctx).Model(&domain.RefundRequest{}).
		Where("merchant_id = ? AND status = ?", merchantID, string(domain.StatusCompleted))
	if source != "" {
		q = q.Where("source = ?", string(source))
	}
	var out []CompletionSpan
	err := q.Select("created_at, updated_at").Scan(&out).Error
	return out, err
}
