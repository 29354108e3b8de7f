package repo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-refund-backend/internal/domain"
)

// CreateNote inserts an immutable note on a refund.
func CreateNote(ctx context.Context, db *gorm.DB, refundID, content, createdBy string) (*domain.RefundNote, error) {
	n := &domain.RefundNote{
		ID:              uuid.NewString(),
		RefundRequestID: refundID,
		Content:         content,
		CreatedBy:       createdBy,
		CreatedAt:       time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(n).Error; err != nil {
		return nil, err
	}
	return n, nil
}

// ListNotes returns a refund's notes newest first.
func ListNotes(ctx context.Context, db *gorm.DB, refundID string) ([]domain.RefundNote, error) {
	var out []domain.RefundNote
	err := notesNewestFirst(db.WithContext(ctx).Where("refund_request_id = ?", refundID)).
		Find(&out).Error
	return out, err
}

// AppendTimeline inserts one audit event. data is JSON-encoded into
// event_data; a nil data stores SQL NULL. There is deliberately no update or
// delete counterpart.
func AppendTimeline(ctx context.Context, db *gorm.DB, refundID, eventType string, data any, description, createdBy string) (*domain.RefundTimeline, error) {
	var payload datatypes.JSON
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		payload = datatypes.JSON(b)
	}
	ev := &domain.RefundTimeline{
		ID:              uuid.NewString(),
		RefundRequestID: refundID,
		EventType:       eventType,
		EventData:       payload,
		Description:     description,
		CreatedBy:       createdBy,
		CreatedAt:       time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(ev).Error; err != nil {
		return nil, err
	}
	return ev, nil
}

// ListTimeline returns a refund's events in creation order.
func ListTimeline(ctx context.Context, db *gorm.DB, refundID string) ([]domain.RefundTimeline, error) {
	var out []domain.RefundTimeline
	err := timelineOldestFirst(db.WithContext(ctx).Where("refund_request_id = ?", refundID)).
		Find(&out).Error
	return out, err
}

// TimelineEntry is a timeline event joined with a summary of its refund.
type TimelineEntry struct {
	domain.RefundTimeline
	OrderNumber  string              `json:"-"`
	RefundStatus domain.RefundStatus `json:"-"`
}

// ListRecentTimeline returns the latest limit events across all refunds of
// merchantID, newest first.
func ListRecentTimeline(ctx context.Context, db *gorm.DB, merchantID string, limit int) ([]TimelineEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	var out []TimelineEntry
	err := db.WithContext(ctx).
		Table("refund_timeline AS t").
		Select("t.*, r.order_number AS order_number, r.status AS refund_status").
		Joins("JOIN refund_requests r ON r.id = t.refund_request_id").
		Where("r.merchant_id = ?", merchantID).
		Order("t.created_at desc").
		Order("t.id desc").
		Limit(limit).
		Scan(&out).Error
	return out, err
}
