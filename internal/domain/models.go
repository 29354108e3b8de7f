// Package domain defines the persistence models for merchants, refund
// requests, their notes and their timeline. These types are mapped with GORM
// and form the core data layer of the refund desk.
package domain

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Merchant is a tenant store. Every refund request belongs to exactly one
// merchant and all merchant-facing reads are scoped by its ID.
//
// Fields:
//   - ID: merchant identifier issued by the commerce platform (token "sub").
//   - AuthorizedAppID: installation identifier (token "aud"); unique.
//   - StoreName / Email: profile data copied from the platform on creation.
//   - PortalURL / PortalEnabled: customer portal settings.
type Merchant struct {
	ID              string    `json:"id"              gorm:"type:varchar(64);primaryKey"`
	AuthorizedAppID string    `json:"authorizedAppId" gorm:"type:varchar(64);not null;uniqueIndex:ux_merchant_app"`
	StoreName       *string   `json:"storeName"       gorm:"type:varchar(255)"`
	Email           *string   `json:"email"           gorm:"type:varchar(255)"`
	PortalURL       *string   `json:"portalUrl"       gorm:"type:varchar(512)"`
	PortalEnabled   bool      `json:"portalEnabled"   gorm:"not null"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// TableName returns the database table name for Merchant.
func (Merchant) TableName() string { return "merchants" }

// AuthToken is the stored OAuth credential of an installed app. It is written
// by the installer (or the seed command) and read whenever the service has to
// talk to the commerce platform on a merchant's behalf.
type AuthToken struct {
	AuthorizedAppID string     `gorm:"type:varchar(64);primaryKey"`
	MerchantID      string     `gorm:"type:varchar(64);not null;index"`
	AccessToken     string     `gorm:"type:text;not null"`
	TokenType       string     `gorm:"type:varchar(32);not null"`
	ExpiresAt       *time.Time `gorm:"index"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TableName returns the database table name for AuthToken.
func (AuthToken) TableName() string { return "auth_tokens" }

// Expired reports whether the token has a known expiry at or before now.
func (t AuthToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !t.ExpiresAt.After(now)
}

// RefundRequest tracks one customer's request to return/refund one order.
//
// OrderID is globally unique: at most one refund request exists per order.
// Images holds a JSON array of image URIs (object storage URLs, or data URIs
// when no object storage is configured).
type RefundRequest struct {
	ID             string         `json:"id"             gorm:"type:char(36);primaryKey"`
	OrderID        string         `json:"orderId"        gorm:"type:varchar(64);not null;uniqueIndex:ux_refund_order"`
	OrderNumber    string         `json:"orderNumber"    gorm:"type:varchar(64);not null;index"`
	MerchantID     string         `json:"merchantId"     gorm:"type:varchar(64);not null;index:idx_refund_merchant,priority:1"`
	Status         RefundStatus   `json:"status"         gorm:"type:varchar(16);not null;check:status IN ('pending','processing','completed','rejected')"`
	Reason         *string        `json:"reason"         gorm:"type:varchar(64)"`
	ReasonNote     *string        `json:"reasonNote"     gorm:"type:text"`
	TrackingNumber *string        `json:"trackingNumber" gorm:"type:varchar(128)"`
	Images         datatypes.JSON `json:"images"`
	Source         Source         `json:"source"         gorm:"type:varchar(16);not null;check:source IN ('dashboard','portal')"`
	CreatedAt      time.Time      `json:"createdAt"      gorm:"index:idx_refund_merchant,priority:2"`
	UpdatedAt      time.Time      `json:"updatedAt"`

	// ApprovalClaimedAt is set while an approval is talking to the platform.
	ApprovalClaimedAt *time.Time `json:"-" gorm:"index"`

	Notes    []RefundNote     `json:"notes,omitempty"    gorm:"foreignKey:RefundRequestID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Timeline []RefundTimeline `json:"timeline,omitempty" gorm:"foreignKey:RefundRequestID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for RefundRequest.
func (RefundRequest) TableName() string { return "refund_requests" }

// ImageList decodes Images. NULL, empty and malformed values yield nil.
func (r RefundRequest) ImageList() []string {
	if len(r.Images) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(r.Images, &out); err != nil {
		return nil
	}
	return out
}

// EncodeImages returns the JSON column value for a list of image URIs, or nil
// (SQL NULL) for an empty list.
func EncodeImages(images []string) datatypes.JSON {
	if len(images) == 0 {
		return nil
	}
	b, err := json.Marshal(images)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

// RefundNote is an immutable free-text annotation on a refund request.
type RefundNote struct {
	ID              string    `json:"id"              gorm:"type:char(36);primaryKey"`
	RefundRequestID string    `json:"refundRequestId" gorm:"type:char(36);not null;index:idx_note_refund,priority:1"`
	Content         string    `json:"content"         gorm:"type:text;not null"`
	CreatedBy       string    `json:"createdBy"       gorm:"type:varchar(255);not null"`
	CreatedAt       time.Time `json:"createdAt"       gorm:"index:idx_note_refund,priority:2"`
}

// TableName returns the database table name for RefundNote.
func (RefundNote) TableName() string { return "refund_notes" }

// RefundTimeline is one append-only audit event of a refund request.
// EventType is an open string; the known values are the Event* constants.
type RefundTimeline struct {
	ID              string         `json:"id"              gorm:"type:char(36);primaryKey"`
	RefundRequestID string         `json:"refundRequestId" gorm:"type:char(36);not null;index:idx_timeline_refund,priority:1"`
	EventType       string         `json:"eventType"       gorm:"type:varchar(32);not null"`
	EventData       datatypes.JSON `json:"eventData"`
	Description     string         `json:"description"     gorm:"type:text;not null"`
	CreatedBy       string         `json:"createdBy"       gorm:"type:varchar(255);not null"`
	CreatedAt       time.Time      `json:"createdAt"       gorm:"index:idx_timeline_refund,priority:2"`
}

// TableName returns the database table name for RefundTimeline.
func (RefundTimeline) TableName() string { return "refund_timeline" }

// All returns every persisted model in migration order.
func All() []any {
	return []any{
		&Merchant{},
		&AuthToken{},
		&RefundRequest{},
		&RefundNote{},
		&RefundTimeline{},
		&Idempotency{},
	}
}
