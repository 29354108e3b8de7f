package domain

import "time"

// Idempotency records the outcome of a previously processed creation request,
// keyed by (owner_id, scope, key). It lets clients retry POST requests safely:
// a replay returns the originally created resource without repeating side
// effects.
//
// OwnerID is the merchant ID for dashboard requests and the normalized
// customer email for portal submissions. Scope names the endpoint.
type Idempotency struct {
	ID         string    `gorm:"type:char(36);primaryKey"`
	OwnerID    string    `gorm:"type:varchar(255);not null;uniqueIndex:ux_idem_owner_scope_key,priority:1"`
	Scope      string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_idem_owner_scope_key,priority:2"`
	Key        string    `gorm:"type:varchar(200);not null;uniqueIndex:ux_idem_owner_scope_key,priority:3"`
	ResourceID string    `gorm:"type:char(36);not null"`
	Status     int       `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
