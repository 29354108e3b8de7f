package domain

import (
	"bytes"
	"encoding/json"
)

// RefundStatus is the lifecycle state of a refund request.
//
//	pending → processing → completed
//	pending|processing → rejected
type RefundStatus string

const (
	StatusPending    RefundStatus = "pending"
	StatusProcessing RefundStatus = "processing"
	StatusCompleted  RefundStatus = "completed"
	StatusRejected   RefundStatus = "rejected"
)

// Statuses lists every known status in lifecycle order.
var Statuses = []RefundStatus{StatusPending, StatusProcessing, StatusCompleted, StatusRejected}

// Valid reports whether s is a known status.
func (s RefundStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further forward transition exists.
func (s RefundStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// CanTransition reports whether to is a forward move in the lifecycle graph.
// The service layer does not enforce it on generic updates; it documents the
// intended graph and drives the dashboard's action availability.
func (s RefundStatus) CanTransition(to RefundStatus) bool {
	if !to.Valid() || s.Terminal() {
		return false
	}
	switch s {
	case StatusPending:
		return to == StatusProcessing || to == StatusCompleted || to == StatusRejected
	case StatusProcessing:
		return to == StatusCompleted || to == StatusRejected
	}
	return false
}

// Source records where a refund request originated.
type Source string

const (
	SourceDashboard Source = "dashboard"
	SourcePortal    Source = "portal"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool { return s == SourceDashboard || s == SourcePortal }

// Timeline event types.
const (
	EventCreated         = "created"
	EventStatusChanged   = "status_changed"
	EventNoteAdded       = "note_added"
	EventApproved        = "approved"
	EventTrackingUpdated = "tracking_updated"
)

// OptionalString is a JSON field that distinguishes an absent key, an explicit
// null and a value. The zero value means "absent".
type OptionalString struct {
	Set   bool // key was present
	Null  bool // key was present with a null value
	Value string
}

// UnmarshalJSON implements json.Unmarshaler. It is only invoked for present
// keys, which is what makes the zero value mean "absent".
func (o *OptionalString) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		o.Null = true
		o.Value = ""
		return nil
	}
	o.Null = false
	return json.Unmarshal(b, &o.Value)
}

// Some returns a present, non-null OptionalString.
func Some(v string) OptionalString { return OptionalString{Set: true, Value: v} }

// Null returns a present, null OptionalString.
func Null() OptionalString { return OptionalString{Set: true, Null: true} }

// Ptr converts a present value into the column value: nil for null.
func (o OptionalString) Ptr() *string {
	if o.Null {
		return nil
	}
	v := o.Value
	return &v
}

// RefundPatch is a partial update of a refund request. Status is applied only
// when present with a non-empty value; the nullable text fields are cleared by
// an explicit null and left untouched when absent.
type RefundPatch struct {
	Status         OptionalString `json:"status"`
	TrackingNumber OptionalString `json:"trackingNumber"`
	Reason         OptionalString `json:"reason"`
	ReasonNote     OptionalString `json:"reasonNote"`
}

// Empty reports whether the patch would not change any column.
func (p RefundPatch) Empty() bool {
	return !p.statusSet() && !p.TrackingNumber.Set && !p.Reason.Set && !p.ReasonNote.Set
}

func (p RefundPatch) statusSet() bool {
	return p.Status.Set && !p.Status.Null && p.Status.Value != ""
}

// Columns returns the column→value map for a GORM Updates call.
func (p RefundPatch) Columns() map[string]any {
	cols := map[string]any{}
	if p.statusSet() {
		cols["status"] = p.Status.Value
	}
	if p.TrackingNumber.Set {
		cols["tracking_number"] = p.TrackingNumber.Ptr()
	}
	if p.Reason.Set {
		cols["reason"] = p.Reason.Ptr()
	}
	if p.ReasonNote.Set {
		cols["reason_note"] = p.ReasonNote.Ptr()
	}
	return cols
}

// StatusValue returns the requested status and whether one was supplied.
func (p RefundPatch) StatusValue() (RefundStatus, bool) {
	if !p.statusSet() {
		return "", false
	}
	return RefundStatus(p.Status.Value), true
}
