package portal

import (
	"errors"
	"fmt"
	"time"
)

// State is a step of the portal flow.
type State string

const (
	StateVerified       State = "verified"
	StateReasonSelected State = "reason_selected"
	StateImagesAttached State = "images_attached"
	StateSubmitted      State = "submitted"
)

var (
	ErrInvalidTransition = errors.New("invalid portal step")
	ErrUnknownReason     = errors.New("unknown refund reason")
	ErrImagesRequired    = errors.New("images required for this reason")
)

// OrderSnapshot is the verified order the session refers to. It is captured
// at verification so later steps never trust client-supplied order data.
type OrderSnapshot struct {
	OrderID         string    `json:"orderId"`
	OrderNumber     string    `json:"orderNumber"`
	MerchantID      string    `json:"merchantId"`
	CustomerEmail   string    `json:"customerEmail"`
	CustomerName    string    `json:"customerName"`
	TotalFinalPrice float64   `json:"totalFinalPrice"`
	CurrencySymbol  string    `json:"currencySymbol"`
	OrderedAt       time.Time `json:"orderedAt"`
}

// ReasonSelection is the reason chosen by the customer.
type ReasonSelection struct {
	Code string `json:"code"`
	Note string `json:"note,omitempty"`
}

// Session is the server-side state of one portal flow.
type Session struct {
	ID        string           `json:"id"`
	State     State            `json:"state"`
	Order     OrderSnapshot    `json:"order"`
	Reason    *ReasonSelection `json:"reason,omitempty"`
	Images    []string         `json:"images,omitempty"`
	RefundID  string           `json:"refundId,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// NewSession starts a flow in the verified state.
func NewSession(id string, order OrderSnapshot, now time.Time) *Session {
	return &Session{ID: id, State: StateVerified, Order: order, CreatedAt: now, UpdatedAt: now}
}

func (s *Session) invalid(step string) error {
	return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, step, s.State)
}

// SelectReason records the reason. Choosing again before submit is allowed
// and discards previously attached images.
func (s *Session) SelectReason(code, note string, now time.Time) error {
	switch s.State {
	case StateVerified, StateReasonSelected, StateImagesAttached:
	default:
		return s.invalid("select reason")
	}
	if _, ok := LookupReason(code); !ok {
		return ErrUnknownReason
	}
	s.Reason = &ReasonSelection{Code: code, Note: note}
	s.Images = nil
	s.State = StateReasonSelected
	s.UpdatedAt = now
	return nil
}

// CanAttachImages reports whether photos may be attached now.
func (s *Session) CanAttachImages() error {
	switch s.State {
	case StateReasonSelected, StateImagesAttached:
		return nil
	}
	return s.invalid("attach images")
}

// AttachImages replaces the attached photos with stored image references.
// Content validation happens before upload, see ValidateImages.
func (s *Session) AttachImages(images []string, now time.Time) error {
	if err := s.CanAttachImages(); err != nil {
		return err
	}
	if len(images) > MaxImages {
		return ErrTooManyImages
	}
	s.Images = append([]string(nil), images...)
	s.State = StateImagesAttached
	s.UpdatedAt = now
	return nil
}

// ReadyToSubmit reports whether Submit may be called.
func (s *Session) ReadyToSubmit() error {
	switch s.State {
	case StateReasonSelected, StateImagesAttached:
	default:
		return s.invalid("submit")
	}
	r, _ := LookupReason(s.Reason.Code)
	if r.RequiresImage && len(s.Images) == 0 {
		return ErrImagesRequired
	}
	return nil
}

// MarkSubmitted finishes the flow.
func (s *Session) MarkSubmitted(refundID string, now time.Time) error {
	if err := s.ReadyToSubmit(); err != nil {
		return err
	}
	s.RefundID = refundID
	s.State = StateSubmitted
	s.UpdatedAt = now
	return nil
}
