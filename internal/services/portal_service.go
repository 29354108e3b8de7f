// Package services – PortalService
//
// This file implements the anonymous customer portal. A customer proves
// ownership of an order with its number and email; the server keeps the
// verified order in a session and walks it through reason selection, photo
// upload and submission (see package portal for the state machine). The
// stateless SubmitDirect and the public Track lookup are served here too.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/go-refund-backend/internal/domain"
	"github.com/tbourn/go-refund-backend/internal/gateway"
	"github.com/tbourn/go-refund-backend/internal/i18n"
	"github.com/tbourn/go-refund-backend/internal/notify"
	"github.com/tbourn/go-refund-backend/internal/portal"
	"github.com/tbourn/go-refund-backend/internal/repo"
	"github.com/tbourn/go-refund-backend/internal/storage"
)

// VerifyInput is the customer's proof of order ownership.
type VerifyInput struct {
	OrderNumber string
	Email       string
	MerchantID  string
}

// VerifiedCustomer is the customer part of a verified order.
type VerifiedCustomer struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Email     *string `json:"email"`
}

// VerifiedOrder is the order summary shown to the customer.
type VerifiedOrder struct {
	ID              string            `json:"id"`
	OrderNumber     string            `json:"orderNumber"`
	TotalFinalPrice float64           `json:"totalFinalPrice"`
	CurrencySymbol  string            `json:"currencySymbol"`
	OrderedAt       gateway.Timestamp `json:"orderedAt"`
	Customer        VerifiedCustomer  `json:"customer"`
	MerchantID      string            `json:"merchantId"`
}

// VerifyResult is returned by Verify.
type VerifyResult struct {
	Verified  bool          `json:"verified"`
	Order     VerifiedOrder `json:"order"`
	SessionID string        `json:"sessionId"`
}

// SubmitInput is the stateless portal submission.
type SubmitInput struct {
	OrderID       string
	OrderNumber   string
	MerchantID    string
	CustomerEmail string
	Reason        string
	ReasonNote    string
	Images        []string
}

// SubmitResult is returned by Submit and SubmitDirect.
type SubmitResult struct {
	Success  bool   `json:"success"`
	RefundID string `json:"refundId"`
	Message  string `json:"message"`
}

// TrackedRefund is the public view of a refund.
type TrackedRefund struct {
	ID             string                  `json:"id"`
	OrderNumber    string                  `json:"orderNumber"`
	Status         domain.RefundStatus     `json:"status"`
	Reason         *string                 `json:"reason"`
	ReasonNote     *string                 `json:"reasonNote"`
	TrackingNumber *string                 `json:"trackingNumber"`
	CreatedAt      time.Time               `json:"createdAt"`
	UpdatedAt      time.Time               `json:"updatedAt"`
	Order          *gateway.Order          `json:"order"`
	Timeline       []domain.RefundTimeline `json:"timeline"`
	Notes          []domain.RefundNote     `json:"notes"`
}

// PortalService runs the customer portal flow.
type PortalService struct {
	DB       *gorm.DB
	Gateways GatewayResolver
	Refunds  *RefundService
	Sessions portal.SessionStore
	Images   storage.ImageStore
	Notifier notify.Notifier

	now   func() time.Time
	newID func() string
}

// NewPortalService constructs a PortalService. Nil images and notifier fall
// back to inline storage and no notifications.
func NewPortalService(db *gorm.DB, gw GatewayResolver, refunds *RefundService, sessions portal.SessionStore, images storage.ImageStore, n notify.Notifier) *PortalService {
	if images == nil {
		images = storage.InlineStore{}
	}
	if n == nil {
		n = notify.Noop{}
	}
	return &PortalService{
		DB:       db,
		Gateways: gw,
		Refunds:  refunds,
		Sessions: sessions,
		Images:   images,
		Notifier: n,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

func (s *PortalService) clock() time.Time {
	if s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}

// Verify checks that email owns the order and opens a portal session.
func (s *PortalService) Verify(ctx context.Context, in VerifyInput) (*VerifyResult, error) {
	ctx, span := otel.Tracer("services/PortalService").Start(ctx, "Verify",
		trace.WithAttributes(attribute.String("order.number", in.OrderNumber)),
	)
	defer span.End()

	number, email := strings.TrimSpace(in.OrderNumber), strings.TrimSpace(in.Email)
	if number == "" || email == "" {
		return nil, fmt.Errorf("%w: order number and email are required", ErrValidation)
	}

	m, err := s.merchant(ctx, strings.TrimSpace(in.MerchantID))
	if err != nil {
		return nil, err
	}
	gw, err := forMerchant(ctx, s.Gateways, m.ID)
	if err != nil {
		return nil, err
	}
	order, err := ownedOrder(ctx, gw, number, email)
	if err != nil {
		return nil, err
	}
	if prev, err := repo.FindRefundByOrder(ctx, s.DB, order.ID); err == nil {
		return nil, &ConflictError{ExistingID: prev.ID}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	now := s.clock()
	sess := portal.NewSession(s.newID(), portal.OrderSnapshot{
		OrderID:         order.ID,
		OrderNumber:     order.OrderNumber,
		MerchantID:      m.ID,
		CustomerEmail:   order.Customer.EmailValue(),
		CustomerName:    order.Customer.FullName(),
		TotalFinalPrice: order.TotalFinalPrice,
		CurrencySymbol:  order.CurrencySymbol,
		OrderedAt:       order.OrderedAt.Time,
	}, now)
	if err := s.Sessions.Save(ctx, sess); err != nil {
		return nil, err
	}

	res := &VerifyResult{
		Verified:  true,
		SessionID: sess.ID,
		Order: VerifiedOrder{
			ID:              order.ID,
			OrderNumber:     order.OrderNumber,
			TotalFinalPrice: order.TotalFinalPrice,
			CurrencySymbol:  order.CurrencySymbol,
			OrderedAt:       order.OrderedAt,
			MerchantID:      m.ID,
		},
	}
	if c := order.Customer; c != nil {
		res.Order.Customer = VerifiedCustomer{FirstName: c.FirstName, LastName: c.LastName, Email: c.Email}
	}
	return res, nil
}

// ownedOrder looks up the order with exactly this number and checks that
// email, compared case-insensitively, is its customer's. This is the proof
// every anonymous portal write rests on.
func ownedOrder(ctx context.Context, gw gateway.Gateway, number, email string) (*gateway.Order, error) {
	orders, err := gw.ListOrders(ctx, gateway.OrderQuery{OrderNumber: number, Limit: 1})
	if err != nil {
		return nil, external("listOrders", err)
	}
	var order *gateway.Order
	for i := range orders {
		if orders[i].OrderNumber == number {
			order = &orders[i]
			break
		}
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if !strings.EqualFold(strings.TrimSpace(order.Customer.EmailValue()), email) {
		return nil, ErrEmailMismatch
	}
	return order, nil
}

// merchant resolves the named merchant or, when none is named, the first one.
func (s *PortalService) merchant(ctx context.Context, id string) (*domain.Merchant, error) {
	var (
		m   *domain.Merchant
		err error
	)
	if id != "" {
		m, err = repo.GetMerchant(ctx, s.DB, id)
	} else {
		m, err = repo.FirstMerchant(ctx, s.DB)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrMerchantNotFound
	}
	return m, err
}

// Session returns the current state of a portal session.
func (s *PortalService) Session(ctx context.Context, sessionID string) (*portal.Session, error) {
	return s.Sessions.Get(ctx, sessionID)
}

// SelectReason records the customer's reason.
func (s *PortalService) SelectReason(ctx context.Context, sessionID, code, note string) (*portal.Session, error) {
	sess, err := s.Sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := sess.SelectReason(strings.TrimSpace(code), strings.TrimSpace(note), s.clock()); err != nil {
		return nil, err
	}
	if err := s.Sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// AttachImages validates and stores the photos, replacing any earlier ones.
func (s *PortalService) AttachImages(ctx context.Context, sessionID string, images []string) (*portal.Session, error) {
	ctx, span := otel.Tracer("services/PortalService").Start(ctx, "AttachImages",
		trace.WithAttributes(attribute.Int("images.count", len(images))),
	)
	defer span.End()

	sess, err := s.Sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := sess.CanAttachImages(); err != nil {
		return nil, err
	}
	refs, err := s.storeImages(ctx, "portal/"+sess.ID, images)
	if err != nil {
		return nil, err
	}
	if err := sess.AttachImages(refs, s.clock()); err != nil {
		return nil, err
	}
	if err := s.Sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *PortalService) storeImages(ctx context.Context, prefix string, images []string) ([]string, error) {
	decoded, err := portal.ValidateImages(images)
	if err != nil {
		return nil, err
	}
	refs := make([]string, 0, len(decoded))
	for _, img := range decoded {
		ref, err := s.Images.Put(ctx, prefix, img.MIME, img.Data)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// Submit creates the refund from a session and closes it.
func (s *PortalService) Submit(ctx context.Context, sessionID string, locale language.Tag) (*SubmitResult, error) {
	ctx, span := otel.Tracer("services/PortalService").Start(ctx, "Submit")
	defer span.End()

	sess, err := s.Sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := sess.ReadyToSubmit(); err != nil {
		return nil, err
	}
	o := sess.Order
	reason, note := sess.Reason.Code, sess.Reason.Note
	r, err := s.Refunds.Create(ctx, CreateRefundInput{
		OrderID:       o.OrderID,
		OrderNumber:   o.OrderNumber,
		MerchantID:    o.MerchantID,
		Source:        domain.SourcePortal,
		Reason:        &reason,
		ReasonNote:    &note,
		Images:        sess.Images,
		CustomerEmail: o.CustomerEmail,
	})
	if err != nil {
		return nil, err
	}
	if err := sess.MarkSubmitted(r.ID, s.clock()); err != nil {
		return nil, err
	}
	if err := s.Sessions.Save(ctx, sess); err != nil {
		// The refund exists; a stale session only allows a retry that
		// conflicts.
		log.Ctx(ctx).Warn().Err(err).Str("session_id", sess.ID).Msg("portal session save failed")
	}
	s.notify(ctx, r, o.CustomerEmail, locale)
	return &SubmitResult{Success: true, RefundID: r.ID, Message: i18n.T(locale, i18n.MsgRefundCreated)}, nil
}

// SubmitDirect is the one-shot submission without a session.
func (s *PortalService) SubmitDirect(ctx context.Context, in SubmitInput, locale language.Tag) (*SubmitResult, error) {
	ctx, span := otel.Tracer("services/PortalService").Start(ctx, "SubmitDirect",
		trace.WithAttributes(
			attribute.String("order.id", in.OrderID),
			attribute.Int("images.count", len(in.Images)),
		),
	)
	defer span.End()

	in.OrderID = strings.TrimSpace(in.OrderID)
	in.OrderNumber = strings.TrimSpace(in.OrderNumber)
	in.MerchantID = strings.TrimSpace(in.MerchantID)
	in.CustomerEmail = strings.TrimSpace(in.CustomerEmail)
	in.Reason = strings.TrimSpace(in.Reason)
	if in.OrderID == "" || in.OrderNumber == "" || in.MerchantID == "" || in.CustomerEmail == "" || in.Reason == "" {
		return nil, fmt.Errorf("%w: required fields are missing", ErrValidation)
	}
	reason, ok := portal.LookupReason(in.Reason)
	if !ok {
		return nil, portal.ErrUnknownReason
	}
	if reason.RequiresImage && len(in.Images) == 0 {
		return nil, portal.ErrImagesRequired
	}

	// Same ownership proof as Verify: the order must exist under this
	// merchant with this number, id and customer email.
	m, err := s.merchant(ctx, in.MerchantID)
	if err != nil {
		return nil, err
	}
	gw, err := forMerchant(ctx, s.Gateways, m.ID)
	if err != nil {
		return nil, err
	}
	order, err := ownedOrder(ctx, gw, in.OrderNumber, in.CustomerEmail)
	if err != nil {
		return nil, err
	}
	if order.ID != in.OrderID {
		return nil, fmt.Errorf("%w: order id does not match order number", ErrOrderNotFound)
	}

	// Reject duplicates before uploading anything.
	if prev, err := repo.FindRefundByOrder(ctx, s.DB, in.OrderID); err == nil {
		return nil, &ConflictError{ExistingID: prev.ID}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	refs, err := s.storeImages(ctx, "portal/"+in.OrderID, in.Images)
	if err != nil {
		return nil, err
	}

	note := in.ReasonNote
	r, err := s.Refunds.Create(ctx, CreateRefundInput{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		MerchantID:    m.ID,
		Source:        domain.SourcePortal,
		Reason:        &in.Reason,
		ReasonNote:    &note,
		Images:        refs,
		CustomerEmail: in.CustomerEmail,
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, r, in.CustomerEmail, locale)
	return &SubmitResult{Success: true, RefundID: r.ID, Message: i18n.T(locale, i18n.MsgRefundCreated)}, nil
}

// notify sends the submission notices. Failures are logged only.
func (s *PortalService) notify(ctx context.Context, r *domain.RefundRequest, email string, locale language.Tag) {
	err := s.Notifier.RefundSubmitted(ctx, notify.RefundNotice{
		RefundID:      r.ID,
		OrderNumber:   r.OrderNumber,
		Reason:        deref(r.Reason),
		CustomerEmail: email,
		Locale:        locale,
	})
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("refund_id", r.ID).Msg("refund notification failed")
	}
}

// Track returns the public view of a refund with its order, timeline and
// notes. A missing refund, merchant or credential reads as not found.
func (s *PortalService) Track(ctx context.Context, refundID string) (*TrackedRefund, error) {
	ctx, span := otel.Tracer("services/PortalService").Start(ctx, "Track",
		trace.WithAttributes(attribute.String("refund.id", refundID)),
	)
	defer span.End()

	refundID = strings.TrimSpace(refundID)
	if refundID == "" {
		return nil, fmt.Errorf("%w: refundId is required", ErrValidation)
	}
	r, err := repo.GetRefundByID(ctx, s.DB, refundID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRefundNotFound
		}
		return nil, err
	}
	if _, err := repo.GetMerchant(ctx, s.DB, r.MerchantID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrMerchantNotFound
		}
		return nil, err
	}
	gw, err := forMerchant(ctx, s.Gateways, r.MerchantID)
	if err != nil {
		return nil, err
	}

	out := &TrackedRefund{
		ID:             r.ID,
		OrderNumber:    r.OrderNumber,
		Status:         r.Status,
		Reason:         r.Reason,
		ReasonNote:     r.ReasonNote,
		TrackingNumber: r.TrackingNumber,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
		Timeline:       r.Timeline,
		Notes:          r.Notes,
	}
	if out.Timeline == nil {
		out.Timeline = []domain.RefundTimeline{}
	}
	if out.Notes == nil {
		out.Notes = []domain.RefundNote{}
	}
	if o, err := gw.GetOrder(ctx, r.OrderID); err != nil {
		orderLookupFailures.Inc()
		log.Ctx(ctx).Warn().Err(err).Str("refund_id", r.ID).Str("order_id", r.OrderID).Msg("order lookup failed")
	} else {
		out.Order = o
	}
	return out, nil
}
