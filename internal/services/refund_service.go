// Package services – RefundService
//
// This file implements RefundService, which owns every write to refund
// requests, their notes and their timeline. Creation checks for an existing
// refund, inserts the record and its "created" event in one transaction, and
// maps unique violations on the order id to ErrConflict. Approval drives the
// platform's refund mutation and records the outcome. An approval claims the
// row first so that concurrent approvals call the platform at most once.
//
// Observability: all public methods are OpenTelemetry-instrumented.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-refund-backend/internal/auth"
	"github.com/tbourn/go-refund-backend/internal/domain"
	"github.com/tbourn/go-refund-backend/internal/gateway"
	"github.com/tbourn/go-refund-backend/internal/i18n"
	"github.com/tbourn/go-refund-backend/internal/repo"
)

const (
	// actorAdmin is the createdBy of dashboard-created records.
	actorAdmin = "Yönetici"

	createdFromOrdersTab = "orders_tab"
	portalSourceTag      = "customer_portal"
	defaultRefundReason  = "Customer requested refund"
	recentTimelineLimit  = 10

	// approvalLease bounds how long a crashed approval blocks a retry.
	approvalLease = 2 * time.Minute
)

// CreateRefundInput is the payload of RefundService.Create.
type CreateRefundInput struct {
	OrderID        string
	OrderNumber    string
	MerchantID     string
	Source         domain.Source
	Reason         *string
	ReasonNote     *string
	TrackingNumber *string
	Images         []string
	CustomerEmail  string
	CreatedBy      string

	// CreatedFrom marks dashboard records created from the orders browser.
	CreatedFrom string
}

// ApproveOptions are the merchant's choices for the platform refund.
type ApproveOptions struct {
	RefundShipping             bool
	SendNotificationToCustomer bool
	RestockItems               bool
	Reason                     string
}

// DefaultApproveOptions returns the options applied when the merchant
// does not choose.
func DefaultApproveOptions() ApproveOptions {
	return ApproveOptions{RefundShipping: false, SendNotificationToCustomer: true, RestockItems: true}
}

// ApproveResult is returned by a successful Approve.
type ApproveResult struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	RefundID    string `json:"refundId"`
	OrderNumber string `json:"orderNumber"`
}

// CreateFromOrderResult is returned by CreateFromOrder.
type CreateFromOrderResult struct {
	ID       string `json:"id"`
	Message  string `json:"message"`
	Existing bool   `json:"existing"`
}

// RefundService coordinates refund persistence and platform refunds.
type RefundService struct {
	DB       *gorm.DB
	Gateways GatewayResolver
}

// NewRefundService constructs a RefundService.
func NewRefundService(db *gorm.DB, gw GatewayResolver) *RefundService {
	return &RefundService{DB: db, Gateways: gw}
}

// Create validates in, rejects duplicates and inserts the refund with its
// creation events atomically.
func (s *RefundService) Create(ctx context.Context, in CreateRefundInput) (*domain.RefundRequest, error) {
	ctx, span := otel.Tracer("services/RefundService").Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("order.id", in.OrderID),
			attribute.String("merchant.id", in.MerchantID),
			attribute.String("refund.source", string(in.Source)),
		),
	)
	defer span.End()

	in.OrderID = strings.TrimSpace(in.OrderID)
	in.OrderNumber = strings.TrimSpace(in.OrderNumber)
	if in.OrderID == "" || in.OrderNumber == "" {
		return nil, fmt.Errorf("%w: orderId and orderNumber are required", ErrValidation)
	}
	if in.MerchantID == "" {
		return nil, fmt.Errorf("%w: merchantId is required", ErrValidation)
	}
	if !in.Source.Valid() {
		return nil, fmt.Errorf("%w: unknown source %q", ErrValidation, in.Source)
	}

	if id, err := s.existing(ctx, in); err != nil {
		return nil, err
	} else if id != "" {
		return nil, &ConflictError{ExistingID: id}
	}

	r := &domain.RefundRequest{
		OrderID:        in.OrderID,
		OrderNumber:    in.OrderNumber,
		MerchantID:     in.MerchantID,
		Status:         domain.StatusPending,
		Reason:         blankToNil(in.Reason),
		ReasonNote:     blankToNil(in.ReasonNote),
		TrackingNumber: blankToNil(in.TrackingNumber),
		Images:         domain.EncodeImages(in.Images),
		Source:         in.Source,
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CreateRefund(ctx, tx, r); err != nil {
			return err
		}
		desc, data, by := creationEvent(in)
		if _, err := repo.AppendTimeline(ctx, tx, r.ID, domain.EventCreated, data, desc, by); err != nil {
			return err
		}
		if in.Source == domain.SourcePortal && len(in.Images) > 0 {
			n := len(in.Images)
			if _, err := repo.CreateNote(ctx, tx, r.ID, i18n.T(i18n.Default, i18n.MsgNoteCustomerPhotos, n), by); err != nil {
				return err
			}
			if _, err := repo.AppendTimeline(ctx, tx, r.ID, domain.EventNoteAdded,
				map[string]any{"imageCount": n},
				i18n.T(i18n.Default, i18n.MsgTimelinePhotosUploaded, n), by); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			// Lost a race with a concurrent insert for the same order.
			if prev, ferr := repo.FindRefundByOrder(ctx, s.DB, in.OrderID); ferr == nil {
				return nil, &ConflictError{ExistingID: prev.ID}
			}
			return nil, ErrConflict
		}
		return nil, err
	}
	refundsCreated.WithLabelValues(string(in.Source)).Inc()
	return r, nil
}

// existing returns the id of a refund that blocks creation: per merchant for
// dashboard records, across all merchants for portal submissions.
func (s *RefundService) existing(ctx context.Context, in CreateRefundInput) (string, error) {
	var (
		r   *domain.RefundRequest
		err error
	)
	if in.Source == domain.SourcePortal {
		r, err = repo.FindRefundByOrder(ctx, s.DB, in.OrderID)
	} else {
		r, err = repo.FindMerchantRefundByOrder(ctx, s.DB, in.MerchantID, in.OrderID)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return r.ID, nil
}

func creationEvent(in CreateRefundInput) (desc string, data map[string]any, by string) {
	data = map[string]any{"orderId": in.OrderID, "orderNumber": in.OrderNumber}
	by = in.CreatedBy
	switch {
	case in.Source == domain.SourcePortal:
		data["customerEmail"] = in.CustomerEmail
		data["source"] = portalSourceTag
		data["hasImages"] = len(in.Images) > 0
		data["imageCount"] = len(in.Images)
		desc = i18n.T(i18n.Default, i18n.MsgTimelinePortalCreated)
		if by == "" {
			by = in.CustomerEmail
		}
	case in.CreatedFrom != "":
		data["createdFrom"] = in.CreatedFrom
		desc = i18n.T(i18n.Default, i18n.MsgTimelineFromOrderCreated)
	default:
		desc = i18n.T(i18n.Default, i18n.MsgTimelineManualCreated)
	}
	if by == "" {
		by = actorAdmin
	}
	return desc, data, by
}

// CreateFromOrder creates a dashboard refund for a platform order. An
// existing refund of the same merchant is returned instead of failing.
func (s *RefundService) CreateFromOrder(ctx context.Context, id auth.Identity, orderID, orderNumber string) (*CreateFromOrderResult, error) {
	ctx, span := otel.Tracer("services/RefundService").Start(ctx, "CreateFromOrder",
		trace.WithAttributes(
			attribute.String("order.id", orderID),
			attribute.String("merchant.id", id.MerchantID),
		),
	)
	defer span.End()

	orderID, orderNumber = strings.TrimSpace(orderID), strings.TrimSpace(orderNumber)
	if orderID == "" || orderNumber == "" {
		return nil, fmt.Errorf("%w: orderId and orderNumber are required", ErrValidation)
	}

	prev, err := repo.FindMerchantRefundByOrder(ctx, s.DB, id.MerchantID, orderID)
	if err == nil {
		return &CreateFromOrderResult{ID: prev.ID, Message: "Refund request already exists for this order", Existing: true}, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	gw, err := forApp(ctx, s.Gateways, id.AuthorizedAppID)
	if err != nil {
		return nil, err
	}
	if _, err := gw.GetOrder(ctx, orderID); err != nil {
		if errors.Is(err, gateway.ErrOrderNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		return nil, external("getOrder", err)
	}

	r, err := s.Create(ctx, CreateRefundInput{
		OrderID:     orderID,
		OrderNumber: orderNumber,
		MerchantID:  id.MerchantID,
		Source:      domain.SourceDashboard,
		CreatedBy:   id.MerchantID,
		CreatedFrom: createdFromOrdersTab,
	})
	if err != nil {
		return nil, err
	}
	return &CreateFromOrderResult{ID: r.ID, Message: "Refund request created successfully"}, nil
}

// Update applies a partial update to a refund owned by merchantID and
// returns the updated record. Applying the same patch twice is a no-op.
func (s *RefundService) Update(ctx context.Context, id, merchantID string, p domain.RefundPatch) (*domain.RefundRequest, error) {
	ctx, span := otel.Tracer("services/RefundService").Start(ctx, "Update",
		trace.WithAttributes(
			attribute.String("refund.id", id),
			attribute.String("merchant.id", merchantID),
		),
	)
	defer span.End()

	if st, ok := p.StatusValue(); ok && !st.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, st)
	}
	if !p.Empty() {
		if err := repo.UpdateRefund(ctx, s.DB, id, merchantID, p.Columns()); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, ErrRefundNotFound
			}
			return nil, err
		}
	}
	r, err := repo.GetRefund(ctx, s.DB, id, merchantID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRefundNotFound
		}
		return nil, err
	}
	return r, nil
}

// Approve refunds every line of the order on the platform, then marks the
// refund completed and records an "approved" event in one transaction. The
// platform mutation is never retried.
func (s *RefundService) Approve(ctx context.Context, refundID string, id auth.Identity, opts ApproveOptions) (*ApproveResult, error) {
	ctx, span := otel.Tracer("services/RefundService").Start(ctx, "Approve",
		trace.WithAttributes(
			attribute.String("refund.id", refundID),
			attribute.String("merchant.id", id.MerchantID),
		),
	)
	defer span.End()

	r, err := repo.GetRefund(ctx, s.DB, refundID, id.MerchantID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRefundNotFound
		}
		return nil, err
	}
	if r.Status == domain.StatusCompleted {
		return nil, ErrInvalidState
	}

	gw, err := forApp(ctx, s.Gateways, id.AuthorizedAppID)
	if err != nil {
		return nil, err
	}
	order, err := gw.GetOrder(ctx, r.OrderID)
	if err != nil && !errors.Is(err, gateway.ErrOrderNotFound) {
		return nil, external("getOrder", err)
	}
	if order == nil || len(order.OrderLineItems) == 0 {
		return nil, fmt.Errorf("%w or has no items", ErrOrderNotFound)
	}

	lines := make([]gateway.RefundLine, 0, len(order.OrderLineItems))
	for _, it := range order.OrderLineItems {
		lines = append(lines, gateway.RefundLine{
			OrderLineItemID: it.ID,
			Price:           it.FinalPrice,
			Quantity:        it.Quantity,
			RestockItems:    opts.RestockItems,
		})
	}
	reason := strings.TrimSpace(opts.Reason)
	if reason == "" && r.Reason != nil {
		reason = *r.Reason
	}
	if reason == "" {
		reason = defaultRefundReason
	}

	if err := repo.ClaimRefundApproval(ctx, s.DB, r.ID, id.MerchantID, time.Now(), approvalLease); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("%w: approval already in progress", ErrInvalidState)
		}
		return nil, err
	}
	// The claim is dropped only when the platform did not refund.
	refunded := false
	defer func() {
		if refunded {
			return
		}
		if err := repo.ReleaseRefundApproval(context.WithoutCancel(ctx), s.DB, r.ID, id.MerchantID); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("refund_id", r.ID).Msg("release approval claim")
		}
	}()

	if _, err := gw.RefundOrderLine(ctx, gateway.RefundInput{
		OrderID:                    r.OrderID,
		OrderRefundLines:           lines,
		Reason:                     reason,
		RefundShipping:             opts.RefundShipping,
		SendNotificationToCustomer: opts.SendNotificationToCustomer,
	}); err != nil {
		return nil, external("refundOrderLine", err)
	}
	refunded = true

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CompleteRefund(ctx, tx, r.ID, id.MerchantID); err != nil {
			return err
		}
		_, err := repo.AppendTimeline(ctx, tx, r.ID, domain.EventApproved, map[string]any{
			"refundShipping":             opts.RefundShipping,
			"sendNotificationToCustomer": opts.SendNotificationToCustomer,
			"restockItems":               opts.RestockItems,
			"orderNumber":                order.OrderNumber,
		}, i18n.T(i18n.Default, i18n.MsgTimelineApproved), id.MerchantID)
		return err
	})
	if err != nil {
		return nil, err
	}
	refundsApproved.Inc()
	return &ApproveResult{
		Success:     true,
		Message:     "Refund approved successfully",
		RefundID:    r.ID,
		OrderNumber: order.OrderNumber,
	}, nil
}

// Get returns a refund owned by merchantID.
func (s *RefundService) Get(ctx context.Context, id, merchantID string) (*domain.RefundRequest, error) {
	r, err := repo.GetRefund(ctx, s.DB, id, merchantID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrRefundNotFound
	}
	return r, err
}

// AddNote attaches a note to a refund owned by merchantID.
func (s *RefundService) AddNote(ctx context.Context, refundID, merchantID, content, createdBy string) (*domain.RefundNote, error) {
	ctx, span := otel.Tracer("services/RefundService").Start(ctx, "AddNote",
		trace.WithAttributes(attribute.String("refund.id", refundID)),
	)
	defer span.End()

	content, createdBy = strings.TrimSpace(content), strings.TrimSpace(createdBy)
	if content == "" || createdBy == "" {
		return nil, fmt.Errorf("%w: content and createdBy are required", ErrValidation)
	}
	if err := s.owned(ctx, refundID, merchantID); err != nil {
		return nil, err
	}
	return repo.CreateNote(ctx, s.DB, refundID, content, createdBy)
}

// ListNotes returns a refund's notes newest first.
func (s *RefundService) ListNotes(ctx context.Context, refundID, merchantID string) ([]domain.RefundNote, error) {
	if err := s.owned(ctx, refundID, merchantID); err != nil {
		return nil, err
	}
	return repo.ListNotes(ctx, s.DB, refundID)
}

// ListTimeline returns a refund's events in creation order.
func (s *RefundService) ListTimeline(ctx context.Context, refundID, merchantID string) ([]domain.RefundTimeline, error) {
	if err := s.owned(ctx, refundID, merchantID); err != nil {
		return nil, err
	}
	return repo.ListTimeline(ctx, s.DB, refundID)
}

// RecentTimeline returns the merchant's latest events across all refunds.
func (s *RefundService) RecentTimeline(ctx context.Context, merchantID string, limit int) ([]repo.TimelineEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = recentTimelineLimit
	}
	return repo.ListRecentTimeline(ctx, s.DB, merchantID, limit)
}

func (s *RefundService) owned(ctx context.Context, refundID, merchantID string) error {
	if _, err := repo.GetRefund(ctx, s.DB, refundID, merchantID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrRefundNotFound
		}
		return err
	}
	return nil
}

// blankToNil trims p and maps "" to nil.
func blankToNil(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}
