// Refund desk HTTP handlers.
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses
// and idempotent replays). Dashboard routes read the merchant identity stored
// by middleware.RequireMerchant; portal routes are anonymous and localized.
package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/language"

	"github.com/tbourn/go-refund-backend/internal/auth"
	"github.com/tbourn/go-refund-backend/internal/domain"
	"github.com/tbourn/go-refund-backend/internal/gateway"
	"github.com/tbourn/go-refund-backend/internal/http/middleware"
	"github.com/tbourn/go-refund-backend/internal/i18n"
	"github.com/tbourn/go-refund-backend/internal/portal"
	"github.com/tbourn/go-refund-backend/internal/repo"
	"github.com/tbourn/go-refund-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// RefundService defines the refund write operations consumed by handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type RefundService interface {
	Create(ctx context.Context, in services.CreateRefundInput) (*domain.RefundRequest, error)
	CreateFromOrder(ctx context.Context, id auth.Identity, orderID, orderNumber string) (*services.CreateFromOrderResult, error)
	Get(ctx context.Context, id, merchantID string) (*domain.RefundRequest, error)
	Update(ctx context.Context, id, merchantID string, p domain.RefundPatch) (*domain.RefundRequest, error)
	Approve(ctx context.Context, refundID string, id auth.Identity, opts services.ApproveOptions) (*services.ApproveResult, error)
	AddNote(ctx context.Context, refundID, merchantID, content, createdBy string) (*domain.RefundNote, error)
	ListNotes(ctx context.Context, refundID, merchantID string) ([]domain.RefundNote, error)
	ListTimeline(ctx context.Context, refundID, merchantID string) ([]domain.RefundTimeline, error)
	RecentTimeline(ctx context.Context, merchantID string, limit int) ([]repo.TimelineEntry, error)
}

// ReadService defines the dashboard's aggregated reads.
type ReadService interface {
	ListWithOrders(ctx context.Context, id auth.Identity, f services.ListFilter) ([]services.RefundWithOrder, error)
	GetWithOrder(ctx context.Context, id auth.Identity, refundID string) (*services.RefundWithOrder, error)
	ListExternalRefundCandidates(ctx context.Context, id auth.Identity, window time.Duration) ([]gateway.Order, error)
	ListOrders(ctx context.Context, id auth.Identity, search string, limit int) ([]gateway.Order, error)
	Stats(ctx context.Context, merchantID string, source domain.Source) (*services.Stats, error)
	Export(ctx context.Context, id auth.Identity, f services.ListFilter, w io.Writer) error
}

// PortalService defines the customer portal flow.
type PortalService interface {
	Verify(ctx context.Context, in services.VerifyInput) (*services.VerifyResult, error)
	Session(ctx context.Context, sessionID string) (*portal.Session, error)
	SelectReason(ctx context.Context, sessionID, code, note string) (*portal.Session, error)
	AttachImages(ctx context.Context, sessionID string, images []string) (*portal.Session, error)
	Submit(ctx context.Context, sessionID string, locale language.Tag) (*services.SubmitResult, error)
	SubmitDirect(ctx context.Context, in services.SubmitInput, locale language.Tag) (*services.SubmitResult, error)
	Track(ctx context.Context, refundID string) (*services.TrackedRefund, error)
}

// MerchantService defines merchant settings and profile reads.
type MerchantService interface {
	Settings(ctx context.Context, id auth.Identity) (*domain.Merchant, error)
	UpdateSettings(ctx context.Context, id auth.Identity, p services.SettingsPatch) (*domain.Merchant, error)
	Profile(ctx context.Context, id auth.Identity) (*gateway.MerchantProfile, error)
}

// IdempotencyStore persists the outcome of keyed creation requests.
type IdempotencyStore interface {
	Find(ctx context.Context, ownerID, scope, key string) *domain.Idempotency
	Remember(ctx context.Context, ownerID, scope, key, resourceID string, status int) error
}

//
// Handler wiring
//

// Handlers groups the dashboard and portal endpoints.
type Handlers struct {
	refunds   RefundService
	reads     ReadService
	portal    PortalService
	merchants MerchantService
	idem      IdempotencyStore
}

// New constructs and returns a Handlers instance bound to the given services.
// idem may be nil, which disables idempotent replays.
func New(refunds RefundService, reads ReadService, p PortalService, merchants MerchantService, idem IdempotencyStore) *Handlers {
	return &Handlers{refunds: refunds, reads: reads, portal: p, merchants: merchants, idem: idem}
}

// identity returns the authenticated merchant or aborts with 401.
func identity(c *gin.Context) (auth.Identity, bool) {
	id, found := middleware.IdentityFrom(c)
	if !found || id.MerchantID == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "unauthorized")
		return auth.Identity{}, false
	}
	return id, true
}

// locale negotiates the portal language from Accept-Language.
func locale(c *gin.Context) language.Tag {
	return i18n.Negotiate(c.GetHeader("Accept-Language"))
}
