// Customer portal HTTP handlers.
//
// These routes are public: no merchant authentication, a stricter rate limit
// and a larger body cap for photos. Error messages are localized from
// Accept-Language (Turkish by default).
//
//   - POST   /public/verify-order             (start a session)
//   - GET    /public/reasons                  (reason catalog)
//   - GET    /public/sessions/{sid}           (session state)
//   - POST   /public/sessions/{sid}/reason    (choose reason)
//   - POST   /public/sessions/{sid}/images    (attach photos)
//   - POST   /public/sessions/{sid}/submit    (create the refund)
//   - POST   /public/submit-refund            (one-shot submit)
//   - GET    /public/track-refund             (tracking lookup)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-refund-backend/internal/http/middleware"
	"github.com/tbourn/go-refund-backend/internal/i18n"
	"github.com/tbourn/go-refund-backend/internal/portal"
	"github.com/tbourn/go-refund-backend/internal/services"
)

var (
	verifyMessages  = publicMessages{validation: i18n.MsgVerifyFieldsRequired, internal: i18n.MsgVerifyFailed, verify: true}
	sessionMessages = publicMessages{validation: i18n.MsgRequiredFields, internal: i18n.MsgSubmitFailed}
	trackMessages   = publicMessages{validation: i18n.MsgRefundIDRequired, internal: i18n.MsgTrackFailed, authNotFound: true}
)

//
// DTOs
//

// VerifyOrderRequest proves order ownership.
type VerifyOrderRequest struct {
	OrderNumber string `json:"orderNumber" example:"1001"`
	Email       string `json:"email" example:"jane@example.com"`
	// Optional; the first installed store is used when absent.
	MerchantID string `json:"merchantId" example:"m-1"`
}

// SelectReasonRequest chooses a catalog reason.
type SelectReasonRequest struct {
	Reason string `json:"reason" example:"damaged_product"`
	Note   string `json:"note" example:"The screen is cracked"`
}

// AttachImagesRequest carries photos as data URIs.
type AttachImagesRequest struct {
	Images []string `json:"images"`
}

// SubmitRefundRequest is the one-shot portal submission.
type SubmitRefundRequest struct {
	OrderID       string   `json:"orderId" example:"5f1c2b9e-7a40-4c1e-9d1f-3b2a6c8e9f01"`
	OrderNumber   string   `json:"orderNumber" example:"1001"`
	MerchantID    string   `json:"merchantId" example:"m-1"`
	CustomerEmail string   `json:"customerEmail" example:"jane@example.com"`
	Reason        string   `json:"reason" example:"wrong_product"`
	ReasonNote    string   `json:"reasonNote"`
	Images        []string `json:"images"`
}

// ReasonsResponse lists the reason catalog.
type ReasonsResponse struct {
	Success bool                `json:"success"`
	Reasons []portal.ReasonView `json:"reasons"`
}

// SessionResponse wraps the session state.
type SessionResponse struct {
	Success bool            `json:"success"`
	Session *portal.Session `json:"session"`
}

// TrackResponse wraps the tracking view.
type TrackResponse struct {
	Success bool                   `json:"success"`
	Refund  *services.TrackedRefund `json:"refund"`
}

//
// Handlers
//

// VerifyOrder godoc
// @ID          verifyOrder
// @Summary     Verify order ownership
// @Description Checks the order number and email against the platform and starts a portal session. Fails with 409 when a refund already exists for the order.
// @Tags        Portal
// @Accept      json
// @Produce     json
//
// @Param       Accept-Language  header  string  false  "Response language"  example(en)
// @Param       body             body    handlers.VerifyOrderRequest  true  "Order and email"
//
// @Success     200  {object} services.VerifyResult
// @Failure     400  {object} handlers.PublicErrorResponse "Missing fields or email mismatch"
// @Failure     404  {object} handlers.PublicErrorResponse "Store or order not found"
// @Failure     409  {object} handlers.PublicErrorResponse "Refund already exists"
// @Failure     500  {object} handlers.PublicErrorResponse "Internal error"
// @Router      /public/verify-order [post]
func (h *Handlers) VerifyOrder(c *gin.Context) {
	loc := locale(c)
	var req VerifyOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failPublicBind(c, loc, err, i18n.MsgVerifyFieldsRequired)
		return
	}
	res, err := h.portal.Verify(c.Request.Context(), services.VerifyInput{
		OrderNumber: req.OrderNumber,
		Email:       req.Email,
		MerchantID:  req.MerchantID,
	})
	if err != nil {
		writePublicError(c, loc, err, verifyMessages)
		return
	}
	ok(c, http.StatusOK, res)
}

// ListReasons godoc
// @ID          listReasons
// @Summary     Refund reason catalog
// @Tags        Portal
// @Produce     json
//
// @Param       Accept-Language  header  string  false  "Label language"  example(tr)
//
// @Success     200  {object} handlers.ReasonsResponse
// @Router      /public/reasons [get]
func (h *Handlers) ListReasons(c *gin.Context) {
	ok(c, http.StatusOK, ReasonsResponse{Success: true, Reasons: portal.Catalog(locale(c))})
}

// GetSession godoc
// @ID          getPortalSession
// @Summary     Portal session state
// @Tags        Portal
// @Produce     json
//
// @Param       sid  path  string  true  "Session ID"
//
// @Success     200  {object} handlers.SessionResponse
// @Failure     404  {object} handlers.PublicErrorResponse "Session not found or expired"
// @Router      /public/sessions/{sid} [get]
func (h *Handlers) GetSession(c *gin.Context) {
	sess, err := h.portal.Session(c.Request.Context(), c.Param("sid"))
	if err != nil {
		writePublicError(c, locale(c), err, sessionMessages)
		return
	}
	ok(c, http.StatusOK, SessionResponse{Success: true, Session: sess})
}

// SelectReason godoc
// @ID          selectPortalReason
// @Summary     Choose the refund reason
// @Tags        Portal
// @Accept      json
// @Produce     json
//
// @Param       sid   path  string  true  "Session ID"
// @Param       body  body  handlers.SelectReasonRequest  true  "Reason"
//
// @Success     200  {object} handlers.SessionResponse
// @Failure     400  {object} handlers.PublicErrorResponse "Invalid reason"
// @Failure     404  {object} handlers.PublicErrorResponse "Session not found or expired"
// @Failure     409  {object} handlers.PublicErrorResponse "Step not allowed"
// @Router      /public/sessions/{sid}/reason [post]
func (h *Handlers) SelectReason(c *gin.Context) {
	loc := locale(c)
	var req SelectReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failPublicBind(c, loc, err, i18n.MsgRequiredFields)
		return
	}
	sess, err := h.portal.SelectReason(c.Request.Context(), c.Param("sid"), req.Reason, req.Note)
	if err != nil {
		writePublicError(c, loc, err, sessionMessages)
		return
	}
	ok(c, http.StatusOK, SessionResponse{Success: true, Session: sess})
}

// AttachImages godoc
// @ID          attachPortalImages
// @Summary     Attach photos
// @Description Photos are data URIs with an image MIME type, at most 5 MB each and 5 in total. They replace any photos attached earlier.
// @Tags        Portal
// @Accept      json
// @Produce     json
//
// @Param       sid   path  string  true  "Session ID"
// @Param       body  body  handlers.AttachImagesRequest  true  "Photos"
//
// @Success     200  {object} handlers.SessionResponse
// @Failure     400  {object} handlers.PublicErrorResponse "Invalid photo"
// @Failure     404  {object} handlers.PublicErrorResponse "Session not found or expired"
// @Failure     409  {object} handlers.PublicErrorResponse "Step not allowed"
// @Failure     413  {object} handlers.PublicErrorResponse "Body too large"
// @Router      /public/sessions/{sid}/images [post]
func (h *Handlers) AttachImages(c *gin.Context) {
	loc := locale(c)
	var req AttachImagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failPublicBind(c, loc, err, i18n.MsgMalformedImage)
		return
	}
	sess, err := h.portal.AttachImages(c.Request.Context(), c.Param("sid"), req.Images)
	if err != nil {
		writePublicError(c, loc, err, sessionMessages)
		return
	}
	ok(c, http.StatusOK, SessionResponse{Success: true, Session: sess})
}

// SubmitSession godoc
// @ID          submitPortalSession
// @Summary     Submit the refund request
// @Tags        Portal
// @Produce     json
//
// @Param       sid  path  string  true  "Session ID"
//
// @Success     200  {object} services.SubmitResult
// @Failure     400  {object} handlers.PublicErrorResponse "Photos required"
// @Failure     404  {object} handlers.PublicErrorResponse "Session not found or expired"
// @Failure     409  {object} handlers.PublicErrorResponse "Step not allowed or refund exists"
// @Failure     500  {object} handlers.PublicErrorResponse "Internal error"
// @Router      /public/sessions/{sid}/submit [post]
func (h *Handlers) SubmitSession(c *gin.Context) {
	loc := locale(c)
	res, err := h.portal.Submit(c.Request.Context(), c.Param("sid"), loc)
	if err != nil {
		writePublicError(c, loc, err, sessionMessages)
		return
	}
	ok(c, http.StatusOK, res)
}

// SubmitRefund godoc
// @ID          submitRefund
// @Summary     Submit a refund request in one call
// @Description Stateless submission. The order number and customer email must match the platform order, as in verify-order. With an Idempotency-Key, a retry by the same customer returns the original refund id.
// @Tags        Portal
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false  "Idempotency key"  example(submit-1001)
// @Param       Accept-Language  header  string  false  "Response language"  example(tr)
// @Param       body             body    handlers.SubmitRefundRequest  true  "Submission"
//
// @Success     200  {object} services.SubmitResult
// @Failure     400  {object} handlers.PublicErrorResponse "Missing fields, invalid reason or photos, or email mismatch"
// @Failure     404  {object} handlers.PublicErrorResponse "Order or store not found"
// @Failure     409  {object} handlers.PublicErrorResponse "Refund already exists"
// @Failure     413  {object} handlers.PublicErrorResponse "Body too large"
// @Failure     500  {object} handlers.PublicErrorResponse "Internal error"
// @Router      /public/submit-refund [post]
func (h *Handlers) SubmitRefund(c *gin.Context) {
	loc := locale(c)
	var req SubmitRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failPublicBind(c, loc, err, i18n.MsgRequiredFields)
		return
	}
	ctx := c.Request.Context()
	key, keyed := middleware.GetIdempotencyKey(c)
	keyed = keyed && h.idem != nil && strings.TrimSpace(req.CustomerEmail) != ""
	owner, scope := services.PortalOwner(req.CustomerEmail), c.FullPath()

	if keyed {
		if rec := h.idem.Find(ctx, owner, scope, key); rec != nil {
			c.Header(middleware.HeaderIdempotencyReplayed, "true")
			ok(c, rec.Status, services.SubmitResult{
				Success:  true,
				RefundID: rec.ResourceID,
				Message:  i18n.T(loc, i18n.MsgRefundCreated),
			})
			return
		}
	}

	res, err := h.portal.SubmitDirect(ctx, services.SubmitInput{
		OrderID:       req.OrderID,
		OrderNumber:   req.OrderNumber,
		MerchantID:    req.MerchantID,
		CustomerEmail: req.CustomerEmail,
		Reason:        req.Reason,
		ReasonNote:    req.ReasonNote,
		Images:        req.Images,
	}, loc)
	if err != nil {
		writePublicError(c, loc, err, sessionMessages)
		return
	}

	if keyed {
		if err := h.idem.Remember(ctx, owner, scope, key, res.RefundID, http.StatusOK); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Str("refund_id", res.RefundID).Msg("idempotency record not saved")
		}
	}
	ok(c, http.StatusOK, res)
}

// TrackRefund godoc
// @ID          trackRefund
// @Summary     Track a refund
// @Description Public status lookup by refund id, with the order, timeline (oldest first) and notes (newest first).
// @Tags        Portal
// @Produce     json
//
// @Param       refundId         query   string  true   "Refund ID"
// @Param       Accept-Language  header  string  false  "Response language"  example(tr)
//
// @Success     200  {object} handlers.TrackResponse
// @Failure     400  {object} handlers.PublicErrorResponse "Refund id missing"
// @Failure     404  {object} handlers.PublicErrorResponse "Refund or store not found"
// @Failure     500  {object} handlers.PublicErrorResponse "Internal error"
// @Router      /public/track-refund [get]
func (h *Handlers) TrackRefund(c *gin.Context) {
	loc := locale(c)
	refundID := strings.TrimSpace(c.Query("refundId"))
	if refundID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, PublicErrorResponse{
			RequestID: c.Writer.Header().Get("X-Request-ID"),
			Code:      ErrCodeValidation,
			Error:     i18n.T(loc, i18n.MsgRefundIDRequired),
		})
		return
	}
	r, err := h.portal.Track(c.Request.Context(), refundID)
	if err != nil {
		writePublicError(c, loc, err, trackMessages)
		return
	}
	ok(c, http.StatusOK, TrackResponse{Success: true, Refund: r})
}
