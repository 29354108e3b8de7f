// Refund HTTP handlers.
//
// This file exposes the dashboard's refund endpoints:
//   - GET    /refunds                    (list with orders, ETag support)
//   - POST   /refunds                    (create, Idempotency-Key support)
//   - POST   /refunds/create-from-order  (create from a platform order)
//   - GET    /refunds/stats              (KPIs)
//   - GET    /refunds/export             (CSV)
//   - GET    /refunds/{id}               (get with order)
//   - PATCH  /refunds/{id}               (partial update)
//   - POST   /refunds/{id}/approve       (platform refund)
//   - GET    /refunds/{id}/notes         (list notes)
//   - POST   /refunds/{id}/notes         (add note)
//   - GET    /refunds/{id}/timeline      (per-refund events)
//   - GET    /timeline                   (recent events across refunds)
package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-refund-backend/internal/domain"
	"github.com/tbourn/go-refund-backend/internal/http/middleware"
	"github.com/tbourn/go-refund-backend/internal/repo"
	"github.com/tbourn/go-refund-backend/internal/services"
	"github.com/tbourn/go-refund-backend/internal/utils"
)

const recentTimelineMax = 50

//
// DTOs
//

// CreateRefundRequest is the JSON payload for creating a refund manually.
// New refunds always start pending.
type CreateRefundRequest struct {
	OrderID        string  `json:"orderId" example:"5f1c2b9e-7a40-4c1e-9d1f-3b2a6c8e9f01"`
	OrderNumber    string  `json:"orderNumber" example:"1001"`
	TrackingNumber *string `json:"trackingNumber" example:"TRK123456"`
	Reason         *string `json:"reason" example:"damaged_product"`
	ReasonNote     *string `json:"reasonNote" example:"Box was crushed"`
}

// CreateFromOrderRequest is the JSON payload for creating a refund from an
// order listed by the platform.
type CreateFromOrderRequest struct {
	OrderID     string `json:"orderId" example:"5f1c2b9e-7a40-4c1e-9d1f-3b2a6c8e9f01"`
	OrderNumber string `json:"orderNumber" example:"1001"`
}

// UpdateRefundRequest documents the PATCH body. Absent keys are left
// untouched; null clears trackingNumber, reason and reasonNote.
type UpdateRefundRequest struct {
	Status         *string `json:"status" enums:"pending,processing,completed,rejected"`
	TrackingNumber *string `json:"trackingNumber"`
	Reason         *string `json:"reason"`
	ReasonNote     *string `json:"reasonNote"`
}

// ApproveRequest carries the merchant's refund options. Every field is
// optional; defaults are refundShipping=false, sendNotificationToCustomer=true
// and restockItems=true.
type ApproveRequest struct {
	RefundShipping             *bool  `json:"refundShipping" example:"false"`
	SendNotificationToCustomer *bool  `json:"sendNotificationToCustomer" example:"true"`
	RestockItems               *bool  `json:"restockItems" example:"true"`
	Reason                     string `json:"reason" example:"Customer requested refund"`
}

// AddNoteRequest is the JSON payload for adding a note.
type AddNoteRequest struct {
	Content   string `json:"content" example:"Called the customer"`
	CreatedBy string `json:"createdBy" example:"support@store.com"`
}

// TimelineRefund summarizes the refund of a recent timeline event.
type TimelineRefund struct {
	ID          string              `json:"id"`
	OrderNumber string              `json:"orderNumber"`
	Status      domain.RefundStatus `json:"status"`
}

// TimelineItem is one event of the recent timeline feed.
type TimelineItem struct {
	domain.RefundTimeline
	RefundRequest TimelineRefund `json:"refundRequest"`
}

//
// Helpers
//

// listFilter reads the status, source and q query parameters.
func listFilter(c *gin.Context) services.ListFilter {
	return services.ListFilter{
		Status: domain.RefundStatus(strings.TrimSpace(c.Query("status"))),
		Source: domain.Source(strings.TrimSpace(c.Query("source"))),
		Query:  strings.TrimSpace(c.Query("q")),
	}
}

// listETag computes the weak ETag of a merchant's refund list, or "" when
// the store is not reachable through the read service. It covers the refund
// rows and their embedded notes at nanosecond precision. The live orderData
// is fetched from the platform on every 200 and is not part of it.
func (h *Handlers) listETag(c *gin.Context, merchantID string) string {
	var db *gorm.DB
	if svc, ok := h.reads.(*services.ReadService); ok {
		db = svc.DB
	}
	if db == nil {
		return ""
	}
	ctx := c.Request.Context()
	count, maxTS, err := repo.RefundsStats(ctx, db, merchantID)
	if err != nil {
		return ""
	}
	notes, maxNote, err := repo.NotesStats(ctx, db, merchantID)
	if err != nil {
		return ""
	}
	q := fnv.New32a()
	_, _ = q.Write([]byte(c.Request.URL.RawQuery))
	return fmt.Sprintf(`W/"refunds:%s:%d:%d:%d:%d:%x"`,
		merchantID, count, unixNano(maxTS), notes, unixNano(maxNote), q.Sum32())
}

func unixNano(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixNano()
}

//
// Handlers
//

// ListRefunds godoc
// @ID          listRefunds
// @Summary     List refunds with their orders
// @Description Returns the merchant's refunds, newest first, each joined with its platform order (null when unavailable). Supports weak ETag via If-None-Match and may return 304; the validator tracks refunds and notes, not the live order data.
// @Tags        Refunds
// @Produce     json
// @Security    BearerAuth
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       status         query   string  false "Filter by status"  Enums(pending, processing, completed, rejected)
// @Param       source         query   string  false "Filter by source"  Enums(dashboard, portal)
// @Param       q              query   string  false "Search order number, customer name or email"
//
// @Success     200  {object} handlers.DataResponse{data=[]services.RefundWithOrder}
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Invalid filter"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /api/v1/refunds [get]
func (h *Handlers) ListRefunds(c *gin.Context) {
	id, found := identity(c)
	if !found {
		return
	}

	// ETag pre-check (best effort). The list may be stored but must be
	// revalidated, which replaces the API-wide no-store.
	if etag := h.listETag(c, id.MerchantID); etag != "" {
		c.Header("Cache-Control", "private, no-cache")
		c.Writer.Header().Del("Pragma")
		c.Writer.Header().Del("Expires")
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, err := h.reads.ListWithOrders(c.Request.Context(), id, listFilter(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	data(c, http.StatusOK, items)
}

// CreateRefund godoc
// @ID          createRefund
// @Summary     Create a refund manually
// @Description Creates a pending refund for an order. With an Idempotency-Key, a retry returns the original refund with Idempotency-Replayed: true.
// @Tags        Refunds
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       Idempotency-Key  header  string  false  "Idempotency key"  example(create-1001)
// @Param       body             body    handlers.CreateRefundRequest  true  "Refund payload"
//
// @Success     201  {object} handlers.DataResponse{data=domain.RefundRequest}
// @Header      201  {string} Idempotency-Replayed  "true when replayed"
// @Failure     400  {object} handlers.ErrorResponse "Validation failed"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     409  {object} handlers.ErrorResponse "Refund already exists"
// @Failure     413  {object} handlers.ErrorResponse "Body too large"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /api/v1/refunds [post]
func (h *Handlers) CreateRefund(c *gin.Context) {
	id, found := identity(c)
	if !found {
		return
	}
	ctx := c.Request.Context()
	key, keyed := middleware.GetIdempotencyKey(c)
	scope := c.FullPath()

	if keyed && h.idem != nil {
		if rec := h.idem.Find(ctx, id.MerchantID, scope, key); rec != nil {
			if r, err := h.refunds.Get(ctx, rec.ResourceID, id.MerchantID); err == nil {
				c.Header(middleware.HeaderIdempotencyReplayed, "true")
				data(c, rec.Status, r)
				return
			}
		}
	}

	var req CreateRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failBind(c, err)
		return
	}

	r, err := h.refunds.Create(ctx, services.CreateRefundInput{
		OrderID:        req.OrderID,
		OrderNumber:    req.OrderNumber,
		MerchantID:     id.MerchantID,
		Source:         domain.SourceDashboard,
		Reason:         req.Reason,
		ReasonNote:     req.ReasonNote,
		TrackingNumber: req.TrackingNumber,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}

	if keyed && h.idem != nil {
		if err := h.idem.Remember(ctx, id.MerchantID, scope, key, r.ID, http.StatusCreated); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Str("refund_id", r.ID).Msg("idempotency record not saved")
		}
	}
	data(c, http.StatusCreated, r)
}

// CreateRefundFromOrder godoc
// @ID          createRefundFromOrder
// @Summary     Create a refund from a platform order
// @Description Creates a refund for an order listed by the platform. When one already exists for the merchant, returns it with existing=true.
// @Tags        Refunds
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  handlers.CreateFromOrderRequest  true  "Order reference"
//
// @Success     200  {object} handlers.DataResponse{data=services.CreateFromOrderResult} "Existing refund"
// @Success     201  {object} handlers.DataResponse{data=services.CreateFromOrderResult} "Created"
// @Failure     400  {object} handlers.ErrorResponse "Validation failed"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /api/v1/refunds/create-from-order [post]
func (h *Handlers) CreateRefundFromOrder(c *gin.Context) {
	id, found := identity(c)
	if !found {
		return
	}
	var req CreateFromOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failBind(c, err)
		return
	}
	res, err := h.refunds.CreateFromOrder(c.Request.Context(), id, req.OrderID, req.OrderNumber)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	status := http.StatusCreated
	if res.Existing {
		status = http.StatusOK
	}
	data(c, status, res)
}

// GetRefund godoc
// @ID          getRefund
// @Summary     Get a refund with its order
// @Tags        Refunds
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "Refund ID (UUID)"  format(uuid)
//
// @Success     200  {object} handlers.DataResponse{data=services.RefundWithOrder}
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     404  {object} handlers.ErrorResponse "Refund not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /api/v1/refunds/{id} [get]
func (h *Handlers) GetRefund(c *gin.Context) {
	id, found := identity(c)
	if !found {
		return
	}
	r, err := h.reads.GetWithOrder(c.Request.Context(), id, c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	data(c, http.StatusOK, r)
}

// UpdateRefund godoc
// @ID          updateRefund
// @Summary     Update a refund
// @Description Partially updates status, tracking number, reason or reason note. Absent keys are left untouched; null clears a nullable field.
// @Tags        Refunds
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       id    path  string  true  "Refund ID (UUID)"  format(uuid)
// @Param       body  body  handlers.UpdateRefundRequest  true  "Fields to change"
//
// @Success     200  {object} handlers.DataResponse{data=domain.RefundRequest}
// @Failure     400  {object} handlers.ErrorResponse "Validation failed"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     404  {object} handlers.ErrorResponse "Refund not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /api/v1/refunds/{id} [patch]
func (h *Handlers) UpdateRefund(c *gin.Context) {
	id, found := identity(c)
	if !found {
		return
	}
	var patch domain.RefundPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		failBind(c, err)
		return
	}
	r, err := h.refunds.Update(c.Request.Context(), c.Param("id"), id.MerchantID, patch)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	data(c, http.StatusOK, r)
}

// ApproveRefund godoc
// @ID          approveRefund
// @Summary     Approve a refund
// @Description Refunds every line of the order on the platform and marks the refund completed. The body is optional.
// @Tags        Refunds
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       id    path  string  true   "Refund ID (UUID)"  format(uuid)
// @Param       body  body  handlers.ApproveRequest  false  "Refund options"
//
// @Success     200  {object} handlers.DataResponse{data=services.ApproveResult}
// @Failure     400  {object} handlers.ErrorResponse "Already approved"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     404  {object} handlers.ErrorResponse "Refund or order not found"
// @Failure     500  {object} handlers.ErrorResponse "Platform or internal error"
// @Router      /api/v1/refunds/{id}/approve [post]
func (h *Handlers) ApproveRefund(c *gin.Context) {
	id, found := identity(c)
	if !found {
		return
	}
	var req ApproveRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		failBind(c, err)
		return
	}
	opts := services.DefaultApproveOptions()
	if req.RefundShipping != nil {
		opts.RefundShipping = *req.RefundShipping
	}
	if req.SendNotificationToCustomer != nil {
		opts.SendNotificationToCustomer = *req.SendNotificationToCustomer
	}
	if req.RestockItems != nil {
		opts.RestockItems = *req.RestockItems
	}
	opts.Reason = strings.TrimSpace(req.Reason)

	res, err := h.refunds.Approve(c.Request.Context(), c.Param("id"), id, opts)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	data(c, http.StatusOK, res)
}

// ListNotes godoc
// @ID          listRefundNotes
// @Summary     List notes of a refund
// @Tags        Notes
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "Refund ID (UUID)"  format(uuid)
//
// @Success     200  {object} handlers.DataResponse{data=[]domain.RefundNote}
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     404  {object} handlers.ErrorResponse "Refund not found"
// @Router      /api/v1/refunds/{id}/notes [get]
func (h *Handlers) ListNotes(c *gin.Context) {
	id, found := identity(c)
	if !found {
		return
	}
	notes, err := h.refunds.ListNotes(c.Request.Context(), c.Param("id"), id.MerchantID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	data(c, http.StatusOK, notes)
}

// AddNote godoc
// @ID          addRefundNote
// @Summary     Add a note to a refund
// @Tags        Notes
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       id    path  string  true  "Refund ID (UUID)"  format(uuid)
// @Param       body  body  handlers.AddNoteRequest  true  "Note"
//
// @Success     201  {object} handlers.DataResponse{data=domain.RefundNote}
// @Failure     400  {object} handlers.ErrorResponse "content and createdBy are required"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     404  {object} handlers.ErrorResponse "Refund not found"
// @Router      /api/v1/refunds/{id}/notes [post]
func (h *Handlers) AddNote(c *gin.Context) {
	id, found := identity(c)
	if !found {
		return
	}
	var req AddNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failBind(c, err)
		return
	}
	n, err := h.refunds.AddNote(c.Request.Context(), c.Param("id"), id.MerchantID, req.Content, req.CreatedBy)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	data(c, http.StatusCreated, n)
}

// ListTimeline godoc
// @ID          listRefundTimeline
// @Summary     List the events of a refund
// @Description Events in creation order.
// @Tags        Timeline
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "Refund ID (UUID)"  format(uuid)
//
// @Success     200  {object} handlers.DataResponse{data=[]domain.RefundTimeline}
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     404  {object} handlers.ErrorResponse "Refund not found"
// @Router      /api/v1/refunds/{id}/timeline [get]
func (h *Handlers) ListTimeline(c *gin.Context) {
	id, found := identity(c)
	if !found {
		return
	}
	events, err := h.refunds.ListTimeline(c.Request.Context(), c.Param("id"), id.MerchantID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	data(c, http.StatusOK, events)
}

// RecentTimeline godoc
// @ID          recentTimeline
// @Summary     Recent events across refunds
// @Description Latest events of the merchant's refunds, newest first, each with a summary of its refund.
// @Tags        Timeline
// @Produce     json
// @Security    BearerAuth
//
// @Param       limit  query  int  false  "Number of events"  minimum(1) maximum(50) default(10)
//
// @Success     200  {object} handlers.DataResponse{data=[]handlers.TimelineItem}
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /api/v1/timeline [get]
func (h *Handlers) RecentTimeline(c *gin.Context) {
	id, found := identity(c)
	if !found {
		return
	}
	limit := utils.BoundedInt(c.Query("limit"), 10, 1, recentTimelineMax)
	entries, err := h.refunds.RecentTimeline(c.Request.Context(), id.MerchantID, limit)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	out := make([]TimelineItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, TimelineItem{
			RefundTimeline: e.RefundTimeline,
			RefundRequest: TimelineRefund{
				ID:          e.RefundRequestID,
				OrderNumber: e.OrderNumber,
				Status:      e.RefundStatus,
			},
		})
	}
	data(c, http.StatusOK, out)
}

// RefundStats godoc
// @ID          refundStats
// @Summary     Refund KPIs
// @Description Counts by status, completion rate, average completion days and SLA breaches (pending for more than 3 days).
// @Tags        Refunds
// @Produce     json
// @Security    BearerAuth
//
// @Param       source  query  string  false  "Restrict to a source"  Enums(dashboard, portal)
//
// @Success     200  {object} handlers.DataResponse{data=services.Stats}
// @Failure     400  {object} handlers.ErrorResponse "Invalid source"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Router      /api/v1/refunds/stats [get]
func (h *Handlers) RefundStats(c *gin.Context) {
	id, found := identity(c)
	if !found {
		return
	}
	st, err := h.reads.Stats(c.Request.Context(), id.MerchantID, domain.Source(strings.TrimSpace(c.Query("source"))))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	data(c, http.StatusOK, st)
}

// ExportRefunds godoc
// @ID          exportRefunds
// @Summary     Export refunds as CSV
// @Description Exports the filtered refund list. Accepts the same filters as the list endpoint.
// @Tags        Refunds
// @Produce     text/csv
// @Security    BearerAuth
//
// @Param       status  query  string  false "Filter by status"  Enums(pending, processing, completed, rejected)
// @Param       source  query  string  false "Filter by source"  Enums(dashboard, portal)
// @Param       q       query  string  false "Search text"
//
// @Success     200  {string} string "CSV document"
// @Failure     400  {object} handlers.ErrorResponse "Invalid filter"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object} handlers.ErrorResponse "Export failed"
// @Router      /api/v1/refunds/export [get]
func (h *Handlers) ExportRefunds(c *gin.Context) {
	id, found := identity(c)
	if !found {
		return
	}
	// Buffered so a failure mid-way still yields a JSON error.
	var buf bytes.Buffer
	if err := h.reads.Export(c.Request.Context(), id, listFilter(c), &buf); err != nil {
		if classify(err).code == ErrCodeInternal {
			failWith(c, http.StatusInternalServerError, ErrorResponse{Code: ErrCodeExportFailed, Message: "export failed"}, err)
			return
		}
		writeServiceError(c, err)
		return
	}
	name := fmt.Sprintf("refunds-%s.csv", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}
