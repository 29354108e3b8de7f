// Order and merchant HTTP handlers.
//
// Orders are read through the commerce platform on behalf of the merchant:
//   - GET    /orders                    (order browser)
//   - GET    /orders/refund-candidates  (orders with a platform-side refund)
//   - GET    /merchant                  (platform store profile)
//   - GET    /settings                  (portal settings, get-or-create)
//   - PATCH  /settings                  (portal settings update)
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-refund-backend/internal/services"
	"github.com/tbourn/go-refund-backend/internal/utils"
)

const (
	defaultCandidateDays = 90
	maxCandidateDays     = 365
	defaultOrderLimit    = 10
	maxOrderLimit        = 100
)

// UpdateSettingsRequest is the JSON payload of a settings update. An empty
// portalUrl clears it; portalEnabled defaults to true.
type UpdateSettingsRequest struct {
	PortalURL     *string `json:"portalUrl" example:"https://returns.example.com"`
	PortalEnabled *bool   `json:"portalEnabled" example:"true"`
}

// ListOrders godoc
// @ID          listOrders
// @Summary     Browse platform orders
// @Description Lists the merchant's orders, newest first.
// @Tags        Orders
// @Produce     json
// @Security    BearerAuth
//
// @Param       search  query  string  false  "Search text"
// @Param       limit   query  int     false  "Max orders"  minimum(1) maximum(100) default(10)
//
// @Success     200  {object} handlers.DataResponse{data=[]gateway.Order}
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object} handlers.ErrorResponse "Platform or internal error"
// @Router      /api/v1/orders [get]
func (h *Handlers) ListOrders(c *gin.Context) {
	id, found := identity(c)
	if !found {
		return
	}
	limit := utils.BoundedInt(c.Query("limit"), defaultOrderLimit, 1, maxOrderLimit)
	orders, err := h.reads.ListOrders(c.Request.Context(), id, strings.TrimSpace(c.Query("search")), limit)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	data(c, http.StatusOK, orders)
}

// ListRefundCandidates godoc
// @ID          listRefundCandidates
// @Summary     Orders with a platform-side refund
// @Description Returns orders whose package status is REFUND_REQUESTED, REFUNDED or REFUND_DELIVERED, placed within the last `days` days. Read straight from the platform.
// @Tags        Orders
// @Produce     json
// @Security    BearerAuth
//
// @Param       days  query  int  false  "Look-back window in days"  minimum(1) maximum(365) default(90)
//
// @Success     200  {object} handlers.DataResponse{data=[]gateway.Order}
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object} handlers.ErrorResponse "Platform or internal error"
// @Router      /api/v1/orders/refund-candidates [get]
func (h *Handlers) ListRefundCandidates(c *gin.Context) {
	id, found := identity(c)
	if !found {
		return
	}
	days := utils.BoundedInt(c.Query("days"), defaultCandidateDays, 1, maxCandidateDays)
	orders, err := h.reads.ListExternalRefundCandidates(c.Request.Context(), id, time.Duration(days)*24*time.Hour)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	data(c, http.StatusOK, orders)
}

// GetMerchant godoc
// @ID          getMerchant
// @Summary     Platform store profile
// @Tags        Merchant
// @Produce     json
// @Security    BearerAuth
//
// @Success     200  {object} handlers.DataResponse{data=gateway.MerchantProfile}
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object} handlers.ErrorResponse "Platform or internal error"
// @Router      /api/v1/merchant [get]
func (h *Handlers) GetMerchant(c *gin.Context) {
	id, found := identity(c)
	if !found {
		return
	}
	p, err := h.merchants.Profile(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	data(c, http.StatusOK, p)
}

// GetSettings godoc
// @ID          getSettings
// @Summary     Merchant portal settings
// @Description Returns the merchant row, creating it on first access.
// @Tags        Merchant
// @Produce     json
// @Security    BearerAuth
//
// @Success     200  {object} handlers.DataResponse{data=domain.Merchant}
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /api/v1/settings [get]
func (h *Handlers) GetSettings(c *gin.Context) {
	id, found := identity(c)
	if !found {
		return
	}
	m, err := h.merchants.Settings(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	data(c, http.StatusOK, m)
}

// UpdateSettings godoc
// @ID          updateSettings
// @Summary     Update merchant portal settings
// @Tags        Merchant
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  handlers.UpdateSettingsRequest  true  "Settings"
//
// @Success     200  {object} handlers.DataResponse{data=domain.Merchant}
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /api/v1/settings [patch]
func (h *Handlers) UpdateSettings(c *gin.Context) {
	id, found := identity(c)
	if !found {
		return
	}
	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failBind(c, err)
		return
	}
	m, err := h.merchants.UpdateSettings(c.Request.Context(), id, services.SettingsPatch{
		PortalURL:     req.PortalURL,
		PortalEnabled: req.PortalEnabled,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	data(c, http.StatusOK, m)
}
