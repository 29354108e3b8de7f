// Package handlers provides HTTP handler implementations for the refund desk.
//
// This file defines the response utilities shared by all endpoints: the error
// envelopes, the {"data": ...} success envelope of the dashboard API and the
// translation of service errors into statuses and codes.
//
// Dashboard errors use ErrorResponse. Public portal errors use
// PublicErrorResponse, whose "error" text is localized from Accept-Language.
//
// Example error response:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "not_found",
//	  "message": "Refund request not found"
//	}
//
// Example success response:
//
//	HTTP/1.1 200 OK
//	{ "data": { "id": "abc123", "status": "pending" } }
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/language"

	"github.com/tbourn/go-refund-backend/internal/http/middleware"
	"github.com/tbourn/go-refund-backend/internal/i18n"
	"github.com/tbourn/go-refund-backend/internal/portal"
	"github.com/tbourn/go-refund-backend/internal/services"
)

// ErrorResponse is the standard error envelope of the dashboard API.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message
	Message string `json:"message" example:"Refund request not found"`
	// Optional structured context: the existing refund on conflicts, the
	// platform's error entries on external failures.
	Details any `json:"details,omitempty" swaggertype:"object"`
}

// PublicErrorResponse is the error envelope of the customer portal.
type PublicErrorResponse struct {
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	Code      string `json:"code" example:"email_mismatch"`
	// Localized message (Turkish by default)
	Error   string `json:"error" example:"Email adresi sipariş ile eşleşmiyor"`
	Success bool   `json:"success" example:"false"`
	// Set on verify-order failures
	Verified *bool `json:"verified,omitempty"`
	// Set when a refund already exists for the order
	RefundExists bool   `json:"refundExists,omitempty"`
	RefundID     string `json:"refundId,omitempty"`
}

// DataResponse is the success envelope of the dashboard API.
type DataResponse struct {
	Data any `json:"data"`
}

// fail aborts the request with a structured error. Server errors (>=500) are
// logged with the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	failWith(c, status, ErrorResponse{Code: code, Message: msg}, nil)
}

// failWith writes resp, filling in the request id, and logs cause for 5xx.
func failWith(c *gin.Context, status int, resp ErrorResponse, cause error) {
	resp.RequestID = c.Writer.Header().Get("X-Request-ID")
	if status >= http.StatusInternalServerError {
		ev := middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", resp.Code).
			Str("message", resp.Message)
		if cause != nil {
			ev = ev.Err(cause)
		}
		ev.Msg("api error")
	}
	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail() for the router's fallback handlers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// data writes body inside the {"data": ...} envelope.
func data(c *gin.Context, status int, body any) {
	c.JSON(status, DataResponse{Data: body})
}

// apiError is the HTTP rendering of a service error. key is an i18n message
// key; keys are English, so the dashboard uses them verbatim.
type apiError struct {
	status  int
	code    string
	key     string
	details any
	// refundID is the existing refund of a conflict.
	refundID string
}

// classify maps a service error onto its HTTP rendering.
func classify(err error) apiError {
	var (
		conflict *services.ConflictError
		ext      *services.ExternalError
	)
	switch {
	case errors.As(err, &conflict):
		return apiError{status: http.StatusConflict, code: ErrCodeConflict, key: i18n.MsgRefundExists,
			details: gin.H{"refundId": conflict.ExistingID}, refundID: conflict.ExistingID}
	case errors.Is(err, services.ErrConflict):
		return apiError{status: http.StatusConflict, code: ErrCodeConflict, key: i18n.MsgRefundExists}
	case errors.As(err, &ext):
		return apiError{status: http.StatusInternalServerError, code: ErrCodeExternal, details: ext.Details}
	case errors.Is(err, services.ErrValidation):
		return apiError{status: http.StatusBadRequest, code: ErrCodeValidation}
	case errors.Is(err, services.ErrEmailMismatch):
		return apiError{status: http.StatusBadRequest, code: ErrCodeEmailMismatch, key: i18n.MsgEmailMismatch}
	case errors.Is(err, services.ErrInvalidState):
		return apiError{status: http.StatusBadRequest, code: ErrCodeInvalidState}
	case errors.Is(err, services.ErrUnauthorized):
		return apiError{status: http.StatusUnauthorized, code: ErrCodeUnauthorized}
	case errors.Is(err, services.ErrRefundNotFound):
		return apiError{status: http.StatusNotFound, code: ErrCodeNotFound, key: i18n.MsgRefundNotFound}
	case errors.Is(err, services.ErrOrderNotFound):
		return apiError{status: http.StatusNotFound, code: ErrCodeNotFound, key: i18n.MsgOrderNotFound}
	case errors.Is(err, services.ErrMerchantNotFound):
		return apiError{status: http.StatusNotFound, code: ErrCodeStoreNotFound, key: i18n.MsgStoreNotFound}
	case errors.Is(err, services.ErrAuthContextMissing):
		return apiError{status: http.StatusInternalServerError, code: ErrCodeAuthContextMissing, key: i18n.MsgAuthorizationError}
	case errors.Is(err, portal.ErrSessionNotFound):
		return apiError{status: http.StatusNotFound, code: ErrCodeSessionNotFound, key: i18n.MsgSessionNotFound}
	case errors.Is(err, portal.ErrInvalidTransition):
		return apiError{status: http.StatusConflict, code: ErrCodeInvalidStep, key: i18n.MsgInvalidStep}
	case errors.Is(err, portal.ErrUnknownReason):
		return apiError{status: http.StatusBadRequest, code: ErrCodeInvalidReason, key: i18n.MsgInvalidReason}
	case errors.Is(err, portal.ErrImagesRequired):
		return apiError{status: http.StatusBadRequest, code: ErrCodeImagesRequired, key: i18n.MsgImagesRequired}
	case errors.Is(err, portal.ErrTooManyImages):
		return apiError{status: http.StatusBadRequest, code: ErrCodeTooManyImages, key: i18n.MsgTooManyImages}
	case errors.Is(err, portal.ErrImageTooLarge):
		return apiError{status: http.StatusBadRequest, code: ErrCodeImageTooLarge, key: i18n.MsgImageTooLarge}
	case errors.Is(err, portal.ErrNotImage):
		return apiError{status: http.StatusBadRequest, code: ErrCodeInvalidImage, key: i18n.MsgNotImage}
	case errors.Is(err, portal.ErrMalformedImage):
		return apiError{status: http.StatusBadRequest, code: ErrCodeInvalidImage, key: i18n.MsgMalformedImage}
	}
	return apiError{status: http.StatusInternalServerError, code: ErrCodeInternal}
}

// writeServiceError renders a service error on the dashboard API.
func writeServiceError(c *gin.Context, err error) {
	e := classify(err)
	msg := e.key
	switch {
	case e.code == ErrCodeExternal:
		msg = services.ErrExternal.Error()
	case msg == "" && e.status < http.StatusInternalServerError:
		msg = err.Error()
	case msg == "":
		msg = "internal server error"
	}
	failWith(c, e.status, ErrorResponse{Code: e.code, Message: msg, Details: e.details}, err)
}

// publicMessages names the messages a portal route uses for validation
// failures and unexpected errors.
type publicMessages struct {
	validation string
	internal   string
	// verify marks verify-order responses, which carry "verified": false.
	verify bool
	// authNotFound reports a missing platform credential as 404.
	authNotFound bool
}

// writePublicError renders a service error on the portal API in locale.
func writePublicError(c *gin.Context, locale language.Tag, err error, m publicMessages) {
	e := classify(err)
	key := e.key
	switch {
	case e.code == ErrCodeValidation:
		key = m.validation
	case e.code == ErrCodeExternal || e.code == ErrCodeInternal || e.code == ErrCodeUnauthorized:
		key = m.internal
	case e.code == ErrCodeAuthContextMissing && m.authNotFound:
		e.status = http.StatusNotFound
	}
	resp := PublicErrorResponse{
		RequestID:    c.Writer.Header().Get("X-Request-ID"),
		Code:         e.code,
		Error:        i18n.T(locale, key),
		RefundExists: e.code == ErrCodeConflict,
		RefundID:     e.refundID,
	}
	if m.verify {
		f := false
		resp.Verified = &f
	}
	if e.status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().Err(err).Int("status", e.status).Str("code", e.code).Msg("portal error")
	}
	c.AbortWithStatusJSON(e.status, resp)
}

// failBind answers a body that could not be decoded: 413 when the body limit
// was hit, 400 otherwise.
func failBind(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "request body too large")
		return
	}
	fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
}

// failPublicBind is failBind for portal routes.
func failPublicBind(c *gin.Context, locale language.Tag, err error, key string) {
	status, code := http.StatusBadRequest, ErrCodeBadRequest
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		status, code, key = http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, i18n.MsgImageTooLarge
	}
	c.AbortWithStatusJSON(status, PublicErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Error:     i18n.T(locale, key),
	})
}
