// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable; clients branch on them instead
// of on messages, which are localized on the public portal routes.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "conflict",
//	  "message": "A refund request already exists for this order",
//	  "details": {"refundId": "7c1f0f0e-2b7e-4a53-9c55-0f7e3d7b8a11"}
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodePayloadTooLarge  = "payload_too_large"

	// Domain-specific:
	ErrCodeValidation         = "validation_failed"
	ErrCodeEmailMismatch      = "email_mismatch"
	ErrCodeInvalidState       = "invalid_state"
	ErrCodeExternal           = "external_error"
	ErrCodeAuthContextMissing = "auth_context_missing"
	ErrCodeStoreNotFound      = "store_not_found"
	ErrCodeSessionNotFound    = "session_not_found"
	ErrCodeInvalidStep        = "invalid_step"
	ErrCodeInvalidReason      = "invalid_reason"
	ErrCodeImagesRequired     = "images_required"
	ErrCodeInvalidImage       = "invalid_image"
	ErrCodeImageTooLarge      = "image_too_large"
	ErrCodeTooManyImages      = "too_many_images"
	ErrCodeExportFailed       = "export_failed"
)
