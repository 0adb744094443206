// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP
// responses (via the `fail()` helper in this package). These codes give
// clients a stable, machine-readable error taxonomy that supplements
// human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case.
//   - Generic codes (e.g., bad_request, unauthorized, conflict) mirror common
//     HTTP status semantics.
//   - Domain-specific codes (e.g., invalid_transition, submit_failed) cover
//     business outcomes that status alone cannot convey.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "invalid_transition",
//	  "message": "status transition not allowed: Resolved -> Pending"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodePayloadTooLarge  = "payload_too_large"
	ErrCodeUnsupportedMedia = "unsupported_media"

	// Domain-specific:
	ErrCodeValidation         = "validation_failed"
	ErrCodeInvalidTransition  = "invalid_transition"
	ErrCodeInvalidCredentials = "invalid_credentials"
	ErrCodeSubmitFailed       = "submit_failed"
	ErrCodeUpdateFailed       = "update_failed"
	ErrCodeLookupFailed       = "lookup_failed"
	ErrCodeListFailed         = "list_failed"
	ErrCodeExportFailed       = "export_failed"
)
