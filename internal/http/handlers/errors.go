// Package handlers defines HTTP-layer error codes used across the webhook
// endpoints.
//
// Codes are lowercase snake_case and stable: webhook providers do not branch
// on them, but operators grepping logs and dashboards do.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeBadSignature     = "bad_signature"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
)
