// Package services implements the business logic for group translation:
// quota gating, language settings, subscription sync, the translation
// pipeline, and the event orchestrator. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer;
// translation into user-facing replies or HTTP status codes is performed
// at the handler layer.
package services

import "errors"

var (
	// ErrQuotaExceeded indicates the group's translation count has reached
	// the limit for the current period and plan.
	ErrQuotaExceeded = errors.New("translation quota exceeded")

	// ErrNoLanguages indicates the group has no confirmed language set, so
	// the translation pipeline has nothing to target.
	ErrNoLanguages = errors.New("no languages registered for group")

	// ErrTooManyLanguages is returned when a proposed language set exceeds
	// the configured per-group cap.
	ErrTooManyLanguages = errors.New("too many languages requested")

	// ErrNoSupportedLanguages is returned when none of the requested
	// languages survive registry sanitization.
	ErrNoSupportedLanguages = errors.New("no supported languages in request")

	// ErrConfirmationSpent indicates the confirmation token was already
	// resolved; duplicate postbacks hit this and are absorbed silently.
	ErrConfirmationSpent = errors.New("confirmation already resolved")

	// ErrConfirmationNotFound indicates an unknown confirmation token.
	ErrConfirmationNotFound = errors.New("confirmation not found")

	// ErrEventReplayed indicates a billing event id that was already
	// applied; the caller acknowledges without side effects.
	ErrEventReplayed = errors.New("billing event already processed")

	// ErrUnresolvableEvent indicates a billing event that cannot be mapped
	// to a group; it is logged and dropped, never retried.
	ErrUnresolvableEvent = errors.New("billing event has no group mapping")
)
