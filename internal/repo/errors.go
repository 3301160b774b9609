// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file centralizes repository-level error values.
package repo

import "errors"

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate indicates an insert hit a unique constraint, e.g. a replayed
// payment-processor event id or a double-applied confirmation.
var ErrDuplicate = errors.New("duplicate")
