package auth

import "errors"

// Sentinel errors shared across the platform. HTTP handlers map these to
// status codes in one place; services wrap them with fmt.Errorf("%w: ...")
// to add detail without breaking errors.Is checks.
var (
	ErrInvalidCredential = errors.New("auth: invalid credential")
	ErrRevoked           = errors.New("auth: credential revoked")
	ErrTooOld            = errors.New("auth: credential too old")
	ErrDisabled          = errors.New("auth: account disabled")
	ErrInactive          = errors.New("auth: account inactive")
	ErrUnauthorized      = errors.New("auth: unauthorized")
	ErrForbidden         = errors.New("auth: forbidden")
	ErrRateLimited       = errors.New("auth: rate limited")
	ErrNotFound          = errors.New("auth: not found")
	ErrConflict          = errors.New("auth: resource conflict")
	ErrInvalidInput      = errors.New("auth: invalid input")
)
