package auth

import (
	"context"
	"fmt"
	"time"

	"procur.org/internal/obs"
)

const defaultMaxCredentialAge = 24 * time.Hour

// Validator turns a raw bearer credential into verified claims. Checks run
// in a fixed order so a caller always sees the most severe failure first:
// revocation, then rate limiting, then provider verification, then age,
// then the disabled flag.
type Validator struct {
	verifier  TokenVerifier
	blacklist *Blacklist
	window    *RateWindow
	maxAge    time.Duration
	now       func() time.Time
}

// ValidatorOption configures Validator behavior.
type ValidatorOption func(*Validator)

// WithMaxCredentialAge overrides the maximum accepted credential age.
func WithMaxCredentialAge(d time.Duration) ValidatorOption {
	return func(v *Validator) {
		if d > 0 {
			v.maxAge = d
		}
	}
}

// WithValidatorClock overrides the time source (useful for tests).
func WithValidatorClock(fn func() time.Time) ValidatorOption {
	return func(v *Validator) {
		if fn != nil {
			v.now = fn
		}
	}
}

// NewValidator constructs a Validator. Verifier, blacklist and window are
// all required.
func NewValidator(verifier TokenVerifier, blacklist *Blacklist, window *RateWindow, opts ...ValidatorOption) (*Validator, error) {
	if verifier == nil {
		return nil, fmt.Errorf("%w: token verifier is required", ErrInvalidInput)
	}
	if blacklist == nil {
		return nil, fmt.Errorf("%w: blacklist is required", ErrInvalidInput)
	}
	if window == nil {
		return nil, fmt.Errorf("%w: rate window is required", ErrInvalidInput)
	}
	v := &Validator{
		verifier:  verifier,
		blacklist: blacklist,
		window:    window,
		maxAge:    defaultMaxCredentialAge,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Blacklist exposes the revocation list so logout handlers can add to it.
func (v *Validator) Blacklist() *Blacklist { return v.blacklist }

// Validate verifies the credential and returns its claims.
func (v *Validator) Validate(ctx context.Context, credential string, enforceRateLimit bool) (Claims, error) {
	if credential == "" {
		obs.CountAuthDenial("invalid")
		return Claims{}, fmt.Errorf("%w: empty credential", ErrInvalidCredential)
	}
	if v.blacklist.Contains(credential) {
		obs.CountAuthDenial("revoked")
		return Claims{}, ErrRevoked
	}
	if enforceRateLimit && !v.window.Allow(credential) {
		obs.CountAuthDenial("rate_limited")
		return Claims{}, ErrRateLimited
	}
	claims, err := v.verifier.VerifyToken(ctx, credential)
	if err != nil {
		obs.CountAuthDenial("invalid")
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if claims.IssuedAt.IsZero() {
		obs.CountAuthDenial("invalid")
		return Claims{}, fmt.Errorf("%w: missing issued-at claim", ErrInvalidCredential)
	}
	if v.now().Sub(claims.IssuedAt) > v.maxAge {
		obs.CountAuthDenial("too_old")
		return Claims{}, ErrTooOld
	}
	if claims.Disabled {
		obs.CountAuthDenial("disabled")
		return Claims{}, ErrDisabled
	}
	return claims, nil
}
