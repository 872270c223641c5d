// Package idp is the identity-provider boundary: it mints and verifies the
// bearer credentials the rest of the platform treats as opaque.
package idp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"procur.org/internal/auth"
)

const defaultTokenTTL = time.Hour

// Account is the provider-side record for a subject. It is deliberately
// thin: the platform profile lives in the user store, this only holds what
// credential issuance needs.
type Account struct {
	SubjectID        string
	Email            string
	PasswordHash     string
	Disabled         bool
	TokensValidAfter time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AccountStore persists provider accounts.
type AccountStore interface {
	FindAccount(ctx context.Context, subjectID string) (*Account, error)
	FindAccountByEmail(ctx context.Context, email string) (*Account, error)
	CreateAccount(ctx context.Context, acc *Account) error
	SetTokensValidAfter(ctx context.Context, subjectID string, t time.Time) error
	SetAccountDisabled(ctx context.Context, subjectID string, disabled bool) error
}

// Provider issues and verifies HS256 JWT credentials backed by the account
// store. It implements auth.TokenVerifier.
type Provider struct {
	accounts AccountStore
	secret   []byte
	issuer   string
	ttl      time.Duration
	now      func() time.Time
}

// Option configures Provider behavior.
type Option func(*Provider)

// WithIssuer overrides the iss claim.
func WithIssuer(issuer string) Option {
	return func(p *Provider) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			p.issuer = issuer
		}
	}
}

// WithTokenTTL overrides the credential lifetime.
func WithTokenTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		if ttl > 0 {
			p.ttl = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(p *Provider) {
		if fn != nil {
			p.now = fn
		}
	}
}

// New constructs a Provider. The signing secret must not be empty.
func New(accounts AccountStore, secret string, opts ...Option) (*Provider, error) {
	if accounts == nil {
		return nil, errors.New("idp: account store is required")
	}
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("idp: signing secret is required")
	}
	p := &Provider{
		accounts: accounts,
		secret:   []byte(secret),
		issuer:   "procur.org",
		ttl:      defaultTokenTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// VerifyToken decodes and checks a credential. The account record, when
// present, contributes the disabled flag and the revocation watermark:
// tokens issued before tokens_valid_after are rejected.
func (p *Provider) VerifyToken(ctx context.Context, credential string) (auth.Claims, error) {
	token, err := jwt.Parse(credential, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return p.secret, nil
	},
		jwt.WithIssuer(p.issuer),
		jwt.WithTimeFunc(p.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return auth.Claims{}, fmt.Errorf("idp: verify token: %w", err)
	}
	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return auth.Claims{}, errors.New("idp: unexpected claims type")
	}

	claims := claimsFromMap(mc)
	if claims.Subject == "" {
		return auth.Claims{}, errors.New("idp: token has no subject")
	}

	acc, err := p.accounts.FindAccount(ctx, claims.Subject)
	switch {
	case err == nil:
		if !acc.TokensValidAfter.IsZero() && claims.IssuedAt.Before(acc.TokensValidAfter) {
			return auth.Claims{}, errors.New("idp: token predates revocation watermark")
		}
		claims.Disabled = acc.Disabled
		if claims.Email == "" {
			claims.Email = acc.Email
		}
	case errors.Is(err, auth.ErrNotFound):
		// no provider record; the resolver decides what to do with the subject
	default:
		return auth.Claims{}, fmt.Errorf("idp: load account: %w", err)
	}
	return claims, nil
}

// SignIn checks the password and issues a credential for the account.
func (p *Provider) SignIn(ctx context.Context, email, password string) (string, auth.Claims, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return "", auth.Claims{}, auth.ErrUnauthorized
	}
	acc, err := p.accounts.FindAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return "", auth.Claims{}, auth.ErrUnauthorized
		}
		return "", auth.Claims{}, err
	}
	if acc.Disabled {
		return "", auth.Claims{}, auth.ErrDisabled
	}
	if err := VerifyPassword(acc.PasswordHash, password); err != nil {
		return "", auth.Claims{}, auth.ErrUnauthorized
	}
	return p.issue(acc.SubjectID, acc.Email)
}

// CreateAccount registers a provider account with a hashed password.
func (p *Provider) CreateAccount(ctx context.Context, subjectID, email, password string) error {
	subjectID = strings.TrimSpace(subjectID)
	email = strings.TrimSpace(strings.ToLower(email))
	if subjectID == "" || email == "" {
		return fmt.Errorf("%w: subject id and email are required", auth.ErrInvalidInput)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	now := p.now().UTC()
	return p.accounts.CreateAccount(ctx, &Account{
		SubjectID:    subjectID,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

// CreateCustomToken mints a credential for the subject without a password
// check. Used for provider-to-provider exchange and development sign-in.
func (p *Provider) CreateCustomToken(ctx context.Context, subjectID string) (string, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return "", fmt.Errorf("%w: subject id is required", auth.ErrInvalidInput)
	}
	acc, err := p.accounts.FindAccount(ctx, subjectID)
	if err != nil {
		return "", err
	}
	if acc.Disabled {
		return "", auth.ErrDisabled
	}
	token, _, err := p.issue(acc.SubjectID, acc.Email)
	return token, err
}

// RevokeAllTokens invalidates every credential issued to the subject so
// far by bumping its watermark.
func (p *Provider) RevokeAllTokens(ctx context.Context, subjectID string) error {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return fmt.Errorf("%w: subject id is required", auth.ErrInvalidInput)
	}
	return p.accounts.SetTokensValidAfter(ctx, subjectID, p.now().UTC())
}

// GetUser returns the provider record for the subject.
func (p *Provider) GetUser(ctx context.Context, subjectID string) (*Account, error) {
	return p.accounts.FindAccount(ctx, subjectID)
}

func (p *Provider) issue(subjectID, email string) (string, auth.Claims, error) {
	now := p.now()
	exp := now.Add(p.ttl)
	mc := jwt.MapClaims{
		"iss":   p.issuer,
		"sub":   subjectID,
		"email": email,
		"iat":   now.Unix(),
		"exp":   exp.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString(p.secret)
	if err != nil {
		return "", auth.Claims{}, fmt.Errorf("idp: sign token: %w", err)
	}
	return token, auth.Claims{
		Subject:   subjectID,
		Email:     email,
		IssuedAt:  now.UTC(),
		ExpiresAt: exp.UTC(),
	}, nil
}

func claimsFromMap(mc jwt.MapClaims) auth.Claims {
	claims := auth.Claims{Extra: map[string]any{}}
	for k, v := range mc {
		switch k {
		case "sub":
			if s, ok := v.(string); ok {
				claims.Subject = s
			}
		case "email":
			if s, ok := v.(string); ok {
				claims.Email = s
			}
		case "iat":
			if t, err := mc.GetIssuedAt(); err == nil && t != nil {
				claims.IssuedAt = t.Time.UTC()
			}
		case "exp":
			if t, err := mc.GetExpirationTime(); err == nil && t != nil {
				claims.ExpiresAt = t.Time.UTC()
			}
		case "iss":
			claims.Extra[k] = v
		default:
			claims.Extra[k] = v
		}
	}
	return claims
}
