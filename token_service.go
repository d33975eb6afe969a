package flasky

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenPurpose scopes a token to a single follow-up action. Verify
// returns the purpose with the claims; the workflow rejects tokens
// issued for a different flow.
type TokenPurpose string

const (
	// TokenPurposeConfirm authorizes account confirmation
	TokenPurposeConfirm TokenPurpose = "confirm"
	// TokenPurposeReset authorizes a password reset
	TokenPurposeReset TokenPurpose = "reset"
	// TokenPurposeEmailChange authorizes an email change
	TokenPurposeEmailChange TokenPurpose = "change_email"
)

// TokenClaims is the signed payload carried by workflow tokens
type TokenClaims struct {
	jwt.RegisteredClaims
	UID      string       `json:"uid"`
	Purpose  TokenPurpose `json:"purpose"`
	NewEmail string       `json:"new_email,omitempty"`
}

// UserID parses the embedded user id
func (c *TokenClaims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.UID)
}

// TokenService issues and verifies signed, expiring workflow tokens
type TokenService interface {
	Issue(purpose TokenPurpose, userID uuid.UUID, opts ...TokenOption) (string, error)
	Verify(token string) (*TokenClaims, error)
}

// TokenOption mutates claims before signing
type TokenOption func(*TokenClaims)

// WithTTL overrides the default token lifetime
func WithTTL(ttl time.Duration) TokenOption {
	return func(c *TokenClaims) {
		c.ttlOverride(ttl)
	}
}

// WithNewEmail embeds the candidate address for email-change tokens
func WithNewEmail(email string) TokenOption {
	return func(c *TokenClaims) {
		c.NewEmail = email
	}
}

func (c *TokenClaims) ttlOverride(ttl time.Duration) {
	if c.IssuedAt == nil {
		return
	}
	c.ExpiresAt = jwt.NewNumericDate(c.IssuedAt.Time.Add(ttl))
}

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	signingKey []byte
	defaultTTL time.Duration
	issuer     string
	clock      Clock
	logger     Logger
}

var _ TokenService = (*TokenServiceImpl)(nil)

// NewTokenService creates a new TokenService instance. The signing key
// and default TTL come from process-wide configuration; the clock is
// injected so tests can advance time without sleeping.
func NewTokenService(cfg Config, clock Clock, logger Logger) *TokenServiceImpl {
	if clock == nil {
		clock = systemClock{}
	}
	if logger == nil {
		logger = defLogger{}
	}
	return &TokenServiceImpl{
		signingKey: []byte(cfg.GetSigningKey()),
		defaultTTL: time.Duration(cfg.GetTokenTTL()) * time.Second,
		issuer:     cfg.GetIssuer(),
		clock:      clock,
		logger:     logger,
	}
}

// Issue signs a token scoped to purpose and userID, expiring after the
// configured default TTL unless overridden.
func (ts *TokenServiceImpl) Issue(purpose TokenPurpose, userID uuid.UUID, opts ...TokenOption) (string, error) {
	now := ts.clock.Now()
	claims := &TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.defaultTTL)),
		},
		UID:     userID.String(),
		Purpose: purpose,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(claims)
		}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// Verify parses and validates a token string. Expired tokens map to
// ErrTokenExpired; every other decode failure, including signature
// mismatch, maps to ErrTokenMalformed.
func (ts *TokenServiceImpl) Verify(tokenString string) (*TokenClaims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithTimeFunc(ts.clock.Now),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("token verify encountered unexpected signing method: %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		ts.logger.Error("token verify could not decode claims")
		return nil, ErrTokenMalformed
	}

	return claims, nil
}
