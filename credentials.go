package flasky

import (
	"context"

	"github.com/goliatone/go-repository-bun"
)

// Credentials owns the token-gated account mutations: confirmation,
// password reset, and email change. Flow methods report success as a
// boolean; decode failures and mismatches never leak as errors, and a
// failed verification leaves the user record untouched.
type Credentials struct {
	users  Users
	tokens TokenService
	logger Logger
}

// NewCredentials wires the credential flows to their collaborators.
func NewCredentials(users Users, tokens TokenService) *Credentials {
	return &Credentials{
		users:  users,
		tokens: tokens,
		logger: defLogger{},
	}
}

// WithLogger overrides the logger.
func (c *Credentials) WithLogger(logger Logger) *Credentials {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// GenerateConfirmationToken issues a confirmation token for the user.
func (c *Credentials) GenerateConfirmationToken(user *User, opts ...TokenOption) (string, error) {
	return c.tokens.Issue(TokenPurposeConfirm, user.ID, opts...)
}

// Confirm verifies a confirmation token against the user and flips the
// confirmed flag. The token must carry the confirm purpose and the
// user's own id.
func (c *Credentials) Confirm(ctx context.Context, user *User, token string) bool {
	if _, ok := c.verifyFor(token, TokenPurposeConfirm, user); !ok {
		return false
	}

	user.Confirmed = true
	if _, err := c.users.Update(ctx, user); err != nil {
		user.Confirmed = false
		c.logger.Error("failed to persist confirmation: %v", err)
		return false
	}

	return true
}

// GenerateResetToken issues a password-reset token for the user.
func (c *Credentials) GenerateResetToken(user *User, opts ...TokenOption) (string, error) {
	return c.tokens.Issue(TokenPurposeReset, user.ID, opts...)
}

// ResetPassword verifies a reset token, resolves the embedded user, and
// stores the new password hash. Returns false without mutating anything
// if the token fails to decode or the user no longer exists.
func (c *Credentials) ResetPassword(ctx context.Context, token, newPlaintext string) bool {
	claims, err := c.tokens.Verify(token)
	if err != nil || claims.Purpose != TokenPurposeReset {
		return false
	}

	userID, err := claims.UserID()
	if err != nil {
		return false
	}

	user, err := c.users.GetByID(ctx, userID)
	if err != nil {
		if !repository.IsRecordNotFound(err) {
			c.logger.Error("failed to resolve user for password reset: %v", err)
		}
		return false
	}

	previous := user.PasswordHash
	if err := user.SetPassword(newPlaintext); err != nil {
		return false
	}

	if _, err := c.users.Update(ctx, user); err != nil {
		user.PasswordHash = previous
		c.logger.Error("failed to persist password reset: %v", err)
		return false
	}

	return true
}

// GenerateEmailChangeToken issues a token carrying both the user id and
// the candidate address.
func (c *Credentials) GenerateEmailChangeToken(user *User, newEmail string, opts ...TokenOption) (string, error) {
	opts = append([]TokenOption{WithNewEmail(newEmail)}, opts...)
	return c.tokens.Issue(TokenPurposeEmailChange, user.ID, opts...)
}

// ChangeEmail verifies an email-change token against the user and
// commits the new address, recomputing the avatar hash. A candidate
// address already registered to a different user is rejected even when
// the token itself is valid.
func (c *Credentials) ChangeEmail(ctx context.Context, user *User, token string) bool {
	claims, ok := c.verifyFor(token, TokenPurposeEmailChange, user)
	if !ok {
		return false
	}

	if claims.NewEmail == "" {
		return false
	}

	if other, err := c.users.GetByEmail(ctx, claims.NewEmail); err == nil && other.ID != user.ID {
		return false
	} else if err != nil && !repository.IsRecordNotFound(err) {
		c.logger.Error("failed duplicate check for email change: %v", err)
		return false
	}

	prevEmail, prevHash := user.Email, user.AvatarHash
	user.SetEmail(claims.NewEmail)

	if _, err := c.users.Update(ctx, user); err != nil {
		user.Email, user.AvatarHash = prevEmail, prevHash
		c.logger.Error("failed to persist email change: %v", err)
		return false
	}

	return true
}

func (c *Credentials) verifyFor(token string, purpose TokenPurpose, user *User) (*TokenClaims, bool) {
	claims, err := c.tokens.Verify(token)
	if err != nil {
		return nil, false
	}

	if claims.Purpose != purpose {
		return nil, false
	}

	userID, err := claims.UserID()
	if err != nil || userID != user.ID {
		return nil, false
	}

	return claims, true
}
