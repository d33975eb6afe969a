package flasky

import (
	"errors"
)

// ErrTokenExpired is returned when a token is past its embedded expiry
var ErrTokenExpired = errors.New("token is expired")

// ErrTokenMalformed covers bad signatures and undecodable token structure
var ErrTokenMalformed = errors.New("token is malformed")

// ErrDuplicateIdentity is returned on email or username collisions
var ErrDuplicateIdentity = errors.New("email or username already registered")

// ErrNotFound is returned when a referenced user, post, or comment is absent
var ErrNotFound = errors.New("record not found")

// ErrUnconfirmed is returned when an action requires a confirmed account
var ErrUnconfirmed = errors.New("account is not confirmed")

// ErrInsufficientPermission is returned when an authorization check fails
var ErrInsufficientPermission = errors.New("insufficient permission")

// ErrPlaintextPasswordRead signals a programming error: the plaintext
// password is never stored and must never be read back.
var ErrPlaintextPasswordRead = errors.New("password is not a readable attribute")

// ErrNoEmptyString rejects empty passwords before hashing
var ErrNoEmptyString = errors.New("password should not be empty")

// ErrMismatchedHashAndPassword is the normalized bcrypt mismatch error
var ErrMismatchedHashAndPassword = errors.New("password does not match")

// IsTokenError reports whether err is any token decode failure
func IsTokenError(err error) bool {
	return errors.Is(err, ErrTokenExpired) || errors.Is(err, ErrTokenMalformed)
}

// IsAuthorizationError reports whether err came from the permission layer
func IsAuthorizationError(err error) bool {
	return errors.Is(err, ErrInsufficientPermission) || errors.Is(err, ErrUnconfirmed)
}
