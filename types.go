package flasky

import (
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Clock is the current-time source used by token issuance and
// last-seen tracking. Inject a fixed clock in tests to exercise expiry
// deterministically.
type Clock interface {
	Now() time.Time
}

// Principal is an identity the authorization layer can interrogate.
// Persisted users and the anonymous sentinel both satisfy it.
type Principal interface {
	Can(p Permission) bool
	IsAdministrator() bool
	IsConfirmed() bool
}

// Config holds the core options
type Config interface {
	GetSigningKey() string
	GetIssuer() string
	// GetTokenTTL is the default token lifetime in seconds
	GetTokenTTL() int
	GetPostsPerPage() int
	GetCommentsPerPage() int
	GetFollowersPerPage() int
	GetMailSubjectPrefix() string
	GetMailSender() string
	// GetAdminEmail identifies the account that is registered with the
	// Administrator role
	GetAdminEmail() string
}

const (
	// DefaultTokenTTL is the fallback token lifetime in seconds
	DefaultTokenTTL = 3600
	// DefaultPostsPerPage is the fallback post page size
	DefaultPostsPerPage = 15
	// DefaultCommentsPerPage is the fallback comment page size
	DefaultCommentsPerPage = 30
	// DefaultFollowersPerPage is the fallback follower page size
	DefaultFollowersPerPage = 25
)

// SimpleConfig is a plain Config implementation used by tests and the
// examples program.
type SimpleConfig struct {
	SigningKey        string
	Issuer            string
	TokenTTL          int
	PostsPerPage      int
	CommentsPerPage   int
	FollowersPerPage  int
	MailSubjectPrefix string
	MailSender        string
	AdminEmail        string
}

var _ Config = (*SimpleConfig)(nil)

func (c *SimpleConfig) GetSigningKey() string { return c.SigningKey }

func (c *SimpleConfig) GetIssuer() string { return c.Issuer }

func (c *SimpleConfig) GetTokenTTL() int {
	if c.TokenTTL <= 0 {
		return DefaultTokenTTL
	}
	return c.TokenTTL
}

func (c *SimpleConfig) GetPostsPerPage() int {
	if c.PostsPerPage <= 0 {
		return DefaultPostsPerPage
	}
	return c.PostsPerPage
}

func (c *SimpleConfig) GetCommentsPerPage() int {
	if c.CommentsPerPage <= 0 {
		return DefaultCommentsPerPage
	}
	return c.CommentsPerPage
}

func (c *SimpleConfig) GetFollowersPerPage() int {
	if c.FollowersPerPage <= 0 {
		return DefaultFollowersPerPage
	}
	return c.FollowersPerPage
}

func (c *SimpleConfig) GetMailSubjectPrefix() string { return c.MailSubjectPrefix }

func (c *SimpleConfig) GetMailSender() string { return c.MailSender }

func (c *SimpleConfig) GetAdminEmail() string { return c.AdminEmail }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] FLASKY "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] FLASKY "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] FLASKY "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] FLASKY "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
