package flasky

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Role groups a named permission bitmask. The role set is small and
// fixed; see DefaultRoles.
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:rol"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name          string     `bun:"name,notnull,unique" json:"name,omitempty"`
	IsDefault     bool       `bun:"is_default,notnull,default:false" json:"is_default,omitempty"`
	Permissions   Permission `bun:"permissions,notnull" json:"permissions"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Has reports whether the role's bitmask contains every bit of p.
func (r *Role) Has(p Permission) bool {
	return r != nil && r.Permissions&p == p
}

// AddPermission sets the bits of p on the role.
func (r *Role) AddPermission(p Permission) {
	r.Permissions |= p
}

// RemovePermission clears the bits of p on the role.
func (r *Role) RemovePermission(p Permission) {
	r.Permissions &^= p
}

// User is the registered account model
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Username      string     `bun:"username,notnull,unique" json:"username,omitempty"`
	PasswordHash  string     `bun:"password_hash" json:"-"`
	RoleID        uuid.UUID  `bun:"role_id,nullzero,type:uuid" json:"role_id,omitempty"`
	Role          *Role      `bun:"rel:belongs-to,join:role_id=id" json:"role,omitempty"`
	Confirmed     bool       `bun:"confirmed,notnull,default:false" json:"confirmed,omitempty"`
	Name          string     `bun:"name" json:"name,omitempty"`
	Location      string     `bun:"location" json:"location,omitempty"`
	AboutMe       string     `bun:"about_me" json:"about_me,omitempty"`
	AvatarHash    string     `bun:"avatar_hash" json:"avatar_hash,omitempty"`
	MemberSince   *time.Time `bun:"member_since,nullzero,default:current_timestamp" json:"member_since,omitempty"`
	LastSeen      *time.Time `bun:"last_seen,nullzero" json:"last_seen,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

var _ Principal = (*User)(nil)

// SetPassword hashes plaintext and stores only the hash. The bcrypt
// salt is embedded per hash, so two users with the same password end up
// with different stored hashes.
func (u *User) SetPassword(plaintext string) error {
	hash, err := HashPassword(plaintext)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

// Password panics: the plaintext is never persisted and reading it back
// is a programming error, not a runtime condition.
func (u *User) Password() string {
	panic(ErrPlaintextPasswordRead)
}

// VerifyPassword checks plaintext against the stored hash.
func (u *User) VerifyPassword(plaintext string) bool {
	return ComparePasswordAndHash(plaintext, u.PasswordHash) == nil
}

// SetEmail updates the address and recomputes the cached avatar hash.
func (u *User) SetEmail(email string) {
	u.Email = email
	u.AvatarHash = AvatarHash(email)
}

// Can reports whether the user's role grants p. Users with no role
// loaded hold no permissions.
func (u *User) Can(p Permission) bool {
	return u != nil && u.Role.Has(p)
}

// IsAdministrator reports whether the user holds the administer bit.
func (u *User) IsAdministrator() bool {
	return u.Can(PermissionAdminister)
}

// IsConfirmed reports whether the account completed email confirmation.
func (u *User) IsConfirmed() bool {
	return u != nil && u.Confirmed
}

// Ping refreshes the last-seen timestamp. Called on every authenticated
// interaction; the caller persists via Users.TrackSeen.
func (u *User) Ping(clock Clock) {
	if clock == nil {
		clock = systemClock{}
	}
	now := clock.Now()
	u.LastSeen = &now
}

// Gravatar builds the avatar URL for the user's email digest.
func (u *User) Gravatar(size int) string {
	hash := u.AvatarHash
	if hash == "" {
		hash = AvatarHash(u.Email)
	}
	return fmt.Sprintf("https://secure.gravatar.com/avatar/%s?s=%d&d=identicon&r=g", hash, size)
}

// AvatarHash digests a lowercased, trimmed email address.
func AvatarHash(email string) string {
	normalized := strings.ToLower(strings.TrimSpace(email))
	sum := md5.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Post is an authored article. Body holds the source markup; BodyHTML
// is the sanitized rendering and is recomputed whenever the body
// changes.
type Post struct {
	bun.BaseModel `bun:"table:posts,alias:pst"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	AuthorID      uuid.UUID  `bun:"author_id,notnull,type:uuid" json:"author_id,omitempty"`
	Author        *User      `bun:"rel:belongs-to,join:author_id=id" json:"author,omitempty"`
	Body          string     `bun:"body" json:"body,omitempty"`
	BodyHTML      string     `bun:"body_html" json:"body_html,omitempty"`
	Comments      []*Comment `bun:"rel:has-many,join:id=post_id" json:"comments,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// SetBody stores the source markup and refreshes the sanitized HTML.
func (p *Post) SetBody(body string) {
	p.Body = body
	p.BodyHTML = RenderMarkdown(body)
}

// Comment is a reply on a post. Disabled comments stay stored but are
// hidden pending moderation.
type Comment struct {
	bun.BaseModel `bun:"table:comments,alias:cmt"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	AuthorID      uuid.UUID  `bun:"author_id,notnull,type:uuid" json:"author_id,omitempty"`
	Author        *User      `bun:"rel:belongs-to,join:author_id=id" json:"author,omitempty"`
	PostID        uuid.UUID  `bun:"post_id,notnull,type:uuid" json:"post_id,omitempty"`
	Post          *Post      `bun:"rel:belongs-to,join:post_id=id" json:"post,omitempty"`
	Body          string     `bun:"body" json:"body,omitempty"`
	BodyHTML      string     `bun:"body_html" json:"body_html,omitempty"`
	Disabled      bool       `bun:"disabled,notnull,default:false" json:"disabled,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// SetBody stores the source markup and refreshes the sanitized HTML.
// Comments render with a tighter tag allowlist than posts.
func (c *Comment) SetBody(body string) {
	c.Body = body
	c.BodyHTML = RenderCommentMarkdown(body)
}

// Follow is a directed edge in the follow graph. Every user carries a
// reflexive self-follow edge so "followed content" always includes the
// user's own posts.
type Follow struct {
	bun.BaseModel `bun:"table:follows,alias:flw"`
	FollowerID    uuid.UUID  `bun:"follower_id,pk,type:uuid" json:"follower_id,omitempty"`
	Follower      *User      `bun:"rel:belongs-to,join:follower_id=id" json:"follower,omitempty"`
	FollowedID    uuid.UUID  `bun:"followed_id,pk,type:uuid" json:"followed_id,omitempty"`
	Followed      *User      `bun:"rel:belongs-to,join:followed_id=id" json:"followed,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}
