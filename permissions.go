package flasky

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

// Permission is a capability bit flag. A role grants a permission iff
// the role's bitmask contains every bit of the flag.
type Permission int

const (
	// PermissionFollow allows following other users
	PermissionFollow Permission = 0x01
	// PermissionComment allows commenting on posts
	PermissionComment Permission = 0x02
	// PermissionWriteArticles allows authoring posts
	PermissionWriteArticles Permission = 0x04
	// PermissionModerateComments allows disabling offensive comments
	PermissionModerateComments Permission = 0x08
	// PermissionAdminister grants full administrative access
	PermissionAdminister Permission = 0x80
)

func (p Permission) String() string {
	switch p {
	case PermissionFollow:
		return "follow"
	case PermissionComment:
		return "comment"
	case PermissionWriteArticles:
		return "write_articles"
	case PermissionModerateComments:
		return "moderate_comments"
	case PermissionAdminister:
		return "administer"
	default:
		return "unknown"
	}
}

// Canonical role names
const (
	RoleNameUser          = "User"
	RoleNameModerator     = "Moderator"
	RoleNameAdministrator = "Administrator"
)

// DefaultRoles returns the canonical role set. Exactly one entry is
// flagged default; it is assigned to users registered with no explicit
// role.
func DefaultRoles() []*Role {
	return []*Role{
		{
			Name:        RoleNameUser,
			IsDefault:   true,
			Permissions: PermissionFollow | PermissionComment | PermissionWriteArticles,
		},
		{
			Name:        RoleNameModerator,
			Permissions: PermissionFollow | PermissionComment | PermissionWriteArticles | PermissionModerateComments,
		},
		{
			Name:        RoleNameAdministrator,
			Permissions: 0xff,
		},
	}
}

// SeedRoles inserts the canonical roles, updating the bitmask and
// default flag of roles that already exist. Safe to run on every boot:
// re-running never duplicates roles, and permission-scheme changes
// propagate to stored rows.
func SeedRoles(ctx context.Context, roles Roles) error {
	for _, def := range DefaultRoles() {
		existing, err := roles.GetByName(ctx, def.Name)
		if err != nil {
			if !repository.IsRecordNotFound(err) {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up role "+def.Name)
			}
			if _, err := roles.Create(ctx, def); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create role "+def.Name)
			}
			continue
		}

		existing.Permissions = def.Permissions
		existing.IsDefault = def.IsDefault
		if _, err := roles.Update(ctx, existing); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update role "+def.Name)
		}
	}

	return nil
}

// Authorize checks a single permission against the principal's role.
func Authorize(p Principal, perm Permission) error {
	if p == nil || !p.Can(perm) {
		return ErrInsufficientPermission
	}
	return nil
}

// AuthorizeConfirmed gates confirmation-required actions: the principal
// must hold the permission and have a confirmed account.
func AuthorizeConfirmed(p Principal, perm Permission) error {
	if err := Authorize(p, perm); err != nil {
		return err
	}
	if !p.IsConfirmed() {
		return ErrUnconfirmed
	}
	return nil
}

// AnonymousUser is the sentinel identity used when no session identity
// is present. It holds no permissions and is never persisted.
type AnonymousUser struct{}

var _ Principal = AnonymousUser{}

// Anonymous is the shared anonymous principal.
var Anonymous Principal = AnonymousUser{}

func (AnonymousUser) Can(Permission) bool { return false }

func (AnonymousUser) IsAdministrator() bool { return false }

func (AnonymousUser) IsConfirmed() bool { return false }
