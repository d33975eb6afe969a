package flasky

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	Validate() error
	MustValidate()
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
	Users() Users
	Roles() Roles
	Posts() Posts
	Comments() Comments
	Follows() Follows
}

type mngr struct {
	db       *bun.DB
	users    Users
	roles    Roles
	posts    Posts
	comments Comments
	follows  Follows
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:       db,
		users:    NewUsersRepository(db),
		roles:    NewRolesRepository(db),
		posts:    NewPostsRepository(db),
		comments: NewCommentsRepository(db),
		follows:  NewFollowsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.roles == nil {
		return errors.New("repository roles should be initialized")
	}

	if m.posts == nil {
		return errors.New("repository posts should be initialized")
	}

	if m.comments == nil {
		return errors.New("repository comments should be initialized")
	}

	if m.follows == nil {
		return errors.New("repository follows should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) Roles() Roles {
	return m.roles
}

func (m mngr) Posts() Posts {
	return m.posts
}

func (m mngr) Comments() Comments {
	return m.comments
}

func (m mngr) Follows() Follows {
	return m.follows
}
