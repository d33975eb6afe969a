package flasky

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users is the persistence boundary for accounts. The interface lists
// only what the core calls so tests can fake it without dragging the
// whole generic repository along.
type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	Create(ctx context.Context, user *User) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	Update(ctx context.Context, user *User) (*User, error)
	UpdateTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	Delete(ctx context.Context, user *User) error
	DeleteTx(ctx context.Context, tx bun.IDB, user *User) error
	TrackSeen(ctx context.Context, user *User) error
	List(ctx context.Context, offset, limit int) ([]*User, error)
	Count(ctx context.Context) (int, error)
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var _ Users = (*users)(nil)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.getByColumn(ctx, "id", id.String())
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.getByColumn(ctx, "email", email)
}

func (a *users) GetByUsername(ctx context.Context, username string) (*User, error) {
	return a.getByColumn(ctx, "username", username)
}

func (a *users) getByColumn(ctx context.Context, column, value string) (*User, error) {
	record := &User{}
	err := a.db.NewSelect().
		Model(record).
		Relation("Role").
		Where("?TableAlias."+column+" = ?", value).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{column: value})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) Create(ctx context.Context, user *User) (*User, error) {
	return a.CreateTx(ctx, a.db, user)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	prepareUserDefaults(user)
	return a.Repository.CreateTx(ctx, tx, user)
}

func (a *users) Update(ctx context.Context, user *User) (*User, error) {
	return a.UpdateTx(ctx, a.db, user)
}

func (a *users) UpdateTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	return a.Repository.UpdateTx(ctx, tx, user, repository.UpdateByID(user.ID.String()))
}

func (a *users) Delete(ctx context.Context, user *User) error {
	return a.DeleteTx(ctx, a.db, user)
}

// DeleteTx removes the user row. Follow edges are cleaned up by the
// FollowGraph before this runs.
func (a *users) DeleteTx(ctx context.Context, tx bun.IDB, user *User) error {
	_, err := tx.NewDelete().
		Model((*User)(nil)).
		Where("?TableAlias.id = ?", user.ID.String()).
		Exec(ctx)
	return err
}

// TrackSeen persists the last-seen timestamp only, leaving the rest of
// the record untouched.
func (a *users) TrackSeen(ctx context.Context, user *User) error {
	lastSeen := user.LastSeen
	if lastSeen == nil {
		now := time.Now()
		lastSeen = &now
	}

	_, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("last_seen = ?", lastSeen).
		Where("?TableAlias.id = ?", user.ID.String()).
		Exec(ctx)

	return err
}

func (a *users) List(ctx context.Context, offset, limit int) ([]*User, error) {
	var records []*User
	err := a.db.NewSelect().
		Model(&records).
		Order("member_since ASC").
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Scan(ctx)
	return records, err
}

func (a *users) Count(ctx context.Context) (int, error) {
	return a.db.NewSelect().Model((*User)(nil)).Count(ctx)
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if record.AvatarHash == "" && record.Email != "" {
		record.AvatarHash = AvatarHash(record.Email)
	}
}
