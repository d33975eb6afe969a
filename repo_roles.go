package flasky

import (
	"context"
	"database/sql"
	"errors"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Roles is the persistence boundary for the role set.
type Roles interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Role, error)
	GetByName(ctx context.Context, name string) (*Role, error)
	GetDefault(ctx context.Context) (*Role, error)
	Create(ctx context.Context, role *Role) (*Role, error)
	Update(ctx context.Context, role *Role) (*Role, error)
	List(ctx context.Context) ([]*Role, error)
}

type roles struct {
	repository.Repository[*Role]
	db *bun.DB
}

var _ Roles = (*roles)(nil)

func NewRolesRepository(db *bun.DB) Roles {
	repo := repository.NewRepository[*Role](db, repository.ModelHandlers[*Role]{
		NewRecord: func() *Role { return &Role{} },
		GetID: func(r *Role) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *Role, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
		GetIdentifier: func() string {
			return "name"
		},
	})

	return &roles{
		Repository: repo,
		db:         db,
	}
}

func (a *roles) GetByID(ctx context.Context, id uuid.UUID) (*Role, error) {
	return a.getWhere(ctx, "?TableAlias.id = ?", id.String())
}

func (a *roles) GetByName(ctx context.Context, name string) (*Role, error) {
	return a.getWhere(ctx, "?TableAlias.name = ?", name)
}

func (a *roles) GetDefault(ctx context.Context) (*Role, error) {
	return a.getWhere(ctx, "?TableAlias.is_default = ?", true)
}

func (a *roles) getWhere(ctx context.Context, clause string, arg any) (*Role, error) {
	record := &Role{}
	err := a.db.NewSelect().
		Model(record).
		Where(clause, arg).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"clause": clause})
		}
		return nil, err
	}

	return record, nil
}

func (a *roles) Create(ctx context.Context, role *Role) (*Role, error) {
	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}
	return a.Repository.CreateTx(ctx, a.db, role)
}

func (a *roles) Update(ctx context.Context, role *Role) (*Role, error) {
	return a.Repository.UpdateTx(ctx, a.db, role, repository.UpdateByID(role.ID.String()))
}

func (a *roles) List(ctx context.Context) ([]*Role, error) {
	var records []*Role
	err := a.db.NewSelect().
		Model(&records).
		Order("name ASC").
		Scan(ctx)
	return records, err
}
