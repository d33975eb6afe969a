package flasky

import (
	"context"
	"database/sql"
	"errors"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Comments is the persistence boundary for replies. Per-post listings
// are oldest first, matching conversation order.
type Comments interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Comment, error)
	Create(ctx context.Context, comment *Comment) (*Comment, error)
	Update(ctx context.Context, comment *Comment) (*Comment, error)
	SetDisabled(ctx context.Context, id uuid.UUID, disabled bool) error
	Count(ctx context.Context) (int, error)
	List(ctx context.Context, offset, limit int) ([]*Comment, error)
	CountByPost(ctx context.Context, postID uuid.UUID) (int, error)
	ListByPost(ctx context.Context, postID uuid.UUID, offset, limit int) ([]*Comment, error)
}

type comments struct {
	repository.Repository[*Comment]
	db *bun.DB
}

var _ Comments = (*comments)(nil)

func NewCommentsRepository(db *bun.DB) Comments {
	repo := repository.NewRepository[*Comment](db, repository.ModelHandlers[*Comment]{
		NewRecord: func() *Comment { return &Comment{} },
		GetID: func(c *Comment) uuid.UUID {
			if c == nil {
				return uuid.Nil
			}
			return c.ID
		},
		SetID: func(c *Comment, id uuid.UUID) {
			if c != nil {
				c.ID = id
			}
		},
	})

	return &comments{
		Repository: repo,
		db:         db,
	}
}

func (a *comments) GetByID(ctx context.Context, id uuid.UUID) (*Comment, error) {
	record := &Comment{}
	err := a.db.NewSelect().
		Model(record).
		Relation("Author").
		Where("?TableAlias.id = ?", id.String()).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"id": id.String()})
		}
		return nil, err
	}

	return record, nil
}

func (a *comments) Create(ctx context.Context, comment *Comment) (*Comment, error) {
	if comment.ID == uuid.Nil {
		comment.ID = uuid.New()
	}
	return a.Repository.CreateTx(ctx, a.db, comment)
}

func (a *comments) Update(ctx context.Context, comment *Comment) (*Comment, error) {
	return a.Repository.UpdateTx(ctx, a.db, comment, repository.UpdateByID(comment.ID.String()))
}

// SetDisabled flips the moderation flag without touching the body.
func (a *comments) SetDisabled(ctx context.Context, id uuid.UUID, disabled bool) error {
	_, err := a.db.NewUpdate().
		Model((*Comment)(nil)).
		Set("disabled = ?", disabled).
		Where("?TableAlias.id = ?", id.String()).
		Exec(ctx)
	return err
}

func (a *comments) Count(ctx context.Context) (int, error) {
	return a.db.NewSelect().Model((*Comment)(nil)).Count(ctx)
}

func (a *comments) List(ctx context.Context, offset, limit int) ([]*Comment, error) {
	var records []*Comment
	err := a.db.NewSelect().
		Model(&records).
		Relation("Author").
		Order("cmt.created_at DESC").
		Order("cmt.id ASC").
		Offset(offset).
		Limit(limit).
		Scan(ctx)
	return records, err
}

func (a *comments) CountByPost(ctx context.Context, postID uuid.UUID) (int, error) {
	return a.db.NewSelect().
		Model((*Comment)(nil)).
		Where("?TableAlias.post_id = ?", postID.String()).
		Count(ctx)
}

func (a *comments) ListByPost(ctx context.Context, postID uuid.UUID, offset, limit int) ([]*Comment, error) {
	var records []*Comment
	err := a.db.NewSelect().
		Model(&records).
		Relation("Author").
		Where("?TableAlias.post_id = ?", postID.String()).
		Order("cmt.created_at ASC").
		Order("cmt.id ASC").
		Offset(offset).
		Limit(limit).
		Scan(ctx)
	return records, err
}
