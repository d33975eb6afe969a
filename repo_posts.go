package flasky

import (
	"context"
	"database/sql"
	"errors"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Posts is the persistence boundary for articles. Listings are ordered
// newest first with the id as a deterministic tiebreak; counts pair
// with the slice methods so the pagination engine never loads a full
// collection.
type Posts interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Post, error)
	Create(ctx context.Context, post *Post) (*Post, error)
	CreateTx(ctx context.Context, tx bun.IDB, post *Post) (*Post, error)
	Update(ctx context.Context, post *Post) (*Post, error)
	Delete(ctx context.Context, post *Post) error
	Count(ctx context.Context) (int, error)
	List(ctx context.Context, offset, limit int) ([]*Post, error)
	CountByAuthors(ctx context.Context, authorIDs []uuid.UUID) (int, error)
	ListByAuthors(ctx context.Context, authorIDs []uuid.UUID, offset, limit int) ([]*Post, error)
}

type posts struct {
	repository.Repository[*Post]
	db *bun.DB
}

var _ Posts = (*posts)(nil)

func NewPostsRepository(db *bun.DB) Posts {
	repo := repository.NewRepository[*Post](db, repository.ModelHandlers[*Post]{
		NewRecord: func() *Post { return &Post{} },
		GetID: func(p *Post) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			return p.ID
		},
		SetID: func(p *Post, id uuid.UUID) {
			if p != nil {
				p.ID = id
			}
		},
	})

	return &posts{
		Repository: repo,
		db:         db,
	}
}

func (a *posts) GetByID(ctx context.Context, id uuid.UUID) (*Post, error) {
	record := &Post{}
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

func (a *posts) Create(ctx context.Context, post *Post) (*Post, error) {
	return a.CreateTx(ctx, a.db, post)
}

func (a *posts) CreateTx(ctx context.Context, tx bun.IDB, post *Post) (*Post, error) {
	if post.ID == uuid.Nil {
		post.ID = uuid.New()
	}
	return a.Repository.CreateTx(ctx, tx, post)
}

func (a *posts) Update(ctx context.Context, post *Post) (*Post, error) {
	return a.Repository.UpdateTx(ctx, a.db, post, repository.UpdateByID(post.ID.String()))
}

func (a *posts) Delete(ctx context.Context, post *Post) error {
	_, err := a.db.NewDelete().
		Model((*Post)(nil)).
		Where("?TableAlias.id = ?", post.ID.String()).
		Exec(ctx)
	return err
}

func (a *posts) Count(ctx context.Context) (int, error) {
	return a.db.NewSelect().Model((*Post)(nil)).Count(ctx)
}

func (a *posts) List(ctx context.Context, offset, limit int) ([]*Post, error) {
	var records []*Post
	err := a.newListQuery(&records).
		Offset(offset).
		Limit(limit).
		Scan(ctx)
	return records, err
}

func (a *posts) CountByAuthors(ctx context.Context, authorIDs []uuid.UUID) (int, error) {
	if len(authorIDs) == 0 {
		return 0, nil
	}
	return a.db.NewSelect().
		Model((*Post)(nil)).
		Where("?TableAlias.author_id IN (?)", bun.In(idStrings(authorIDs))).
		Count(ctx)
}

func (a *posts) ListByAuthors(ctx context.Context, authorIDs []uuid.UUID, offset, limit int) ([]*Post, error) {
	if len(authorIDs) == 0 {
		return []*Post{}, nil
	}

	var records []*Post
	err := a.newListQuery(&records).
		Where("?TableAlias.author_id IN (?)", bun.In(idStrings(authorIDs))).
		Offset(offset).
		Limit(limit).
		Scan(ctx)
	return records, err
}

func (a *posts) newListQuery(records *[]*Post) *bun.SelectQuery {
	return a.db.NewSelect().
		Model(records).
		Relation("Author").
		Order("pst.created_at DESC").
		Order("pst.id ASC")
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
