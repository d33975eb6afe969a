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

// Follows is the persistence boundary for the follow graph. Edges are
// keyed by the (follower, followed) pair, so this repository skips the
// uuid-keyed generic repository and queries bun directly.
type Follows interface {
	Get(ctx context.Context, followerID, followedID uuid.UUID) (*Follow, error)
	Exists(ctx context.Context, followerID, followedID uuid.UUID) (bool, error)
	Create(ctx context.Context, edge *Follow) (*Follow, error)
	CreateTx(ctx context.Context, tx bun.IDB, edge *Follow) (*Follow, error)
	Delete(ctx context.Context, followerID, followedID uuid.UUID) error
	DeleteAllFor(ctx context.Context, userID uuid.UUID) error
	DeleteAllForTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error
	FollowedIDs(ctx context.Context, followerID uuid.UUID) ([]uuid.UUID, error)
	FollowerIDs(ctx context.Context, followedID uuid.UUID) ([]uuid.UUID, error)
	CountFollowed(ctx context.Context, followerID uuid.UUID) (int, error)
	CountFollowers(ctx context.Context, followedID uuid.UUID) (int, error)
}

type follows struct {
	db *bun.DB
}

var _ Follows = (*follows)(nil)

func NewFollowsRepository(db *bun.DB) Follows {
	return &follows{db: db}
}

func (a *follows) Get(ctx context.Context, followerID, followedID uuid.UUID) (*Follow, error) {
	record := &Follow{}
	err := a.db.NewSelect().
		Model(record).
		Where("?TableAlias.follower_id = ?", followerID.String()).
		Where("?TableAlias.followed_id = ?", followedID.String()).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"follower_id": followerID.String(),
					"followed_id": followedID.String(),
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *follows) Exists(ctx context.Context, followerID, followedID uuid.UUID) (bool, error) {
	return a.db.NewSelect().
		Model((*Follow)(nil)).
		Where("?TableAlias.follower_id = ?", followerID.String()).
		Where("?TableAlias.followed_id = ?", followedID.String()).
		Exists(ctx)
}

func (a *follows) Create(ctx context.Context, edge *Follow) (*Follow, error) {
	return a.CreateTx(ctx, a.db, edge)
}

func (a *follows) CreateTx(ctx context.Context, tx bun.IDB, edge *Follow) (*Follow, error) {
	if edge.CreatedAt == nil {
		now := time.Now()
		edge.CreatedAt = &now
	}

	_, err := tx.NewInsert().
		Model(edge).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	return edge, nil
}

func (a *follows) Delete(ctx context.Context, followerID, followedID uuid.UUID) error {
	_, err := a.db.NewDelete().
		Model((*Follow)(nil)).
		Where("?TableAlias.follower_id = ?", followerID.String()).
		Where("?TableAlias.followed_id = ?", followedID.String()).
		Exec(ctx)
	return err
}

func (a *follows) DeleteAllFor(ctx context.Context, userID uuid.UUID) error {
	return a.DeleteAllForTx(ctx, a.db, userID)
}

// DeleteAllForTx removes every edge touching the user, in either
// direction, including the reflexive self-follow.
func (a *follows) DeleteAllForTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*Follow)(nil)).
		Where("?TableAlias.follower_id = ? OR ?TableAlias.followed_id = ?", userID.String(), userID.String()).
		Exec(ctx)
	return err
}

func (a *follows) FollowedIDs(ctx context.Context, followerID uuid.UUID) ([]uuid.UUID, error) {
	return a.edgeIDs(ctx, "follower_id", "followed_id", followerID)
}

func (a *follows) FollowerIDs(ctx context.Context, followedID uuid.UUID) ([]uuid.UUID, error) {
	return a.edgeIDs(ctx, "followed_id", "follower_id", followedID)
}

func (a *follows) edgeIDs(ctx context.Context, whereCol, selectCol string, id uuid.UUID) ([]uuid.UUID, error) {
	var raw []string
	err := a.db.NewSelect().
		Model((*Follow)(nil)).
		Column(selectCol).
		Where("?TableAlias."+whereCol+" = ?", id.String()).
		Order("created_at ASC").
		Scan(ctx, &raw)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		parsed, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, parsed)
	}

	return ids, nil
}

func (a *follows) CountFollowed(ctx context.Context, followerID uuid.UUID) (int, error) {
	return a.db.NewSelect().
		Model((*Follow)(nil)).
		Where("?TableAlias.follower_id = ?", followerID.String()).
		Count(ctx)
}

func (a *follows) CountFollowers(ctx context.Context, followedID uuid.UUID) (int, error) {
	return a.db.NewSelect().
		Model((*Follow)(nil)).
		Where("?TableAlias.followed_id = ?", followedID.String()).
		Count(ctx)
}
