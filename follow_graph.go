package flasky

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// FollowGraph manages directed follow edges and composes the followed
// content feed. Every account keeps a reflexive self-follow edge so a
// user's feed always includes their own posts.
type FollowGraph struct {
	follows Follows
	posts   Posts
	clock   Clock
	logger  Logger
}

// NewFollowGraph wires the graph to its repositories.
func NewFollowGraph(follows Follows, posts Posts) *FollowGraph {
	return &FollowGraph{
		follows: follows,
		posts:   posts,
		clock:   systemClock{},
		logger:  defLogger{},
	}
}

// WithClock overrides the edge-timestamp source.
func (g *FollowGraph) WithClock(clock Clock) *FollowGraph {
	if clock != nil {
		g.clock = clock
	}
	return g
}

// WithLogger overrides the logger.
func (g *FollowGraph) WithLogger(logger Logger) *FollowGraph {
	if logger != nil {
		g.logger = logger
	}
	return g
}

// Follow inserts the directed edge follower -> followed. Inserting an
// edge that already exists is a no-op.
func (g *FollowGraph) Follow(ctx context.Context, follower, followed *User) error {
	exists, err := g.follows.Exists(ctx, follower.ID, followed.ID)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check follow edge")
	}
	if exists {
		return nil
	}

	now := g.clock.Now()
	edge := &Follow{
		FollowerID: follower.ID,
		FollowedID: followed.ID,
		CreatedAt:  &now,
	}

	if _, err := g.follows.Create(ctx, edge); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create follow edge")
	}

	return nil
}

// Unfollow removes the directed edge follower -> followed if present.
// The workflow layer never calls it with follower == followed; the
// self-follow edge only disappears when the account itself does.
func (g *FollowGraph) Unfollow(ctx context.Context, follower, followed *User) error {
	if err := g.follows.Delete(ctx, follower.ID, followed.ID); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete follow edge")
	}
	return nil
}

// IsFollowing reports whether a follows b.
func (g *FollowGraph) IsFollowing(ctx context.Context, a, b *User) (bool, error) {
	return g.follows.Exists(ctx, a.ID, b.ID)
}

// IsFollowedBy reports whether b follows a.
func (g *FollowGraph) IsFollowedBy(ctx context.Context, a, b *User) (bool, error) {
	return g.follows.Exists(ctx, b.ID, a.ID)
}

// EnsureSelfFollow inserts the reflexive edge for a freshly created
// account. Idempotent.
func (g *FollowGraph) EnsureSelfFollow(ctx context.Context, user *User) error {
	return g.Follow(ctx, user, user)
}

// RemoveUserEdges deletes every edge touching the user in either
// direction. Called when an account is deleted; the self-follow goes
// with the rest.
func (g *FollowGraph) RemoveUserEdges(ctx context.Context, user *User) error {
	if err := g.follows.DeleteAllFor(ctx, user.ID); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to remove follow edges")
	}
	return nil
}

// FollowedPosts pages through the posts authored by anyone the user
// follows, themselves included, newest first.
func (g *FollowGraph) FollowedPosts(ctx context.Context, user *User, page, perPage int) (Page[*Post], error) {
	authorIDs, err := g.follows.FollowedIDs(ctx, user.ID)
	if err != nil {
		return Page[*Post]{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve followed authors")
	}

	return PaginateSource(ctx, feedSource{posts: g.posts, authorIDs: authorIDs}, page, perPage)
}

// Followers lists the ids of users following user, oldest edge first.
func (g *FollowGraph) Followers(ctx context.Context, user *User) ([]uuid.UUID, error) {
	return g.follows.FollowerIDs(ctx, user.ID)
}

// Followed lists the ids user follows, themselves included.
func (g *FollowGraph) Followed(ctx context.Context, user *User) ([]uuid.UUID, error) {
	return g.follows.FollowedIDs(ctx, user.ID)
}

// feedSource adapts the posts repository to the pagination engine for a
// fixed author set.
type feedSource struct {
	posts     Posts
	authorIDs []uuid.UUID
}

var _ PageSource[*Post] = feedSource{}

func (s feedSource) Count(ctx context.Context) (int, error) {
	return s.posts.CountByAuthors(ctx, s.authorIDs)
}

func (s feedSource) Slice(ctx context.Context, offset, limit int) ([]*Post, error) {
	return s.posts.ListByAuthors(ctx, s.authorIDs, offset, limit)
}
