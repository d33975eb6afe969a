package flasky

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ContentService gates post and comment writes behind the permission
// model and serves the paginated read paths with the configured page
// sizes.
type ContentService struct {
	repo   RepositoryManager
	graph  *FollowGraph
	cfg    Config
	clock  Clock
	logger Logger
}

// NewContentService wires the content operations to their collaborators.
func NewContentService(repo RepositoryManager, graph *FollowGraph, cfg Config) *ContentService {
	return &ContentService{
		repo:   repo,
		graph:  graph,
		cfg:    cfg,
		clock:  systemClock{},
		logger: defLogger{},
	}
}

// WithClock overrides the timestamp source.
func (s *ContentService) WithClock(clock Clock) *ContentService {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// WithLogger overrides the logger.
func (s *ContentService) WithLogger(logger Logger) *ContentService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// CreatePost publishes a new article. The author needs the
// write-articles permission on a confirmed account.
func (s *ContentService) CreatePost(ctx context.Context, author *User, body string) (*Post, error) {
	if err := AuthorizeConfirmed(author, PermissionWriteArticles); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	post := &Post{
		AuthorID:  author.ID,
		Author:    author,
		CreatedAt: &now,
	}
	post.SetBody(body)

	created, err := s.repo.Posts().Create(ctx, post)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create post")
	}

	return created, nil
}

// EditPost replaces the body, recomputing the sanitized rendering. Only
// the author or an administrator may edit.
func (s *ContentService) EditPost(ctx context.Context, actor *User, postID uuid.UUID, body string) (*Post, error) {
	post, err := s.repo.Posts().GetByID(ctx, postID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve post")
	}

	if actor == nil || (actor.ID != post.AuthorID && !actor.IsAdministrator()) {
		return nil, ErrInsufficientPermission
	}

	post.SetBody(body)
	updated, err := s.repo.Posts().Update(ctx, post)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update post")
	}

	return updated, nil
}

// CreateComment replies to a post. The author needs the comment
// permission on a confirmed account.
func (s *ContentService) CreateComment(ctx context.Context, author *User, postID uuid.UUID, body string) (*Comment, error) {
	if err := AuthorizeConfirmed(author, PermissionComment); err != nil {
		return nil, err
	}

	if _, err := s.repo.Posts().GetByID(ctx, postID); err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve post")
	}

	now := s.clock.Now()
	comment := &Comment{
		AuthorID:  author.ID,
		Author:    author,
		PostID:    postID,
		CreatedAt: &now,
	}
	comment.SetBody(body)

	created, err := s.repo.Comments().Create(ctx, comment)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create comment")
	}

	return created, nil
}

// ModerateComment flips the disabled flag. The actor needs the
// moderate-comments permission.
func (s *ContentService) ModerateComment(ctx context.Context, actor *User, commentID uuid.UUID, disabled bool) error {
	if err := Authorize(actor, PermissionModerateComments); err != nil {
		return err
	}

	if _, err := s.repo.Comments().GetByID(ctx, commentID); err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrNotFound
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve comment")
	}

	if err := s.repo.Comments().SetDisabled(ctx, commentID, disabled); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update comment moderation flag")
	}

	return nil
}

// ListPosts pages through every post, newest first.
func (s *ContentService) ListPosts(ctx context.Context, page int) (Page[*Post], error) {
	return PaginateSource(ctx, repoSource[*Post]{
		count: s.repo.Posts().Count,
		slice: s.repo.Posts().List,
	}, page, s.cfg.GetPostsPerPage())
}

// ListPostsByAuthor pages through one user's posts, newest first.
func (s *ContentService) ListPostsByAuthor(ctx context.Context, author *User, page int) (Page[*Post], error) {
	ids := []uuid.UUID{author.ID}
	return PaginateSource(ctx, repoSource[*Post]{
		count: func(ctx context.Context) (int, error) {
			return s.repo.Posts().CountByAuthors(ctx, ids)
		},
		slice: func(ctx context.Context, offset, limit int) ([]*Post, error) {
			return s.repo.Posts().ListByAuthors(ctx, ids, offset, limit)
		},
	}, page, s.cfg.GetPostsPerPage())
}

// ListComments pages through one post's comments in conversation order.
func (s *ContentService) ListComments(ctx context.Context, postID uuid.UUID, page int) (Page[*Comment], error) {
	return PaginateSource(ctx, repoSource[*Comment]{
		count: func(ctx context.Context) (int, error) {
			return s.repo.Comments().CountByPost(ctx, postID)
		},
		slice: func(ctx context.Context, offset, limit int) ([]*Comment, error) {
			return s.repo.Comments().ListByPost(ctx, postID, offset, limit)
		},
	}, page, s.cfg.GetCommentsPerPage())
}

// Feed pages through the posts of everyone the user follows, including
// their own.
func (s *ContentService) Feed(ctx context.Context, user *User, page int) (Page[*Post], error) {
	return s.graph.FollowedPosts(ctx, user, page, s.cfg.GetPostsPerPage())
}

// ListFollowers pages through the ids of users following user, oldest
// edge first.
func (s *ContentService) ListFollowers(ctx context.Context, user *User, page int) (Page[uuid.UUID], error) {
	ids, err := s.graph.Followers(ctx, user)
	if err != nil {
		return Page[uuid.UUID]{}, err
	}
	return Paginate(ids, page, s.cfg.GetFollowersPerPage()), nil
}

// DeleteUser removes the account and every follow edge touching it,
// both directions, in one transaction. Posts and comments survive with
// a dangling author reference.
func (s *ContentService) DeleteUser(ctx context.Context, actor Principal, user *User) error {
	if actor == nil || !actor.IsAdministrator() {
		return ErrInsufficientPermission
	}

	return s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := s.repo.Follows().DeleteAllForTx(ctx, tx, user.ID); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to remove follow edges")
		}
		if err := s.repo.Users().DeleteTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete user")
		}
		return nil
	})
}

// repoSource adapts count/slice closures to the pagination engine.
type repoSource[T any] struct {
	count func(ctx context.Context) (int, error)
	slice func(ctx context.Context, offset, limit int) ([]T, error)
}

func (s repoSource[T]) Count(ctx context.Context) (int, error) {
	return s.count(ctx)
}

func (s repoSource[T]) Slice(ctx context.Context, offset, limit int) ([]T, error) {
	return s.slice(ctx, offset, limit)
}
