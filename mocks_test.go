package flasky_test

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	flasky "github.com/peter14f/flasky"
	"github.com/uptrace/bun"
)

// fakeClock is a settable Clock for deterministic expiry tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeUsers is an in-memory Users repository. Reads return copies and
// writes store copies, so records only change when a write commits.
type fakeUsers struct {
	mu      sync.Mutex
	records map[uuid.UUID]*flasky.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{records: map[uuid.UUID]*flasky.User{}}
}

func cloneUser(u *flasky.User) *flasky.User {
	c := *u
	return &c
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*flasky.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.records[id]; ok {
		return cloneUser(u), nil
	}
	return nil, repository.NewRecordNotFound()
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*flasky.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.records {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (f *fakeUsers) GetByUsername(_ context.Context, username string) (*flasky.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.records {
		if u.Username == username {
			return cloneUser(u), nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (f *fakeUsers) Create(ctx context.Context, user *flasky.User) (*flasky.User, error) {
	return f.CreateTx(ctx, nil, user)
}

func (f *fakeUsers) CreateTx(_ context.Context, _ bun.IDB, user *flasky.User) (*flasky.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.AvatarHash == "" && user.Email != "" {
		user.AvatarHash = flasky.AvatarHash(user.Email)
	}
	f.records[user.ID] = cloneUser(user)
	return cloneUser(user), nil
}

func (f *fakeUsers) Update(ctx context.Context, user *flasky.User) (*flasky.User, error) {
	return f.UpdateTx(ctx, nil, user)
}

func (f *fakeUsers) UpdateTx(_ context.Context, _ bun.IDB, user *flasky.User) (*flasky.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[user.ID]; !ok {
		return nil, repository.NewRecordNotFound()
	}
	f.records[user.ID] = cloneUser(user)
	return cloneUser(user), nil
}

func (f *fakeUsers) Delete(ctx context.Context, user *flasky.User) error {
	return f.DeleteTx(ctx, nil, user)
}

func (f *fakeUsers) DeleteTx(_ context.Context, _ bun.IDB, user *flasky.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, user.ID)
	return nil
}

func (f *fakeUsers) TrackSeen(_ context.Context, user *flasky.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if stored, ok := f.records[user.ID]; ok {
		stored.LastSeen = user.LastSeen
	}
	return nil
}

func (f *fakeUsers) List(_ context.Context, offset, limit int) ([]*flasky.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := make([]*flasky.User, 0, len(f.records))
	for _, u := range f.records {
		all = append(all, cloneUser(u))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Username < all[j].Username })
	return window(all, offset, limit), nil
}

func (f *fakeUsers) Count(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records), nil
}

// fakeRoles is an in-memory Roles repository.
type fakeRoles struct {
	mu      sync.Mutex
	records []*flasky.Role
}

func newFakeRoles() *fakeRoles { return &fakeRoles{} }

func cloneRole(r *flasky.Role) *flasky.Role {
	c := *r
	return &c
}

func (f *fakeRoles) GetByID(_ context.Context, id uuid.UUID) (*flasky.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ID == id {
			return cloneRole(r), nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (f *fakeRoles) GetByName(_ context.Context, name string) (*flasky.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.Name == name {
			return cloneRole(r), nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (f *fakeRoles) GetDefault(_ context.Context) (*flasky.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.IsDefault {
			return cloneRole(r), nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (f *fakeRoles) Create(_ context.Context, role *flasky.Role) (*flasky.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}
	f.records = append(f.records, cloneRole(role))
	return cloneRole(role), nil
}

func (f *fakeRoles) Update(_ context.Context, role *flasky.Role) (*flasky.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.records {
		if r.ID == role.ID {
			f.records[i] = cloneRole(role)
			return cloneRole(role), nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (f *fakeRoles) List(_ context.Context) ([]*flasky.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*flasky.Role, 0, len(f.records))
	for _, r := range f.records {
		out = append(out, cloneRole(r))
	}
	return out, nil
}

// fakePosts keeps posts newest first with insertion order as tiebreak.
type fakePosts struct {
	mu      sync.Mutex
	records []*flasky.Post
}

func newFakePosts() *fakePosts { return &fakePosts{} }

func clonePost(p *flasky.Post) *flasky.Post {
	c := *p
	return &c
}

func (f *fakePosts) GetByID(_ context.Context, id uuid.UUID) (*flasky.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.records {
		if p.ID == id {
			return clonePost(p), nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (f *fakePosts) Create(ctx context.Context, post *flasky.Post) (*flasky.Post, error) {
	return f.CreateTx(ctx, nil, post)
}

func (f *fakePosts) CreateTx(_ context.Context, _ bun.IDB, post *flasky.Post) (*flasky.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if post.ID == uuid.Nil {
		post.ID = uuid.New()
	}
	f.records = append(f.records, clonePost(post))
	return clonePost(post), nil
}

func (f *fakePosts) Update(_ context.Context, post *flasky.Post) (*flasky.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, p := range f.records {
		if p.ID == post.ID {
			f.records[i] = clonePost(post)
			return clonePost(post), nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (f *fakePosts) Delete(_ context.Context, post *flasky.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, p := range f.records {
		if p.ID == post.ID {
			f.records = append(f.records[:i], f.records[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakePosts) Count(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records), nil
}

func (f *fakePosts) List(_ context.Context, offset, limit int) ([]*flasky.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return window(f.sorted(f.records), offset, limit), nil
}

func (f *fakePosts) CountByAuthors(_ context.Context, authorIDs []uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byAuthors(authorIDs)), nil
}

func (f *fakePosts) ListByAuthors(_ context.Context, authorIDs []uuid.UUID, offset, limit int) ([]*flasky.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return window(f.sorted(f.byAuthors(authorIDs)), offset, limit), nil
}

func (f *fakePosts) byAuthors(authorIDs []uuid.UUID) []*flasky.Post {
	members := map[uuid.UUID]bool{}
	for _, id := range authorIDs {
		members[id] = true
	}
	var out []*flasky.Post
	for _, p := range f.records {
		if members[p.AuthorID] {
			out = append(out, p)
		}
	}
	return out
}

func (f *fakePosts) sorted(in []*flasky.Post) []*flasky.Post {
	index := map[uuid.UUID]int{}
	for i, p := range f.records {
		index[p.ID] = i
	}
	out := make([]*flasky.Post, 0, len(in))
	for _, p := range in {
		out = append(out, clonePost(p))
	}
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := out[i].CreatedAt, out[j].CreatedAt
		if ti != nil && tj != nil && !ti.Equal(*tj) {
			return ti.After(*tj)
		}
		return index[out[i].ID] < index[out[j].ID]
	})
	return out
}

// fakeComments keeps comments in conversation order per post.
type fakeComments struct {
	mu      sync.Mutex
	records []*flasky.Comment
}

func newFakeComments() *fakeComments { return &fakeComments{} }

func cloneComment(c *flasky.Comment) *flasky.Comment {
	cc := *c
	return &cc
}

func (f *fakeComments) GetByID(_ context.Context, id uuid.UUID) (*flasky.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.records {
		if c.ID == id {
			return cloneComment(c), nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (f *fakeComments) Create(_ context.Context, comment *flasky.Comment) (*flasky.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if comment.ID == uuid.Nil {
		comment.ID = uuid.New()
	}
	f.records = append(f.records, cloneComment(comment))
	return cloneComment(comment), nil
}

func (f *fakeComments) Update(_ context.Context, comment *flasky.Comment) (*flasky.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range f.records {
		if c.ID == comment.ID {
			f.records[i] = cloneComment(comment)
			return cloneComment(comment), nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (f *fakeComments) SetDisabled(_ context.Context, id uuid.UUID, disabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.records {
		if c.ID == id {
			c.Disabled = disabled
			return nil
		}
	}
	return repository.NewRecordNotFound()
}

func (f *fakeComments) Count(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records), nil
}

func (f *fakeComments) List(_ context.Context, offset, limit int) ([]*flasky.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*flasky.Comment, 0, len(f.records))
	for _, c := range f.records {
		out = append(out, cloneComment(c))
	}
	return window(out, offset, limit), nil
}

func (f *fakeComments) CountByPost(_ context.Context, postID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byPost(postID)), nil
}

func (f *fakeComments) ListByPost(_ context.Context, postID uuid.UUID, offset, limit int) ([]*flasky.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return window(f.byPost(postID), offset, limit), nil
}

func (f *fakeComments) byPost(postID uuid.UUID) []*flasky.Comment {
	var out []*flasky.Comment
	for _, c := range f.records {
		if c.PostID == postID {
			out = append(out, cloneComment(c))
		}
	}
	return out
}

// fakeFollows preserves edge insertion order.
type fakeFollows struct {
	mu    sync.Mutex
	edges []*flasky.Follow
}

func newFakeFollows() *fakeFollows { return &fakeFollows{} }

func (f *fakeFollows) Get(_ context.Context, followerID, followedID uuid.UUID) (*flasky.Follow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.edges {
		if e.FollowerID == followerID && e.FollowedID == followedID {
			c := *e
			return &c, nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (f *fakeFollows) Exists(_ context.Context, followerID, followedID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.edges {
		if e.FollowerID == followerID && e.FollowedID == followedID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeFollows) Create(ctx context.Context, edge *flasky.Follow) (*flasky.Follow, error) {
	return f.CreateTx(ctx, nil, edge)
}

func (f *fakeFollows) CreateTx(_ context.Context, _ bun.IDB, edge *flasky.Follow) (*flasky.Follow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *edge
	f.edges = append(f.edges, &c)
	return edge, nil
}

func (f *fakeFollows) Delete(_ context.Context, followerID, followedID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.edges {
		if e.FollowerID == followerID && e.FollowedID == followedID {
			f.edges = append(f.edges[:i], f.edges[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeFollows) DeleteAllFor(ctx context.Context, userID uuid.UUID) error {
	return f.DeleteAllForTx(ctx, nil, userID)
}

func (f *fakeFollows) DeleteAllForTx(_ context.Context, _ bun.IDB, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []*flasky.Follow
	for _, e := range f.edges {
		if e.FollowerID != userID && e.FollowedID != userID {
			kept = append(kept, e)
		}
	}
	f.edges = kept
	return nil
}

func (f *fakeFollows) FollowedIDs(_ context.Context, followerID uuid.UUID) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []uuid.UUID
	for _, e := range f.edges {
		if e.FollowerID == followerID {
			out = append(out, e.FollowedID)
		}
	}
	return out, nil
}

func (f *fakeFollows) FollowerIDs(_ context.Context, followedID uuid.UUID) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []uuid.UUID
	for _, e := range f.edges {
		if e.FollowedID == followedID {
			out = append(out, e.FollowerID)
		}
	}
	return out, nil
}

func (f *fakeFollows) CountFollowed(ctx context.Context, followerID uuid.UUID) (int, error) {
	ids, _ := f.FollowedIDs(ctx, followerID)
	return len(ids), nil
}

func (f *fakeFollows) CountFollowers(ctx context.Context, followedID uuid.UUID) (int, error) {
	ids, _ := f.FollowerIDs(ctx, followedID)
	return len(ids), nil
}

// fakeRepoManager bundles the fakes behind the RepositoryManager
// boundary; RunInTx executes the body directly.
type fakeRepoManager struct {
	users    *fakeUsers
	roles    *fakeRoles
	posts    *fakePosts
	comments *fakeComments
	follows  *fakeFollows
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		users:    newFakeUsers(),
		roles:    newFakeRoles(),
		posts:    newFakePosts(),
		comments: newFakeComments(),
		follows:  newFakeFollows(),
	}
}

func (m *fakeRepoManager) Validate() error { return nil }

func (m *fakeRepoManager) MustValidate() {}

func (m *fakeRepoManager) RunInTx(ctx context.Context, _ *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	var tx bun.Tx
	return f(ctx, tx)
}

func (m *fakeRepoManager) Users() flasky.Users { return m.users }

func (m *fakeRepoManager) Roles() flasky.Roles { return m.roles }

func (m *fakeRepoManager) Posts() flasky.Posts { return m.posts }

func (m *fakeRepoManager) Comments() flasky.Comments { return m.comments }

func (m *fakeRepoManager) Follows() flasky.Follows { return m.follows }

// recordingMailer captures outbound messages.
type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

type sentMail struct {
	To          string
	Subject     string
	TemplateKey string
	Fields      map[string]any
}

func (m *recordingMailer) Send(_ context.Context, to, subject, templateKey string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, TemplateKey: templateKey, Fields: fields})
	return nil
}

func window[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func testConfig() *flasky.SimpleConfig {
	return &flasky.SimpleConfig{
		SigningKey:        "test-signing-key",
		Issuer:            "flasky-test",
		MailSubjectPrefix: "[Flasky]",
		MailSender:        "Flasky Admin <flasky@example.com>",
	}
}
