package flasky_test

import (
	"context"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	flasky "github.com/peter14f/flasky"
	"github.com/stretchr/testify/assert"
)

type workflowFixture struct {
	repo   *fakeRepoManager
	tokens *flasky.TokenServiceImpl
	creds  *flasky.Credentials
	mailer *recordingMailer
	clock  *fakeClock
	cfg    *flasky.SimpleConfig
}

func newWorkflowFixture(t *testing.T) *workflowFixture {
	t.Helper()
	clock := newFakeClock()
	cfg := testConfig()
	repo := newFakeRepoManager()
	tokens := flasky.NewTokenService(cfg, clock, nil)

	assert.NoError(t, flasky.SeedRoles(context.Background(), repo.Roles()))

	return &workflowFixture{
		repo:   repo,
		tokens: tokens,
		creds:  flasky.NewCredentials(repo.Users(), tokens),
		mailer: &recordingMailer{},
		clock:  clock,
		cfg:    cfg,
	}
}

func (f *workflowFixture) register(t *testing.T, email, username, password string) *flasky.RegisterUserResponse {
	t.Helper()
	handler := flasky.NewRegisterUserHandler(f.repo, f.tokens, f.cfg).WithMailer(f.mailer)

	var resp *flasky.RegisterUserResponse
	err := handler.Execute(context.Background(), flasky.RegisterUserMessage{
		Email:    email,
		Username: username,
		Password: password,
		OnResponse: func(r *flasky.RegisterUserResponse) {
			resp = r
		},
	})
	assert.NoError(t, err)
	assert.NotNil(t, resp)
	return resp
}

func errCategory(t *testing.T, err error) goerrors.Category {
	t.Helper()
	var richErr *goerrors.Error
	assert.True(t, goerrors.As(err, &richErr), "expected a categorized error, got %v", err)
	return richErr.Category
}

func TestRegisterUserHandler(t *testing.T) {
	ctx := context.Background()
	fix := newWorkflowFixture(t)

	resp := fix.register(t, "john@example.com", "john", "fluffy-bunnies")
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.Token)

	user, err := fix.repo.Users().GetByEmail(ctx, "john@example.com")
	assert.NoError(t, err)
	assert.Equal(t, "john", user.Username)
	assert.False(t, user.Confirmed)
	assert.True(t, user.VerifyPassword("fluffy-bunnies"))

	// default role assigned
	role, err := fix.repo.Roles().GetByID(ctx, user.RoleID)
	assert.NoError(t, err)
	assert.Equal(t, flasky.RoleNameUser, role.Name)

	// self-follow edge created alongside the account
	self, err := fix.repo.Follows().Exists(ctx, user.ID, user.ID)
	assert.NoError(t, err)
	assert.True(t, self)

	// confirmation mail carries the token
	assert.Len(t, fix.mailer.sent, 1)
	assert.Equal(t, "john@example.com", fix.mailer.sent[0].To)
	assert.Equal(t, "[Flasky] Confirm Your Account", fix.mailer.sent[0].Subject)
	assert.Equal(t, resp.Token, fix.mailer.sent[0].Fields["token"])
}

func TestRegisterUserHandler_AdminEmailGetsAdministrator(t *testing.T) {
	ctx := context.Background()
	fix := newWorkflowFixture(t)
	fix.cfg.AdminEmail = "flasky@example.com"

	resp := fix.register(t, "flasky@example.com", "boss", "fluffy-bunnies")

	role, err := fix.repo.Roles().GetByID(ctx, resp.User.RoleID)
	assert.NoError(t, err)
	assert.Equal(t, flasky.RoleNameAdministrator, role.Name)
	assert.True(t, resp.User.IsAdministrator())
}

func TestRegisterUserHandler_UsernameDerivedFromEmail(t *testing.T) {
	fix := newWorkflowFixture(t)

	resp := fix.register(t, "susan@example.org", "", "fluffy-bunnies")
	assert.Equal(t, "susan", resp.User.Username)
}

func TestRegisterUserHandler_DuplicateEmail(t *testing.T) {
	fix := newWorkflowFixture(t)
	fix.register(t, "john@example.com", "john", "fluffy-bunnies")

	handler := flasky.NewRegisterUserHandler(fix.repo, fix.tokens, fix.cfg)
	err := handler.Execute(context.Background(), flasky.RegisterUserMessage{
		Email:    "john@example.com",
		Username: "john2",
		Password: "fluffy-bunnies",
	})

	assert.ErrorIs(t, err, flasky.ErrDuplicateIdentity)
	assert.Equal(t, goerrors.CategoryConflict, errCategory(t, err))
}

func TestRegisterUserHandler_DuplicateUsername(t *testing.T) {
	fix := newWorkflowFixture(t)
	fix.register(t, "john@example.com", "john", "fluffy-bunnies")

	handler := flasky.NewRegisterUserHandler(fix.repo, fix.tokens, fix.cfg)
	err := handler.Execute(context.Background(), flasky.RegisterUserMessage{
		Email:    "john2@example.com",
		Username: "john",
		Password: "fluffy-bunnies",
	})

	assert.ErrorIs(t, err, flasky.ErrDuplicateIdentity)
	assert.Equal(t, goerrors.CategoryConflict, errCategory(t, err))
}

func TestRegisterUserHandler_RejectsInvalidInput(t *testing.T) {
	fix := newWorkflowFixture(t)
	handler := flasky.NewRegisterUserHandler(fix.repo, fix.tokens, fix.cfg)

	tests := []struct {
		name  string
		event flasky.RegisterUserMessage
	}{
		{
			name:  "missing email",
			event: flasky.RegisterUserMessage{Username: "john", Password: "fluffy-bunnies"},
		},
		{
			name:  "malformed email",
			event: flasky.RegisterUserMessage{Email: "not-an-email", Username: "john", Password: "fluffy-bunnies"},
		},
		{
			name:  "short password",
			event: flasky.RegisterUserMessage{Email: "john@example.com", Username: "john", Password: "cat"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := handler.Execute(context.Background(), tt.event)
			assert.Error(t, err)
			assert.Equal(t, goerrors.CategoryBadInput, errCategory(t, err))
		})
	}
}

func TestRegisterUserHandler_MissingRoles(t *testing.T) {
	fix := newWorkflowFixture(t)
	fix.repo.roles = newFakeRoles() // nothing seeded

	handler := flasky.NewRegisterUserHandler(fix.repo, fix.tokens, fix.cfg)
	err := handler.Execute(context.Background(), flasky.RegisterUserMessage{
		Email:    "john@example.com",
		Username: "john",
		Password: "fluffy-bunnies",
	})

	assert.Error(t, err)
	assert.Equal(t, goerrors.CategoryInternal, errCategory(t, err))
}
