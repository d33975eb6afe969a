package flasky

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

type RegisterUserMessage struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	Name      string `json:"name"`
	Location  string `json:"location"`
	UseHashid bool
	OnResponse func(resp *RegisterUserResponse)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

// Validate checks the message fields before any persistence work. An
// empty username is allowed; the handler derives one from the email
// local part.
func (e RegisterUserMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.Email),
		validation.Field(&e.Username, validation.Length(1, 64)),
		validation.Field(&e.Password, validation.Required, validation.Length(8, 128)),
	)
}

type RegisterUserResponse struct {
	User    *User
	Token   string
	Success bool
}

// RegisterUserHandler creates the account: default role assignment,
// password hash, self-follow edge, and the confirmation mail carrying a
// fresh token. All state changes commit in one transaction.
type RegisterUserHandler struct {
	repo   RepositoryManager
	tokens TokenService
	mailer Mailer
	cfg    Config
	logger Logger
}

// NewRegisterUserHandler creates a handler with sane defaults.
func NewRegisterUserHandler(repo RepositoryManager, tokens TokenService, cfg Config) *RegisterUserHandler {
	return &RegisterUserHandler{
		repo:   repo,
		tokens: tokens,
		mailer: noopMailer{},
		cfg:    cfg,
		logger: defLogger{},
	}
}

// WithMailer sets the outbound mail collaborator.
func (h *RegisterUserHandler) WithMailer(mailer Mailer) *RegisterUserHandler {
	h.mailer = normalizeMailer(mailer)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *RegisterUserHandler) WithLogger(logger Logger) *RegisterUserHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	resp := &RegisterUserResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid registration input")
	}

	user := &User{}
	username := getUsername(event.Username, event.Email)

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := h.repo.Users().GetByEmail(ctx, event.Email); err == nil {
			return goerrors.Wrap(ErrDuplicateIdentity, goerrors.CategoryConflict, "email already registered").
				WithTextCode("DUPLICATE_IDENTITY")
		} else if !repository.IsRecordNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed email uniqueness check")
		}

		if _, err := h.repo.Users().GetByUsername(ctx, username); err == nil {
			return goerrors.Wrap(ErrDuplicateIdentity, goerrors.CategoryConflict, "username already registered").
				WithTextCode("DUPLICATE_IDENTITY")
		} else if !repository.IsRecordNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed username uniqueness check")
		}

		role, err := h.resolveRole(ctx, event.Email)
		if err != nil {
			return err
		}

		user.Email = event.Email
		user.Username = username
		user.Name = event.Name
		user.Location = event.Location
		user.RoleID = role.ID
		user.Role = role
		if err := user.SetPassword(event.Password); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password provided")
		}
		if event.UseHashid {
			if id, err := hashid.NewUUID(event.Email); err == nil {
				user.ID = id
			}
		}

		if user, err = h.repo.Users().CreateTx(ctx, tx, user); err != nil {
			// the unique index may reject a duplicate the read above
			// raced past; surface it as an identity conflict
			return goerrors.Wrap(ErrDuplicateIdentity, goerrors.CategoryConflict, "could not create user").
				WithTextCode("DUPLICATE_IDENTITY").
				WithMetadata(map[string]any{"cause": err.Error()})
		}

		now := time.Now()
		selfEdge := &Follow{FollowerID: user.ID, FollowedID: user.ID, CreatedAt: &now}
		if _, err := h.repo.Follows().CreateTx(ctx, tx, selfEdge); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create self-follow edge")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	token, err := h.tokens.Issue(TokenPurposeConfirm, user.ID)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue confirmation token")
	}

	subject := h.cfg.GetMailSubjectPrefix() + " Confirm Your Account"
	if err := h.mailer.Send(ctx, user.Email, subject, MailTemplateConfirm, map[string]any{
		"username": user.Username,
		"token":    token,
	}); err != nil {
		h.logger.Warn("failed to deliver confirmation mail: %v", err)
	}

	resp.User = user
	resp.Token = token
	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

// resolveRole picks the Administrator role for the configured admin
// address and the default role for everyone else.
func (h *RegisterUserHandler) resolveRole(ctx context.Context, email string) (*Role, error) {
	if admin := h.cfg.GetAdminEmail(); admin != "" && strings.EqualFold(admin, email) {
		role, err := h.repo.Roles().GetByName(ctx, RoleNameAdministrator)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "administrator role missing")
		}
		return role, nil
	}

	role, err := h.repo.Roles().GetDefault(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "default role missing; run SeedRoles")
	}
	return role, nil
}

func getUsername(username, email string) string {
	if username != "" {
		return username
	}

	if strings.Contains(email, "@") {
		username = strings.Split(email, "@")[0]
	}

	return username
}
