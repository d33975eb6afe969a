package flasky

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

type InitializeEmailChangeMessage struct {
	UserID     uuid.UUID `json:"user_id"`
	NewEmail   string    `json:"new_email"`
	Password   string    `json:"password"`
	OnResponse func(token string)
}

func (e InitializeEmailChangeMessage) Type() string { return "user.email_change" }

// Validate checks the message fields.
func (e InitializeEmailChangeMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.NewEmail, validation.Required, is.Email),
		validation.Field(&e.Password, validation.Required),
	)
}

// InitializeEmailChangeHandler re-authenticates the user, rejects
// candidate addresses that are already registered, and mails a token
// carrying the new address to it.
type InitializeEmailChangeHandler struct {
	repo        RepositoryManager
	credentials *Credentials
	mailer      Mailer
	cfg         Config
	logger      Logger
}

// NewInitializeEmailChangeHandler creates a handler with sane defaults.
func NewInitializeEmailChangeHandler(repo RepositoryManager, credentials *Credentials, cfg Config) *InitializeEmailChangeHandler {
	return &InitializeEmailChangeHandler{
		repo:        repo,
		credentials: credentials,
		mailer:      noopMailer{},
		cfg:         cfg,
		logger:      defLogger{},
	}
}

// WithMailer sets the outbound mail collaborator.
func (h *InitializeEmailChangeHandler) WithMailer(mailer Mailer) *InitializeEmailChangeHandler {
	h.mailer = normalizeMailer(mailer)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *InitializeEmailChangeHandler) WithLogger(logger Logger) *InitializeEmailChangeHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializeEmailChangeHandler) Execute(ctx context.Context, event InitializeEmailChangeMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email change initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializeEmailChangeHandler) execute(ctx context.Context, event InitializeEmailChangeMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid email change input")
	}

	user, err := h.repo.Users().GetByID(ctx, event.UserID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return goerrors.Wrap(ErrNotFound, goerrors.CategoryNotFound, "user not found").
				WithCode(goerrors.CodeNotFound)
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for email change")
	}

	if !user.VerifyPassword(event.Password) {
		return goerrors.New("invalid password", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}

	if _, err := h.repo.Users().GetByEmail(ctx, event.NewEmail); err == nil {
		return goerrors.Wrap(ErrDuplicateIdentity, goerrors.CategoryConflict, "email already registered").
			WithTextCode("DUPLICATE_IDENTITY")
	} else if !repository.IsRecordNotFound(err) {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed email uniqueness check")
	}

	token, err := h.credentials.GenerateEmailChangeToken(user, event.NewEmail)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue email change token")
	}

	subject := h.cfg.GetMailSubjectPrefix() + " Confirm Your Email Address"
	if err := h.mailer.Send(ctx, event.NewEmail, subject, MailTemplateChangeEmail, map[string]any{
		"username": user.Username,
		"token":    token,
	}); err != nil {
		h.logger.Warn("failed to deliver email change mail: %v", err)
	}

	if event.OnResponse != nil {
		event.OnResponse(token)
	}

	return nil
}

type FinalizeEmailChangeMessage struct {
	UserID uuid.UUID `json:"user_id"`
	Token  string    `json:"token"`
}

func (e FinalizeEmailChangeMessage) Type() string { return "user.email_change_finalize" }

// FinalizeEmailChangeHandler verifies the token and commits the new
// address. A candidate claimed by a different user in the meantime is
// rejected even with a valid token.
type FinalizeEmailChangeHandler struct {
	repo        RepositoryManager
	credentials *Credentials
	logger      Logger
}

// NewFinalizeEmailChangeHandler creates a handler with sane defaults.
func NewFinalizeEmailChangeHandler(repo RepositoryManager, credentials *Credentials) *FinalizeEmailChangeHandler {
	return &FinalizeEmailChangeHandler{
		repo:        repo,
		credentials: credentials,
		logger:      defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *FinalizeEmailChangeHandler) WithLogger(logger Logger) *FinalizeEmailChangeHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *FinalizeEmailChangeHandler) Execute(ctx context.Context, event FinalizeEmailChangeMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email change finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizeEmailChangeHandler) execute(ctx context.Context, event FinalizeEmailChangeMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.repo.Users().GetByID(ctx, event.UserID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return goerrors.Wrap(ErrNotFound, goerrors.CategoryNotFound, "user not found").
				WithCode(goerrors.CodeNotFound)
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for email change")
	}

	if ok := h.credentials.ChangeEmail(ctx, user, event.Token); !ok {
		return goerrors.New("email change token is invalid, expired, or the address is taken", goerrors.CategoryValidation).
			WithTextCode("TOKEN_INVALID")
	}

	return nil
}
