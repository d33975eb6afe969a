package flasky

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

type ConfirmAccountMessage struct {
	UserID     uuid.UUID `json:"user_id"`
	Token      string    `json:"token"`
	OnResponse func(resp *ConfirmAccountResponse)
}

func (e ConfirmAccountMessage) Type() string { return "user.confirm_account" }

type ConfirmAccountResponse struct {
	User    *User
	Success bool
}

// ConfirmAccountHandler finishes the registration flow: it verifies the
// emailed token and flips the confirmed flag. Confirming an already
// confirmed account succeeds without touching the record.
type ConfirmAccountHandler struct {
	repo        RepositoryManager
	credentials *Credentials
	logger      Logger
}

// NewConfirmAccountHandler creates a handler with sane defaults.
func NewConfirmAccountHandler(repo RepositoryManager, credentials *Credentials) *ConfirmAccountHandler {
	return &ConfirmAccountHandler{
		repo:        repo,
		credentials: credentials,
		logger:      defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *ConfirmAccountHandler) WithLogger(logger Logger) *ConfirmAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ConfirmAccountHandler) Execute(ctx context.Context, event ConfirmAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account confirmation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ConfirmAccountHandler) execute(ctx context.Context, event ConfirmAccountMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.repo.Users().GetByID(ctx, event.UserID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return goerrors.Wrap(ErrNotFound, goerrors.CategoryNotFound, "user not found").
				WithCode(goerrors.CodeNotFound)
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for confirmation")
	}

	resp := &ConfirmAccountResponse{User: user}

	if user.Confirmed {
		resp.Success = true
		if event.OnResponse != nil {
			event.OnResponse(resp)
		}
		return nil
	}

	if ok := h.credentials.Confirm(ctx, user, event.Token); !ok {
		return goerrors.New("confirmation link is invalid or has expired", goerrors.CategoryValidation).
			WithTextCode("TOKEN_INVALID")
	}

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

// ResendConfirmationMessage asks for a fresh confirmation mail for an
// account that has not confirmed yet.
type ResendConfirmationMessage struct {
	UserID     uuid.UUID `json:"user_id"`
	OnResponse func(token string)
}

func (e ResendConfirmationMessage) Type() string { return "user.resend_confirmation" }

type ResendConfirmationHandler struct {
	repo        RepositoryManager
	credentials *Credentials
	mailer      Mailer
	cfg         Config
	logger      Logger
}

// NewResendConfirmationHandler creates a handler with sane defaults.
func NewResendConfirmationHandler(repo RepositoryManager, credentials *Credentials, cfg Config) *ResendConfirmationHandler {
	return &ResendConfirmationHandler{
		repo:        repo,
		credentials: credentials,
		mailer:      noopMailer{},
		cfg:         cfg,
		logger:      defLogger{},
	}
}

// WithMailer sets the outbound mail collaborator.
func (h *ResendConfirmationHandler) WithMailer(mailer Mailer) *ResendConfirmationHandler {
	h.mailer = normalizeMailer(mailer)
	return h
}

func (h *ResendConfirmationHandler) Execute(ctx context.Context, event ResendConfirmationMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.repo.Users().GetByID(ctx, event.UserID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return goerrors.Wrap(ErrNotFound, goerrors.CategoryNotFound, "user not found").
				WithCode(goerrors.CodeNotFound)
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user")
	}

	if user.Confirmed {
		return goerrors.New("account is already confirmed", goerrors.CategoryConflict)
	}

	token, err := h.credentials.GenerateConfirmationToken(user)
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

	if event.OnResponse != nil {
		event.OnResponse(token)
	}

	return nil
}
