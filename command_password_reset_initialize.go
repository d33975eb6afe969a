package flasky

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

type InitializePasswordResetMessage struct {
	Email      string `json:"email"`
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (e InitializePasswordResetMessage) Type() string { return "user.password_reset" }

// Validate checks the message fields.
func (e InitializePasswordResetMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.Email),
	)
}

type InitializePasswordResetResponse struct {
	// Token is set only when the address resolved to an account. The
	// response shape is identical either way so callers cannot probe
	// which addresses are registered.
	Token   string
	Success bool
}

// InitializePasswordResetHandler issues a reset token and mails it to
// the account owner. Unknown addresses succeed silently.
type InitializePasswordResetHandler struct {
	repo        RepositoryManager
	credentials *Credentials
	mailer      Mailer
	cfg         Config
	logger      Logger
}

// NewInitializePasswordResetHandler creates a handler with sane defaults.
func NewInitializePasswordResetHandler(repo RepositoryManager, credentials *Credentials, cfg Config) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		repo:        repo,
		credentials: credentials,
		mailer:      noopMailer{},
		cfg:         cfg,
		logger:      defLogger{},
	}
}

// WithMailer sets the outbound mail collaborator.
func (h *InitializePasswordResetHandler) WithMailer(mailer Mailer) *InitializePasswordResetHandler {
	h.mailer = normalizeMailer(mailer)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	resp := &InitializePasswordResetResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid password reset input")
	}

	user, err := h.repo.Users().GetByEmail(ctx, event.Email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			resp.Success = true
			if event.OnResponse != nil {
				event.OnResponse(resp)
			}
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for password reset")
	}

	token, err := h.credentials.GenerateResetToken(user)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue reset token")
	}

	subject := h.cfg.GetMailSubjectPrefix() + " Reset Your Password"
	if err := h.mailer.Send(ctx, user.Email, subject, MailTemplateResetPassword, map[string]any{
		"username": user.Username,
		"token":    token,
	}); err != nil {
		h.logger.Warn("failed to deliver reset mail: %v", err)
	}

	resp.Token = token
	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
