package flasky

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

type FinalizePasswordResetMessage struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (e FinalizePasswordResetMessage) Type() string { return "user.password_reset_finalize" }

// FinalizePasswordResetHandler verifies a reset token and stores the
// new password hash. A failed verification leaves the account
// untouched.
type FinalizePasswordResetHandler struct {
	credentials *Credentials
	logger      Logger
	debug       bool
}

// NewFinalizePasswordResetHandler creates a handler with sane defaults.
func NewFinalizePasswordResetHandler(credentials *Credentials) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{
		credentials: credentials,
		logger:      defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// WithDebug enables payload dumps on rejected resets.
func (h *FinalizePasswordResetHandler) WithDebug(debug bool) *FinalizePasswordResetHandler {
	h.debug = debug
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if event.Password == "" {
		return goerrors.New("new password must not be empty", goerrors.CategoryBadInput)
	}

	if ok := h.credentials.ResetPassword(ctx, event.Token, event.Password); !ok {
		if h.debug {
			fmt.Println(print.MaybePrettyJSON(map[string]any{
				"event": event.Type(),
				"token": event.Token,
			}))
		}
		return goerrors.New("password reset token is invalid or has expired", goerrors.CategoryValidation).
			WithTextCode("TOKEN_INVALID")
	}

	return nil
}
