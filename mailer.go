package flasky

import (
	"context"
)

// Mail template keys recognized by the delivery layer
const (
	MailTemplateConfirm       = "auth/email/confirm"
	MailTemplateResetPassword = "auth/email/reset_password"
	MailTemplateChangeEmail   = "auth/email/change_email"
)

// Mailer delivers workflow notifications. The core supplies only the
// recipient, a flow-identifying subject, and template context including
// the issued token; rendering and transport live outside this module.
type Mailer interface {
	Send(ctx context.Context, to, subject, templateKey string, contextFields map[string]any) error
}

type noopMailer struct{}

func (noopMailer) Send(context.Context, string, string, string, map[string]any) error {
	return nil
}

// logMailer prints outbound mail instead of delivering it. Useful in
// examples and local development.
type logMailer struct {
	logger Logger
}

// NewLogMailer returns a Mailer that logs instead of sending.
func NewLogMailer(logger Logger) Mailer {
	if logger == nil {
		logger = defLogger{}
	}
	return logMailer{logger: logger}
}

func (m logMailer) Send(_ context.Context, to, subject, templateKey string, contextFields map[string]any) error {
	m.logger.Info("mail to=%s subject=%q template=%s token=%v", to, subject, templateKey, contextFields["token"])
	return nil
}

func normalizeMailer(m Mailer) Mailer {
	if m == nil {
		return noopMailer{}
	}
	return m
}
