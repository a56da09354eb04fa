package email

import (
	"context"
	"fmt"
	"net/url"
)

// Sender hands off one rendered email for delivery. The notification worker
// implements it with a queue publish so request handlers never wait on SMTP.
type Sender interface {
	Enqueue(ctx context.Context, to, subject, body string) error
}

// Mailer builds and sends the account emails: verification links and
// password resets. Links point at the externally visible app URL.
type Mailer struct {
	notifier *Notifier
	sender   Sender
	appURL   string
}

// NewMailer creates a Mailer on top of an SMTP notifier. With a nil sender
// emails go out synchronously through the notifier.
func NewMailer(notifier *Notifier, sender Sender, appURL string) *Mailer {
	return &Mailer{notifier: notifier, sender: sender, appURL: appURL}
}

// Enabled reports whether outbound mail is configured.
func (m *Mailer) Enabled() bool {
	return m.notifier.Enabled()
}

func (m *Mailer) dispatch(ctx context.Context, to, subject, body string) error {
	if m.sender != nil {
		return m.sender.Enqueue(ctx, to, subject, body)
	}
	return m.notifier.Send(ctx, to, subject, body)
}

// SendVerification sends the account verification email.
func (m *Mailer) SendVerification(ctx context.Context, to, token string) error {
	link := fmt.Sprintf("%s/verify-email?token=%s", m.appURL, url.QueryEscape(token))

	body := fmt.Sprintf(`<h2>Verify your email</h2>
<p>Welcome to Magnus. Click the link below to verify your account:</p>
<p><a href="%s">Verify email address</a></p>
<p>If you did not create this account, you can ignore this message.</p>`, link)

	if err := m.dispatch(ctx, to, "Verify your Magnus account", body); err != nil {
		return fmt.Errorf("send verification email to %s: %w", to, err)
	}
	return nil
}

// SendPasswordReset sends the password reset email.
func (m *Mailer) SendPasswordReset(ctx context.Context, to, token string) error {
	link := fmt.Sprintf("%s/reset-password?token=%s", m.appURL, url.QueryEscape(token))

	body := fmt.Sprintf(`<h2>Reset your password</h2>
<p>A password reset was requested for this account. Click the link below to choose a new password:</p>
<p><a href="%s">Reset password</a></p>
<p>The link expires shortly. If you did not request a reset, you can ignore this message.</p>`, link)

	if err := m.dispatch(ctx, to, "Reset your Magnus password", body); err != nil {
		return fmt.Errorf("send password reset email to %s: %w", to, err)
	}
	return nil
}

// SendAccountLocked notifies a user that repeated failed logins locked
// their account.
func (m *Mailer) SendAccountLocked(ctx context.Context, to string) error {
	body := `<h2>Account temporarily locked</h2>
<p>Too many failed login attempts were made on your account. It has been locked for a short period.</p>
<p>If this was not you, reset your password once the lock expires.</p>`

	if err := m.dispatch(ctx, to, "Your Magnus account was locked", body); err != nil {
		return fmt.Errorf("send lockout email to %s: %w", to, err)
	}
	return nil
}
