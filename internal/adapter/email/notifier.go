// Package email sends transactional mail over SMTP: account verification
// links, password resets, and operational notifications.
package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"

	"github.com/victorgrein/magnus-ai-sub001/internal/config"
)

// Notifier sends email via a configured SMTP relay. When the email service
// is disabled, Send is a no-op so callers never need to branch.
type Notifier struct {
	cfg config.Email
}

// NewNotifier creates an SMTP notifier from service configuration.
func NewNotifier(cfg config.Email) *Notifier {
	return &Notifier{cfg: cfg}
}

// Enabled reports whether outbound mail is configured.
func (n *Notifier) Enabled() bool {
	return n.cfg.Enabled
}

// Send delivers a single HTML email.
func (n *Notifier) Send(_ context.Context, to, subject, body string) error {
	if !n.cfg.Enabled {
		return nil
	}

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		n.cfg.From, to, subject, body)

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	if n.cfg.UseTLS {
		return n.sendTLS(addr, auth, to, []byte(msg))
	}
	return smtp.SendMail(addr, auth, n.cfg.From, []string{to}, []byte(msg))
}

// sendTLS dials with an explicit TLS handshake for relays that do not offer
// STARTTLS on the plain port.
func (n *Notifier) sendTLS(addr string, auth smtp.Auth, to string, msg []byte) error {
	tlsConn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: n.cfg.Host})
	if err != nil {
		return fmt.Errorf("dial smtp tls: %w", err)
	}

	c, err := smtp.NewClient(tlsConn, n.cfg.Host)
	if err != nil {
		tlsConn.Close()
		return fmt.Errorf("smtp client: %w", err)
	}
	defer c.Close()

	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(n.cfg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}
	return c.Quit()
}
