// Package notifier defines the outbound notification port.
package notifier

import "context"

// Notifier delivers a single notification message to a recipient.
type Notifier interface {
	// Enabled reports whether delivery is configured.
	Enabled() bool

	// Send delivers one message.
	Send(ctx context.Context, to, subject, body string) error
}
