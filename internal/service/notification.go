package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/victorgrein/magnus-ai-sub001/internal/port/messagequeue"
	"github.com/victorgrein/magnus-ai-sub001/internal/port/notifier"
)

// NotificationService moves operational emails through the message queue so
// request handlers never block on SMTP.
type NotificationService struct {
	queue    messagequeue.Queue
	notifier notifier.Notifier
}

// NewNotificationService creates a new notification service.
func NewNotificationService(queue messagequeue.Queue, n notifier.Notifier) *NotificationService {
	return &NotificationService{queue: queue, notifier: n}
}

// Enqueue publishes one email job.
func (s *NotificationService) Enqueue(ctx context.Context, to, subject, body string) error {
	data, err := json.Marshal(messagequeue.EmailSendPayload{
		To:      to,
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		return fmt.Errorf("marshal email job: %w", err)
	}
	return s.queue.Publish(ctx, messagequeue.SubjectEmailSend, data)
}

// Start binds the email consumer. The returned stop function unsubscribes.
func (s *NotificationService) Start(ctx context.Context) (func(), error) {
	return s.queue.Subscribe(ctx, messagequeue.SubjectEmailSend, s.handle)
}

func (s *NotificationService) handle(ctx context.Context, _ string, data []byte) error {
	var job messagequeue.EmailSendPayload
	if err := json.Unmarshal(data, &job); err != nil {
		slog.Error("dropping malformed email job", "error", err)
		return nil
	}

	if s.notifier == nil || !s.notifier.Enabled() {
		slog.Debug("email disabled, dropping job", "to", job.To, "subject", job.Subject)
		return nil
	}

	if err := s.notifier.Send(ctx, job.To, job.Subject, job.Body); err != nil {
		return fmt.Errorf("send email to %s: %w", job.To, err)
	}
	return nil
}
