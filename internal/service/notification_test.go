package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/victorgrein/magnus-ai-sub001/internal/port/messagequeue"
)

type recordingNotifier struct {
	enabled bool
	sent    []string
	err     error
}

func (n *recordingNotifier) Enabled() bool { return n.enabled }

func (n *recordingNotifier) Send(_ context.Context, to, subject, _ string) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, to+": "+subject)
	return nil
}

func TestNotificationEnqueue(t *testing.T) {
	queue := newFakeQueue()
	svc := NewNotificationService(queue, &recordingNotifier{enabled: true})

	if err := svc.Enqueue(context.Background(), "user@example.com", "Welcome", "hi"); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	jobs := queue.published[messagequeue.SubjectEmailSend]
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(jobs))
	}
	var job messagequeue.EmailSendPayload
	if err := json.Unmarshal(jobs[0], &job); err != nil {
		t.Fatalf("unmarshal job: %v", err)
	}
	if job.To != "user@example.com" || job.Subject != "Welcome" {
		t.Errorf("job = %+v", job)
	}
}

func TestNotificationHandle(t *testing.T) {
	n := &recordingNotifier{enabled: true}
	svc := NewNotificationService(newFakeQueue(), n)

	data, _ := json.Marshal(messagequeue.EmailSendPayload{To: "user@example.com", Subject: "Hi", Body: "b"})
	if err := svc.handle(context.Background(), messagequeue.SubjectEmailSend, data); err != nil {
		t.Fatalf("handle() error = %v", err)
	}
	if len(n.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(n.sent))
	}
}

func TestNotificationHandleMalformedDropped(t *testing.T) {
	svc := NewNotificationService(newFakeQueue(), &recordingNotifier{enabled: true})
	if err := svc.handle(context.Background(), messagequeue.SubjectEmailSend, []byte("broken")); err != nil {
		t.Errorf("handle() malformed error = %v, want nil (dropped)", err)
	}
}

func TestNotificationHandleDisabledDropped(t *testing.T) {
	n := &recordingNotifier{enabled: false}
	svc := NewNotificationService(newFakeQueue(), n)

	data, _ := json.Marshal(messagequeue.EmailSendPayload{To: "user@example.com"})
	if err := svc.handle(context.Background(), messagequeue.SubjectEmailSend, data); err != nil {
		t.Errorf("handle() disabled error = %v, want nil (dropped)", err)
	}
	if len(n.sent) != 0 {
		t.Errorf("sent = %d, want 0", len(n.sent))
	}
}

func TestNotificationHandleSendFailureRetries(t *testing.T) {
	n := &recordingNotifier{enabled: true, err: errors.New("smtp: 451 try again")}
	svc := NewNotificationService(newFakeQueue(), n)

	data, _ := json.Marshal(messagequeue.EmailSendPayload{To: "user@example.com"})
	if err := svc.handle(context.Background(), messagequeue.SubjectEmailSend, data); err == nil {
		t.Error("handle() error = nil, want error for redelivery")
	}
}
