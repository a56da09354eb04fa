package messagequeue

import (
	"encoding/json"
	"fmt"
)

// WebhookDeliverPayload is the schema for magnus.webhook.deliver messages.
type WebhookDeliverPayload struct {
	DeliveryID string          `json:"delivery_id"`
	AgentID    string          `json:"agent_id"`
	SessionID  string          `json:"session_id"`
	URL        string          `json:"url"`
	Payload    json.RawMessage `json:"payload"`
}

// EmailSendPayload is the schema for magnus.email.send messages.
type EmailSendPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects pass validation.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	var target any
	switch subject {
	case SubjectWebhookDeliver:
		target = &WebhookDeliverPayload{}
	case SubjectEmailSend:
		target = &EmailSendPayload{}
	default:
		return nil
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	return nil
}
