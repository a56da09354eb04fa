package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/victorgrein/magnus-ai-sub001/internal/adapter/nats"
	"github.com/victorgrein/magnus-ai-sub001/internal/adapter/ws"
	"github.com/victorgrein/magnus-ai-sub001/internal/config"
	"github.com/victorgrein/magnus-ai-sub001/internal/domain/webhook"
	"github.com/victorgrein/magnus-ai-sub001/internal/middleware"
	"github.com/victorgrein/magnus-ai-sub001/internal/port/broadcast"
	"github.com/victorgrein/magnus-ai-sub001/internal/port/messagequeue"
)

// WebhookDispatcher consumes queued webhook jobs and POSTs them to their
// target URL. Retries run on the queue's server-side backoff schedule;
// a rejected payload (4xx) is dropped instead of retried.
type WebhookDispatcher struct {
	queue  *nats.Queue
	agents *AgentService
	hub    broadcast.Broadcaster
	client *http.Client
	cfg    config.Webhook
}

// NewWebhookDispatcher creates a dispatcher. hub may be nil.
func NewWebhookDispatcher(queue *nats.Queue, agents *AgentService, hub broadcast.Broadcaster, cfg config.Webhook) *WebhookDispatcher {
	return &WebhookDispatcher{
		queue:  queue,
		agents: agents,
		hub:    hub,
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
	}
}

// Start binds the durable consumer. The returned stop function unsubscribes.
func (d *WebhookDispatcher) Start(ctx context.Context) (func(), error) {
	opts := nats.RetryOpts{
		Durable:    "webhook-dispatcher",
		MaxDeliver: d.cfg.MaxAttempts,
		Backoff:    backoffSchedule(d.cfg),
	}
	return d.queue.SubscribeRetry(ctx, messagequeue.SubjectWebhookDeliver, opts, d.handle)
}

func (d *WebhookDispatcher) handle(ctx context.Context, _ string, data []byte) error {
	var job messagequeue.WebhookDeliverPayload
	if err := json.Unmarshal(data, &job); err != nil {
		return fmt.Errorf("%w: malformed delivery job: %v", nats.ErrPermanent, err)
	}

	status, err := d.deliver(ctx, &job)
	if err != nil {
		d.broadcastResult(ctx, &job, err)
		return err
	}

	slog.Info("webhook delivered", "delivery_id", job.DeliveryID, "url", job.URL, "status", status)
	d.broadcastResult(ctx, &job, nil)
	return nil
}

// deliver runs one signed POST. Returns the HTTP status on success.
func (d *WebhookDispatcher) deliver(ctx context.Context, job *messagequeue.WebhookDeliverPayload) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, job.URL, bytes.NewReader(job.Payload))
	if err != nil {
		return 0, fmt.Errorf("%w: build request: %v", nats.ErrPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Magnus-Delivery", job.DeliveryID)
	if d.cfg.Secret != "" {
		req.Header.Set(webhook.SignatureHeader, middleware.SignHMAC(job.Payload, d.cfg.Secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("post %s: %w", job.URL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return resp.StatusCode, nil
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests:
		return 0, fmt.Errorf("post %s: status %d", job.URL, resp.StatusCode)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// The receiver rejected the payload, retrying cannot help.
		return 0, fmt.Errorf("%w: post %s: status %d", nats.ErrPermanent, job.URL, resp.StatusCode)
	default:
		return 0, fmt.Errorf("post %s: status %d", job.URL, resp.StatusCode)
	}
}

func (d *WebhookDispatcher) broadcastResult(ctx context.Context, job *messagequeue.WebhookDeliverPayload, err error) {
	if d.hub == nil {
		return
	}

	a, lookupErr := d.agents.GetForDispatch(ctx, job.AgentID)
	if lookupErr != nil {
		return
	}

	ev := ws.WebhookDeliveryEvent{
		DeliveryID: job.DeliveryID,
		AgentID:    job.AgentID,
		URL:        job.URL,
	}
	eventType := ws.EventWebhookDelivered
	if err != nil {
		ev.Error = err.Error()
		eventType = ws.EventWebhookFailed
	}
	d.hub.BroadcastEventToClient(ctx, a.ClientID, eventType, ev)
}

// backoffSchedule builds the exponential retry delays: base, 2x, 4x...
// capped at the configured maximum, one delay per retry. Each delay carries
// up to 20% random jitter so retries from parallel dispatchers spread out.
func backoffSchedule(cfg config.Webhook) []time.Duration {
	if cfg.MaxAttempts <= 1 {
		return nil
	}
	delays := make([]time.Duration, 0, cfg.MaxAttempts-1)
	d := cfg.BaseBackoff
	for i := 0; i < cfg.MaxAttempts-1; i++ {
		if d > cfg.MaxBackoff {
			d = cfg.MaxBackoff
		}
		delays = append(delays, d+rand.N(d/5+1))
		d *= 2
	}
	return delays
}
