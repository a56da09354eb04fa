// Package engine talks to the external agent-orchestration engine over the
// A2A protocol. Agent cards are resolved once and cached; each turn dials a
// fresh protocol client from the cached card.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2aclient"
	"github.com/a2aproject/a2a-go/a2aclient/agentcard"

	"github.com/victorgrein/magnus-ai-sub001/internal/adapter/cache"
	"github.com/victorgrein/magnus-ai-sub001/internal/config"
)

// Reply is the final result of one blocking engine turn.
type Reply struct {
	Message string
	Raw     json.RawMessage
}

// Client dispatches chat turns to remote agents.
type Client struct {
	cards   cache.Cache
	cardTTL time.Duration
	timeout time.Duration
}

// New creates an engine client. The cache holds marshaled agent cards keyed
// by card URL so repeated turns skip the well-known endpoint fetch.
func New(cards cache.Cache, cfg config.Engine) *Client {
	return &Client{
		cards:   cards,
		cardTTL: cfg.CardTTL,
		timeout: cfg.Timeout,
	}
}

// Send runs one blocking chat turn against the agent behind cardURL. The
// sessionID travels as the A2A context id so the remote agent can correlate
// turns.
func (c *Client) Send(ctx context.Context, cardURL, sessionID, text string) (*Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cl, err := c.dial(ctx, cardURL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cl.Destroy() }()

	msg := a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: text})
	msg.ContextID = sessionID

	result, err := cl.SendMessage(ctx, &a2a.MessageSendParams{Message: msg})
	if err != nil {
		return nil, fmt.Errorf("engine send: %w", err)
	}

	raw, _ := json.Marshal(result)
	switch r := result.(type) {
	case *a2a.Message:
		return &Reply{Message: TextFromParts(r.Parts), Raw: raw}, nil
	case *a2a.Task:
		return &Reply{Message: textFromTask(r), Raw: raw}, nil
	default:
		return &Reply{Raw: raw}, nil
	}
}

// Stream runs a streaming chat turn, calling fn once per text delta. fn
// returning an error aborts the stream and propagates the error.
func (c *Client) Stream(ctx context.Context, cardURL, sessionID, text string, fn func(delta string, raw json.RawMessage) error) error {
	cl, err := c.dial(ctx, cardURL)
	if err != nil {
		return err
	}
	defer func() { _ = cl.Destroy() }()

	msg := a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: text})
	msg.ContextID = sessionID

	for event, err := range cl.SendStreamingMessage(ctx, &a2a.MessageSendParams{Message: msg}) {
		if err != nil {
			return fmt.Errorf("engine stream: %w", err)
		}

		delta := deltaFromEvent(event)
		if delta == "" {
			continue
		}
		raw, _ := json.Marshal(event)
		if err := fn(delta, raw); err != nil {
			return err
		}
	}
	return nil
}

// dial resolves the agent card, consulting the cache first, and builds a
// protocol client from it.
func (c *Client) dial(ctx context.Context, cardURL string) (*a2aclient.Client, error) {
	card, err := c.resolveCard(ctx, cardURL)
	if err != nil {
		return nil, err
	}

	cl, err := a2aclient.NewFromCard(ctx, card)
	if err != nil {
		return nil, fmt.Errorf("create engine client for %s: %w", cardURL, err)
	}
	return cl, nil
}

func (c *Client) resolveCard(ctx context.Context, cardURL string) (*a2a.AgentCard, error) {
	if c.cards != nil {
		if data, ok, err := c.cards.Get(ctx, "card:"+cardURL); err == nil && ok {
			var card a2a.AgentCard
			if err := json.Unmarshal(data, &card); err == nil {
				return &card, nil
			}
		}
	}

	card, err := agentcard.DefaultResolver.Resolve(ctx, cardURL)
	if err != nil {
		return nil, fmt.Errorf("resolve agent card %s: %w", cardURL, err)
	}

	if c.cards != nil {
		if data, err := json.Marshal(card); err == nil {
			if err := c.cards.Set(ctx, "card:"+cardURL, data, c.cardTTL); err != nil {
				slog.Debug("agent card cache set failed", "url", cardURL, "error", err)
			}
		}
	}
	return card, nil
}

// TextFromParts concatenates the text content of a part list.
func TextFromParts(parts []a2a.Part) string {
	var out string
	for _, p := range parts {
		switch tp := p.(type) {
		case a2a.TextPart:
			out += tp.Text
		case *a2a.TextPart:
			out += tp.Text
		}
	}
	return out
}

// textFromTask extracts the agent reply from a completed task: artifact
// parts first, falling back to the final status message.
func textFromTask(t *a2a.Task) string {
	var out string
	for _, art := range t.Artifacts {
		out += TextFromParts(art.Parts)
	}
	if out == "" && t.Status.Message != nil {
		out = TextFromParts(t.Status.Message.Parts)
	}
	return out
}

// deltaFromEvent extracts streamable text from one A2A event.
func deltaFromEvent(event a2a.Event) string {
	switch e := event.(type) {
	case *a2a.Message:
		return TextFromParts(e.Parts)
	case *a2a.TaskStatusUpdateEvent:
		if e.Status.Message != nil {
			return TextFromParts(e.Status.Message.Parts)
		}
	case *a2a.TaskArtifactUpdateEvent:
		return TextFromParts(e.Artifact.Parts)
	}
	return ""
}
