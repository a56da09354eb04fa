package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "magnus"

// StartChatSpan starts a span for a chat turn against the engine.
func StartChatSpan(ctx context.Context, agentID, sessionID string, streaming bool) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "chat.turn",
		trace.WithAttributes(
			attribute.String("agent.id", agentID),
			attribute.String("session.id", sessionID),
			attribute.Bool("chat.streaming", streaming),
		),
	)
}

// StartWebhookSpan starts a span for an outbound webhook delivery attempt.
func StartWebhookSpan(ctx context.Context, deliveryID, url string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "webhook.deliver",
		trace.WithAttributes(
			attribute.String("delivery.id", deliveryID),
			attribute.String("delivery.url", url),
		),
	)
}

// StartMCPProbeSpan starts a span for an MCP server connectivity probe.
func StartMCPProbeSpan(ctx context.Context, serverID, transport string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "mcp.probe",
		trace.WithAttributes(
			attribute.String("mcp.server_id", serverID),
			attribute.String("mcp.transport", transport),
		),
	)
}
