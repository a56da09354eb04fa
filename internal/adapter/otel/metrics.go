package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "magnus"

// Metrics holds all Magnus metric instruments.
type Metrics struct {
	ChatRequests      metric.Int64Counter
	ChatFailures      metric.Int64Counter
	ChatDuration      metric.Float64Histogram
	WebhookDeliveries metric.Int64Counter
	WebhookFailures   metric.Int64Counter
	EventsAppended    metric.Int64Counter
	MCPProbes         metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.ChatRequests, err = meter.Int64Counter("magnus.chat.requests",
		metric.WithDescription("Number of chat turns dispatched to the engine"))
	if err != nil {
		return nil, err
	}

	m.ChatFailures, err = meter.Int64Counter("magnus.chat.failures",
		metric.WithDescription("Number of chat turns that failed"))
	if err != nil {
		return nil, err
	}

	m.ChatDuration, err = meter.Float64Histogram("magnus.chat.duration_seconds",
		metric.WithDescription("Chat turn duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.WebhookDeliveries, err = meter.Int64Counter("magnus.webhook.deliveries",
		metric.WithDescription("Number of outbound webhook deliveries attempted"))
	if err != nil {
		return nil, err
	}

	m.WebhookFailures, err = meter.Int64Counter("magnus.webhook.failures",
		metric.WithDescription("Number of outbound webhook deliveries that failed"))
	if err != nil {
		return nil, err
	}

	m.EventsAppended, err = meter.Int64Counter("magnus.session.events_appended",
		metric.WithDescription("Number of events appended to sessions"))
	if err != nil {
		return nil, err
	}

	m.MCPProbes, err = meter.Int64Counter("magnus.mcp.probes",
		metric.WithDescription("Number of MCP server connectivity probes"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
