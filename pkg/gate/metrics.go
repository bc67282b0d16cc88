package gate

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const (
	outcomeRenewed   = "renewed"
	outcomeRejected  = "rejected"
	outcomeStale     = "stale"
	outcomeQueueFull = "queue_full"
	outcomeRetried   = "already_retried"
)

type metrics struct {
	recoveries metric.Int64Counter
	queue      metric.Int64Counter
}

func newMetrics() *metrics {
	meter := otel.Meter("session-client/gate", metric.WithInstrumentationVersion(otel.Version()))
	noopMeter := noop.NewMeterProvider().Meter("")

	recoveries, err := meter.Int64Counter(
		"gate.auth_failure_count",
		metric.WithDescription("Requests rejected for authentication by recovery outcome"),
		metric.WithUnit("request"),
	)
	if err != nil {
		recoveries, _ = noopMeter.Int64Counter("gate.auth_failure_count")
	}

	queue, err := meter.Int64Counter(
		"gate.queued_count",
		metric.WithDescription("Requests queued behind a renewal"),
		metric.WithUnit("request"),
	)
	if err != nil {
		queue, _ = noopMeter.Int64Counter("gate.queued_count")
	}

	return &metrics{recoveries: recoveries, queue: queue}
}

func (m *metrics) recovery(ctx context.Context, outcome string) {
	m.recoveries.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *metrics) queued(ctx context.Context) {
	m.queue.Add(ctx, 1)
}
