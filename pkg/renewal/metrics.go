package renewal

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const (
	outcomeSuccess     = "success"
	outcomeFailure     = "failure"
	outcomeUnavailable = "unavailable"
)

type metrics struct {
	count metric.Int64Counter
	joins metric.Int64Counter
}

func newMetrics() *metrics {
	meter := otel.Meter("session-client/renewal", metric.WithInstrumentationVersion(otel.Version()))
	noopMeter := noop.NewMeterProvider().Meter("")

	count, err := meter.Int64Counter(
		"renewal.count",
		metric.WithDescription("Credential renewal calls by outcome"),
		metric.WithUnit("renewal"),
	)
	if err != nil {
		count, _ = noopMeter.Int64Counter("renewal.count")
	}

	joins, err := meter.Int64Counter(
		"renewal.joined",
		metric.WithDescription("Callers that joined a renewal in flight"),
		metric.WithUnit("caller"),
	)
	if err != nil {
		joins, _ = noopMeter.Int64Counter("renewal.joined")
	}

	return &metrics{count: count, joins: joins}
}

func (m *metrics) outcome(ctx context.Context, outcome string) {
	m.count.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *metrics) joined(ctx context.Context) {
	m.joins.Add(ctx, 1)
}
