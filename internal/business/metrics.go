package business

import (
	"context"
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/openkcm/common-sdk/pkg/otlp"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/openkcm/session-client/internal/config"
)

type probeMetrics struct {
	app     commoncfg.Application
	counter metric.Int64Counter
	hist    metric.Int64Histogram
}

func newProbeMetrics(ctx context.Context, cfg *config.Config) (*probeMetrics, error) {
	meter := otel.Meter(
		"session-client/"+cfg.Application.Name,
		metric.WithInstrumentationVersion(otel.Version()),
		metric.WithInstrumentationAttributes(otlp.CreateAttributesFrom(cfg.Application)...),
	)

	counter, err := meter.Int64Counter(
		"probe.request_count",
		metric.WithDescription("Probe request count by category"),
		metric.WithUnit("request"),
	)
	if err != nil {
		return nil, oops.In("Probe").
			WithContext(ctx).
			Wrapf(err, "creating request_count meter")
	}

	hist, err := meter.Int64Histogram(
		"probe.duration",
		metric.WithDescription("Probe request end to end duration"),
		metric.WithUnit("milliseconds"),
	)
	if err != nil {
		return nil, oops.In("Probe").
			WithContext(ctx).
			Wrapf(err, "creating duration meter")
	}

	return &probeMetrics{app: cfg.Application, counter: counter, hist: hist}, nil
}

func (m *probeMetrics) record(ctx context.Context, path, category string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		otlp.CreateAttributesFrom(m.app,
			attribute.String("path", path),
			attribute.String("category", category),
		)...,
	)

	m.counter.Add(ctx, 1, attrs)
	m.hist.Record(ctx, elapsed.Milliseconds(), attrs)
}
