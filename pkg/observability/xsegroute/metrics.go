package xsegroute

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// MeterName 本包使用的 OpenTelemetry Meter 名称。
const MeterName = "github.com/omeyang/xseglog/xsegroute"

// 指标名称
const (
	MetricLinesDropped = "xseglog.lines.dropped"
	MetricLinesQueued  = "xseglog.lines.queued"
)

// routeMetrics 路由层指标。所有方法对 nil 接收者安全。
type routeMetrics struct {
	dropped metric.Int64Counter
	queued  metric.Int64Counter
	attrs   attribute.Set
}

func newRouteMetrics(mp metric.MeterProvider, name string) *routeMetrics {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(MeterName)
	fallback := noop.Meter{}

	dropped, err := meter.Int64Counter(MetricLinesDropped,
		metric.WithDescription("lines dropped before reaching the writer"),
		metric.WithUnit("1"),
	)
	if err != nil {
		dropped, _ = fallback.Int64Counter(MetricLinesDropped)
	}
	queued, err := meter.Int64Counter(MetricLinesQueued,
		metric.WithDescription("lines accepted into a writer inbox"),
		metric.WithUnit("1"),
	)
	if err != nil {
		queued, _ = fallback.Int64Counter(MetricLinesQueued)
	}

	return &routeMetrics{
		dropped: dropped,
		queued:  queued,
		attrs:   attribute.NewSet(attribute.String(KeyName, name)),
	}
}

func (m *routeMetrics) recordDrop(reason string) {
	if m == nil {
		return
	}
	m.dropped.Add(context.Background(), 1,
		metric.WithAttributeSet(m.attrs),
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

func (m *routeMetrics) recordQueued() {
	if m == nil {
		return
	}
	m.queued.Add(context.Background(), 1, metric.WithAttributeSet(m.attrs))
}
