package xsegment

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// MeterName 本包使用的 OpenTelemetry Meter 名称。
const MeterName = "github.com/omeyang/xseglog/xsegment"

// 指标名称
const (
	MetricLinesWritten = "xseglog.lines.written"
	MetricBytesWritten = "xseglog.bytes.written"
	MetricRotations    = "xseglog.rotations"
	MetricEvictions    = "xseglog.evictions"
	MetricErrors       = "xseglog.errors"
	MetricSegments     = "xseglog.segments"
)

// engineMetrics 引擎指标。所有方法对 nil 接收者安全。
type engineMetrics struct {
	lines     metric.Int64Counter
	bytes     metric.Int64Counter
	rotations metric.Int64Counter
	evictions metric.Int64Counter
	errors    metric.Int64Counter
	segments  metric.Int64UpDownCounter
	attrs     attribute.Set
}

// newEngineMetrics 创建引擎指标。
//
// 设计决策: 指标创建失败不影响日志写入，逐个回退到 noop 实现。
func newEngineMetrics(mp metric.MeterProvider, directory string) *engineMetrics {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(MeterName)
	fallback := noop.Meter{}

	counter := func(name, desc, unit string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
		if err != nil {
			c, _ = fallback.Int64Counter(name)
		}
		return c
	}

	segments, err := meter.Int64UpDownCounter(MetricSegments,
		metric.WithDescription("retained segments"),
		metric.WithUnit("1"),
	)
	if err != nil {
		segments, _ = fallback.Int64UpDownCounter(MetricSegments)
	}

	return &engineMetrics{
		lines:     counter(MetricLinesWritten, "lines appended to segments", "1"),
		bytes:     counter(MetricBytesWritten, "bytes appended to segments", "By"),
		rotations: counter(MetricRotations, "segments created", "1"),
		evictions: counter(MetricEvictions, "segments evicted", "1"),
		errors:    counter(MetricErrors, "errors reported to diagnostics", "1"),
		segments:  segments,
		attrs:     attribute.NewSet(attribute.String(KeyDirectory, directory)),
	}
}

func (m *engineMetrics) recordWrite(n int) {
	if m == nil {
		return
	}
	ctx := context.Background()
	set := metric.WithAttributeSet(m.attrs)
	m.lines.Add(ctx, 1, set)
	m.bytes.Add(ctx, int64(n), set)
}

func (m *engineMetrics) recordRotation() {
	if m == nil {
		return
	}
	m.rotations.Add(context.Background(), 1, metric.WithAttributeSet(m.attrs))
}

func (m *engineMetrics) recordEviction() {
	if m == nil {
		return
	}
	m.evictions.Add(context.Background(), 1, metric.WithAttributeSet(m.attrs))
}

func (m *engineMetrics) recordSegments(delta int64) {
	if m == nil || delta == 0 {
		return
	}
	m.segments.Add(context.Background(), delta, metric.WithAttributeSet(m.attrs))
}

func (m *engineMetrics) recordError(kind string) {
	if m == nil {
		return
	}
	m.errors.Add(context.Background(), 1,
		metric.WithAttributeSet(m.attrs),
		metric.WithAttributes(attribute.String(KeyKind, kind)),
	)
}
