package xsegment

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
)

// Option 引擎配置选项函数
type Option func(*options)

type options struct {
	logger        *slog.Logger
	onError       func(error)
	meterProvider metric.MeterProvider
}

// WithLogger 设置诊断日志记录器
//
// 默认输出到 os.Stderr。诊断日志必须与被管理的日志流相互独立：
// 不要传入最终写回同一 Engine 的 logger，否则写失败会触发回环。
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithOnError 设置错误回调函数
//
// 每个上报到诊断通道的错误都会同步调用此回调。回调 panic 会被隔离。
// 回调不得向同一 Engine 写入数据。
func WithOnError(fn func(error)) Option {
	return func(o *options) {
		o.onError = fn
	}
}

// WithMeterProvider 设置 OpenTelemetry MeterProvider
//
// 默认使用 otel.GetMeterProvider()。
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}
