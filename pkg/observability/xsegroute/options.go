package xsegroute

import (
	"log/slog"

	"github.com/omeyang/xseglog/pkg/observability/xsegment"
	"go.opentelemetry.io/otel/metric"
)

// DefaultQueueSize 默认收件箱容量
const DefaultQueueSize = 4096

// Option 配置选项函数，用于 Initialize、GetHandle 和 NewUnixRegistry。
type Option func(*options)

type options struct {
	logger         *slog.Logger
	onError        func(error)
	meterProvider  metric.MeterProvider
	queueSize      int
	retirePrevious bool
	engineOptions  []xsegment.Option
}

func defaultOptions() options {
	return options{queueSize: DefaultQueueSize}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = defaultLogger()
	}
	return o
}

// WithLogger 设置诊断日志记录器
//
// 默认输出到 os.Stderr。不要传入写回同一写者的 logger。
// 该 logger 同时作为引擎的诊断 logger。
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithOnError 设置错误回调，路由层和引擎上报的错误都会调用它。
// 回调 panic 会被隔离；回调中不得写入同一写者。
func WithOnError(fn func(error)) Option {
	return func(o *options) {
		o.onError = fn
	}
}

// WithMeterProvider 设置 OpenTelemetry MeterProvider，同时传给引擎。
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}

// WithQueueSize 设置收件箱容量（默认 4096）。小于 1 时忽略。
//
// 对 UnixRegistry 而言，它同时是每个远端写入端的本地发送缓冲容量。
func WithQueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WithRetirePrevious 在新写者发布后关闭被替换的同进程旧写者。
//
// 默认关闭：旧写者继续运行，直到调用方显式 Close。
// 跨进程的旧写者无法由本进程终止，只会失去名称。
func WithRetirePrevious() Option {
	return func(o *options) {
		o.retirePrevious = true
	}
}

// WithEngineOptions 追加传给 xsegment.Open 的引擎选项，
// 在路由层派生的诊断和指标选项之后应用。
func WithEngineOptions(opts ...xsegment.Option) Option {
	return func(o *options) {
		o.engineOptions = append(o.engineOptions, opts...)
	}
}
