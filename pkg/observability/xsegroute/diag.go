package xsegroute

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/omeyang/xseglog/pkg/observability/xsegment"
)

// KeyWriterID 写者代际 ID 的诊断属性键
const KeyWriterID = "writer_id"

// KeyName 注册名称的诊断属性键
const KeyName = "name"

// 丢弃原因，用于 xseglog.lines.dropped 的 reason 维度
const (
	ReasonQueueFull   = "queue_full"
	ReasonClosed      = "closed"
	ReasonUnavailable = "unavailable"
	ReasonRemote      = "remote"
)

// dropReason 把丢弃错误映射到指标维度。
func dropReason(err error) string {
	switch {
	case errors.Is(err, ErrQueueFull):
		return ReasonQueueFull
	case errors.Is(err, ErrWriterClosed):
		return ReasonClosed
	case errors.Is(err, ErrUnavailable):
		return ReasonUnavailable
	default:
		return ReasonRemote
	}
}

func defaultLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// reporter 路由层诊断通道，与 xsegment 的诊断通道共用属性键。
type reporter struct {
	logger  *slog.Logger
	onError func(error)
}

func newReporter(o options, attrs ...any) *reporter {
	return &reporter{
		logger:  o.logger.With(append([]any{slog.String(xsegment.KeyComponent, "xsegroute")}, attrs...)...),
		onError: o.onError,
	}
}

func (r *reporter) report(err error, attrs ...slog.Attr) {
	if err == nil {
		return
	}
	all := make([]slog.Attr, 0, len(attrs)+1)
	all = append(all, slog.Any(xsegment.KeyError, err))
	all = append(all, attrs...)
	r.logger.LogAttrs(context.Background(), slog.LevelError, "segment log routing failure", all...)

	if r.onError == nil {
		return
	}
	defer func() { recover() }() //nolint:errcheck // recover 返回值无需检查
	r.onError(err)
}
