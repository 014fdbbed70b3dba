package xsegment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/omeyang/xseglog/pkg/util/xfile"

	"gopkg.in/natefinch/lumberjack.v2"
)

// 诊断属性键
const (
	KeyComponent = "component"
	KeyDirectory = "directory"
	KeySegment   = "segment"
	KeyIndex     = "index"
	KeyError     = "error"
	KeyKind      = "kind"
)

// 错误种类，用于诊断属性和指标维度
const (
	KindConfig    = "config"
	KindIO        = "io"
	KindInvariant = "invariant"
	KindOther     = "other"
)

// ErrorKind 返回错误对应的种类，用于诊断和指标分类。
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrNotDirectory),
		errors.Is(err, ErrEmptyDirectory),
		errors.Is(err, ErrInvalidMaxFileCount),
		errors.Is(err, ErrInvalidMaxFileLength),
		errors.Is(err, ErrInvalidFileMode):
		return KindConfig
	case errors.Is(err, ErrSegmentIO):
		return KindIO
	case errors.Is(err, ErrNoActiveSegment), errors.Is(err, ErrClosed):
		return KindInvariant
	default:
		return KindOther
	}
}

// defaultDiagnosticsLogger 返回直接写 os.Stderr 的诊断 logger。
//
// 设计决策: 不使用 slog.Default()。应用常把默认 logger 的输出接到本引擎上，
// 若诊断也走默认 logger，写失败 → 记诊断 → 再写失败会形成回环。
func defaultDiagnosticsLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// reporter 诊断通道：结构化日志 + 可选回调 + 错误计数。
type reporter struct {
	logger  *slog.Logger
	onError func(error)
	metrics *engineMetrics
}

// report 上报错误。err 为 nil 时不做任何事。
func (r *reporter) report(err error, attrs ...slog.Attr) {
	if err == nil {
		return
	}
	kind := ErrorKind(err)
	r.metrics.recordError(kind)

	all := make([]slog.Attr, 0, len(attrs)+2)
	all = append(all, slog.String(KeyKind, kind), slog.Any(KeyError, err))
	all = append(all, attrs...)
	r.logger.LogAttrs(context.Background(), slog.LevelError, "segment log failure", all...)

	r.callback(err)
}

// callback 调用错误回调，回调 panic 被 recover 隔离，防止诊断通知反向中断写入流程。
func (r *reporter) callback(err error) {
	if r.onError == nil {
		return
	}
	defer func() { recover() }() //nolint:errcheck // recover 返回值无需检查
	r.onError(err)
}

// =============================================================================
// 诊断文件
// =============================================================================

// DiagnosticsFile 诊断文件配置
type DiagnosticsFile struct {
	// Path 诊断文件路径（必需），不能位于段目录内且不能命名为 log_<N>.log
	Path string

	// MaxSizeMB 单个诊断文件最大大小（MB），0 表示 10
	MaxSizeMB int

	// MaxBackups 保留的诊断备份数量，0 表示 3
	MaxBackups int

	// Compress 是否 gzip 压缩诊断备份
	Compress bool
}

// NewFileDiagnostics 创建写入按大小轮转文件的诊断 logger。
//
// 返回的 io.Closer 用于关闭底层文件。诊断文件由 lumberjack 管理，
// 与段日志完全独立，可安全地作为 [WithLogger] 的参数。
func NewFileDiagnostics(df DiagnosticsFile) (*slog.Logger, io.Closer, error) {
	if df.Path == "" {
		return nil, nil, fmt.Errorf("%w: diagnostics path is required", ErrLoadConfig)
	}
	if _, ok := ParseSegmentName(filepath.Base(df.Path)); ok {
		return nil, nil, fmt.Errorf("%w: diagnostics file %q collides with segment naming",
			ErrLoadConfig, df.Path)
	}
	if err := xfile.EnsureDirectory(filepath.Dir(df.Path), xfile.DefaultDirPerm); err != nil {
		return nil, nil, err
	}
	if df.MaxSizeMB <= 0 {
		df.MaxSizeMB = 10
	}
	if df.MaxBackups <= 0 {
		df.MaxBackups = 3
	}

	lj := &lumberjack.Logger{
		Filename:   df.Path,
		MaxSize:    df.MaxSizeMB,
		MaxBackups: df.MaxBackups,
		Compress:   df.Compress,
	}
	logger := slog.New(slog.NewJSONHandler(lj, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return logger, lj, nil
}
