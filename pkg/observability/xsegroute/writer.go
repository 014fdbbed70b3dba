package xsegroute

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/omeyang/xseglog/pkg/observability/xsegment"
)

// Writer 持有 xsegment.Engine 的单写者上下文。
//
// Writer 本身是一个 [Endpoint]：Send 把行投递到收件箱，由唯一的引擎
// goroutine 按序写入。Writer 并发安全。
type Writer struct {
	id   string
	name string
	reg  Registry

	inbox   *inbox
	diag    *reporter
	metrics *routeMetrics

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// 编译时断言
var _ Endpoint = (*Writer)(nil)

// Initialize 启动写者并以 name 发布到注册表
//
// 流程：
//  1. 启动引擎 goroutine，把 cfg 交给它
//  2. 阻塞等待引擎 goroutine 打开引擎、创建收件箱并发出就绪信号
//  3. 以 name 发布收件箱，静默替换残留的旧注册
//
// 引擎自身的错误（目录被占用、I/O 失败等）不会导致 Initialize 失败，
// 它们通过诊断通道上报，写入变为无操作。Initialize 只对调用方错误返回
// error：注册表为 nil、名称非法、ctx 在就绪前取消、注册表拒绝注册。
//
// 多次调用是幂等的：最近一次初始化的写者持有名称。被替换的旧写者
// 默认继续运行，见 [WithRetirePrevious]。
func Initialize(ctx context.Context, reg Registry, name string, cfg xsegment.Config, opts ...Option) (*Writer, error) {
	if reg == nil {
		return nil, ErrNilRegistry
	}
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	o := applyOptions(opts)
	id := uuid.NewString()
	w := &Writer{
		id:      id,
		name:    name,
		reg:     reg,
		diag:    newReporter(o, slog.String(KeyName, name), slog.String(KeyWriterID, id)),
		metrics: newRouteMetrics(o.meterProvider, name),
		done:    make(chan struct{}),
	}

	engineOpts := make([]xsegment.Option, 0, len(o.engineOptions)+3)
	engineOpts = append(engineOpts,
		xsegment.WithLogger(o.logger.With(slog.String(KeyWriterID, id))),
		xsegment.WithOnError(o.onError),
		xsegment.WithMeterProvider(o.meterProvider),
	)
	engineOpts = append(engineOpts, o.engineOptions...)

	ready := make(chan struct{})
	go w.run(cfg, engineOpts, o.queueSize, ready)

	select {
	case <-ready:
	case <-ctx.Done():
		// 引擎 goroutine 仍会就绪，就绪后立即关闭
		go func() {
			<-ready
			_ = w.Close()
		}()
		return nil, ctx.Err()
	}

	previous, err := reg.Register(name, w)
	if err != nil {
		_ = w.Close()
		return nil, err
	}
	if previous != nil && previous != Endpoint(w) {
		w.diag.logger.Info("replaced stale registration")
		if prev, ok := previous.(*Writer); ok && o.retirePrevious {
			if err := prev.Close(); err != nil {
				w.diag.report(err, slog.String("previous_writer_id", prev.id))
			}
		}
	}
	w.diag.logger.Debug("writer initialized", slog.String(xsegment.KeyDirectory, cfg.Directory))
	return w, nil
}

// run 引擎 goroutine：独占 Engine，按收件箱顺序写入。
func (w *Writer) run(cfg xsegment.Config, engineOpts []xsegment.Option, queueSize int, ready chan<- struct{}) {
	defer close(w.done)

	engine := xsegment.Open(cfg, engineOpts...)
	w.inbox = newInbox(queueSize, w.onDrop, w.metrics.recordQueued)
	close(ready)

	w.inbox.consume(engine.WriteLine)

	if err := engine.Close(); err != nil {
		w.closeErr = err
	}
}

// onDrop 记录被丢弃的行，每个连续丢弃区间只上报一次。
func (w *Writer) onDrop(err error, first bool) {
	w.metrics.recordDrop(dropReason(err))
	if first {
		w.diag.report(err)
	}
}

// Send 实现 Endpoint：非阻塞投递一行。
func (w *Writer) Send(line string) bool {
	return w.inbox.send(line)
}

// ID 返回写者的代际 ID（UUID），用于区分重新初始化前后的写者。
func (w *Writer) ID() string {
	return w.id
}

// Name 返回注册名称。
func (w *Writer) Name() string {
	return w.name
}

// Pending 返回收件箱中尚未写入的行数。
func (w *Writer) Pending() int {
	return w.inbox.len()
}

// Done 返回在引擎 goroutine 退出后关闭的 channel。
func (w *Writer) Done() <-chan struct{} {
	return w.done
}

// Close 关闭写者
//
// 撤销注册（仅当名称仍指向本写者）、拒绝新的投递、写完收件箱中剩余的行，
// 然后关闭引擎。可重复调用，返回引擎关闭的结果。
func (w *Writer) Close() error {
	w.closeOnce.Do(func() {
		if u, ok := w.reg.(unregisterer); ok {
			u.unregister(w.name, w)
		}
		w.inbox.stop()
		<-w.done
	})
	return w.closeErr
}

func (w *Writer) closed() bool {
	select {
	case <-w.done:
		return true
	default:
		return w.inbox.isStopped()
	}
}
