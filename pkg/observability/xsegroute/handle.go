package xsegroute

import (
	"bytes"
	"io"
	"log/slog"
	"sync"
	"time"
)

// rebindInterval 写入端失效后两次重新查找之间的最小间隔
const rebindInterval = time.Second

// Handle 转发句柄：把写入投递给已发布的写者
//
// Handle 从不直接接触文件。名称不可用时 Handle 为“不可用”状态，
// 所有写入都是无操作。Handle 并发安全。
type Handle struct {
	name string
	reg  Registry
	diag *reporter

	metrics *routeMetrics

	mu         sync.Mutex
	ep         Endpoint
	pending    []byte
	lastLookup time.Time
	released   bool
}

// 编译时断言
var _ io.WriteCloser = (*Handle)(nil)

// GetHandle 按名称取得转发句柄，永不返回 nil
//
// 名称未注册时返回不可用的句柄：写入被静默丢弃，不可用状态只在此处
// 上报一次。已绑定的写入端失效（写者关闭、远端断开）后，句柄最多每秒
// 重新查找一次名称，以跟随重新初始化后的新写者。
func GetHandle(reg Registry, name string, opts ...Option) *Handle {
	o := applyOptions(opts)
	h := &Handle{
		name:    name,
		reg:     reg,
		diag:    newReporter(o, slog.String(KeyName, name)),
		metrics: newRouteMetrics(o.meterProvider, name),
	}

	if reg == nil {
		h.diag.report(ErrNilRegistry)
		return h
	}
	if err := validateName(name); err != nil {
		h.diag.report(err)
		return h
	}
	ep, ok := reg.Lookup(name)
	h.lastLookup = time.Now()
	if !ok {
		h.diag.report(ErrUnavailable)
		return h
	}
	h.bind(ep)
	return h
}

// Available 报告句柄当前是否绑定到写者。
func (h *Handle) Available() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ep != nil
}

// WriteLine 投递一行（不含换行符）并立即返回。
//
// 永不阻塞于文件 I/O，永不向调用方报告失败。
func (h *Handle) WriteLine(line string) {
	h.mu.Lock()
	ep := h.endpoint()
	h.mu.Unlock()

	h.send(ep, line)
}

// Write 实现 io.Writer 接口
//
// p 按换行符切分，每个完整的行投递一次；末尾不完整的行缓存在句柄中，
// 与下一次 Write 拼接。整个调用持有句柄锁，同一句柄上并发的 Write
// 不会交错。始终返回 len(p), nil。
func (h *Handle) Write(p []byte) (int, error) {
	n := len(p)

	h.mu.Lock()
	defer h.mu.Unlock()

	ep := h.endpoint()
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			h.pending = append(h.pending, p...)
			break
		}
		var line string
		if len(h.pending) > 0 {
			line = string(append(h.pending, p[:i]...))
			h.pending = h.pending[:0]
		} else {
			line = string(p[:i])
		}
		h.send(ep, line)
		p = p[i+1:]
	}
	return n, nil
}

// Flush 把缓存的不完整尾行作为一行投递。
func (h *Handle) Flush() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.pending) == 0 {
		return
	}
	line := string(h.pending)
	h.pending = h.pending[:0]
	h.send(h.endpoint(), line)
}

// Close 投递缓存的尾行并释放句柄持有的连接。
//
// 不会关闭写者本身。关闭后句柄变为不可用。可重复调用。
func (h *Handle) Close() error {
	h.Flush()

	h.mu.Lock()
	defer h.mu.Unlock()

	if r, ok := h.ep.(releaser); ok {
		r.release()
	}
	h.ep = nil
	h.released = true
	return nil
}

// endpoint 返回当前写入端，已失效时重新查找。调用方持有 h.mu。
//
// 不可用的句柄保持不可用，不会重新查找。
func (h *Handle) endpoint() Endpoint {
	if h.released || !h.stale() || time.Since(h.lastLookup) < rebindInterval {
		return h.ep
	}

	h.lastLookup = time.Now()
	ep, ok := h.reg.Lookup(h.name)
	if !ok || ep == h.ep {
		return h.ep
	}
	if r, ok := h.ep.(releaser); ok {
		r.release()
	}
	h.bind(ep)
	h.diag.logger.Info("handle rebound to new writer")
	return ep
}

// bind 绑定写入端，并让其发送侧失败经由句柄的诊断通道上报。
func (h *Handle) bind(ep Endpoint) {
	if b, ok := ep.(diagBinder); ok {
		b.bindDiagnostics(h.diag, h.metrics)
	}
	h.ep = ep
}

// stale 报告已绑定的写入端是否已失效。
func (h *Handle) stale() bool {
	c, ok := h.ep.(closedChecker)
	return ok && c.closed()
}

// send 投递一行。不可用的句柄计入丢弃指标但不重复上报。
func (h *Handle) send(ep Endpoint, line string) {
	if ep == nil {
		h.metrics.recordDrop(ReasonUnavailable)
		return
	}
	ep.Send(line)
}
