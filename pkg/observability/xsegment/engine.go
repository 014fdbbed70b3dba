package xsegment

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"

	"github.com/omeyang/xseglog/pkg/util/xfile"
)

// 编译时断言：Engine 可直接作为 io.WriteCloser 使用
var _ io.WriteCloser = (*Engine)(nil)

// lineSeparator 行分隔符
const lineSeparator = '\n'

// Engine 分段日志写入引擎
//
// Engine 独占目录中的所有段文件：决定何时创建新段、何时删除最旧的段，
// 并执行实际的追加写。它不是并发安全的，必须由唯一的 goroutine 持有；
// 跨 goroutine 共享请使用 xsegroute。
//
// 零值 Engine 不可用，必须通过 [Open] 创建。
type Engine struct {
	cfg  Config
	segs *segmentSet

	active *Segment // 索引最大的段，新写入追加到这里
	file   *os.File // active 对应的打开文件；瞬时 I/O 失败后可能为 nil

	pending []byte // Write 收到的不完整尾行

	opened    bool
	disabled  bool // 配置错误，所有写入静默丢弃
	closed    bool
	exhausted bool // 索引耗尽已上报，不再重复上报

	diag    *reporter
	metrics *engineMetrics
}

// Open 打开目录并创建引擎
//
// Open 不向调用方返回错误：配置无效或目录被普通文件占用时，
// 错误通过诊断通道上报，返回的引擎处于禁用状态，写入被静默丢弃。
// 段创建失败等瞬时错误同样只上报，后续写入会重新尝试。
//
// 打开过程：
//  1. 校验配置
//  2. 确保目录存在（递归创建）
//  3. 扫描目录，收集 log_<N>.log 段及其磁盘长度
//  4. 执行一次轮转，确定活跃段
func Open(cfg Config, opts ...Option) *Engine {
	o := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = defaultDiagnosticsLogger()
	}

	m := newEngineMetrics(o.meterProvider, cfg.Directory)
	e := &Engine{
		cfg:    cfg,
		segs:   newSegmentSet(),
		opened: true,
		diag: &reporter{
			logger:  o.logger.With(slog.String(KeyComponent, "xsegment"), slog.String(KeyDirectory, cfg.Directory)),
			onError: o.onError,
			metrics: m,
		},
		metrics: m,
	}

	if err := cfg.Validate(); err != nil {
		e.disable(err)
		return e
	}
	if err := xfile.EnsureDirectory(cfg.Directory, xfile.DefaultDirPerm); err != nil {
		if errors.Is(err, xfile.ErrNotDirectory) {
			e.disable(fmt.Errorf("%w: %w", ErrNotDirectory, err))
		} else {
			e.disable(fmt.Errorf("%w: ensure directory: %w", ErrSegmentIO, err))
		}
		return e
	}

	e.discover()
	e.rotate(true, false)
	return e
}

// disable 上报配置错误并禁用引擎。
func (e *Engine) disable(err error) {
	e.disabled = true
	e.diag.report(err)
}

// discover 扫描目录，重建段集合。
//
// 只识别规范命名的普通文件；目录、符号链接和外部文件一律忽略，永不删除。
// 单个条目 stat 失败时跳过该条目。
func (e *Engine) discover() {
	entries, err := os.ReadDir(e.cfg.Directory)
	if err != nil {
		e.diag.report(fmt.Errorf("%w: scan directory: %w", ErrSegmentIO, err))
		return
	}
	for _, entry := range entries {
		index, ok := ParseSegmentName(entry.Name())
		if !ok || !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			e.diag.report(fmt.Errorf("%w: stat segment: %w", ErrSegmentIO, err),
				slog.String(KeySegment, entry.Name()))
			continue
		}
		seg, err := e.newSegment(index)
		if err != nil {
			e.diag.report(err, slog.String(KeySegment, entry.Name()))
			continue
		}
		seg.Length = info.Size()
		e.segs.add(seg)
	}
	e.metrics.recordSegments(int64(e.segs.len()))
	e.diag.logger.Debug("segments discovered", slog.Int("count", e.segs.len()))
}

// newSegment 按索引构造段，路径由目录和规范文件名推导。
func (e *Engine) newSegment(index uint64) (*Segment, error) {
	path, err := xfile.SafeJoin(e.cfg.Directory, SegmentName(index))
	if err != nil {
		return nil, fmt.Errorf("%w: segment path: %w", ErrSegmentIO, err)
	}
	return &Segment{Index: index, Path: path}, nil
}

// rotate 确定活跃段
//
// 算法：
//  1. 集合为空：创建索引 0 的段
//  2. 最大索引段未达阈值且未强制：继续使用；否则创建索引加一的新段
//  3. 以追加方式打开活跃段文件（不存在则创建，永不截断），读取磁盘长度
//  4. 段数超过 MaxFileCount：删除索引最小的段（每次最多一个）
//  5. 新建段且配置了 LeadingText 时，经写入路径写入首行
//
// force 为 true 时，只要最大索引段非空就创建新段：写入前发现该行会使段
// 超过阈值时使用，此时段长度本身可能仍低于阈值。空段总是被沿用。
// allowLeading 为 false 时跳过第 5 步：首行写入自身触发的轮转不再写首行，
// 保证首行超过阈值时不会无限递归。
func (e *Engine) rotate(allowLeading, force bool) {
	target, created, err := e.pickActive(force)
	switch {
	case errors.Is(err, ErrIndexExhausted):
		// 无法再创建新段，继续追加到最后一个段，只上报一次
		if !e.exhausted {
			e.exhausted = true
			e.diag.report(err)
		}
	case err != nil:
		e.diag.report(err)
		return
	}
	if created {
		e.segs.add(target)
		e.metrics.recordSegments(1)
	}

	if target != e.active || e.file == nil {
		if err := e.activate(target); err != nil {
			e.diag.report(err, slog.Uint64(KeyIndex, target.Index))
			if created {
				// 段从未落盘，撤销登记，下次轮转会重新创建并写首行
				e.segs.remove(target.Index)
				e.metrics.recordSegments(-1)
			}
			return
		}
	}

	// 新段打开成功后才淘汰，瞬时打开失败不会损失保留的历史
	if e.segs.len() > e.cfg.MaxFileCount {
		e.evict(e.segs.min())
	}

	if !created {
		return
	}
	e.metrics.recordRotation()
	e.diag.logger.Debug("segment created",
		slog.Uint64(KeyIndex, target.Index),
		slog.String(KeySegment, target.Path),
	)
	if allowLeading && e.cfg.LeadingText != "" {
		e.append(encodeLine(e.cfg.LeadingText), false)
	}
}

// pickActive 按轮转规则选出活跃段，created 表示是否为新建段。
// 索引耗尽时返回最后一个段和 [ErrIndexExhausted]。
func (e *Engine) pickActive(force bool) (seg *Segment, created bool, err error) {
	current := e.segs.max()
	switch {
	case current == nil:
		seg, err = e.newSegment(0)
		return seg, err == nil, err
	case current.Length == 0:
		return current, false, nil
	case !force && current.Length < e.cfg.MaxFileLength:
		return current, false, nil
	case current.Index == math.MaxUint64:
		return current, false, ErrIndexExhausted
	default:
		seg, err = e.newSegment(current.Index + 1)
		return seg, err == nil, err
	}
}

// evict 删除段文件并移除登记。
//
// 设计决策: 删除失败（文件不存在除外）仍移除登记，保证内存中的段数上限；
// 残留文件会在下次启动扫描时重新纳入管理并再次参与淘汰。
func (e *Engine) evict(seg *Segment) {
	if seg == nil {
		return
	}
	if seg == e.active && e.file != nil {
		e.closeFile()
		e.active = nil
	}
	if err := os.Remove(seg.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		e.diag.report(fmt.Errorf("%w: evict segment: %w", ErrSegmentIO, err),
			slog.Uint64(KeyIndex, seg.Index))
	}
	e.segs.remove(seg.Index)
	e.metrics.recordSegments(-1)
	e.metrics.recordEviction()
	e.diag.logger.Debug("segment evicted", slog.Uint64(KeyIndex, seg.Index))
}

// activate 以追加方式打开段文件并以磁盘长度为准。
func (e *Engine) activate(seg *Segment) error {
	e.closeFile()
	e.active = nil

	//#nosec G304 -- 段路径由目录和规范文件名推导
	f, err := os.OpenFile(seg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, e.cfg.fileMode())
	if err != nil {
		return fmt.Errorf("%w: open segment: %w", ErrSegmentIO, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: stat segment: %w", ErrSegmentIO, err)
	}
	seg.Length = info.Size()
	e.file = f
	e.active = seg
	return nil
}

// closeFile 关闭当前打开的段文件，关闭错误只上报。
func (e *Engine) closeFile() {
	if e.file == nil {
		return
	}
	if err := e.file.Close(); err != nil {
		e.diag.report(fmt.Errorf("%w: close segment: %w", ErrSegmentIO, err))
	}
	e.file = nil
}

// WriteLine 追加一行日志（自动追加换行符）
//
// 数据在返回前已同步落盘。写入后活跃段超过 MaxFileLength 时立即轮转，
// 为后续写入准备新段；已写入的数据不会移动。
// 任何 I/O 失败都只上报到诊断通道，不影响调用方。
func (e *Engine) WriteLine(line string) {
	if !e.ready() {
		return
	}
	e.append(encodeLine(line), true)
}

// Write 实现 io.Writer 接口
//
// p 按换行符切分为行逐条写入；末尾不完整的行被缓存，与下一次 Write
// 拼接，或在 Close 时作为最后一行写入。始终返回 len(p), nil。
func (e *Engine) Write(p []byte) (int, error) {
	n := len(p)
	if !e.ready() {
		return n, nil
	}
	for len(p) > 0 {
		i := bytes.IndexByte(p, lineSeparator)
		if i < 0 {
			e.pending = append(e.pending, p...)
			break
		}
		var line []byte
		if len(e.pending) > 0 {
			line = append(e.pending, p[:i]...)
			e.pending = e.pending[:0]
		} else {
			line = p[:i]
		}
		e.append(encodeLine(string(line)), true)
		p = p[i+1:]
	}
	return n, nil
}

// ready 检查引擎是否可以写入。
//
// 禁用状态（配置错误）静默返回 false，错误已在 Open 时上报。
// 未打开或已关闭属于不变量破坏。上一次瞬时失败遗留的“无打开文件”状态
// 会先重新轮转一次。
func (e *Engine) ready() bool {
	if e.disabled {
		return false
	}
	if !e.opened || e.closed {
		e.assertInvariant(ErrNoActiveSegment)
		return false
	}
	if e.file == nil {
		e.rotate(true, false)
	}
	return e.file != nil
}

// assertInvariant 处理内部不变量破坏。
func (e *Engine) assertInvariant(err error) {
	if debugAssertions {
		panic(err)
	}
	e.reporter().report(err)
}

// reporter 返回诊断通道，零值 Engine 使用默认通道。
func (e *Engine) reporter() *reporter {
	if e.diag == nil {
		return &reporter{logger: defaultDiagnosticsLogger().With(slog.String(KeyComponent, "xsegment"))}
	}
	return e.diag
}

// append 把已编码的行写入活跃段。
//
// 活跃段非空且写入后会超过阈值时先轮转，使该行落在新段；
// 空段总是接受写入，超长行因此不会导致无限轮转。
func (e *Engine) append(data []byte, allowLeading bool) {
	n := int64(len(data))
	if e.active.Length > 0 && e.active.Length+n > e.cfg.MaxFileLength {
		e.rotate(allowLeading, true)
		if e.file == nil {
			return
		}
	}

	seg := e.active
	written, err := e.file.Write(data)
	// 部分写入的字节已经落在文件中，计入长度
	seg.Length += int64(written)
	if err != nil {
		e.diag.report(fmt.Errorf("%w: append: %w", ErrSegmentIO, err),
			slog.Uint64(KeyIndex, seg.Index))
		return
	}
	if err := datasync(e.file); err != nil {
		e.diag.report(fmt.Errorf("%w: sync: %w", ErrSegmentIO, err),
			slog.Uint64(KeyIndex, seg.Index))
	}
	e.metrics.recordWrite(written)

	if seg.Length > e.cfg.MaxFileLength {
		e.rotate(allowLeading, false)
	}
}

// encodeLine 把行编码为带换行符的字节。
func encodeLine(line string) []byte {
	data := make([]byte, 0, len(line)+1)
	data = append(data, line...)
	return append(data, lineSeparator)
}

// Segments 按索引升序返回当前段的快照。
func (e *Engine) Segments() []Segment {
	if e.segs == nil {
		return nil
	}
	return e.segs.snapshot()
}

// Active 返回活跃段快照。没有活跃段时 ok 为 false。
func (e *Engine) Active() (seg Segment, ok bool) {
	if e.active == nil {
		return Segment{}, false
	}
	return *e.active, true
}

// Disabled 报告引擎是否因配置错误被禁用。
func (e *Engine) Disabled() bool {
	return e.disabled
}

// Config 返回引擎配置。
func (e *Engine) Config() Config {
	return e.cfg
}

// Close 关闭引擎
//
// 缓存的不完整尾行会先作为最后一行写入。
// 关闭后写入属于不变量破坏；重复调用返回 [ErrClosed]。
func (e *Engine) Close() error {
	if e.closed {
		return ErrClosed
	}
	if len(e.pending) > 0 && !e.disabled && e.file != nil {
		line := string(e.pending)
		e.pending = nil
		e.append(encodeLine(line), true)
	}
	e.closed = true

	if e.file == nil {
		return nil
	}
	err := e.file.Close()
	e.file = nil
	if err != nil {
		return fmt.Errorf("%w: close segment: %w", ErrSegmentIO, err)
	}
	return nil
}
