package xsegroute

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v5"
	"golang.org/x/sync/errgroup"

	"github.com/omeyang/xseglog/pkg/util/xfile"
)

const (
	// socketSuffix socket 文件后缀
	socketSuffix = ".sock"

	// socketPerm socket 文件权限，仅所有者可连接
	socketPerm os.FileMode = 0o600

	// dialAttempts Lookup 的拨号尝试次数，覆盖注册与查找之间的竞态窗口
	dialAttempts uint = 5

	// dialDelay 两次拨号之间的固定间隔
	dialDelay = 20 * time.Millisecond

	// dialTimeout 单次拨号超时
	dialTimeout = time.Second
)

// UnixRegistry 基于 Unix Domain Socket 的注册表
//
// 名称 name 映射为 <dir>/<name>.sock。Register 在该路径上监听，把每个连接
// 收到的行按到达顺序交给注册的写入端；Lookup 拨号该路径，返回经由连接
// 转发的写入端。同一主机上的多个进程共享同一目录即可共享一个写者。
//
// 设计决策: 只有 socket 文件会被当作残留注册删除，同名的普通文件或目录
// 会使 Register 失败，避免误删用户数据。
type UnixRegistry struct {
	dir       string
	queueSize int
	diag      *reporter
	opts      options

	mu       sync.Mutex
	servers  map[string]*socketServer
	remotes  map[*remoteEndpoint]struct{}
	isClosed bool
}

// 编译时断言
var _ Registry = (*UnixRegistry)(nil)

// NewUnixRegistry 创建以 dir 为 socket 目录的注册表，目录不存在时递归创建。
//
// 支持的选项：WithLogger、WithOnError、WithMeterProvider、
// WithQueueSize（远端写入端的本地发送缓冲容量）。
func NewUnixRegistry(dir string, opts ...Option) (*UnixRegistry, error) {
	if err := xfile.EnsureDirectory(dir, xfile.DefaultDirPerm); err != nil {
		return nil, fmt.Errorf("xsegroute: socket directory: %w", err)
	}
	o := applyOptions(opts)
	return &UnixRegistry{
		dir:       dir,
		queueSize: o.queueSize,
		diag:      newReporter(o, slog.String("socket_dir", dir)),
		opts:      o,
		servers:   make(map[string]*socketServer),
		remotes:   make(map[*remoteEndpoint]struct{}),
	}, nil
}

// SocketPath 返回名称对应的 socket 路径。
func (r *UnixRegistry) SocketPath(name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	return xfile.SafeJoin(r.dir, name+socketSuffix)
}

// Register 实现 Registry：在 socket 路径上监听并服务 ep。
//
// 残留的 socket 文件（上次异常退出遗留，或由其他进程的旧写者持有）被静默
// 删除后重新监听。previous 只在替换本注册表中的注册时非 nil。
func (r *UnixRegistry) Register(name string, ep Endpoint) (Endpoint, error) {
	path, err := r.SocketPath(name)
	if err != nil {
		return nil, err
	}
	if ep == nil {
		return nil, ErrNilEndpoint
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isClosed {
		return nil, ErrRegistryClosed
	}

	var previous Endpoint
	if old, ok := r.servers[name]; ok {
		previous = old.ep
		old.stop()
		delete(r.servers, name)
	}

	if err := removeStaleSocket(path); err != nil {
		return previous, err
	}
	srv, err := listenSocket(name, path, ep, r.diag)
	if err != nil {
		return previous, err
	}
	r.servers[name] = srv
	srv.start()

	r.diag.logger.Debug("socket registered", slog.String(KeyName, name), slog.String("socket", path))
	return previous, nil
}

// Lookup 实现 Registry：拨号名称对应的 socket。
//
// 拨号在短时间窗口内重试（见 dialAttempts），以覆盖另一进程正在注册的情形。
// 返回的写入端持有连接和一个发送 goroutine，由 Handle.Close 或注册表 Close 释放。
func (r *UnixRegistry) Lookup(name string) (Endpoint, bool) {
	path, err := r.SocketPath(name)
	if err != nil {
		return nil, false
	}

	r.mu.Lock()
	closed := r.isClosed
	r.mu.Unlock()
	if closed {
		return nil, false
	}

	conn, err := retry.NewWithData[net.Conn](
		retry.Attempts(dialAttempts),
		retry.Delay(dialDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	).Do(func() (net.Conn, error) {
		return net.DialTimeout("unix", path, dialTimeout)
	})
	if err != nil {
		r.diag.logger.Debug("socket lookup failed", slog.String(KeyName, name), slog.Any("error", err))
		return nil, false
	}

	ep := newRemoteEndpoint(conn, r.queueSize, newReporter(r.opts, slog.String(KeyName, name)),
		newRouteMetrics(r.opts.meterProvider, name))

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isClosed {
		ep.release()
		return nil, false
	}
	r.remotes[ep] = struct{}{}
	ep.onRelease = r.forget
	return ep, true
}

func (r *UnixRegistry) forget(ep *remoteEndpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.remotes, ep)
}

func (r *UnixRegistry) unregister(name string, ep Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if srv, ok := r.servers[name]; ok && srv.ep == ep {
		srv.stop()
		delete(r.servers, name)
	}
}

// Close 停止所有监听并释放 Lookup 建立的连接。可重复调用。
func (r *UnixRegistry) Close() error {
	r.mu.Lock()
	if r.isClosed {
		r.mu.Unlock()
		return nil
	}
	r.isClosed = true
	servers := r.servers
	remotes := r.remotes
	r.servers = make(map[string]*socketServer)
	r.remotes = make(map[*remoteEndpoint]struct{})
	r.mu.Unlock()

	for ep := range remotes {
		ep.release()
	}
	for _, srv := range servers {
		srv.stop()
	}
	return nil
}

// removeStaleSocket 删除残留的 socket 文件；路径不存在时什么也不做。
func removeStaleSocket(path string) error {
	info, err := os.Lstat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return fmt.Errorf("xsegroute: check existing socket: %w", err)
	case info.Mode()&os.ModeSocket == 0:
		return fmt.Errorf("%w: %s", ErrNotSocket, path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("xsegroute: remove stale socket: %w", err)
	}
	return nil
}

// =============================================================================
// 服务端
// =============================================================================

// socketServer 一个名称的监听端。
type socketServer struct {
	name string
	path string
	ln   *net.UnixListener
	info os.FileInfo // 监听时的 socket 文件，用于判断路径是否已被他人替换
	ep   Endpoint
	diag *reporter

	group errgroup.Group

	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	stopping bool
}

func listenSocket(name, path string, ep Endpoint, diag *reporter) (*socketServer, error) {
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("xsegroute: listen unix socket: %w", err)
	}
	// 由 stop 自行判断是否删除路径，避免删掉其他进程后来创建的同名 socket
	ln.SetUnlinkOnClose(false)

	if err := os.Chmod(path, socketPerm); err != nil {
		_ = ln.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("xsegroute: chmod socket: %w", err)
	}
	info, err := os.Lstat(path)
	if err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("xsegroute: stat socket: %w", err)
	}

	return &socketServer{
		name:  name,
		path:  path,
		ln:    ln,
		info:  info,
		ep:    ep,
		diag:  diag,
		conns: make(map[net.Conn]struct{}),
	}, nil
}

func (s *socketServer) start() {
	s.group.Go(s.acceptLoop)
}

func (s *socketServer) acceptLoop() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.diag.report(fmt.Errorf("xsegroute: accept: %w", err), slog.String(KeyName, s.name))
			return err
		}
		if !s.track(conn) {
			_ = conn.Close()
			return nil
		}
		s.diag.logger.Debug("writer connection accepted", peerAttrs(conn)...)
		s.group.Go(func() error {
			defer s.untrack(conn)
			return s.serve(conn)
		})
	}
}

// serve 逐帧读取连接，按到达顺序把行交给写入端。
func (s *socketServer) serve(conn net.Conn) error {
	r := bufio.NewReader(conn)
	var buf []byte
	for {
		line, next, err := decodeLine(r, buf)
		buf = next
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.diag.report(fmt.Errorf("xsegroute: serve connection: %w", err), slog.String(KeyName, s.name))
			return nil
		}
		s.ep.Send(line)
	}
}

func (s *socketServer) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *socketServer) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
	_ = conn.Close()
}

// stop 关闭监听和所有连接，等待服务 goroutine 退出，
// 路径仍指向本 socket 时删除它。
func (s *socketServer) stop() {
	s.mu.Lock()
	s.stopping = true
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	_ = s.ln.Close()
	_ = s.group.Wait()

	if info, err := os.Lstat(s.path); err == nil && sameSocket(info, s.info) {
		_ = os.Remove(s.path)
	}
}

// sameSocket 判断路径上的 socket 是否仍是监听时创建的那个。
// inode 号在删除后可能被立即复用，因此同时比较修改时间。
func sameSocket(a, b os.FileInfo) bool {
	return os.SameFile(a, b) && a.ModTime().Equal(b.ModTime())
}

// =============================================================================
// 客户端
// =============================================================================

// endpointSink 远端写入端的诊断通道与指标。
type endpointSink struct {
	diag    *reporter
	metrics *routeMetrics
}

// remoteEndpoint 经由 socket 连接转发到远端写者的写入端。
//
// Send 投递到本地缓冲后立即返回，唯一的发送 goroutine 按序编码写出，
// 因此同一写入端上的行在远端保持投递顺序。连接失败后上报一次，
// 此后的行全部丢弃，持有它的 Handle 会重新查找名称。
type remoteEndpoint struct {
	conn   net.Conn
	buffer *inbox
	sink   atomic.Pointer[endpointSink]

	failed      atomic.Bool
	done        chan struct{}
	releaseOnce sync.Once
	onRelease   func(*remoteEndpoint)
}

func newRemoteEndpoint(conn net.Conn, queueSize int, diag *reporter, metrics *routeMetrics) *remoteEndpoint {
	e := &remoteEndpoint{
		conn: conn,
		done: make(chan struct{}),
	}
	e.sink.Store(&endpointSink{diag: diag, metrics: metrics})
	e.buffer = newInbox(queueSize, e.onDrop, nil)
	go e.run()
	return e
}

func (e *remoteEndpoint) run() {
	defer close(e.done)

	w := bufio.NewWriter(e.conn)
	e.buffer.consume(func(line string) {
		if e.failed.Load() {
			e.sink.Load().metrics.recordDrop(ReasonRemote)
			return
		}
		_, err := w.Write(encodeLine(line))
		// 缓冲排空时才刷出，连续的行合并为一次系统调用
		if err == nil && e.buffer.len() == 0 {
			err = w.Flush()
		}
		if err != nil {
			e.fail(err)
		}
	})
	if !e.failed.Load() {
		if err := w.Flush(); err != nil {
			e.fail(err)
		}
	}
}

// fail 标记连接失效，只在第一次失败时上报。
func (e *remoteEndpoint) fail(err error) {
	sink := e.sink.Load()
	sink.metrics.recordDrop(ReasonRemote)
	if e.failed.CompareAndSwap(false, true) {
		sink.diag.report(fmt.Errorf("%w: %w", ErrRemoteUnreachable, err))
	}
}

func (e *remoteEndpoint) onDrop(err error, first bool) {
	sink := e.sink.Load()
	sink.metrics.recordDrop(dropReason(err))
	if first {
		sink.diag.report(err)
	}
}

// bindDiagnostics 把此后的失败上报和丢弃计数转到持有者的诊断通道。
func (e *remoteEndpoint) bindDiagnostics(diag *reporter, metrics *routeMetrics) {
	e.sink.Store(&endpointSink{diag: diag, metrics: metrics})
}

// Send 实现 Endpoint。
func (e *remoteEndpoint) Send(line string) bool {
	if e.failed.Load() {
		e.sink.Load().metrics.recordDrop(ReasonRemote)
		return false
	}
	return e.buffer.send(line)
}

func (e *remoteEndpoint) closed() bool {
	return e.failed.Load()
}

// release 发送完缓冲中的行后关闭连接。可重复调用。
func (e *remoteEndpoint) release() {
	e.releaseOnce.Do(func() {
		e.buffer.stop()
		<-e.done
		_ = e.conn.Close()
		if e.onRelease != nil {
			e.onRelease(e)
		}
	})
}
