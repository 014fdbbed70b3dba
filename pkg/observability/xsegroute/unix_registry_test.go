//go:build !windows

package xsegroute

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eventually = 5 * time.Second

func newTestUnixRegistry(t *testing.T, dir string, opts ...Option) *UnixRegistry {
	t.Helper()
	reg, err := NewUnixRegistry(dir, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })
	return reg
}

// socketDir 返回较短的 socket 目录，避免超出 sun_path 长度限制。
func socketDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "xsr")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

// =============================================================================
// 注册与查找
// =============================================================================

func TestUnixRegistry_RoundTrip(t *testing.T) {
	sockDir, logDir := socketDir(t), t.TempDir()
	sink := &errSink{}
	reg := newTestUnixRegistry(t, sockDir, sink.options()...)

	w := initWriter(t, reg, "app", logDir, sink.options()...)
	path, err := reg.SocketPath("app")
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeSocket)
	assert.Equal(t, socketPerm, info.Mode().Perm())

	h := GetHandle(reg, "app", sink.options()...)
	require.True(t, h.Available())
	for _, line := range []string{"one", "two", "three"} {
		h.WriteLine(line)
	}
	require.NoError(t, h.Close())

	require.Eventually(t, func() bool { return countLines(logDir) == 3 }, eventually, 10*time.Millisecond)
	require.NoError(t, w.Close())

	assert.Equal(t, []string{"one", "two", "three"}, readLines(t, logDir))
	assert.NoFileExists(t, path, "closing the writer removes its socket")
	assert.Zero(t, sink.len())
}

func TestUnixRegistry_LookupMissing(t *testing.T) {
	reg := newTestUnixRegistry(t, socketDir(t))

	_, ok := reg.Lookup("missing")
	assert.False(t, ok)

	_, ok = reg.Lookup("../escape")
	assert.False(t, ok)
}

func TestUnixRegistry_StaleSocketReplaced(t *testing.T) {
	sockDir := socketDir(t)
	path := filepath.Join(sockDir, "app.sock")

	// 模拟异常退出：监听后不删除 socket 文件
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	require.NoError(t, err)
	ln.SetUnlinkOnClose(false)
	require.NoError(t, ln.Close())
	require.FileExists(t, path)

	reg := newTestUnixRegistry(t, sockDir)
	prev, err := reg.Register("app", &stubEndpoint{})
	require.NoError(t, err)
	assert.Nil(t, prev)

	ep, ok := reg.Lookup("app")
	require.True(t, ok)
	assert.True(t, ep.Send("ping"))
}

func TestUnixRegistry_RefusesNonSocket(t *testing.T) {
	sockDir := socketDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(sockDir, "app.sock"), []byte("data"), 0o600))

	reg := newTestUnixRegistry(t, sockDir)
	_, err := reg.Register("app", &stubEndpoint{})
	assert.ErrorIs(t, err, ErrNotSocket)

	data, err := os.ReadFile(filepath.Join(sockDir, "app.sock"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
}

func TestUnixRegistry_Closed(t *testing.T) {
	reg := newTestUnixRegistry(t, socketDir(t))
	require.NoError(t, reg.Close())
	require.NoError(t, reg.Close())

	_, err := reg.Register("app", &stubEndpoint{})
	assert.ErrorIs(t, err, ErrRegistryClosed)
	_, ok := reg.Lookup("app")
	assert.False(t, ok)
}

func TestNewUnixRegistry_NotDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	_, err := NewUnixRegistry(file)
	assert.Error(t, err)
}

// =============================================================================
// 跨进程场景（以多个注册表模拟多个进程）
// =============================================================================

func TestUnixRegistry_OrderingAcrossConnections(t *testing.T) {
	const handles, perHandle = 4, 100
	sockDir, logDir := socketDir(t), t.TempDir()
	sink := &errSink{}

	owner := newTestUnixRegistry(t, sockDir, sink.options()...)
	w := initWriter(t, owner, "app", logDir, sink.options(WithQueueSize(handles*perHandle))...)

	client := newTestUnixRegistry(t, sockDir, sink.options()...)
	var wg sync.WaitGroup
	for i := range handles {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := GetHandle(client, "app", sink.options()...)
			defer func() { _ = h.Close() }()
			for j := range perHandle {
				h.WriteLine(fmt.Sprintf("h%d-%d", i, j))
			}
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool { return countLines(logDir) == handles*perHandle }, eventually, 10*time.Millisecond)
	require.NoError(t, w.Close())

	assertPerHandleOrder(t, readLines(t, logDir), handles, perHandle)
	assert.Zero(t, sink.len())
}

func TestUnixRegistry_ReplacedByAnotherProcess(t *testing.T) {
	sockDir := socketDir(t)
	dirA, dirB := t.TempDir(), t.TempDir()

	regA := newTestUnixRegistry(t, sockDir)
	regB := newTestUnixRegistry(t, sockDir)
	initWriter(t, regA, "app", dirA)
	wB := initWriter(t, regB, "app", dirB)

	// A 关闭时不得删除 B 创建的 socket
	require.NoError(t, regA.Close())
	path, err := regB.SocketPath("app")
	require.NoError(t, err)
	require.FileExists(t, path)

	client := newTestUnixRegistry(t, sockDir)
	h := GetHandle(client, "app")
	h.WriteLine("to B")
	require.NoError(t, h.Close())

	require.Eventually(t, func() bool { return countLines(dirB) == 1 }, eventually, 10*time.Millisecond)
	require.NoError(t, wB.Close())
	assert.Empty(t, readLines(t, dirA))
}

func TestUnixRegistry_RemoteWriterGone(t *testing.T) {
	sockDir, logDir := socketDir(t), t.TempDir()
	sink, clientSink := &errSink{}, &errSink{}

	owner := newTestUnixRegistry(t, sockDir)
	w := initWriter(t, owner, "app", logDir)

	// 远端失败经由句柄的诊断通道上报，而不是客户端注册表的
	client := newTestUnixRegistry(t, sockDir, clientSink.options()...)
	h := GetHandle(client, "app", sink.options()...)
	t.Cleanup(func() { _ = h.Close() })
	h.WriteLine("before")
	require.Eventually(t, func() bool { return countLines(logDir) == 1 }, eventually, 10*time.Millisecond)

	require.NoError(t, w.Close())

	// 连接断开后发送失败，上报一次，此后静默丢弃
	require.Eventually(t, func() bool {
		h.WriteLine("after")
		return sink.count(ErrRemoteUnreachable) > 0
	}, eventually, 10*time.Millisecond)
	for range 10 {
		h.WriteLine("after")
	}
	assert.Equal(t, 1, sink.count(ErrRemoteUnreachable))
	assert.Zero(t, clientSink.count(ErrRemoteUnreachable))
	assert.Equal(t, []string{"before"}, readLines(t, logDir))
}

func TestInitialize_UnixRegistryCancelledContext(t *testing.T) {
	reg := newTestUnixRegistry(t, socketDir(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Initialize(ctx, reg, "app", testEngineConfig(t.TempDir()))
	assert.ErrorIs(t, err, context.Canceled)
}
