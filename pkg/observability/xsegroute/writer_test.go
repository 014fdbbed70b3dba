package xsegroute

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xseglog/pkg/observability/xsegment"
)

// =============================================================================
// Initialize 单元测试
// =============================================================================

func TestInitialize_Errors(t *testing.T) {
	reg := NewMemoryRegistry()
	cfg := testEngineConfig(t.TempDir())

	t.Run("注册表为nil", func(t *testing.T) {
		_, err := Initialize(context.Background(), nil, "app", cfg)
		assert.ErrorIs(t, err, ErrNilRegistry)
	})

	for _, name := range []string{"", ".", "..", "a/b", `a\b`, "a\x00b"} {
		t.Run("非法名称"+strconv.Quote(name), func(t *testing.T) {
			_, err := Initialize(context.Background(), reg, name, cfg)
			assert.ErrorIs(t, err, ErrInvalidName)
		})
	}

	t.Run("ctx已取消", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Initialize(ctx, reg, "app", cfg)
		assert.ErrorIs(t, err, context.Canceled)

		_, ok := reg.Lookup("app")
		assert.False(t, ok)
	})
}

func TestInitialize_WritesThroughHandle(t *testing.T) {
	dir := t.TempDir()
	reg := NewMemoryRegistry()
	sink := &errSink{}

	w := initWriter(t, reg, "app", dir, sink.options()...)
	_, err := uuid.Parse(w.ID())
	require.NoError(t, err)
	assert.Equal(t, "app", w.Name())

	h := GetHandle(reg, "app", sink.options()...)
	require.True(t, h.Available())
	h.WriteLine("first")
	h.WriteLine("second")

	require.NoError(t, w.Close())
	<-w.Done()

	assert.Equal(t, []string{"first", "second"}, readLines(t, dir))
	assert.Zero(t, sink.len())

	_, ok := reg.Lookup("app")
	assert.False(t, ok, "closed writer must unregister itself")
}

func TestInitialize_EngineConfigError(t *testing.T) {
	occupied := filepath.Join(t.TempDir(), "occupied")
	require.NoError(t, os.WriteFile(occupied, []byte("x"), 0o600))
	reg := NewMemoryRegistry()
	sink := &errSink{}

	// 引擎错误只上报，不会使 Initialize 失败
	w, err := Initialize(context.Background(), reg, "app", testEngineConfig(occupied), sink.options()...)
	require.NoError(t, err)

	GetHandle(reg, "app").WriteLine("lost")
	require.NoError(t, w.Close())

	assert.Equal(t, 1, sink.count(xsegment.ErrNotDirectory))
	data, err := os.ReadFile(occupied)
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestInitialize_EngineOptions(t *testing.T) {
	occupied := filepath.Join(t.TempDir(), "occupied")
	require.NoError(t, os.WriteFile(occupied, nil, 0o600))
	reg := NewMemoryRegistry()
	routeSink, engineSink := &errSink{}, &errSink{}

	// 引擎选项在路由层派生的选项之后应用，可以覆盖引擎的错误回调
	opts := routeSink.options(WithEngineOptions(xsegment.WithOnError(engineSink.onError)))
	w := initWriter(t, reg, "app", occupied, opts...)
	require.NoError(t, w.Close())

	assert.Equal(t, 1, engineSink.count(xsegment.ErrNotDirectory))
	assert.Zero(t, routeSink.len())
}

// =============================================================================
// 顺序与并发
// =============================================================================

func TestWriter_OrderingAcrossHandles(t *testing.T) {
	const handles, perHandle = 8, 200
	dir := t.TempDir()
	reg := NewMemoryRegistry()
	sink := &errSink{}

	w := initWriter(t, reg, "app", dir, sink.options(WithQueueSize(handles*perHandle))...)

	var wg sync.WaitGroup
	for i := range handles {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := GetHandle(reg, "app")
			for j := range perHandle {
				h.WriteLine(fmt.Sprintf("h%d-%d", i, j))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, w.Close())

	assertPerHandleOrder(t, readLines(t, dir), handles, perHandle)
	assert.Zero(t, sink.len())
}

// assertPerHandleOrder 断言每一行恰好出现一次，且每个句柄自己的顺序被保留。
func assertPerHandleOrder(t *testing.T, lines []string, handles, perHandle int) {
	t.Helper()
	require.Len(t, lines, handles*perHandle)

	next := make([]int, handles)
	for _, line := range lines {
		var h, seq int
		_, err := fmt.Sscanf(line, "h%d-%d", &h, &seq)
		require.NoError(t, err, "corrupted line %q", line)
		require.Equal(t, next[h], seq, "handle %d out of order", h)
		next[h]++
	}
}

// =============================================================================
// 重新初始化
// =============================================================================

func TestInitialize_ReplacesStaleRegistration(t *testing.T) {
	reg := NewMemoryRegistry()
	dir1, dir2 := t.TempDir(), t.TempDir()

	w1 := initWriter(t, reg, "app", dir1)
	w2 := initWriter(t, reg, "app", dir2)
	assert.NotEqual(t, w1.ID(), w2.ID())

	ep, ok := reg.Lookup("app")
	require.True(t, ok)
	assert.Same(t, w2, ep)

	// 旧写者不会被强制终止
	select {
	case <-w1.Done():
		t.Fatal("previous writer must keep running by default")
	default:
	}

	GetHandle(reg, "app").WriteLine("to latest")
	require.NoError(t, w2.Close())
	require.NoError(t, w1.Close())

	assert.Equal(t, []string{"to latest"}, readLines(t, dir2))
	assert.Empty(t, readLines(t, dir1))
}

func TestInitialize_RetirePrevious(t *testing.T) {
	reg := NewMemoryRegistry()

	w1 := initWriter(t, reg, "app", t.TempDir())
	w2 := initWriter(t, reg, "app", t.TempDir(), WithRetirePrevious())

	<-w1.Done()
	assert.False(t, w1.Send("late"))

	ep, ok := reg.Lookup("app")
	require.True(t, ok)
	assert.Same(t, w2, ep, "retiring the previous writer must not remove the new registration")
}

// =============================================================================
// 关闭与丢弃
// =============================================================================

func TestWriter_CloseDrainsInbox(t *testing.T) {
	dir := t.TempDir()
	reg := NewMemoryRegistry()
	w := initWriter(t, reg, "app", dir, WithQueueSize(1000))

	for i := range 500 {
		require.True(t, w.Send(strconv.Itoa(i)))
	}
	require.NoError(t, w.Close())
	assert.Zero(t, w.Pending())

	lines := readLines(t, dir)
	require.Len(t, lines, 500)
	assert.Equal(t, "499", lines[499])
}

func TestWriter_SendAfterClose(t *testing.T) {
	reg := NewMemoryRegistry()
	sink := &errSink{}
	w := initWriter(t, reg, "app", t.TempDir(), sink.options()...)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	for range 5 {
		assert.False(t, w.Send("dropped"))
	}
	assert.Equal(t, 1, sink.count(ErrWriterClosed), "one report per drop streak")
	assert.True(t, w.closed())
}

func TestWriter_LeadingTextAndRotation(t *testing.T) {
	dir := t.TempDir()
	reg := NewMemoryRegistry()
	cfg := xsegment.Config{Directory: dir, MaxFileCount: 2, MaxFileLength: 10, LeadingText: "#"}

	w, err := Initialize(context.Background(), reg, "app", cfg)
	require.NoError(t, err)
	h := GetHandle(reg, "app")
	for _, line := range []string{"aaaaa", "bbbbb", "ccccc"} {
		h.WriteLine(line)
	}
	require.NoError(t, w.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"log_1.log", "log_2.log"}, names)

	data, err := os.ReadFile(filepath.Join(dir, "log_2.log"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "#\n"))
}
