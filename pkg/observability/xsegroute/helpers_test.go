package xsegroute

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/omeyang/xseglog/pkg/observability/xsegment"
)

// errSink 并发安全地收集诊断错误。
type errSink struct {
	mu   sync.Mutex
	errs []error
}

func (s *errSink) onError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

func (s *errSink) count(target error) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, err := range s.errs {
		if errors.Is(err, target) {
			n++
		}
	}
	return n
}

func (s *errSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.errs)
}

func (s *errSink) options(extra ...Option) []Option {
	return append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithOnError(s.onError),
	}, extra...)
}

func testEngineConfig(dir string) xsegment.Config {
	return xsegment.Config{Directory: dir, MaxFileCount: 5, MaxFileLength: 1 << 20}
}

func initWriter(t *testing.T, reg Registry, name, dir string, opts ...Option) *Writer {
	t.Helper()
	w, err := Initialize(context.Background(), reg, name, testEngineConfig(dir), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

// readLines 读取段 0 中的所有行。
func readLines(t *testing.T, dir string) []string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, xsegment.SegmentName(0)))
	require.NoError(t, err)
	text := strings.TrimSuffix(string(data), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// countLines 统计段 0 中的行数，文件不存在时返回 0。
func countLines(dir string) int {
	data, err := os.ReadFile(filepath.Join(dir, xsegment.SegmentName(0)))
	if err != nil {
		return 0
	}
	return strings.Count(string(data), "\n")
}
