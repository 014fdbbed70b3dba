package xsegroute

import (
	"fmt"
	"strings"
	"sync"
)

// Endpoint 写者的投递端。
//
// Send 把一行交给写者并立即返回，永不阻塞于文件 I/O。
// 返回 false 表示该行被丢弃（原因已由实现自行上报）。
// 实现必须是并发安全的。
type Endpoint interface {
	Send(line string) bool
}

// Registry 名称到写入端的注册表。
//
// 注册表是路由层之外的协作者，只通过这两个操作被使用：
// Initialize 调用 Register 发布写者，GetHandle 调用 Lookup 发现写者。
type Registry interface {
	// Register 以 name 发布 ep，静默替换已有注册。
	// previous 为被替换的同进程写入端（没有或无法得知时为 nil）。
	Register(name string, ep Endpoint) (previous Endpoint, err error)

	// Lookup 查找 name 对应的写入端。
	Lookup(name string) (Endpoint, bool)
}

// unregisterer 可选接口：写者关闭时撤销自己的注册。
// 只有当前注册的仍是 ep 时才撤销，避免误删新写者的注册。
type unregisterer interface {
	unregister(name string, ep Endpoint)
}

// releaser 可选接口：Lookup 返回的写入端持有需要释放的资源。
type releaser interface {
	release()
}

// diagBinder 可选接口：Lookup 返回的写入端在发送侧失败，
// 失败改由持有它的 Handle 的诊断通道上报。
type diagBinder interface {
	bindDiagnostics(diag *reporter, metrics *routeMetrics)
}

// closedChecker 可选接口：写入端能够报告自己已不可用。
type closedChecker interface {
	closed() bool
}

// validateName 校验注册名称。
//
// 名称会被 UnixRegistry 用作文件名，因此禁止路径分隔符、空字节和 "."、".."。
func validateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, "/\\\x00"):
		return fmt.Errorf("%w: %q contains a path separator or null byte", ErrInvalidName, name)
	default:
		return nil
	}
}

// =============================================================================
// 进程内注册表
// =============================================================================

// MemoryRegistry 进程内注册表，并发安全。
type MemoryRegistry struct {
	mu    sync.RWMutex
	items map[string]Endpoint
}

// 编译时断言
var _ Registry = (*MemoryRegistry)(nil)

// NewMemoryRegistry 创建进程内注册表。
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{items: make(map[string]Endpoint)}
}

// Register 实现 Registry。
func (r *MemoryRegistry) Register(name string, ep Endpoint) (Endpoint, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if ep == nil {
		return nil, ErrNilEndpoint
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	previous := r.items[name]
	r.items[name] = ep
	return previous, nil
}

// Lookup 实现 Registry。
func (r *MemoryRegistry) Lookup(name string) (Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ep, ok := r.items[name]
	return ep, ok
}

func (r *MemoryRegistry) unregister(name string, ep Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.items[name]; ok && current == ep {
		delete(r.items, name)
	}
}
