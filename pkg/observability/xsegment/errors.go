package xsegment

import "errors"

// 配置校验错误
var (
	// ErrEmptyDirectory 目录为空
	ErrEmptyDirectory = errors.New("xsegment: directory is required")

	// ErrInvalidMaxFileCount MaxFileCount 必须 >= 1
	ErrInvalidMaxFileCount = errors.New("xsegment: invalid MaxFileCount")

	// ErrInvalidMaxFileLength MaxFileLength 必须 >= 0
	ErrInvalidMaxFileLength = errors.New("xsegment: invalid MaxFileLength")

	// ErrInvalidFileMode FileMode 包含非权限位（仅允许低 9 位 0000~0777）
	ErrInvalidFileMode = errors.New("xsegment: invalid FileMode")

	// ErrUnsupportedFormat 配置文件格式不受支持
	ErrUnsupportedFormat = errors.New("xsegment: unsupported config format")

	// ErrLoadConfig 配置加载或解析失败
	ErrLoadConfig = errors.New("xsegment: failed to load config")
)

// 运行期错误，仅通过诊断通道上报
var (
	// ErrNotDirectory 目录路径已存在但不是目录（配置错误，引擎禁用）
	ErrNotDirectory = errors.New("xsegment: directory path is not a directory")

	// ErrSegmentIO 段文件创建、追加、同步或删除失败（瞬时错误）
	ErrSegmentIO = errors.New("xsegment: segment I/O failed")

	// ErrNoActiveSegment 在没有活跃段时尝试写入（内部不变量被破坏）
	ErrNoActiveSegment = errors.New("xsegment: no active segment")

	// ErrIndexExhausted 段索引已达 uint64 上限，无法继续轮转
	ErrIndexExhausted = errors.New("xsegment: segment index exhausted")

	// ErrClosed 引擎已关闭
	ErrClosed = errors.New("xsegment: engine is closed")
)
