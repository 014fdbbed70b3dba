package xsegroute

import "errors"

// 初始化错误
var (
	// ErrNilRegistry 注册表为 nil
	ErrNilRegistry = errors.New("xsegroute: registry is nil")

	// ErrInvalidName 名称为空或包含路径分隔符等非法字符
	ErrInvalidName = errors.New("xsegroute: invalid name")

	// ErrNilEndpoint 注册的写入端为 nil
	ErrNilEndpoint = errors.New("xsegroute: endpoint is nil")

	// ErrRegistryClosed 注册表已关闭
	ErrRegistryClosed = errors.New("xsegroute: registry is closed")

	// ErrNotSocket 名称对应的路径已存在但不是 socket，拒绝覆盖
	ErrNotSocket = errors.New("xsegroute: path exists but is not a socket")
)

// 运行期错误，仅通过诊断通道上报
var (
	// ErrUnavailable 名称未注册，取得的 Handle 不可用
	ErrUnavailable = errors.New("xsegroute: writer unavailable")

	// ErrQueueFull 收件箱已满，行被丢弃
	ErrQueueFull = errors.New("xsegroute: inbox full, line dropped")

	// ErrWriterClosed 写者已关闭，行被丢弃
	ErrWriterClosed = errors.New("xsegroute: writer closed, line dropped")

	// ErrRemoteUnreachable 与远端写者的连接失败，行被丢弃
	ErrRemoteUnreachable = errors.New("xsegroute: remote writer unreachable")
)

// 协议错误
var (
	// ErrInvalidFrame 帧头魔数、版本或类型不合法
	ErrInvalidFrame = errors.New("xsegroute: invalid frame")

	// ErrFrameTooLarge 帧负载超过上限
	ErrFrameTooLarge = errors.New("xsegroute: frame too large")
)
