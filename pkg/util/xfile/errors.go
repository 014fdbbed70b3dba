package xfile

import "errors"

var (
	// ErrEmptyPath 表示必需的路径参数为空。
	ErrEmptyPath = errors.New("xfile: path is required")

	// ErrInvalidPath 表示路径格式无效（如绝对路径、目录路径）。
	ErrInvalidPath = errors.New("xfile: invalid path")

	// ErrPathTraversal 表示检测到路径穿越（".." 路径段）。
	ErrPathTraversal = errors.New("xfile: path traversal detected")

	// ErrNullByte 表示路径中包含空字节（\x00），Linux 内核会在空字节处截断路径，
	// 导致 Go 代码与操作系统看到的路径不一致。
	ErrNullByte = errors.New("xfile: path contains null byte")

	// ErrNotDirectory 表示路径已存在但不是目录。
	ErrNotDirectory = errors.New("xfile: path exists but is not a directory")

	// ErrInvalidPerm 表示目录权限无效（如缺少所有者执行位，目录无法遍历）。
	ErrInvalidPerm = errors.New("xfile: invalid directory permission")
)
