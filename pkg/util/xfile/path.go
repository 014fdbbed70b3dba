package xfile

import (
	"fmt"
	"path/filepath"
	"strings"
)

// containsNullByte 检测路径是否包含空字节。
// Linux 内核在 VFS 层会在空字节处截断路径，导致 Go 代码与操作系统看到的路径不一致。
func containsNullByte(path string) bool {
	return strings.ContainsRune(path, 0)
}

// isWindowsAbsPath 检测 Windows 风格的绝对或驱动器相关路径。
// 在非 Windows 平台上 filepath.IsAbs 不识别 "C:\..." 或 "\\server\..." 形式。
func isWindowsAbsPath(path string) bool {
	if len(path) >= 2 && isASCIILetter(path[0]) && path[1] == ':' {
		return true
	}
	return len(path) >= 1 && path[0] == '\\'
}

func isASCIILetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// hasDotDotSegment 检测路径中是否包含 ".." 作为独立路径段。
// 同时将 '/' 和 '\' 视为分隔符。以 ".." 开头的合法文件名（如 "..config"）不算穿越。
func hasDotDotSegment(path string) bool {
	i := 0
	for i < len(path) {
		if path[i] == '/' || path[i] == '\\' {
			i++
			continue
		}
		j := i
		for j < len(path) && path[j] != '/' && path[j] != '\\' {
			j++
		}
		if j-i == 2 && path[i] == '.' && path[i+1] == '.' {
			return true
		}
		i = j
	}
	return false
}

// SafeJoin 将 name 拼接到 base 目录下
//
// base 可以是相对路径（日志目录常以相对路径配置），但不能为空或包含空字节。
// name 必须是相对路径，不能包含 ".." 路径段，也不能以分隔符结尾。
// 返回的路径经过 filepath.Clean 规范化，且保证位于 base 之内。
//
// 示例：
//
//	SafeJoin("/var/log/app", "log_3.log")     // -> "/var/log/app/log_3.log", nil
//	SafeJoin("/var/log/app", "../passwd")     // -> "", ErrPathTraversal
//	SafeJoin("/var/log/app", "/etc/passwd")   // -> "", ErrInvalidPath
func SafeJoin(base, name string) (string, error) {
	if base == "" {
		return "", fmt.Errorf("base directory is required: %w", ErrEmptyPath)
	}
	if name == "" {
		return "", fmt.Errorf("name is required: %w", ErrEmptyPath)
	}
	if containsNullByte(base) || containsNullByte(name) {
		return "", ErrNullByte
	}
	if filepath.IsAbs(name) || isWindowsAbsPath(name) {
		return "", fmt.Errorf("name must be relative: %w", ErrInvalidPath)
	}
	if strings.HasSuffix(name, "/") || strings.HasSuffix(name, "\\") {
		return "", fmt.Errorf("name is a directory: %w", ErrInvalidPath)
	}
	if hasDotDotSegment(name) {
		return "", fmt.Errorf("path traversal in name: %w", ErrPathTraversal)
	}
	cleanName := filepath.Clean(name)
	if cleanName == "." {
		return "", fmt.Errorf("no file name specified: %w", ErrInvalidPath)
	}
	return filepath.Join(filepath.Clean(base), cleanName), nil
}
