package xfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// DefaultDirPerm 默认目录权限
//
// 0750 权限说明：
//   - 所有者：读写执行 (7)
//   - 组：读执行 (5)
//   - 其他：无权限 (0)
//
// 符合 gosec G301 安全建议
const DefaultDirPerm = 0750

// statFn 仅用于测试注入 Stat 失败场景。
var statFn = os.Stat

// EnsureDirectory 确保 dir 是一个存在的目录
//
// 不存在时使用 perm 递归创建；已存在且为目录时不修改其权限。
// 已存在但不是目录时返回 [ErrNotDirectory]。
//
// perm 必须包含所有者执行位（0100），否则目录无法遍历。
func EnsureDirectory(dir string, perm os.FileMode) error {
	if dir == "" {
		return fmt.Errorf("directory is required: %w", ErrEmptyPath)
	}
	if containsNullByte(dir) {
		return fmt.Errorf("directory contains null byte: %w", ErrNullByte)
	}
	if perm&0100 == 0 {
		return fmt.Errorf("directory permission %04o missing owner execute bit: %w", perm, ErrInvalidPerm)
	}

	info, err := statFn(dir)
	switch {
	case err == nil:
		if !info.IsDir() {
			return fmt.Errorf("%s: %w", dir, ErrNotDirectory)
		}
		return nil
	case errors.Is(err, fs.ErrNotExist):
		//#nosec G301 -- 目录权限由调用方配置决定
		if err := os.MkdirAll(dir, perm); err != nil {
			// 父路径中某一段是普通文件时 MkdirAll 返回 ENOTDIR
			if isNotDir(err) {
				return fmt.Errorf("%s: %w: %w", dir, ErrNotDirectory, err)
			}
			return err
		}
		return nil
	case isNotDir(err):
		return fmt.Errorf("%s: %w: %w", dir, ErrNotDirectory, err)
	default:
		return err
	}
}
