//go:build !windows

package xfile

import (
	"errors"

	"golang.org/x/sys/unix"
)

// isNotDir 判断错误是否为 ENOTDIR。
func isNotDir(err error) bool {
	return errors.Is(err, unix.ENOTDIR)
}
