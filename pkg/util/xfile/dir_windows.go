//go:build windows

package xfile

import (
	"errors"
	"io/fs"
)

// isNotDir 在 Windows 上无法可靠区分 ENOTDIR，退化为 fs.ErrInvalid 判断。
func isNotDir(err error) bool {
	return errors.Is(err, fs.ErrInvalid)
}
