//go:build linux

package xsegment

import (
	"os"

	"golang.org/x/sys/unix"
)

// datasync 把追加的数据落盘。
// Linux 使用 fdatasync：段文件只追加，无需同步 mtime 等元数据。
func datasync(f *os.File) error {
	for {
		err := unix.Fdatasync(int(f.Fd()))
		if err != unix.EINTR {
			return err
		}
	}
}
