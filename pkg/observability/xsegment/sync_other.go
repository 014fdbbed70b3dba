//go:build !linux

package xsegment

import "os"

// datasync 把追加的数据落盘。
func datasync(f *os.File) error {
	return f.Sync()
}
