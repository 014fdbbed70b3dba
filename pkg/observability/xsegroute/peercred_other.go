//go:build !linux

package xsegroute

import "net"

// peerAttrs 非 Linux 平台不读取对端身份。
func peerAttrs(net.Conn) []any {
	return nil
}
