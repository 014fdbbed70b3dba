//go:build linux

package xsegroute

import (
	"log/slog"
	"net"

	"golang.org/x/sys/unix"
)

// peerAttrs 通过 SO_PEERCRED 读取对端进程身份，用于诊断日志。
// 使用 SyscallConn 避免 File() 把连接切换到阻塞模式。
func peerAttrs(conn net.Conn) []any {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return nil
	}
	rawConn, err := unixConn.SyscallConn()
	if err != nil {
		return nil
	}

	var cred *unix.Ucred
	var credErr error
	if err := rawConn.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil || credErr != nil {
		return nil
	}
	return []any{
		slog.Int("peer_pid", int(cred.Pid)),
		slog.Uint64("peer_uid", uint64(cred.Uid)),
		slog.Uint64("peer_gid", uint64(cred.Gid)),
	}
}
