// Package xfile 提供日志目录相关的文件系统工具。
//
// # 目录所有权
//
// [EnsureDirectory] 递归创建目录；当路径已存在但不是目录时返回
// [ErrNotDirectory]，调用方据此区分“配置错误”与普通 I/O 错误。
//
// # 路径拼接
//
// [SafeJoin] 将一个不含路径分隔语义的文件名拼接到基准目录，
// 拒绝空字节、绝对路径和 ".." 路径段，保证结果始终位于基准目录内。
// 段文件名、socket 文件名都应经由 SafeJoin 生成。
//
// # 错误处理
//
// 预定义错误变量支持 [errors.Is] 判断：
//
//	err := xfile.EnsureDirectory("/var/log/app", xfile.DefaultDirPerm)
//	if errors.Is(err, xfile.ErrNotDirectory) {
//	    // 路径被普通文件占用
//	}
package xfile
