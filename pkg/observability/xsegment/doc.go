// Package xsegment 实现单写者、按大小轮转的分段日志引擎。
//
// 引擎把一个目录视为有序的段文件集合：段文件名为 log_<N>.log，
// N 为十进制非负整数，单调递增。新写入总是追加到索引最大的段（活跃段）；
// 活跃段超过 MaxFileLength 后创建索引加一的新段；段数超过 MaxFileCount
// 时删除索引最小的段。目录中的其他文件永远不会被触碰。
//
// # 单一所有者
//
// [Engine] 不是并发安全的，也不持有任何锁：它假定自己被唯一的执行上下文
// 拥有。多个 goroutine 或进程需要共享同一目录时，应通过 xsegroute 把写请求
// 转发到持有 Engine 的那个 goroutine，由其按序逐条执行。
//
// # 错误处理
//
// 引擎对调用方永不返回写错误，也不 panic：
//
//   - 目录已存在但不是目录（[ErrNotDirectory]）：报告后引擎进入禁用状态，后续写入静默丢弃
//   - 段创建或追加失败（[ErrSegmentIO]）：报告后丢弃本次写入，下一次写入照常尝试
//   - 引擎未打开或已关闭时写入（[ErrNoActiveSegment]）：内部不变量被破坏，
//     使用 -tags xsegdebug 构建时 panic，否则报告后忽略
//
// 所有错误都通过诊断通道（[WithLogger]、[WithOnError]）上报，
// 诊断通道与日志流本身相互独立，避免回环。
//
// # 长度追踪
//
// 段长度仅在打开时从文件系统读取一次，此后以内存计数为准。
// 外部进程绕过引擎直接追加段文件会导致计数漂移，这不在支持范围内。
package xsegment
