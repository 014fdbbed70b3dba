// Package xsegroute 把 xsegment 引擎包装成单写者服务，供任意数量的 goroutine
// 或进程并发写入同一个段日志目录。
//
// # 模型
//
// 一个上下文（通常是应用的主 goroutine）调用 [Initialize]：它启动一个独立的
// goroutine 持有 [xsegment.Engine]，等待该 goroutine 报告收件箱就绪后，把写入端
// 以约定的名称发布到 [Registry]。其他上下文通过 [GetHandle] 按名称取得
// [Handle]，调用 WriteLine 把行投递到收件箱后立即返回。
//
// 收件箱只有一个消费者，按投递顺序逐条交给引擎，因此所有 Handle 的写入在
// 文件中呈现为一个全序：每个 Handle 自身的顺序被保留，不会丢行、重复或
// 交错出半行，整个过程不需要文件锁。
//
// # 注册表
//
//   - [NewMemoryRegistry]：进程内注册表
//   - [NewUnixRegistry]：基于 Unix Domain Socket 的注册表，名称映射为
//     <dir>/<name>.sock，供同一主机上的进程树共享一个写者
//
// 重新初始化时，新写者静默替换残留的旧注册（例如异常重启后遗留的 socket
// 文件）。旧写者默认不会被终止；需要时使用 [WithRetirePrevious]。
//
// # 错误处理
//
// 写入路径永不阻塞也不返回错误：名称不可用、收件箱已满或写者已关闭时，
// 行被丢弃，计入 xseglog.lines.dropped 指标，并通过诊断通道上报
// （不可用只在取得 Handle 时上报一次，丢弃每个连续区间上报一次）。
package xsegroute
