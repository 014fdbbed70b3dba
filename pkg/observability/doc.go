// Package observability 提供日志落盘相关的子包。
//
// 子包列表：
//   - xsegment: 单写者、按大小轮转的分段日志引擎
//   - xsegroute: 单写者路由，把多个 goroutine/进程的写入汇聚到一个引擎
//
// 设计原则：
//   - 日志永不阻塞或中断被观测的应用，失败只通过独立的诊断通道上报
//   - 指标遵循 OpenTelemetry 语义，默认使用全局 MeterProvider
package observability
