//go:build !xsegdebug

package xsegment

// debugAssertions 默认关闭，不变量被破坏时仅上报诊断并忽略本次写入。
const debugAssertions = false
