//go:build xsegdebug

package xsegment

// debugAssertions 使用 -tags xsegdebug 构建时开启，不变量被破坏直接 panic。
const debugAssertions = true
