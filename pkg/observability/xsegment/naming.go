package xsegment

import (
	"strconv"
	"strings"
)

const (
	segmentPrefix = "log_"
	segmentSuffix = ".log"
)

// SegmentName 返回索引对应的段文件名，如 log_12.log。
func SegmentName(index uint64) string {
	return segmentPrefix + strconv.FormatUint(index, 10) + segmentSuffix
}

// ParseSegmentName 从段文件名中解析索引。
//
// 仅接受规范形式 log_<digits>.log：digits 为十进制数字，不含符号，
// 除 "0" 外不允许前导零，且不超过 uint64 范围。
// 其余名称（log_abc.log、log_007.log、log_1.log.bak 等）返回 false，
// 视为外部文件。
func ParseSegmentName(name string) (uint64, bool) {
	if len(name) <= len(segmentPrefix)+len(segmentSuffix) {
		return 0, false
	}
	if !strings.HasPrefix(name, segmentPrefix) || !strings.HasSuffix(name, segmentSuffix) {
		return 0, false
	}
	digits := name[len(segmentPrefix) : len(name)-len(segmentSuffix)]
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return 0, false
		}
	}
	// 设计决策: 段路径由索引确定性地推导，log_007.log 与 log_7.log 会映射到
	// 同一索引却指向不同文件，因此非规范名称一律按外部文件处理。
	if len(digits) > 1 && digits[0] == '0' {
		return 0, false
	}
	index, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return index, true
}
