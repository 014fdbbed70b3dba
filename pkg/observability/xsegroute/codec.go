package xsegroute

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// 帧格式：Magic(2) + Version(1) + Type(1) + Length(4, 大端) + Payload
const (
	// frameMagic 帧魔数
	frameMagic uint16 = 0x5E61

	// frameVersion 协议版本
	frameVersion uint8 = 0x01

	// frameTypeLine 日志行帧，payload 为 UTF-8 文本（不含换行符）
	frameTypeLine uint8 = 0x01

	// frameHeaderSize 帧头大小
	frameHeaderSize = 8

	// MaxLineSize 单行最大字节数（1MB），超出部分在字符边界处截断
	MaxLineSize = 1024 * 1024
)

// encodeLine 把一行编码为帧。超长的行在 UTF-8 字符边界处截断。
func encodeLine(line string) []byte {
	line = truncateUTF8(line, MaxLineSize)

	frame := make([]byte, frameHeaderSize+len(line))
	binary.BigEndian.PutUint16(frame[0:2], frameMagic)
	frame[2] = frameVersion
	frame[3] = frameTypeLine
	binary.BigEndian.PutUint32(frame[4:8], uint32(len(line))) //#nosec G115 -- 长度已被 MaxLineSize 限制
	copy(frame[frameHeaderSize:], line)
	return frame
}

// decodeLine 从 r 读取一帧并返回其中的行。
//
// 连接在帧边界处正常结束时返回 io.EOF。
func decodeLine(r io.Reader, buf []byte) (string, []byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return "", buf, io.EOF
		}
		return "", buf, fmt.Errorf("read header: %w", err)
	}

	if magic := binary.BigEndian.Uint16(header[0:2]); magic != frameMagic {
		return "", buf, fmt.Errorf("%w: bad magic %#04x", ErrInvalidFrame, magic)
	}
	if version := header[2]; version != frameVersion {
		return "", buf, fmt.Errorf("%w: unsupported version %d", ErrInvalidFrame, version)
	}
	if typ := header[3]; typ != frameTypeLine {
		return "", buf, fmt.Errorf("%w: unknown type %#02x", ErrInvalidFrame, typ)
	}
	length := binary.BigEndian.Uint32(header[4:8])
	if length > MaxLineSize {
		return "", buf, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	if cap(buf) < int(length) {
		buf = make([]byte, length)
	}
	buf = buf[:length]
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", buf, fmt.Errorf("read payload: %w", err)
	}
	return string(buf), buf, nil
}

// truncateUTF8 截断字符串，不破坏多字节字符。
func truncateUTF8(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
