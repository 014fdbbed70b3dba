package xsegroute

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_RoundTrip(t *testing.T) {
	var stream bytes.Buffer
	lines := []string{"hello", "", "日志消息", strings.Repeat("x", 4096)}
	for _, line := range lines {
		stream.Write(encodeLine(line))
	}

	var buf []byte
	for _, want := range lines {
		got, next, err := decodeLine(&stream, buf)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		buf = next
	}
	_, _, err := decodeLine(&stream, buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestCodec_Header(t *testing.T) {
	frame := encodeLine("abc")

	assert.Len(t, frame, frameHeaderSize+3)
	assert.Equal(t, frameMagic, binary.BigEndian.Uint16(frame[0:2]))
	assert.Equal(t, frameVersion, frame[2])
	assert.Equal(t, frameTypeLine, frame[3])
	assert.Equal(t, uint32(3), binary.BigEndian.Uint32(frame[4:8]))
}

func TestCodec_TruncatesOnRuneBoundary(t *testing.T) {
	// 3 字节字符跨越上限
	line := strings.Repeat("a", MaxLineSize-1) + "中"
	frame := encodeLine(line)

	got, _, err := decodeLine(bytes.NewReader(frame), nil)
	require.NoError(t, err)
	assert.Len(t, got, MaxLineSize-1)
	assert.True(t, utf8.ValidString(got))
}

func TestCodec_DecodeErrors(t *testing.T) {
	valid := encodeLine("abc")
	mutate := func(fn func(b []byte)) []byte {
		b := bytes.Clone(valid)
		fn(b)
		return b
	}

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{name: "魔数错误", data: mutate(func(b []byte) { b[0] = 0 }), wantErr: ErrInvalidFrame},
		{name: "版本错误", data: mutate(func(b []byte) { b[2] = 9 }), wantErr: ErrInvalidFrame},
		{name: "类型错误", data: mutate(func(b []byte) { b[3] = 7 }), wantErr: ErrInvalidFrame},
		{name: "长度超限", data: mutate(func(b []byte) { binary.BigEndian.PutUint32(b[4:8], MaxLineSize+1) }), wantErr: ErrFrameTooLarge},
		{name: "帧头不完整", data: valid[:5], wantErr: io.ErrUnexpectedEOF},
		{name: "负载不完整", data: valid[:len(valid)-1], wantErr: io.ErrUnexpectedEOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := decodeLine(bytes.NewReader(tt.data), nil)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTruncateUTF8(t *testing.T) {
	assert.Equal(t, "abc", truncateUTF8("abc", 5))
	assert.Equal(t, "ab", truncateUTF8("abc", 2))
	assert.Equal(t, "", truncateUTF8("中", 2))
	assert.Equal(t, "a", truncateUTF8("a中", 3))
}

// FuzzDecodeLine 任意输入不会导致 panic，成功解码的行可以重新编码。
func FuzzDecodeLine(f *testing.F) {
	f.Add(encodeLine("hello"))
	f.Add(encodeLine(""))
	f.Add([]byte{0x5E, 0x61, 0x01, 0x01, 0xff, 0xff, 0xff, 0xff})
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		line, _, err := decodeLine(bytes.NewReader(data), nil)
		if err != nil {
			return
		}
		if got := encodeLine(line); !bytes.Equal(got, data[:len(got)]) {
			t.Errorf("re-encoded frame differs for %q", line)
		}
	})
}
