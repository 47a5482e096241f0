package models

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrCorruptRecord 记录字节布局无法解析
var ErrCorruptRecord = errors.New("记录数据损坏")

// corruptf 构造带细节的布局错误
func corruptf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrCorruptRecord, fmt.Sprintf(format, args...))
}

// recordWriter 小端序定长字段写入器
type recordWriter struct {
	buf []byte
}

func newRecordWriter(size int) *recordWriter {
	return &recordWriter{buf: make([]byte, 0, size)}
}

func (w *recordWriter) u8(v uint8)        { w.buf = append(w.buf, v) }
func (w *recordWriter) u16(v uint16)      { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *recordWriter) u64(v uint64)      { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }
func (w *recordWriter) i64(v int64)       { w.u64(uint64(v)) }
func (w *recordWriter) pubkey(key Pubkey) { w.buf = append(w.buf, key.Bytes()...) }
func (w *recordWriter) bytes() []byte     { return w.buf }
func (w *recordWriter) boolean(v bool) {
	if v {
		w.u8(1)
		return
	}
	w.u8(0)
}

// recordReader 小端序定长字段读取器，越界后记录错误并返回零值
type recordReader struct {
	buf []byte
	off int
	err error
}

func newRecordReader(buf []byte) *recordReader {
	return &recordReader{buf: buf}
}

func (r *recordReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.err = corruptf("偏移 %d 处读取 %d 字节越界", r.off, n)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *recordReader) u8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *recordReader) u16() uint16 {
	if b := r.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *recordReader) u64() uint64 {
	if b := r.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (r *recordReader) i64() int64 {
	return int64(r.u64())
}

func (r *recordReader) pubkey() Pubkey {
	var key Pubkey
	if b := r.take(PubkeyLength); b != nil {
		copy(key[:], b)
	}
	return key
}

func (r *recordReader) boolean() bool {
	v := r.u8()
	if v > 1 && r.err == nil {
		r.err = corruptf("偏移 %d 处布尔值非法: %d", r.off-1, v)
	}
	return v == 1
}

// historyHeader 校验环形历史头部
func historyHeader(size, head uint8, capacity int) error {
	if int(size) > capacity {
		return corruptf("历史条目数 %d 超过容量 %d", size, capacity)
	}
	if int(head) >= capacity {
		return corruptf("历史头位置 %d 超出容量 %d", head, capacity)
	}
	return nil
}
