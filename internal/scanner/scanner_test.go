package scanner

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasSuspiciousPatterns(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected bool
	}{
		{"空数据", nil, false},
		{"安全数据", []byte{0x90, 0x90, 0x90, 0x90}, false},
		{"不安全指令序列", []byte{0x48, 0x31, 0xc0, 0x90}, true},
		{"序列位于末尾", []byte{0x00, 0x01, 0x48, 0x31, 0xc0, 0x90}, true},
		{"序列不完整", []byte{0x48, 0x31, 0xc0}, false},
		{"死循环跳转", []byte{0x00, 0xeb, 0xfe}, true},
		{"单字节", []byte{0xeb}, false},
		{"跳转被打断", []byte{0xeb, 0x00, 0xfe}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, HasSuspiciousPatterns(tt.data))
		})
	}
}

func TestHasSuspiciousPatterns_IgnoresBytesPastLimit(t *testing.T) {
	data := make([]byte, MaxContractSize+4)
	copy(data[MaxContractSize:], []byte{0xeb, 0xfe})
	assert.False(t, HasSuspiciousPatterns(data))

	// 跨越边界的特征同样不计入
	data = make([]byte, MaxContractSize+4)
	data[MaxContractSize-1] = 0xeb
	data[MaxContractSize] = 0xfe
	assert.False(t, HasSuspiciousPatterns(data))
}

func TestCountResources(t *testing.T) {
	data := []byte{0x48, 0x8b, 0xff, 0x00, 0x48, 0x8b, 0xff}
	counts := CountResources(data)
	// 最后一个字节不构成完整窗口
	assert.Equal(t, ResourceCounts{MemoryOps: 2, Instructions: 1}, counts)
	assert.False(t, counts.Excessive())
}

func TestHasExcessiveResourceUsage(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected bool
	}{
		{"空数据", nil, false},
		{"内存操作恰好达到阈值", bytes.Repeat([]byte{0x48, 0x8b}, MemoryOpThreshold), false},
		{"内存操作超过阈值", append(bytes.Repeat([]byte{0x48, 0x8b}, MemoryOpThreshold+1), 0x00), true},
		{"指令恰好达到阈值", append(bytes.Repeat([]byte{0xff}, InstructionThreshold), 0x00), false},
		{"指令超过阈值", append(bytes.Repeat([]byte{0xff}, InstructionThreshold+1), 0x00), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, HasExcessiveResourceUsage(tt.data))
			assert.Equal(t, tt.expected, CountResources(tt.data).Excessive())
		})
	}
}
