package instruction

import (
	"encoding/binary"
	"fmt"

	guarderrors "guard/internal/errors"
)

// Tag 指令判别字节
type Tag uint8

const (
	TagAnalyzeContract Tag = iota
	TagRecordMetrics
	TagUpdateNetworkStats
)

var tagNames = map[Tag]string{
	TagAnalyzeContract:    "AnalyzeContract",
	TagRecordMetrics:      "RecordMetrics",
	TagUpdateNetworkStats: "UpdateNetworkStats",
}

// String 返回指令名称
func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", uint8(t))
}

// Instruction 程序指令，具体类型见下
type Instruction interface {
	Tag() Tag
	payloadSize() int
	appendPayload(buf []byte) []byte
}

// AnalyzeContract 分析目标程序
type AnalyzeContract struct {
	DataSize uint64 `json:"data_size"`
}

// RecordMetrics 记录一笔交易
type RecordMetrics struct {
	GasUsed uint64 `json:"gas_used"`
	Success bool   `json:"success"`
}

// UpdateNetworkStats 更新网络统计
type UpdateNetworkStats struct {
	TransactionsPerSecond uint64 `json:"transactions_per_second"`
	AverageBlockTime      uint64 `json:"average_block_time"`
}

func (AnalyzeContract) Tag() Tag    { return TagAnalyzeContract }
func (RecordMetrics) Tag() Tag      { return TagRecordMetrics }
func (UpdateNetworkStats) Tag() Tag { return TagUpdateNetworkStats }

func (AnalyzeContract) payloadSize() int    { return 8 }
func (RecordMetrics) payloadSize() int      { return 9 }
func (UpdateNetworkStats) payloadSize() int { return 16 }

func (ix AnalyzeContract) appendPayload(buf []byte) []byte {
	return binary.LittleEndian.AppendUint64(buf, ix.DataSize)
}

func (ix RecordMetrics) appendPayload(buf []byte) []byte {
	buf = binary.LittleEndian.AppendUint64(buf, ix.GasUsed)
	if ix.Success {
		return append(buf, 1)
	}
	return append(buf, 0)
}

func (ix UpdateNetworkStats) appendPayload(buf []byte) []byte {
	buf = binary.LittleEndian.AppendUint64(buf, ix.TransactionsPerSecond)
	return binary.LittleEndian.AppendUint64(buf, ix.AverageBlockTime)
}

// Encode 编码指令: 1字节判别 + 小端序字段
func Encode(ix Instruction) ([]byte, error) {
	if ix == nil {
		return nil, guarderrors.ErrInvalidInstructionData.WithContext("reason", "空指令")
	}
	buf := make([]byte, 0, 1+ix.payloadSize())
	buf = append(buf, byte(ix.Tag()))
	return ix.appendPayload(buf), nil
}

// Decode 解码指令，字段之后的多余字节被忽略
func Decode(data []byte) (Instruction, error) {
	if len(data) == 0 {
		return nil, guarderrors.ErrInvalidInstructionData.WithContext("reason", "指令数据为空")
	}

	tag, payload := Tag(data[0]), data[1:]
	var ix Instruction
	switch tag {
	case TagAnalyzeContract:
		if len(payload) < 8 {
			return nil, truncated(tag, len(payload))
		}
		ix = AnalyzeContract{DataSize: binary.LittleEndian.Uint64(payload)}
	case TagRecordMetrics:
		if len(payload) < 9 {
			return nil, truncated(tag, len(payload))
		}
		ix = RecordMetrics{
			GasUsed: binary.LittleEndian.Uint64(payload),
			Success: payload[8] != 0,
		}
	case TagUpdateNetworkStats:
		if len(payload) < 16 {
			return nil, truncated(tag, len(payload))
		}
		ix = UpdateNetworkStats{
			TransactionsPerSecond: binary.LittleEndian.Uint64(payload),
			AverageBlockTime:      binary.LittleEndian.Uint64(payload[8:]),
		}
	default:
		return nil, guarderrors.ErrInvalidInstructionData.WithContext("tag", uint8(tag))
	}
	return ix, nil
}

func truncated(tag Tag, got int) error {
	return guarderrors.ErrInvalidInstructionData.
		WithContext("instruction", tag.String()).
		WithContext("payload_len", got)
}
