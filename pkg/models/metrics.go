package models

import (
	"fmt"
	"math"
	"math/bits"
)

const (
	// GasHistoryCapacity gas历史容量
	GasHistoryCapacity = 100
	// GasWarningThreshold 高gas告警阈值
	GasWarningThreshold uint64 = 100_000

	// MetricsBaseSpace 基础字段长度: 交易数(8) 总gas(8) 平均gas(8) 成功率(1) 更新时间(8)
	MetricsBaseSpace = 8 + 8 + 8 + 1 + 8
	gasMetricSpace   = 8 + 8 + 1
	// MetricsSpace 完整记录长度
	MetricsSpace = MetricsBaseSpace + 8 + 8 + 1 + 1 + GasHistoryCapacity*gasMetricSpace
)

// GasMetric 单笔交易的gas快照
type GasMetric struct {
	Timestamp int64  `json:"timestamp"`
	GasUsed   uint64 `json:"gas_used"`
	Success   bool   `json:"success"`
}

// IsHighGas 是否超过告警阈值
func (g GasMetric) IsHighGas() bool {
	return g.GasUsed > GasWarningThreshold
}

// Metrics 全局交易指标记录
type Metrics struct {
	TotalTransactions uint64
	TotalGasUsed      uint64
	AvgGasUsed        uint64
	SuccessRate       uint8
	LastUpdate        int64
	PeakGasUsed       uint64
	ErrorCount        uint64
	GasHistory        History[GasMetric]
}

// NewMetrics 创建空指标记录
func NewMetrics(timestamp int64) *Metrics {
	return &Metrics{
		LastUpdate: timestamp,
		GasHistory: NewHistory[GasMetric](GasHistoryCapacity),
	}
}

// RecordTransaction 记录一笔交易
//
// 成功率按整数百分比增量更新，先由旧成功率还原出成功笔数再重新计算，
// 整数截断会使结果不高于真实成功率。
func (m *Metrics) RecordTransaction(gasUsed uint64, success bool, timestamp int64) {
	m.TotalTransactions = saturatingAdd(m.TotalTransactions, 1)
	m.TotalGasUsed = saturatingAdd(m.TotalGasUsed, gasUsed)
	m.AvgGasUsed = m.TotalGasUsed / m.TotalTransactions

	successes := mulDiv(uint64(m.SuccessRate), m.TotalTransactions-1, 100)
	if success {
		successes = saturatingAdd(successes, 1)
	}
	rate := mulDiv(successes, 100, m.TotalTransactions)
	if rate > 100 {
		rate = 100
	}
	m.SuccessRate = uint8(rate)

	if gasUsed > m.PeakGasUsed {
		m.PeakGasUsed = gasUsed
	}
	if !success {
		m.ErrorCount = saturatingAdd(m.ErrorCount, 1)
	}
	m.LastUpdate = timestamp

	m.GasHistory.Push(GasMetric{
		Timestamp: timestamp,
		GasUsed:   gasUsed,
		Success:   success,
	})
}

// GasTrend 最近两笔交易的gas差值，不足两笔时ok为false
func (m *Metrics) GasTrend() (int64, bool) {
	previous, latest, ok := m.GasHistory.LastTwo()
	if !ok {
		return 0, false
	}
	if latest.GasUsed >= previous.GasUsed {
		return clampInt64(latest.GasUsed - previous.GasUsed), true
	}
	return -clampInt64(previous.GasUsed - latest.GasUsed), true
}

// HighGasCount 历史中超过告警阈值的交易数
func (m *Metrics) HighGasCount() int {
	count := 0
	for _, entry := range m.GasHistory.Items() {
		if entry.IsHighGas() {
			count++
		}
	}
	return count
}

// MarshalBinary 编码为定长小端布局
func (m *Metrics) MarshalBinary() ([]byte, error) {
	if m.GasHistory.Cap() != GasHistoryCapacity {
		return nil, fmt.Errorf("gas历史容量错误: %d", m.GasHistory.Cap())
	}

	w := newRecordWriter(MetricsSpace)
	w.u64(m.TotalTransactions)
	w.u64(m.TotalGasUsed)
	w.u64(m.AvgGasUsed)
	w.u8(m.SuccessRate)
	w.i64(m.LastUpdate)

	w.u64(m.PeakGasUsed)
	w.u64(m.ErrorCount)
	w.u8(uint8(m.GasHistory.Len()))
	w.u8(uint8(m.GasHistory.head))
	for _, entry := range m.GasHistory.rawSlots() {
		w.i64(entry.Timestamp)
		w.u64(entry.GasUsed)
		w.boolean(entry.Success)
	}
	return w.bytes(), nil
}

// UnmarshalBinary 从定长布局解码并校验字段取值
func (m *Metrics) UnmarshalBinary(data []byte) error {
	if len(data) != MetricsSpace {
		return corruptf("指标记录长度 %d, 期望 %d", len(data), MetricsSpace)
	}

	r := newRecordReader(data)
	decoded := Metrics{
		TotalTransactions: r.u64(),
		TotalGasUsed:      r.u64(),
		AvgGasUsed:        r.u64(),
		SuccessRate:       r.u8(),
		LastUpdate:        r.i64(),
		PeakGasUsed:       r.u64(),
		ErrorCount:        r.u64(),
	}
	size, head := r.u8(), r.u8()

	slots := make([]GasMetric, GasHistoryCapacity)
	for i := range slots {
		slots[i] = GasMetric{
			Timestamp: r.i64(),
			GasUsed:   r.u64(),
			Success:   r.boolean(),
		}
	}
	if r.err != nil {
		return r.err
	}

	if decoded.SuccessRate > 100 {
		return corruptf("成功率 %d 超出范围", decoded.SuccessRate)
	}
	if err := historyHeader(size, head, GasHistoryCapacity); err != nil {
		return err
	}

	decoded.GasHistory.restore(slots, int(head), int(size))
	*m = decoded
	return nil
}

func saturatingAdd(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return sum
}

// mulDiv 计算 a*b/c，中间结果使用128位避免溢出
func mulDiv(a, b, c uint64) uint64 {
	if c == 0 {
		return 0
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= c {
		return math.MaxUint64
	}
	quo, _ := bits.Div64(hi, lo, c)
	return quo
}

func clampInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}
