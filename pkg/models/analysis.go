package models

import (
	"fmt"
)

// AnalysisStatus 分析状态
type AnalysisStatus uint8

const (
	StatusPending AnalysisStatus = iota
	StatusInProgress
	StatusCompleted
	StatusFailed
)

var analysisStatusNames = map[AnalysisStatus]string{
	StatusPending:    "Pending",
	StatusInProgress: "InProgress",
	StatusCompleted:  "Completed",
	StatusFailed:     "Failed",
}

// String 返回状态名称
func (s AnalysisStatus) String() string {
	if name, ok := analysisStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", uint8(s))
}

// MarshalText 以名称形式输出
func (s AnalysisStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// 风险等级
const (
	RiskLevelLow    = "LOW"
	RiskLevelMedium = "MEDIUM"
	RiskLevelHigh   = "HIGH"
)

// RiskLevel 根据风险分数给出等级，分数越高越安全
func RiskLevel(score uint8) string {
	switch {
	case score >= 80:
		return RiskLevelLow
	case score >= 50:
		return RiskLevelMedium
	default:
		return RiskLevelHigh
	}
}

const (
	// AnalysisHistoryCapacity 分析历史容量
	AnalysisHistoryCapacity = 10
	// MaxRiskScore 风险分数上限
	MaxRiskScore uint8 = 100

	// SecurityAnalysisBaseSpace 基础字段长度: 目标(32) 时间(8) 分数(1) 漏洞数(2) 状态(1)
	SecurityAnalysisBaseSpace = 32 + 8 + 1 + 2 + 1
	analysisResultSpace       = 8 + 1 + 2 + 1
	// SecurityAnalysisSpace 完整记录长度
	SecurityAnalysisSpace = SecurityAnalysisBaseSpace + 2 + 1 + 1 + AnalysisHistoryCapacity*analysisResultSpace
)

// AnalysisResult 单次分析快照
type AnalysisResult struct {
	Timestamp          int64          `json:"timestamp"`
	RiskScore          uint8          `json:"risk_score"`
	VulnerabilityCount uint16         `json:"vulnerability_count"`
	Status             AnalysisStatus `json:"status"`
}

// SecurityAnalysis 目标程序的安全分析记录
type SecurityAnalysis struct {
	TargetProgram      Pubkey
	LastAnalysis       int64
	RiskScore          uint8
	VulnerabilityCount uint16
	Status             AnalysisStatus
	PatternsVersion    uint16
	History            History[AnalysisResult]
}

// NewSecurityAnalysis 创建待分析的记录
func NewSecurityAnalysis(target Pubkey, timestamp int64) *SecurityAnalysis {
	return &SecurityAnalysis{
		TargetProgram: target,
		LastAnalysis:  timestamp,
		Status:        StatusPending,
		History:       NewHistory[AnalysisResult](AnalysisHistoryCapacity),
	}
}

// BeginAnalysis 标记分析进行中
func (s *SecurityAnalysis) BeginAnalysis() {
	s.Status = StatusInProgress
}

// UpdateAnalysis 写入一次完成的分析结果并追加历史快照
func (s *SecurityAnalysis) UpdateAnalysis(riskScore uint8, vulnerabilities uint16, timestamp int64) {
	if riskScore > MaxRiskScore {
		riskScore = MaxRiskScore
	}

	s.RiskScore = riskScore
	s.VulnerabilityCount = vulnerabilities
	s.LastAnalysis = timestamp
	s.Status = StatusCompleted

	s.History.Push(AnalysisResult{
		Timestamp:          timestamp,
		RiskScore:          riskScore,
		VulnerabilityCount: vulnerabilities,
		Status:             StatusCompleted,
	})
}

// RiskTrend 最近两次分析的分数差值，不足两次时ok为false
func (s *SecurityAnalysis) RiskTrend() (int, bool) {
	previous, latest, ok := s.History.LastTwo()
	if !ok {
		return 0, false
	}
	return int(latest.RiskScore) - int(previous.RiskScore), true
}

// MarshalBinary 编码为定长小端布局
func (s *SecurityAnalysis) MarshalBinary() ([]byte, error) {
	if s.History.Cap() != AnalysisHistoryCapacity {
		return nil, fmt.Errorf("分析历史容量错误: %d", s.History.Cap())
	}

	w := newRecordWriter(SecurityAnalysisSpace)
	w.pubkey(s.TargetProgram)
	w.i64(s.LastAnalysis)
	w.u8(s.RiskScore)
	w.u16(s.VulnerabilityCount)
	w.u8(uint8(s.Status))

	w.u16(s.PatternsVersion)
	w.u8(uint8(s.History.Len()))
	w.u8(uint8(s.History.head))
	for _, entry := range s.History.rawSlots() {
		w.i64(entry.Timestamp)
		w.u8(entry.RiskScore)
		w.u16(entry.VulnerabilityCount)
		w.u8(uint8(entry.Status))
	}
	return w.bytes(), nil
}

// UnmarshalBinary 从定长布局解码并校验字段取值
func (s *SecurityAnalysis) UnmarshalBinary(data []byte) error {
	if len(data) != SecurityAnalysisSpace {
		return corruptf("分析记录长度 %d, 期望 %d", len(data), SecurityAnalysisSpace)
	}

	r := newRecordReader(data)
	decoded := SecurityAnalysis{
		TargetProgram:      r.pubkey(),
		LastAnalysis:       r.i64(),
		RiskScore:          r.u8(),
		VulnerabilityCount: r.u16(),
		Status:             AnalysisStatus(r.u8()),
		PatternsVersion:    r.u16(),
	}
	size, head := r.u8(), r.u8()

	slots := make([]AnalysisResult, AnalysisHistoryCapacity)
	for i := range slots {
		slots[i] = AnalysisResult{
			Timestamp:          r.i64(),
			RiskScore:          r.u8(),
			VulnerabilityCount: r.u16(),
			Status:             AnalysisStatus(r.u8()),
		}
	}
	if r.err != nil {
		return r.err
	}

	if err := validateScore(decoded.RiskScore, decoded.Status); err != nil {
		return err
	}
	if err := historyHeader(size, head, AnalysisHistoryCapacity); err != nil {
		return err
	}
	for _, slot := range slots {
		if err := validateScore(slot.RiskScore, slot.Status); err != nil {
			return err
		}
	}

	decoded.History.restore(slots, int(head), int(size))
	*s = decoded
	return nil
}

func validateScore(score uint8, status AnalysisStatus) error {
	if score > MaxRiskScore {
		return corruptf("风险分数 %d 超出范围", score)
	}
	if status > StatusFailed {
		return corruptf("未知分析状态 %d", uint8(status))
	}
	return nil
}
