package scanner

import (
	"fmt"
)

const (
	// InitialScore 起始分数
	InitialScore uint8 = 100
	// RiskScoreThreshold 低风险分数线
	RiskScoreThreshold uint8 = 80

	sizePenalty     uint8 = 10
	patternPenalty  uint8 = 15
	resourcePenalty uint8 = 20
)

// 检查项名称
const (
	CheckSize     = "size"
	CheckPatterns = "patterns"
	CheckResource = "resource_usage"
)

// Finding 单项发现
type Finding struct {
	Check   string `json:"check"`
	Penalty uint8  `json:"penalty"`
	Message string `json:"message"`
}

// Report 评分结果
type Report struct {
	RiskScore uint8          `json:"risk_score"`
	Findings  []Finding      `json:"findings"`
	Size      int            `json:"size"`
	DataSize  uint64         `json:"data_size"`
	Resources ResourceCounts `json:"resources"`
}

// VulnerabilityCount 发现项数量
func (r *Report) VulnerabilityCount() uint16 {
	return uint16(len(r.Findings))
}

// Messages 按顺序返回发现描述
func (r *Report) Messages() []string {
	messages := make([]string, len(r.Findings))
	for i, f := range r.Findings {
		messages[i] = f.Message
	}
	return messages
}

func (r *Report) penalize(check string, penalty uint8, message string) {
	if r.RiskScore > penalty {
		r.RiskScore -= penalty
	} else {
		r.RiskScore = 0
	}
	r.Findings = append(r.Findings, Finding{Check: check, Penalty: penalty, Message: message})
}

// Score 依次检查大小、可疑特征和资源使用并给出风险分数
func Score(data []byte, dataSize uint64) *Report {
	report := &Report{
		RiskScore: InitialScore,
		Findings:  make([]Finding, 0, 3),
		Size:      len(data),
		DataSize:  dataSize,
	}

	size := uint64(len(data))
	if size > dataSize || len(data) > MaxContractSize {
		report.penalize(CheckSize, sizePenalty,
			fmt.Sprintf("程序大小 %d 超过声明大小 %d 或上限 %d", size, dataSize, MaxContractSize))
	}

	if HasSuspiciousPatterns(data) {
		report.penalize(CheckPatterns, patternPenalty, "检测到可疑指令特征")
	}

	report.Resources = CountResources(data)
	if report.Resources.Excessive() {
		report.penalize(CheckResource, resourcePenalty,
			fmt.Sprintf("资源使用过多: 内存操作 %d, 指令 %d", report.Resources.MemoryOps, report.Resources.Instructions))
	}

	return report
}
