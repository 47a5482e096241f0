package events

import (
	"context"
	"fmt"

	"guard/internal/processor"
	"guard/internal/scanner"
	"guard/pkg/models"
)

// EventType 事件类型
type EventType string

const (
	EventAnalysisCompleted   EventType = "analysis_completed"
	EventMetricsRecorded     EventType = "metrics_recorded"
	EventNetworkStatsUpdated EventType = "network_stats_updated"
)

// Event 一次成功提交的指令产生的事件
type Event struct {
	Type      EventType   `json:"type"`
	ProgramID string      `json:"program_id"`
	Account   string      `json:"account"`
	Timestamp int64       `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// AnalysisPayload 安全分析完成
type AnalysisPayload struct {
	Target             string            `json:"target"`
	RiskScore          uint8             `json:"risk_score"`
	RiskLevel          string            `json:"risk_level"`
	VulnerabilityCount uint16            `json:"vulnerability_count"`
	Findings           []scanner.Finding `json:"findings"`
	RiskTrend          *int              `json:"risk_trend,omitempty"`
}

// MetricsPayload 交易指标已记录
type MetricsPayload struct {
	GasUsed           uint64 `json:"gas_used"`
	Success           bool   `json:"success"`
	HighGas           bool   `json:"high_gas"`
	TotalTransactions uint64 `json:"total_transactions"`
	AvgGasUsed        uint64 `json:"avg_gas_used"`
	SuccessRate       uint8  `json:"success_rate"`
}

// NetworkPayload 网络状态已更新
type NetworkPayload struct {
	Authority             string `json:"authority"`
	TransactionsPerSecond uint64 `json:"transactions_per_second"`
	AverageBlockTime      uint64 `json:"average_block_time"`
}

// Publisher 事件发布接口
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// FromOutcome 将指令执行结果转换为事件，account为被写入的记录账户
func FromOutcome(programID, account models.Pubkey, outcome *processor.Outcome) (*Event, error) {
	if outcome == nil {
		return nil, fmt.Errorf("执行结果为空")
	}

	event := &Event{
		ProgramID: programID.Hex(),
		Account:   account.Hex(),
		Timestamp: outcome.Timestamp,
	}

	switch {
	case outcome.Analysis != nil:
		event.Type = EventAnalysisCompleted
		payload := &AnalysisPayload{
			Target:             outcome.Analysis.TargetProgram.Hex(),
			RiskScore:          outcome.Analysis.RiskScore,
			RiskLevel:          models.RiskLevel(outcome.Analysis.RiskScore),
			VulnerabilityCount: outcome.Analysis.VulnerabilityCount,
			Findings:           []scanner.Finding{},
		}
		if outcome.Report != nil {
			payload.Findings = outcome.Report.Findings
		}
		if trend, ok := outcome.Analysis.RiskTrend(); ok {
			payload.RiskTrend = &trend
		}
		event.Payload = payload

	case outcome.Metrics != nil:
		event.Type = EventMetricsRecorded
		latest, ok := outcome.Metrics.GasHistory.Latest()
		if !ok {
			return nil, fmt.Errorf("指标记录缺少gas历史")
		}
		event.Payload = &MetricsPayload{
			GasUsed:           latest.GasUsed,
			Success:           latest.Success,
			HighGas:           latest.IsHighGas(),
			TotalTransactions: outcome.Metrics.TotalTransactions,
			AvgGasUsed:        outcome.Metrics.AvgGasUsed,
			SuccessRate:       outcome.Metrics.SuccessRate,
		}

	case outcome.Network != nil:
		event.Type = EventNetworkStatsUpdated
		event.Payload = &NetworkPayload{
			Authority:             outcome.Network.Authority.Hex(),
			TransactionsPerSecond: outcome.Network.TransactionsPerSecond,
			AverageBlockTime:      outcome.Network.AverageBlockTime,
		}

	default:
		return nil, fmt.Errorf("未知的执行结果")
	}

	return event, nil
}
