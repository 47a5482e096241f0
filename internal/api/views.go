package api

import (
	"guard/pkg/models"
)

// AnalysisView 分析记录展示
type AnalysisView struct {
	TargetProgram      string                  `json:"target_program"`
	LastAnalysis       int64                   `json:"last_analysis"`
	RiskScore          uint8                   `json:"risk_score"`
	RiskLevel          string                  `json:"risk_level"`
	VulnerabilityCount uint16                  `json:"vulnerability_count"`
	Status             models.AnalysisStatus   `json:"status"`
	PatternsVersion    uint16                  `json:"patterns_version"`
	RiskTrend          *int                    `json:"risk_trend,omitempty"`
	History            []models.AnalysisResult `json:"history"`
}

// NewAnalysisView 由分析记录生成展示
func NewAnalysisView(record *models.SecurityAnalysis) *AnalysisView {
	view := &AnalysisView{
		TargetProgram:      record.TargetProgram.Hex(),
		LastAnalysis:       record.LastAnalysis,
		RiskScore:          record.RiskScore,
		RiskLevel:          models.RiskLevel(record.RiskScore),
		VulnerabilityCount: record.VulnerabilityCount,
		Status:             record.Status,
		PatternsVersion:    record.PatternsVersion,
		History:            record.History.Items(),
	}
	if trend, ok := record.RiskTrend(); ok {
		view.RiskTrend = &trend
	}
	return view
}

// GasSample gas历史条目
type GasSample struct {
	models.GasMetric
	HighGas bool `json:"high_gas"`
}

// MetricsView 指标记录展示
type MetricsView struct {
	TotalTransactions uint64      `json:"total_transactions"`
	TotalGasUsed      uint64      `json:"total_gas_used"`
	AvgGasUsed        uint64      `json:"avg_gas_used"`
	SuccessRate       uint8       `json:"success_rate"`
	LastUpdate        int64       `json:"last_update"`
	PeakGasUsed       uint64      `json:"peak_gas_used"`
	ErrorCount        uint64      `json:"error_count"`
	GasTrend          *int64      `json:"gas_trend,omitempty"`
	HighGasCount      int         `json:"high_gas_count"`
	History           []GasSample `json:"history"`
}

// NewMetricsView 由指标记录生成展示
func NewMetricsView(record *models.Metrics) *MetricsView {
	items := record.GasHistory.Items()
	history := make([]GasSample, len(items))
	for i, item := range items {
		history[i] = GasSample{GasMetric: item, HighGas: item.IsHighGas()}
	}

	view := &MetricsView{
		TotalTransactions: record.TotalTransactions,
		TotalGasUsed:      record.TotalGasUsed,
		AvgGasUsed:        record.AvgGasUsed,
		SuccessRate:       record.SuccessRate,
		LastUpdate:        record.LastUpdate,
		PeakGasUsed:       record.PeakGasUsed,
		ErrorCount:        record.ErrorCount,
		HighGasCount:      record.HighGasCount(),
		History:           history,
	}
	if trend, ok := record.GasTrend(); ok {
		view.GasTrend = &trend
	}
	return view
}

// NetworkView 网络状态展示
type NetworkView struct {
	Authority             string `json:"authority"`
	InitializedAt         int64  `json:"initialized_at"`
	LastUpdated           int64  `json:"last_updated"`
	TransactionsPerSecond uint64 `json:"transactions_per_second"`
	AverageBlockTime      uint64 `json:"average_block_time"`
}

// NewNetworkView 由网络状态生成展示
func NewNetworkView(record *models.NetworkState) *NetworkView {
	return &NetworkView{
		Authority:             record.Authority.Hex(),
		InitializedAt:         record.InitializedAt,
		LastUpdated:           record.LastUpdated,
		TransactionsPerSecond: record.TransactionsPerSecond,
		AverageBlockTime:      record.AverageBlockTime,
	}
}
