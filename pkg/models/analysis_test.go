package models

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTarget = common.HexToHash("0x7a5c0e1d2b3a49586f7e8d9c0b1a2938475665748392a1b0c9d8e7f6a5b4c3d2")

func TestSecurityAnalysis_Space(t *testing.T) {
	assert.Equal(t, 44, SecurityAnalysisBaseSpace)
	assert.Equal(t, 168, SecurityAnalysisSpace)

	record := NewSecurityAnalysis(testTarget, 100)
	data, err := record.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, data, SecurityAnalysisSpace)
}

func TestSecurityAnalysis_UpdateAnalysis(t *testing.T) {
	record := NewSecurityAnalysis(testTarget, 100)
	assert.Equal(t, StatusPending, record.Status)

	record.BeginAnalysis()
	assert.Equal(t, StatusInProgress, record.Status)

	record.UpdateAnalysis(85, 1, 200)
	assert.Equal(t, StatusCompleted, record.Status)
	assert.Equal(t, uint8(85), record.RiskScore)
	assert.Equal(t, uint16(1), record.VulnerabilityCount)
	assert.Equal(t, int64(200), record.LastAnalysis)
	assert.Equal(t, 1, record.History.Len())

	latest, ok := record.History.Latest()
	require.True(t, ok)
	assert.Equal(t, AnalysisResult{Timestamp: 200, RiskScore: 85, VulnerabilityCount: 1, Status: StatusCompleted}, latest)
}

func TestSecurityAnalysis_ClampsRiskScore(t *testing.T) {
	record := NewSecurityAnalysis(testTarget, 0)
	record.UpdateAnalysis(250, 0, 1)
	assert.Equal(t, MaxRiskScore, record.RiskScore)
}

func TestSecurityAnalysis_HistoryBounded(t *testing.T) {
	record := NewSecurityAnalysis(testTarget, 0)

	// 连续11次分析，最早的快照被淘汰
	for i := 1; i <= 11; i++ {
		record.UpdateAnalysis(uint8(i), 0, int64(i*10))
	}

	assert.Equal(t, AnalysisHistoryCapacity, record.History.Len())
	items := record.History.Items()
	assert.Equal(t, int64(20), items[0].Timestamp)
	assert.Equal(t, int64(110), items[len(items)-1].Timestamp)
	for _, item := range items {
		assert.NotEqual(t, int64(10), item.Timestamp)
	}
}

func TestSecurityAnalysis_RiskTrend(t *testing.T) {
	record := NewSecurityAnalysis(testTarget, 0)

	_, ok := record.RiskTrend()
	assert.False(t, ok)

	record.UpdateAnalysis(90, 1, 1)
	_, ok = record.RiskTrend()
	assert.False(t, ok)

	record.UpdateAnalysis(75, 2, 2)
	trend, ok := record.RiskTrend()
	require.True(t, ok)
	assert.Equal(t, -15, trend)
}

func TestSecurityAnalysis_BinaryRoundTripAfterWrap(t *testing.T) {
	record := NewSecurityAnalysis(testTarget, 5)
	record.PatternsVersion = 1
	for i := 0; i < 13; i++ {
		record.UpdateAnalysis(uint8(60+i), uint16(i), int64(1000+i))
	}

	data, err := record.MarshalBinary()
	require.NoError(t, err)

	var decoded SecurityAnalysis
	require.NoError(t, decoded.UnmarshalBinary(data))

	assert.Equal(t, record.TargetProgram, decoded.TargetProgram)
	assert.Equal(t, record.RiskScore, decoded.RiskScore)
	assert.Equal(t, record.PatternsVersion, decoded.PatternsVersion)
	assert.Equal(t, record.History.Items(), decoded.History.Items())

	// 解码后继续追加仍保持FIFO顺序
	decoded.UpdateAnalysis(99, 0, 2000)
	items := decoded.History.Items()
	assert.Equal(t, int64(1004), items[0].Timestamp)
	assert.Equal(t, int64(2000), items[9].Timestamp)
}

func TestSecurityAnalysis_UnmarshalRejectsCorruptData(t *testing.T) {
	valid, err := NewSecurityAnalysis(testTarget, 0).MarshalBinary()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"长度不足", func(b []byte) []byte { return b[:SecurityAnalysisSpace-1] }},
		{"长度超出", func(b []byte) []byte { return append(b, 0) }},
		{"风险分数越界", func(b []byte) []byte { b[40] = 101; return b }},
		{"状态未知", func(b []byte) []byte { b[43] = 4; return b }},
		{"历史条目数越界", func(b []byte) []byte { b[46] = 11; return b }},
		{"历史头越界", func(b []byte) []byte { b[47] = 10; return b }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.mutate(append([]byte(nil), valid...))
			var decoded SecurityAnalysis
			err := decoded.UnmarshalBinary(data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrCorruptRecord))
		})
	}
}

func TestRiskLevel(t *testing.T) {
	tests := []struct {
		score    uint8
		expected string
	}{
		{100, RiskLevelLow},
		{80, RiskLevelLow},
		{79, RiskLevelMedium},
		{50, RiskLevelMedium},
		{49, RiskLevelHigh},
		{0, RiskLevelHigh},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, RiskLevel(tt.score), "score=%d", tt.score)
	}
}

func TestAnalysisStatus_String(t *testing.T) {
	assert.Equal(t, "Completed", StatusCompleted.String())
	assert.Equal(t, "Unknown(9)", AnalysisStatus(9).String())

	text, err := StatusInProgress.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "InProgress", string(text))
}
