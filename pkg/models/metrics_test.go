package models

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Space(t *testing.T) {
	assert.Equal(t, 33, MetricsBaseSpace)
	assert.Equal(t, 1751, MetricsSpace)

	data, err := NewMetrics(0).MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, data, MetricsSpace)
}

func TestMetrics_RecordTransaction(t *testing.T) {
	m := NewMetrics(0)

	m.RecordTransaction(1000, true, 10)
	assert.Equal(t, uint8(100), m.SuccessRate)

	m.RecordTransaction(2000, false, 11)
	assert.Equal(t, uint64(2), m.TotalTransactions)
	assert.Equal(t, uint64(3000), m.TotalGasUsed)
	assert.Equal(t, uint64(1500), m.AvgGasUsed)
	assert.Equal(t, uint8(50), m.SuccessRate)
	assert.Equal(t, uint64(2000), m.PeakGasUsed)
	assert.Equal(t, uint64(1), m.ErrorCount)
	assert.Equal(t, int64(11), m.LastUpdate)
	assert.Equal(t, 2, m.GasHistory.Len())

	trend, ok := m.GasTrend()
	require.True(t, ok)
	assert.Equal(t, int64(1000), trend)
}

func TestMetrics_AverageIsFloorOfTotal(t *testing.T) {
	m := NewMetrics(0)
	r := rand.New(rand.NewSource(7))

	for i := 0; i < 500; i++ {
		m.RecordTransaction(uint64(r.Intn(300_000)), r.Intn(2) == 0, int64(i))
		assert.Equal(t, m.TotalGasUsed/m.TotalTransactions, m.AvgGasUsed)
		assert.LessOrEqual(t, m.SuccessRate, uint8(100))
		assert.LessOrEqual(t, m.ErrorCount, m.TotalTransactions)
	}
	assert.Equal(t, GasHistoryCapacity, m.GasHistory.Len())
}

func TestMetrics_SuccessRateDrift(t *testing.T) {
	// 交替序列 T,F,F,T 的真实成功率为50，增量公式得到25
	m := NewMetrics(0)
	for i, success := range []bool{true, false, false, true} {
		m.RecordTransaction(1, success, int64(i))
	}
	assert.Equal(t, uint8(25), m.SuccessRate)

	t.Run("全部成功或全部失败不漂移", func(t *testing.T) {
		ok, fail := NewMetrics(0), NewMetrics(0)
		for i := 0; i < 300; i++ {
			ok.RecordTransaction(1, true, int64(i))
			fail.RecordTransaction(1, false, int64(i))
		}
		assert.Equal(t, uint8(100), ok.SuccessRate)
		assert.Equal(t, uint8(0), fail.SuccessRate)
	})

	t.Run("成功率不超过真实值", func(t *testing.T) {
		r := rand.New(rand.NewSource(42))
		maxDrift := 0
		for run := 0; run < 50; run++ {
			m := NewMetrics(0)
			successes := 0
			for i := 1; i <= 200; i++ {
				success := r.Intn(3) != 0
				if success {
					successes++
				}
				m.RecordTransaction(1, success, int64(i))

				exact := successes * 100 / i
				require.LessOrEqual(t, int(m.SuccessRate), exact)
				if drift := exact - int(m.SuccessRate); drift > maxDrift {
					maxDrift = drift
				}
			}
		}
		t.Logf("最大漂移: %d 个百分点", maxDrift)
		assert.Greater(t, maxDrift, 0)
	})
}

func TestMetrics_SaturatesCounters(t *testing.T) {
	m := NewMetrics(0)
	m.TotalTransactions = math.MaxUint64 - 1
	m.TotalGasUsed = math.MaxUint64 - 10
	m.SuccessRate = 100

	m.RecordTransaction(100, true, 1)
	m.RecordTransaction(100, false, 2)

	assert.Equal(t, uint64(math.MaxUint64), m.TotalTransactions)
	assert.Equal(t, uint64(math.MaxUint64), m.TotalGasUsed)
	assert.LessOrEqual(t, m.SuccessRate, uint8(100))
}

func TestMetrics_GasTrendNegative(t *testing.T) {
	m := NewMetrics(0)
	m.RecordTransaction(5000, true, 1)
	m.RecordTransaction(3000, true, 2)

	trend, ok := m.GasTrend()
	require.True(t, ok)
	assert.Equal(t, int64(-2000), trend)
}

func TestMetrics_HighGasCount(t *testing.T) {
	m := NewMetrics(0)
	m.RecordTransaction(GasWarningThreshold, true, 1)
	m.RecordTransaction(GasWarningThreshold+1, true, 2)
	m.RecordTransaction(250_000, false, 3)

	assert.Equal(t, 2, m.HighGasCount())
}

func TestMetrics_BinaryRoundTrip(t *testing.T) {
	m := NewMetrics(3)
	for i := 0; i < 130; i++ {
		m.RecordTransaction(uint64(i*1000), i%4 != 0, int64(i))
	}

	data, err := m.MarshalBinary()
	require.NoError(t, err)

	var decoded Metrics
	require.NoError(t, decoded.UnmarshalBinary(data))
	assert.Equal(t, m.TotalTransactions, decoded.TotalTransactions)
	assert.Equal(t, m.SuccessRate, decoded.SuccessRate)
	assert.Equal(t, m.PeakGasUsed, decoded.PeakGasUsed)
	assert.Equal(t, m.ErrorCount, decoded.ErrorCount)
	assert.Equal(t, m.GasHistory.Items(), decoded.GasHistory.Items())
}

func TestMetrics_UnmarshalRejectsCorruptData(t *testing.T) {
	valid, err := NewMetrics(0).MarshalBinary()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"长度错误", func(b []byte) []byte { return b[:10] }},
		{"成功率越界", func(b []byte) []byte { b[24] = 101; return b }},
		{"历史条目数越界", func(b []byte) []byte { b[49] = 101; return b }},
		{"历史头越界", func(b []byte) []byte { b[50] = 100; return b }},
		{"布尔值非法", func(b []byte) []byte { b[MetricsBaseSpace+18+16] = 2; return b }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.mutate(append([]byte(nil), valid...))
			var decoded Metrics
			err := decoded.UnmarshalBinary(data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrCorruptRecord))
		})
	}
}
