package metrics

import (
	"fmt"
	"testing"
	"time"

	guarderrors "guard/internal/errors"
	"guard/internal/processor"
	"guard/internal/scanner"
	"guard/pkg/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_ObserveInvocation(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveInvocation("AnalyzeContract", 2*time.Millisecond, nil)
	c.ObserveInvocation("AnalyzeContract", time.Millisecond, guarderrors.ErrUnauthorizedAccount)
	c.ObserveInvocation("RecordMetrics", time.Millisecond, fmt.Errorf("wrapped: %w", guarderrors.ErrInsufficientBufferSize))
	c.ObserveInvocation("RecordMetrics", time.Millisecond, fmt.Errorf("store closed"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.instructions.WithLabelValues("AnalyzeContract", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.instructions.WithLabelValues("AnalyzeContract", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.instructions.WithLabelValues("RecordMetrics", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.failures.WithLabelValues(guarderrors.CodeUnauthorizedAccount.String())))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.failures.WithLabelValues(guarderrors.CodeInsufficientBufferSize.String())))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.failures.WithLabelValues("unknown")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.latency))
}

func TestCollector_ObserveOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	analysis := models.NewSecurityAnalysis(models.Pubkey{}, 0)
	analysis.UpdateAnalysis(65, 2, 1)
	c.ObserveOutcome(&processor.Outcome{
		Analysis: analysis,
		Report: &scanner.Report{Findings: []scanner.Finding{
			{Check: scanner.CheckSize},
			{Check: scanner.CheckPatterns},
		}},
	})
	assert.Equal(t, 1, testutil.CollectAndCount(c.riskScores))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.findings.WithLabelValues(scanner.CheckSize)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.findings.WithLabelValues(scanner.CheckPatterns)))

	metrics := models.NewMetrics(0)
	metrics.RecordTransaction(21_000, true, 1)
	metrics.RecordTransaction(50_000, false, 2)
	c.ObserveOutcome(&processor.Outcome{Metrics: metrics})
	assert.Equal(t, 50.0, testutil.ToFloat64(c.successRate))
	assert.Equal(t, 1, testutil.CollectAndCount(c.gasUsed))

	network := models.NewNetworkState(models.Pubkey{}, 0)
	network.UpdateStats(1500, 400, 3)
	c.ObserveOutcome(&processor.Outcome{Network: network})
	assert.Equal(t, 1500.0, testutil.ToFloat64(c.networkTPS))
	assert.Equal(t, 400.0, testutil.ToFloat64(c.blockTime))

	c.ObserveOutcome(nil)
}

func TestNewCollector_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)
	require.Panics(t, func() { NewCollector(reg) })
}
