package metrics

import (
	"time"

	guarderrors "guard/internal/errors"
	"guard/internal/processor"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "guard"

// Collector 程序运行指标
type Collector struct {
	instructions *prometheus.CounterVec
	failures     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	riskScores   prometheus.Histogram
	findings     *prometheus.CounterVec
	gasUsed      prometheus.Histogram
	successRate  prometheus.Gauge
	networkTPS   prometheus.Gauge
	blockTime    prometheus.Gauge
}

// NewCollector 创建并注册指标，reg为nil时使用默认注册表
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		instructions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instructions_total",
			Help:      "Processed instructions by type and result.",
		}, []string{"instruction", "result"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instruction_failures_total",
			Help:      "Rejected instructions by error code.",
		}, []string{"code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "instruction_duration_seconds",
			Help:      "Time from account load to commit.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"instruction"}),
		riskScores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "risk_score",
			Help:      "Risk scores produced by contract analysis.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
		findings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_findings_total",
			Help:      "Heuristic findings by check.",
		}, []string{"check"}),
		gasUsed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transaction_gas_used",
			Help:      "Gas reported by RecordMetrics.",
			Buckets:   prometheus.ExponentialBuckets(1000, 4, 10),
		}),
		successRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transaction_success_rate",
			Help:      "Stored success rate percentage.",
		}),
		networkTPS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "network_transactions_per_second",
			Help:      "Last reported network TPS.",
		}),
		blockTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "network_average_block_time",
			Help:      "Last reported average block time.",
		}),
	}

	reg.MustRegister(
		c.instructions, c.failures, c.latency, c.riskScores, c.findings,
		c.gasUsed, c.successRate, c.networkTPS, c.blockTime,
	)
	return c
}

// ObserveInvocation 记录一次指令调用
func (c *Collector) ObserveInvocation(instruction string, elapsed time.Duration, err error) {
	c.latency.WithLabelValues(instruction).Observe(elapsed.Seconds())
	if err == nil {
		c.instructions.WithLabelValues(instruction, "ok").Inc()
		return
	}

	c.instructions.WithLabelValues(instruction, "error").Inc()
	code := "unknown"
	if errorCode, ok := guarderrors.CodeOf(err); ok {
		code = errorCode.String()
	}
	c.failures.WithLabelValues(code).Inc()
}

// ObserveOutcome 按执行结果更新业务指标
func (c *Collector) ObserveOutcome(outcome *processor.Outcome) {
	if outcome == nil {
		return
	}

	switch {
	case outcome.Analysis != nil:
		c.riskScores.Observe(float64(outcome.Analysis.RiskScore))
		if outcome.Report != nil {
			for _, finding := range outcome.Report.Findings {
				c.findings.WithLabelValues(finding.Check).Inc()
			}
		}
	case outcome.Metrics != nil:
		if latest, ok := outcome.Metrics.GasHistory.Latest(); ok {
			c.gasUsed.Observe(float64(latest.GasUsed))
		}
		c.successRate.Set(float64(outcome.Metrics.SuccessRate))
	case outcome.Network != nil:
		c.networkTPS.Set(float64(outcome.Network.TransactionsPerSecond))
		c.blockTime.Set(float64(outcome.Network.AverageBlockTime))
	}
}
