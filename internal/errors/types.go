package errors

import (
	stderrors "errors"
	"fmt"
	"time"

	"guard/pkg/models"
)

// ErrorCode 程序错误码，数值即宿主看到的自定义错误码
type ErrorCode uint32

const (
	CodeInvalidInstructionData ErrorCode = iota
	CodeInvalidAccountData
	CodeUnauthorizedAccount
	CodeInvalidTargetProgram
	CodeInsufficientBufferSize
	CodeAnalysisFailed
	CodeMetricsRecordingFailed
	CodeNetworkStatsUpdateFailed
	CodeInitializationFailed
	CodeRateLimitExceeded
)

// ErrorSeverity 错误严重级别
type ErrorSeverity int

const (
	SeverityLow ErrorSeverity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// GuardError 程序错误
type GuardError struct {
	Code      ErrorCode              `json:"code"`
	Severity  ErrorSeverity          `json:"severity"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Cause     error                  `json:"-"`
	Component string                 `json:"component,omitempty"`
}

// Error 实现error接口
func (e *GuardError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 支持errors.Unwrap
func (e *GuardError) Unwrap() error {
	return e.Cause
}

// Is 错误码相同即视为同一错误
func (e *GuardError) Is(target error) bool {
	t, ok := target.(*GuardError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// clone 复制错误，预定义错误本身保持不变
func (e *GuardError) clone() *GuardError {
	c := *e
	if e.Context != nil {
		c.Context = make(map[string]interface{}, len(e.Context))
		for k, v := range e.Context {
			c.Context[k] = v
		}
	}
	return &c
}

// WithContext 返回附带上下文信息的副本
func (e *GuardError) WithContext(key string, value interface{}) *GuardError {
	c := e.clone()
	if c.Context == nil {
		c.Context = make(map[string]interface{})
	}
	c.Context[key] = value
	return c
}

// WithComponent 返回标注组件的副本
func (e *GuardError) WithComponent(component string) *GuardError {
	c := e.clone()
	c.Component = component
	return c
}

// Wrap 返回以cause为底层原因的副本
func (e *GuardError) Wrap(cause error) *GuardError {
	c := e.clone()
	c.Cause = cause
	c.Timestamp = time.Now()
	return c
}

// NewGuardError 创建新的错误
func NewGuardError(code ErrorCode, severity ErrorSeverity, message string) *GuardError {
	return &GuardError{
		Code:      code,
		Severity:  severity,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// AsGuardError 从错误链中取出GuardError
func AsGuardError(err error) (*GuardError, bool) {
	var ge *GuardError
	if stderrors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// CodeOf 获取错误链中的错误码
func CodeOf(err error) (ErrorCode, bool) {
	if ge, ok := AsGuardError(err); ok {
		return ge.Code, true
	}
	return 0, false
}

// 错误码字符串映射
var errorCodeNames = map[ErrorCode]string{
	CodeInvalidInstructionData:   "InvalidInstructionData",
	CodeInvalidAccountData:       "InvalidAccountData",
	CodeUnauthorizedAccount:      "UnauthorizedAccount",
	CodeInvalidTargetProgram:     "InvalidTargetProgram",
	CodeInsufficientBufferSize:   "InsufficientBufferSize",
	CodeAnalysisFailed:           "AnalysisFailed",
	CodeMetricsRecordingFailed:   "MetricsRecordingFailed",
	CodeNetworkStatsUpdateFailed: "NetworkStatsUpdateFailed",
	CodeInitializationFailed:     "InitializationFailed",
	CodeRateLimitExceeded:        "RateLimitExceeded",
}

// String 返回错误码的字符串表示
func (c ErrorCode) String() string {
	if name, exists := errorCodeNames[c]; exists {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", uint32(c))
}

// 严重级别字符串映射
var severityNames = map[ErrorSeverity]string{
	SeverityLow:      "Low",
	SeverityMedium:   "Medium",
	SeverityHigh:     "High",
	SeverityCritical: "Critical",
}

// String 返回严重级别的字符串表示
func (es ErrorSeverity) String() string {
	if name, exists := severityNames[es]; exists {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", es)
}

// recentErrorCapacity 保留的最近错误数
const recentErrorCapacity = 100

// ErrorStats 错误统计
type ErrorStats struct {
	TotalErrors      int                   `json:"total_errors"`
	UnknownErrors    int                   `json:"unknown_errors"`
	ErrorsByCode     map[ErrorCode]int     `json:"errors_by_code"`
	ErrorsBySeverity map[ErrorSeverity]int `json:"errors_by_severity"`
	LastError        *GuardError           `json:"last_error"`
	LastErrorTime    time.Time             `json:"last_error_time"`

	recent models.History[*GuardError]
}

// NewErrorStats 创建错误统计
func NewErrorStats() *ErrorStats {
	return &ErrorStats{
		ErrorsByCode:     make(map[ErrorCode]int),
		ErrorsBySeverity: make(map[ErrorSeverity]int),
		recent:           models.NewHistory[*GuardError](recentErrorCapacity),
	}
}

// RecordError 记录错误
func (es *ErrorStats) RecordError(err *GuardError) {
	es.TotalErrors++
	es.ErrorsByCode[err.Code]++
	es.ErrorsBySeverity[err.Severity]++

	es.LastError = err
	es.LastErrorTime = err.Timestamp
	es.recent.Push(err)
}

// RecentErrors 最近的错误，从旧到新
func (es *ErrorStats) RecentErrors() []*GuardError {
	return es.recent.Items()
}

// GetErrorRate 获取错误率（错误/小时）
func (es *ErrorStats) GetErrorRate(duration time.Duration) float64 {
	if duration <= 0 {
		return 0
	}

	cutoff := time.Now().Add(-duration)
	recentCount := 0
	for _, err := range es.recent.Items() {
		if err.Timestamp.After(cutoff) {
			recentCount++
		}
	}

	hours := duration.Hours()
	if hours == 0 {
		return float64(recentCount)
	}
	return float64(recentCount) / hours
}
