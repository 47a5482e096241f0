package errors

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrorHandler 错误处理器，记录统计并按错误码分派处理策略
type ErrorHandler struct {
	logger *logrus.Logger
	stats  *ErrorStats
	mu     sync.RWMutex

	strategies map[ErrorCode]ErrorStrategy
	fallback   ErrorStrategy
	callbacks  []ErrorCallback
	thresholds map[ErrorSeverity]ThresholdConfig
}

// ErrorStrategy 错误处理策略
type ErrorStrategy interface {
	Handle(ctx context.Context, err *GuardError) error
}

// ErrorCallback 错误回调函数
type ErrorCallback func(err *GuardError)

// ThresholdConfig 阈值配置
type ThresholdConfig struct {
	MaxErrorsPerHour int `json:"max_errors_per_hour"`
}

// LoggingStrategy 日志记录策略
type LoggingStrategy struct {
	logger *logrus.Logger
}

// NewLoggingStrategy 创建日志记录策略
func NewLoggingStrategy(logger *logrus.Logger) *LoggingStrategy {
	return &LoggingStrategy{logger: logger}
}

// NewErrorHandler 创建错误处理器
func NewErrorHandler(logger *logrus.Logger) *ErrorHandler {
	eh := &ErrorHandler{
		logger:     logger,
		stats:      NewErrorStats(),
		strategies: make(map[ErrorCode]ErrorStrategy),
		fallback:   NewLoggingStrategy(logger),
		thresholds: map[ErrorSeverity]ThresholdConfig{
			SeverityLow:      {MaxErrorsPerHour: 1000},
			SeverityMedium:   {MaxErrorsPerHour: 100},
			SeverityHigh:     {MaxErrorsPerHour: 20},
			SeverityCritical: {MaxErrorsPerHour: 1},
		},
	}
	return eh
}

// HandleError 处理错误，返回值为原始错误链
func (eh *ErrorHandler) HandleError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	guardErr, ok := AsGuardError(err)
	if !ok {
		eh.mu.Lock()
		eh.stats.UnknownErrors++
		eh.mu.Unlock()
		eh.logger.WithError(err).Error("未分类错误")
		return err
	}

	eh.mu.Lock()
	eh.stats.RecordError(guardErr)
	exceeded := eh.thresholdExceeded(guardErr)
	eh.mu.Unlock()

	if exceeded {
		eh.logger.Warnf("错误达到阈值限制: %s", guardErr.Error())
	}

	eh.executeCallbacks(guardErr)

	eh.strategyFor(guardErr.Code).Handle(ctx, guardErr)
	return err
}

// thresholdExceeded 检查每小时错误数，调用方持有锁
func (eh *ErrorHandler) thresholdExceeded(err *GuardError) bool {
	threshold, exists := eh.thresholds[err.Severity]
	if !exists {
		return false
	}
	return eh.stats.GetErrorRate(time.Hour) > float64(threshold.MaxErrorsPerHour)
}

// executeCallbacks 执行错误回调
func (eh *ErrorHandler) executeCallbacks(err *GuardError) {
	eh.mu.RLock()
	callbacks := make([]ErrorCallback, len(eh.callbacks))
	copy(callbacks, eh.callbacks)
	eh.mu.RUnlock()

	for _, callback := range callbacks {
		func(cb ErrorCallback) {
			defer func() {
				if r := recover(); r != nil {
					eh.logger.Errorf("错误回调执行时发生panic: %v", r)
				}
			}()
			cb(err)
		}(callback)
	}
}

func (eh *ErrorHandler) strategyFor(code ErrorCode) ErrorStrategy {
	eh.mu.RLock()
	defer eh.mu.RUnlock()
	if strategy, exists := eh.strategies[code]; exists {
		return strategy
	}
	return eh.fallback
}

// Handle 按严重级别输出日志
func (ls *LoggingStrategy) Handle(ctx context.Context, err *GuardError) error {
	logEntry := ls.logger.WithFields(logrus.Fields{
		"error_code": err.Code.String(),
		"code":       uint32(err.Code),
		"severity":   err.Severity.String(),
		"component":  err.Component,
	})
	for k, v := range err.Context {
		logEntry = logEntry.WithField(k, v)
	}
	if err.Cause != nil {
		logEntry = logEntry.WithError(err.Cause)
	}

	switch err.Severity {
	case SeverityLow:
		logEntry.Debug(err.Message)
	case SeverityMedium:
		logEntry.Warn(err.Message)
	default:
		logEntry.Error(err.Message)
	}
	return err
}

// AddCallback 添加错误回调
func (eh *ErrorHandler) AddCallback(callback ErrorCallback) {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	eh.callbacks = append(eh.callbacks, callback)
}

// SetStrategy 设置错误码对应的处理策略
func (eh *ErrorHandler) SetStrategy(code ErrorCode, strategy ErrorStrategy) {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	eh.strategies[code] = strategy
}

// SetThreshold 设置阈值
func (eh *ErrorHandler) SetThreshold(severity ErrorSeverity, config ThresholdConfig) {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	eh.thresholds[severity] = config
}

// GetStats 获取错误统计快照
func (eh *ErrorHandler) GetStats() ErrorStats {
	eh.mu.RLock()
	defer eh.mu.RUnlock()

	snapshot := *eh.stats
	snapshot.recent = eh.stats.recent.Clone()
	snapshot.ErrorsByCode = make(map[ErrorCode]int, len(eh.stats.ErrorsByCode))
	for k, v := range eh.stats.ErrorsByCode {
		snapshot.ErrorsByCode[k] = v
	}
	snapshot.ErrorsBySeverity = make(map[ErrorSeverity]int, len(eh.stats.ErrorsBySeverity))
	for k, v := range eh.stats.ErrorsBySeverity {
		snapshot.ErrorsBySeverity[k] = v
	}
	return snapshot
}

// ClearStats 清空统计
func (eh *ErrorHandler) ClearStats() {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	eh.stats = NewErrorStats()
}

// AlertStrategy 告警策略
type AlertStrategy struct {
	alertFunc func(err *GuardError)
	logger    *logrus.Logger
}

// NewAlertStrategy 创建告警策略
func NewAlertStrategy(alertFunc func(err *GuardError), logger *logrus.Logger) *AlertStrategy {
	return &AlertStrategy{
		alertFunc: alertFunc,
		logger:    logger,
	}
}

// Handle 实现AlertStrategy的处理方法
func (as *AlertStrategy) Handle(ctx context.Context, err *GuardError) error {
	if err.Severity >= SeverityHigh && as.alertFunc != nil {
		as.logger.Warnf("触发告警: %s", err.Error())
		as.alertFunc(err)
	}
	return err
}

// CompositeStrategy 组合策略
type CompositeStrategy struct {
	strategies []ErrorStrategy
}

// NewCompositeStrategy 创建组合策略
func NewCompositeStrategy(strategies ...ErrorStrategy) *CompositeStrategy {
	return &CompositeStrategy{strategies: strategies}
}

// Handle 依次执行所有策略
func (cs *CompositeStrategy) Handle(ctx context.Context, err *GuardError) error {
	for _, strategy := range cs.strategies {
		strategy.Handle(ctx, err)
	}
	return err
}
