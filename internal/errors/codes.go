package errors

// 预定义错误，错误码顺序固定
var (
	ErrInvalidInstructionData = NewGuardError(CodeInvalidInstructionData, SeverityLow, "指令数据无效")
	ErrInvalidAccountData     = NewGuardError(CodeInvalidAccountData, SeverityMedium, "账户数据无效")
	ErrUnauthorizedAccount    = NewGuardError(CodeUnauthorizedAccount, SeverityHigh, "账户未授权")
	ErrInvalidTargetProgram   = NewGuardError(CodeInvalidTargetProgram, SeverityMedium, "目标程序无效")
	ErrInsufficientBufferSize = NewGuardError(CodeInsufficientBufferSize, SeverityMedium, "缓冲区空间不足")

	ErrAnalysisFailed           = NewGuardError(CodeAnalysisFailed, SeverityHigh, "合约分析失败")
	ErrMetricsRecordingFailed   = NewGuardError(CodeMetricsRecordingFailed, SeverityHigh, "指标记录失败")
	ErrNetworkStatsUpdateFailed = NewGuardError(CodeNetworkStatsUpdateFailed, SeverityHigh, "网络状态更新失败")

	// 保留错误码，当前没有触发路径
	ErrInitializationFailed = NewGuardError(CodeInitializationFailed, SeverityCritical, "初始化失败")
	ErrRateLimitExceeded    = NewGuardError(CodeRateLimitExceeded, SeverityMedium, "超出速率限制")
)

var predefinedErrors = map[ErrorCode]*GuardError{
	CodeInvalidInstructionData:   ErrInvalidInstructionData,
	CodeInvalidAccountData:       ErrInvalidAccountData,
	CodeUnauthorizedAccount:      ErrUnauthorizedAccount,
	CodeInvalidTargetProgram:     ErrInvalidTargetProgram,
	CodeInsufficientBufferSize:   ErrInsufficientBufferSize,
	CodeAnalysisFailed:           ErrAnalysisFailed,
	CodeMetricsRecordingFailed:   ErrMetricsRecordingFailed,
	CodeNetworkStatsUpdateFailed: ErrNetworkStatsUpdateFailed,
	CodeInitializationFailed:     ErrInitializationFailed,
	CodeRateLimitExceeded:        ErrRateLimitExceeded,
}

// FromCode 根据错误码获取预定义错误
func FromCode(code ErrorCode) (*GuardError, bool) {
	err, ok := predefinedErrors[code]
	return err, ok
}
