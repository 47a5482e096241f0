package errors

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

func TestErrorHandler_HandleError(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	handler := NewErrorHandler(logger)

	err := ErrUnauthorizedAccount.WithContext("signer", "0x01")
	returned := handler.HandleError(context.Background(), err)

	assert.Same(t, err, returned)
	stats := handler.GetStats()
	assert.Equal(t, 1, stats.TotalErrors)
	assert.Equal(t, 1, stats.ErrorsByCode[CodeUnauthorizedAccount])

	entry := hook.LastEntry()
	if assert.NotNil(t, entry) {
		assert.Equal(t, logrus.ErrorLevel, entry.Level)
		assert.Equal(t, "UnauthorizedAccount", entry.Data["error_code"])
		assert.Equal(t, "0x01", entry.Data["signer"])
	}
}

func TestErrorHandler_UnknownError(t *testing.T) {
	logger, _ := test.NewNullLogger()
	handler := NewErrorHandler(logger)

	plain := errors.New("普通错误")
	assert.Equal(t, plain, handler.HandleError(context.Background(), plain))
	assert.Nil(t, handler.HandleError(context.Background(), nil))

	stats := handler.GetStats()
	assert.Equal(t, 0, stats.TotalErrors)
	assert.Equal(t, 1, stats.UnknownErrors)
}

func TestErrorHandler_StrategiesAndCallbacks(t *testing.T) {
	logger, _ := test.NewNullLogger()
	handler := NewErrorHandler(logger)

	var alerted []*GuardError
	handler.SetStrategy(CodeAnalysisFailed, NewCompositeStrategy(
		NewLoggingStrategy(logger),
		NewAlertStrategy(func(err *GuardError) { alerted = append(alerted, err) }, logger),
	))

	var seen []ErrorCode
	handler.AddCallback(func(err *GuardError) { seen = append(seen, err.Code) })
	handler.AddCallback(func(err *GuardError) { panic("回调异常") })

	handler.HandleError(context.Background(), ErrAnalysisFailed)
	handler.HandleError(context.Background(), ErrInvalidInstructionData)

	assert.Len(t, alerted, 1)
	assert.Equal(t, []ErrorCode{CodeAnalysisFailed, CodeInvalidInstructionData}, seen)

	handler.ClearStats()
	assert.Equal(t, 0, handler.GetStats().TotalErrors)
}
