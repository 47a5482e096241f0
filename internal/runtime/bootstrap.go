package runtime

import (
	"context"
	"fmt"

	"guard/internal/config"
	guarderrors "guard/internal/errors"
	"guard/internal/events"
	"guard/internal/logging"
	"guard/internal/metrics"
	"guard/internal/processor"
	"guard/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Bootstrap 按配置打开存储、事件发布器和指标并创建运行时
func Bootstrap(ctx context.Context, cfg *config.Config, logger *logrus.Logger, reg prometheus.Registerer) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置无效: %w", err)
	}

	programID, err := cfg.Program.ProgramID()
	if err != nil {
		return nil, err
	}

	accounts, err := store.OpenBoltStore(ctx, cfg.Store.Path, cfg.Store.TimeoutDuration(), logger)
	if err != nil {
		return nil, err
	}

	publisher, err := events.NewPublisher(ctx, cfg.Events, logger)
	if err != nil {
		accounts.Close()
		return nil, fmt.Errorf("创建事件发布器失败: %w", err)
	}

	proc := processor.NewProcessor(programID, processor.SystemClock,
		logging.NewComponentLogger(logger, "processor"))

	handler := guarderrors.NewErrorHandler(logger)
	// 未授权调用单独告警
	handler.SetStrategy(guarderrors.CodeUnauthorizedAccount, guarderrors.NewCompositeStrategy(
		guarderrors.NewLoggingStrategy(logger),
		guarderrors.NewAlertStrategy(func(err *guarderrors.GuardError) {
			logger.WithFields(logrus.Fields(err.Context)).Warn("拒绝未授权调用")
		}, logger),
	))

	logger.Infof("程序 %s 已加载，事件输出: %s", programID.Hex(), cfg.Events.Sink)
	return NewRuntime(accounts, proc, logger, Options{
		AutoCreate:   cfg.Program.AutoCreate,
		DefaultSpace: uint32(cfg.Program.DefaultSpace),
		Publisher:    publisher,
		Collector:    metrics.NewCollector(reg),
		ErrorHandler: handler,
	}), nil
}
