package events

import (
	"context"
	"fmt"

	"guard/internal/config"

	"github.com/sirupsen/logrus"
)

// LogPublisher 将事件写入日志
type LogPublisher struct {
	logger logrus.FieldLogger
}

// NewLogPublisher 创建日志发布器
func NewLogPublisher(logger logrus.FieldLogger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish 以info级别记录事件
func (l *LogPublisher) Publish(ctx context.Context, event *Event) error {
	if event == nil {
		return nil
	}
	l.logger.WithFields(logrus.Fields{
		"event":     event.Type,
		"account":   event.Account,
		"timestamp": event.Timestamp,
		"payload":   event.Payload,
	}).Info("事件")
	return nil
}

// Close 无需释放资源
func (l *LogPublisher) Close() error { return nil }

// NopPublisher 丢弃所有事件
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, event *Event) error { return nil }
func (NopPublisher) Close() error                                    { return nil }

// NewPublisher 按配置创建事件发布器
func NewPublisher(ctx context.Context, cfg *config.EventsConfig, logger *logrus.Logger) (Publisher, error) {
	if cfg == nil {
		return NopPublisher{}, nil
	}

	switch cfg.Sink {
	case config.SinkNone, "":
		return NopPublisher{}, nil
	case config.SinkLog:
		return NewLogPublisher(logger.WithField("component", "events")), nil
	case config.SinkFile:
		publisher, err := NewFilePublisher(cfg.FilePath)
		if err != nil {
			return nil, err
		}
		return publisher, nil
	case config.SinkKafka:
		if cfg.Kafka == nil {
			return nil, fmt.Errorf("未配置Kafka")
		}
		publisher, err := NewKafkaPublisher(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topics, logger)
		if err != nil {
			return nil, err
		}
		return publisher, nil
	default:
		return nil, fmt.Errorf("不支持的事件输出方式: %s", cfg.Sink)
	}
}
