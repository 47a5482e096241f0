package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"guard/internal/retry"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

// KafkaPublisher Kafka事件发布器
type KafkaPublisher struct {
	logger   *logrus.Logger
	topics   map[string]string // 事件类型到topic的映射
	producer sarama.SyncProducer
}

// newProducerConfig Kafka生产者配置
func newProducerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Timeout = 5 * time.Second
	config.Version = sarama.V2_8_0_0
	return config
}

// NewKafkaPublisher 连接Kafka并创建发布器，broker不可用时按退避重试
func NewKafkaPublisher(ctx context.Context, brokers []string, topics map[string]string, logger *logrus.Logger) (*KafkaPublisher, error) {
	logger.Infof("初始化Kafka发布器，brokers: %v", brokers)

	config := newProducerConfig()
	retrier := retry.NewRetrier(retry.BrokerRetryConfig, logger)
	producer, err := retry.Do(ctx, retrier, "连接Kafka", func() (sarama.SyncProducer, error) {
		return sarama.NewSyncProducer(brokers, config)
	})
	if err != nil {
		return nil, fmt.Errorf("创建Kafka生产者失败: %w", err)
	}

	logger.Info("Kafka生产者已创建")
	return NewKafkaPublisherWithProducer(producer, topics, logger), nil
}

// NewKafkaPublisherWithProducer 使用已有生产者创建发布器
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topics map[string]string, logger *logrus.Logger) *KafkaPublisher {
	if topics == nil {
		topics = make(map[string]string)
	}
	return &KafkaPublisher{
		logger:   logger,
		topics:   topics,
		producer: producer,
	}
}

// TopicFor 返回事件类型对应的topic
func (k *KafkaPublisher) TopicFor(eventType EventType) string {
	if topic, exists := k.topics[string(eventType)]; exists {
		return topic
	}
	return "guard_" + string(eventType)
}

// Publish 发送事件，以记录账户作为消息key
func (k *KafkaPublisher) Publish(ctx context.Context, event *Event) error {
	if event == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	jsonData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	topic := k.TopicFor(event.Type)
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(event.Account),
		Value: sarama.ByteEncoder(jsonData),
	}

	partition, offset, err := k.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("发送事件到Kafka失败: %w", err)
	}

	k.logger.Debugf("事件已发送到Kafka topic '%s' (partition: %d, offset: %d)", topic, partition, offset)
	return nil
}

// Close 关闭Kafka连接
func (k *KafkaPublisher) Close() error {
	if k.producer != nil {
		return k.producer.Close()
	}
	return nil
}
