package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"luxmeter-gateway/internal/config"
	"luxmeter-gateway/internal/infra/mq"
)

type KafkaProducer struct {
	writer messageWriter
	logger *zap.Logger
	topic  string
}

// messageWriter 是 kafka.Writer 中用到的部分
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ mq.Producer = (*KafkaProducer)(nil)

// NewKafkaProducer 创建 Kafka 生产者。按消息 key (设备编号) 哈希分区，保证单台仪表数据有序。
func NewKafkaProducer(cfg config.KafkaConfig, defaultTopic string, logger *zap.Logger) (*KafkaProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	topic := cfg.Topic
	if topic == "" {
		topic = defaultTopic
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		WriteTimeout:           10 * time.Second,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		Async:                  true,
	}

	logger.Info("Initialized Kafka producer", zap.Strings("brokers", cfg.Brokers), zap.String("topic", topic))
	return newKafkaProducer(w, topic, logger), nil
}

func newKafkaProducer(w messageWriter, topic string, logger *zap.Logger) *KafkaProducer {
	return &KafkaProducer{writer: w, logger: logger, topic: topic}
}

func (p *KafkaProducer) Produce(ctx context.Context, topic string, key string, data interface{}) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	// Writer 已配置 Topic 时消息不能再带 Topic
	msg := kafka.Message{
		Key:   []byte(key),
		Value: body,
		Time:  time.Now(),
	}
	if topic != "" && topic != p.topic {
		p.logger.Warn("Kafka writer is bound to a topic, ignoring override",
			zap.String("topic", p.topic), zap.String("requested", topic))
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to produce message to Kafka", zap.Error(err), zap.String("topic", p.topic))
		return err
	}

	p.logger.Debug("Produced message to Kafka", zap.String("topic", p.topic), zap.String("key", key))
	return nil
}

func (p *KafkaProducer) Close() {
	if err := p.writer.Close(); err != nil {
		p.logger.Error("Failed to close Kafka writer", zap.Error(err))
	}
}
