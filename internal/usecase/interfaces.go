package usecase

import "context"

type DataProducer interface {
	// Produce 发送数据到指定 Topic
	Produce(ctx context.Context, topic string, key string, data interface{}) error
}

// Keyed 由需要指定消息 key (如 Kafka 分区键) 的载荷实现
type Keyed interface {
	Key() string
}
