package usecase

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type DataDispatcher struct {
	dataChan    chan interface{}
	producer    DataProducer
	topic       string
	logger      *zap.Logger
	workerCount int
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewDataDispatcher 创建一个新的数据分发器
func NewDataDispatcher(producer DataProducer, topic string, workerCount int, logger *zap.Logger) *DataDispatcher {
	if workerCount < 1 {
		workerCount = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &DataDispatcher{
		dataChan:    make(chan interface{}, 1024), // 带缓冲 Channel，防止阻塞轮询
		producer:    producer,
		topic:       topic,
		workerCount: workerCount,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start 启动 worker 协程池
func (d *DataDispatcher) Start() {
	for i := 0; i < d.workerCount; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	d.logger.Info("DataDispatcher started", zap.Int("workers", d.workerCount), zap.String("topic", d.topic))
}

// Stop 停止分发器，发送完缓冲中剩余的数据后返回
func (d *DataDispatcher) Stop() {
	d.cancel()
	d.wg.Wait()
	for {
		select {
		case data := <-d.dataChan:
			d.process(context.Background(), data)
		default:
			d.logger.Info("DataDispatcher stopped")
			return
		}
	}
}

// Dispatch 将数据投递到缓冲通道 (非阻塞，如果满则丢弃并记录)
func (d *DataDispatcher) Dispatch(data interface{}) {
	select {
	case d.dataChan <- data:
	default:
		d.logger.Warn("DataDispatcher channel full, dropping data")
	}
}

func (d *DataDispatcher) worker(id int) {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case data := <-d.dataChan:
			d.process(d.ctx, data)
		}
	}
}

func (d *DataDispatcher) process(ctx context.Context, data interface{}) {
	var key string
	if k, ok := data.(Keyed); ok {
		key = k.Key()
	}
	if err := d.producer.Produce(ctx, d.topic, key, data); err != nil {
		d.logger.Error("DataDispatcher failed to send data", zap.Error(err), zap.String("topic", d.topic))
	}
}
