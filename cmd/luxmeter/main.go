package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"luxmeter-gateway/internal/config"
	"luxmeter-gateway/internal/infra/kafka"
	"luxmeter-gateway/internal/infra/mq"
	"luxmeter-gateway/internal/infra/rabbitmq"
	"luxmeter-gateway/internal/infra/transport"
	"luxmeter-gateway/internal/logger"
	"luxmeter-gateway/internal/monitor"
	"luxmeter-gateway/internal/usecase"
	"luxmeter-gateway/internal/usecase/t10a"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	// 1. 配置加载
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.Log)
	defer log.Sync()

	// 2. 指标
	var recorder t10a.Recorder
	if cfg.Metrics.Enabled {
		reg := monitor.NewRegistry()
		recorder = monitor.NewMetrics(reg)
		metricsSrv := monitor.NewServer(cfg.Metrics.Port, reg, log)
		metricsSrv.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Stop(ctx)
		}()
	}

	// 3. 基础设施层 (消息队列)
	producer := newProducer(cfg.MessageQueue, log)
	defer producer.Close()

	// 4. 业务逻辑层 (分发器 & 轮询)
	dispatcher := usecase.NewDataDispatcher(producer, cfg.MessageQueue.Topic, cfg.MessageQueue.Workers, log)
	dispatcher.Start()
	defer dispatcher.Stop()

	open := func() (t10a.Conn, error) {
		return transport.Open(cfg.Transport, log)
	}
	poller := t10a.NewPoller(open, cfg.Meter, dispatcher, recorder, log)

	// 优雅停机
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Luxmeter gateway started",
		zap.String("transport", cfg.Transport.Type),
		zap.Int("receptor_head", cfg.Meter.ReceptorHead),
		zap.Bool("message_queue", cfg.MessageQueue.Enabled))

	if err := poller.Run(ctx); err != nil {
		log.Error("Poller stopped", zap.Error(err))
	}
	log.Info("Shutting down...")
}

// newProducer 按配置创建生产者，未启用或创建失败时退化为 NoOp
func newProducer(cfg config.MessageQueueConfig, log *zap.Logger) mq.Producer {
	if !cfg.Enabled {
		return mq.NewNoOpProducer()
	}

	var (
		producer mq.Producer
		err      error
	)
	switch cfg.Type {
	case "kafka":
		producer, err = kafka.NewKafkaProducer(cfg.Kafka, cfg.Topic, log)
	case "rabbitmq":
		producer, err = rabbitmq.NewRabbitMQProducer(cfg.RabbitMQ, log)
	}
	if err != nil || producer == nil {
		log.Error("Failed to initialize message queue producer, measurements will not be published",
			zap.String("type", cfg.Type), zap.Error(err))
		return mq.NewNoOpProducer()
	}
	return producer
}
