package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"luxmeter-gateway/internal/config"
	"luxmeter-gateway/internal/infra/mq"
)

const reconnectDelay = 5 * time.Second

var (
	ErrClosed       = errors.New("rabbitmq producer is closed")
	ErrNotConnected = errors.New("rabbitmq not connected")
)

type RabbitMQProducer struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	cfg        config.RabbitMQConfig
	logger     *zap.Logger
	mu         sync.Mutex
	isClosed   bool
	reconnectC chan struct{}
}

var _ mq.Producer = (*RabbitMQProducer)(nil)

// NewRabbitMQProducer 创建生产者。连接在后台建立，失败时由重连协程继续尝试，
// 因此 broker 不可用不会阻塞仪表轮询。
func NewRabbitMQProducer(cfg config.RabbitMQConfig, logger *zap.Logger) (*RabbitMQProducer, error) {
	if _, err := dialURL(cfg); err != nil {
		return nil, err
	}

	p := &RabbitMQProducer{
		cfg:        cfg,
		logger:     logger,
		reconnectC: make(chan struct{}, 1),
	}

	go func() {
		if err := p.connect(); err != nil {
			p.logger.Warn("Initial RabbitMQ connection failed (will retry)", zap.Error(err))
			p.signalReconnect()
		}
	}()
	go p.handleReconnect()

	return p, nil
}

// dialURL 合并 URL 与 virtual host 配置
func dialURL(cfg config.RabbitMQConfig) (amqp.URI, error) {
	uri, err := amqp.ParseURI(cfg.URL)
	if err != nil {
		return amqp.URI{}, fmt.Errorf("invalid RabbitMQ url: %w", err)
	}
	if cfg.VirtualHost != "" {
		uri.Vhost = cfg.VirtualHost
	}
	return uri, nil
}

func (p *RabbitMQProducer) connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isClosed {
		return ErrClosed
	}

	uri, err := dialURL(p.cfg)
	if err != nil {
		return err
	}
	masked := uri
	masked.Password = "******"
	p.logger.Debug("Connecting to RabbitMQ", zap.String("url", masked.String()))

	conn, err := amqp.Dial(uri.String())
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open a channel: %w", err)
	}

	if err := declareTopology(ch, p.cfg); err != nil {
		ch.Close()
		conn.Close()
		return err
	}

	p.conn = conn
	p.ch = ch

	go func() {
		if err, ok := <-conn.NotifyClose(make(chan *amqp.Error, 1)); ok {
			p.logger.Warn("RabbitMQ connection closed", zap.Error(err))
		}
		p.signalReconnect()
	}()

	p.logger.Info("Connected to RabbitMQ", zap.String("url", masked.String()), zap.String("exchange", p.cfg.Exchange))
	return nil
}

// declareTopology 声明 topic 交换机，配置了队列名时同时声明并绑定队列 (幂等)
func declareTopology(ch *amqp.Channel, cfg config.RabbitMQConfig) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %q: %w", cfg.Exchange, err)
	}
	if cfg.QueueName == "" {
		return nil
	}
	if _, err := ch.QueueDeclare(cfg.QueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %q: %w", cfg.QueueName, err)
	}
	if err := ch.QueueBind(cfg.QueueName, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %q: %w", cfg.QueueName, err)
	}
	return nil
}

func (p *RabbitMQProducer) signalReconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isClosed {
		return
	}
	select {
	case p.reconnectC <- struct{}{}:
	default:
	}
}

func (p *RabbitMQProducer) handleReconnect() {
	for range p.reconnectC {
		for {
			err := p.connect()
			if err == nil {
				break
			}
			if errors.Is(err, ErrClosed) {
				return
			}
			p.logger.Error("Failed to reconnect to RabbitMQ", zap.Error(err), zap.Duration("retry_in", reconnectDelay))
			time.Sleep(reconnectDelay)
		}
	}
}

// Produce 以 JSON 发布到交换机，始终使用配置的 routing key。
// key 放在消息头 "key" 中，topic 写入消息 Type。
func (p *RabbitMQProducer) Produce(ctx context.Context, topic string, key string, data interface{}) error {
	p.mu.Lock()
	if p.isClosed {
		p.mu.Unlock()
		return ErrClosed
	}
	ch := p.ch
	p.mu.Unlock()

	if ch == nil || ch.IsClosed() {
		p.signalReconnect()
		return ErrNotConnected
	}

	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	routingKey := p.cfg.RoutingKey
	var headers amqp.Table
	if key != "" {
		headers = amqp.Table{"key": key}
	}

	err = ch.PublishWithContext(ctx, p.cfg.Exchange, routingKey, false, false, amqp.Publishing{
		Headers:     headers,
		ContentType: "application/json",
		Body:        body,
		Timestamp:   time.Now(),
		Type:        topic,
	})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	p.logger.Debug("Published message to RabbitMQ", zap.String("exchange", p.cfg.Exchange), zap.String("routing_key", routingKey))
	return nil
}

func (p *RabbitMQProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isClosed {
		return
	}
	p.isClosed = true
	close(p.reconnectC)
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
