package t10a

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"luxmeter-gateway/internal/config"
	protocol "luxmeter-gateway/internal/protocol/t10a"
	"luxmeter-gateway/internal/usecase"
)

// Conn 是可关闭的链路，由 Opener 每次重连时新建
type Conn interface {
	Transport
	Close() error
}

type Opener func() (Conn, error)

type Dispatcher interface {
	Dispatch(data interface{})
}

// Recorder 接收轮询过程中的统计事件
type Recorder interface {
	ObserveExchange(command string, elapsed time.Duration, result string)
	ObserveReading(receptorHead int, r protocol.Reading)
	ObserveFault(kind string)
	ObserveReconnect()
}

// Poller 实现驱动外层策略: 打开链路、握手、周期测量、出错后等待并重连。
type Poller struct {
	open       Opener
	cfg        config.MeterConfig
	dispatcher Dispatcher
	recorder   Recorder
	logger     *zap.Logger
	now        func() time.Time
}

// NewPoller 创建轮询器。dispatcher 与 recorder 可以为 nil。
func NewPoller(open Opener, cfg config.MeterConfig, dispatcher Dispatcher, recorder Recorder, logger *zap.Logger) *Poller {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Poller{
		open:       open,
		cfg:        cfg,
		dispatcher: dispatcher,
		recorder:   recorder,
		logger:     logger,
		now:        time.Now,
	}
}

// Run 持续轮询直到 ctx 被取消。每次失败后关闭链路，等待 RetryDelay 再重连。
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("Poller started",
		zap.Int("receptor_head", p.cfg.ReceptorHead),
		zap.String("range_parameter", p.cfg.RangeParameter),
		zap.Duration("poll_interval", p.cfg.PollInterval))

	for {
		err := p.withSession(ctx, func(sess *Session) error {
			for {
				if _, err := p.measure(sess); err != nil {
					return err
				}
				if err := sleep(ctx, p.cfg.PollInterval); err != nil {
					return err
				}
			}
		})
		if ctx.Err() != nil {
			p.logger.Info("Poller stopped")
			return nil
		}

		p.recorder.ObserveFault(KindOf(err))
		p.logger.Error("Measurement cycle failed, reconnecting",
			zap.Error(err),
			zap.String("kind", KindOf(err)),
			zap.Duration("retry_delay", p.cfg.RetryDelay))

		if err := sleep(ctx, p.cfg.RetryDelay); err != nil {
			p.logger.Info("Poller stopped")
			return nil
		}
		p.recorder.ObserveReconnect()
	}
}

// Once 执行一次完整的连接、握手与测量，不投递结果。
func (p *Poller) Once(ctx context.Context) (MeasurementRecord, error) {
	var rec MeasurementRecord
	err := p.withSession(ctx, func(sess *Session) error {
		lf, err := sess.RequestMeasurement(p.cfg.ReceptorHead, p.cfg.RangeParameter)
		if err != nil {
			return err
		}
		rec = NewMeasurementRecord(p.cfg.DeviceID, lf, p.now())
		return nil
	})
	return rec, err
}

// withSession 打开链路并完成 PC 连接模式握手后执行 fn。
// ctx 取消时关闭链路以打断阻塞的读写。
func (p *Poller) withSession(ctx context.Context, fn func(*Session) error) error {
	conn, err := p.open()
	if err != nil {
		return fmt.Errorf("%w: open: %w", ErrTransport, err)
	}

	var once sync.Once
	closeConn := func() {
		once.Do(func() {
			if err := conn.Close(); err != nil {
				p.logger.Warn("Failed to close transport", zap.Error(err))
			}
		})
	}
	stop := context.AfterFunc(ctx, closeConn)
	defer func() {
		stop()
		closeConn()
	}()

	sess := NewSession(conn, p.logger, WithExchangeHook(func(command string, elapsed time.Duration, err error) {
		result := "ok"
		if err != nil {
			result = KindOf(err)
		}
		p.recorder.ObserveExchange(command, elapsed, result)
	}))

	if err := sess.EnterPCConnectionMode(); err != nil {
		return err
	}
	if err := sleep(ctx, p.cfg.SettleDelay); err != nil {
		return err
	}
	return fn(sess)
}

func (p *Poller) measure(sess *Session) (MeasurementRecord, error) {
	lf, err := sess.RequestMeasurement(p.cfg.ReceptorHead, p.cfg.RangeParameter)
	if err != nil {
		return MeasurementRecord{}, err
	}
	rec := NewMeasurementRecord(p.cfg.DeviceID, lf, p.now())
	p.recorder.ObserveReading(rec.ReceptorHead, rec.Illuminance)

	p.logger.Debug("Measurement",
		zap.Int("receptor_head", rec.ReceptorHead),
		zap.String("status", rec.Status),
		zap.Stringer("illuminance", rec.Illuminance))

	if p.dispatcher != nil {
		p.dispatcher.Dispatch(usecase.MQPayload{
			Type:     usecase.PayloadTypeMeasurement,
			DeviceID: rec.DeviceID,
			Data:     rec,
		})
	}
	return rec, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type nopRecorder struct{}

func (nopRecorder) ObserveExchange(string, time.Duration, string) {}
func (nopRecorder) ObserveReading(int, protocol.Reading) {}
func (nopRecorder) ObserveFault(string) {}
func (nopRecorder) ObserveReconnect() {}
