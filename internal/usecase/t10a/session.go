package t10a

import (
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"

	protocol "luxmeter-gateway/internal/protocol/t10a"
)

// Transport 是会话使用的半双工字节链路。
// Receive 必须恰好返回 n 个字节，否则返回错误。
type Transport interface {
	Send(frame []byte) (int, error)
	Receive(n int) ([]byte, error)
}

// State 会话状态
type State int

const (
	StateIdle State = iota
	StateAwaitingPCModeAck
	StatePCModeConfirmed
	StateAwaitingMeasurement
	StateMeasurementReady
	StateFault
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAwaitingPCModeAck:
		return "AwaitingPcModeAck"
	case StatePCModeConfirmed:
		return "PcModeConfirmed"
	case StateAwaitingMeasurement:
		return "AwaitingMeasurement"
	case StateMeasurementReady:
		return "MeasurementReady"
	case StateFault:
		return "Fault"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ExchangeHook 在每次请求/应答交换结束后被调用
type ExchangeHook func(command string, elapsed time.Duration, err error)

type SessionOption func(*Session)

// WithExchangeHook 注册交换回调 (用于指标统计)
func WithExchangeHook(hook ExchangeHook) SessionOption {
	return func(s *Session) {
		s.hook = hook
	}
}

// Session 在一条链路上按顺序执行 PC 连接模式握手与测量请求。
// Session 独占链路，不支持并发调用。
type Session struct {
	transport Transport
	logger    *zap.Logger
	hook      ExchangeHook
	state     State
	err       error
}

func NewSession(transport Transport, logger *zap.Logger, opts ...SessionOption) *Session {
	s := &Session{
		transport: transport,
		logger:    logger,
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State 返回当前状态
func (s *Session) State() State {
	return s.state
}

// Err 返回使会话进入 Fault 的错误
func (s *Session) Err() error {
	return s.err
}

// EnterPCConnectionMode 发送 (0, "54", "1   ") 并要求仪表应答 (0, "54", "    ")。
func (s *Session) EnterPCConnectionMode() (err error) {
	if s.state != StateIdle {
		return fmt.Errorf("%w: enter PC connection mode from %s", ErrInvalidState, s.state)
	}

	start := time.Now()
	defer func() { s.observe(protocol.CmdPCConnectionMode, start, err) }()

	s.state = StateAwaitingPCModeAck
	resp, err := s.exchange(protocol.PCConnectionRequest(), protocol.ShortFrameLength)
	if err != nil {
		return s.fault(err)
	}

	expected := protocol.PCConnectionAck()
	actual, err := protocol.DecodeShort(resp)
	if err != nil {
		return s.fault(&UnexpectedResponseError{Expected: expected, Cause: err})
	}
	if actual != expected {
		return s.fault(&UnexpectedResponseError{Expected: expected, Actual: &actual})
	}

	s.state = StatePCModeConfirmed
	s.logger.Info("PC connection mode confirmed")
	return nil
}

// RequestMeasurement 发送测量请求并解析 32 字节长帧应答。
// 解码错误原样返回，不会把损坏的测量值当作 0 或缺失值。
func (s *Session) RequestMeasurement(receptorHead int, rangeParameter string) (_ protocol.LongFrame, err error) {
	if s.state != StatePCModeConfirmed && s.state != StateMeasurementReady {
		return protocol.LongFrame{}, fmt.Errorf("%w: request measurement from %s", ErrInvalidState, s.state)
	}

	start := time.Now()
	defer func() { s.observe(protocol.CmdMeasurement, start, err) }()

	s.state = StateAwaitingMeasurement
	req, err := protocol.MeasurementRequest(receptorHead, rangeParameter)
	if err != nil {
		return protocol.LongFrame{}, s.fault(err)
	}
	resp, err := s.exchange(req, protocol.LongFrameLength)
	if err != nil {
		return protocol.LongFrame{}, s.fault(err)
	}
	lf, err := protocol.DecodeLong(resp)
	if err != nil {
		return protocol.LongFrame{}, s.fault(err)
	}

	if lf.ReceptorHead != receptorHead || lf.Command != protocol.CmdMeasurement {
		s.logger.Warn("Measurement response header differs from request",
			zap.Int("requested_head", receptorHead),
			zap.Int("receptor_head", lf.ReceptorHead),
			zap.String("command", lf.Command))
	}

	s.state = StateMeasurementReady
	return lf, nil
}

// exchange 发送一帧并读取固定长度的应答
func (s *Session) exchange(frame []byte, respLen int) ([]byte, error) {
	n, err := s.transport.Send(frame)
	if err != nil {
		return nil, fmt.Errorf("%w: send: %w", ErrTransport, err)
	}
	if n != len(frame) {
		return nil, fmt.Errorf("%w: short write, wrote %d of %d bytes", ErrTransport, n, len(frame))
	}
	s.logger.Debug("Frame sent", zap.String("hex", hex.EncodeToString(frame)), zap.Int("bytes", n))

	resp, err := s.transport.Receive(respLen)
	if err != nil {
		return nil, fmt.Errorf("%w: receive: %w", ErrTransport, err)
	}
	s.logger.Debug("Frame received", zap.String("hex", hex.EncodeToString(resp)), zap.Int("bytes", len(resp)))
	return resp, nil
}

func (s *Session) fault(err error) error {
	s.logger.Error("Session fault", zap.Stringer("state", s.state), zap.Error(err))
	s.state = StateFault
	s.err = err
	return err
}

func (s *Session) observe(command string, start time.Time, err error) {
	if s.hook != nil {
		s.hook(command, time.Since(start), err)
	}
}
