package emulator

import (
	"encoding/hex"
	"fmt"
	"math/rand"
	"runtime/debug"

	"go.uber.org/zap"

	"luxmeter-gateway/internal/config"
	protocol "luxmeter-gateway/internal/protocol/t10a"
)

// Conn 是仪表侧看到的一条 PC 连接
type Conn interface {
	RemoteAddr() string
	Write([]byte) (int, error)
	SetPCMode(bool)
	IsPCMode() bool
}

// Handler 模拟 T-10A 仪表对命令帧的应答
type Handler struct {
	illuminance float64
	jitter      float64
	noise       func() float64 // [-1, 1)
	logger      *zap.Logger
}

func NewHandler(cfg config.EmulatorConfig, logger *zap.Logger) *Handler {
	return &Handler{
		illuminance: cfg.Illuminance,
		jitter:      cfg.Jitter,
		noise:       func() float64 { return rand.Float64()*2 - 1 },
		logger:      logger,
	}
}

// HandleFrame 处理单个已校验的命令帧。
// PC 连接模式之前的帧和未知命令都不应答。
func (h *Handler) HandleFrame(conn Conn, frame protocol.ShortFrame) (err error) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Panic in HandleFrame",
				zap.Any("recover", r),
				zap.Stringer("frame", frame),
				zap.String("stack", string(debug.Stack())))
			err = fmt.Errorf("internal emulator error: %v", r)
		}
	}()

	switch frame.Command {
	case protocol.CmdPCConnectionMode:
		return h.handlePCConnection(conn, frame)
	case protocol.CmdMeasurement:
		return h.handleMeasurement(conn, frame)
	default:
		h.logger.Warn("Received unknown command",
			zap.String("remote", conn.RemoteAddr()),
			zap.Stringer("frame", frame))
		return nil
	}
}

func (h *Handler) handlePCConnection(conn Conn, frame protocol.ShortFrame) error {
	if frame.Parameter != protocol.PCModeParameter {
		h.logger.Warn("Ignoring PC connection request with unexpected parameter",
			zap.String("remote", conn.RemoteAddr()),
			zap.String("parameter", frame.Parameter))
		return nil
	}

	if err := h.reply(conn, protocol.PCConnectionAckFrame()); err != nil {
		return err
	}
	conn.SetPCMode(true)
	h.logger.Info("PC connection mode entered", zap.String("remote", conn.RemoteAddr()))
	return nil
}

func (h *Handler) handleMeasurement(conn Conn, frame protocol.ShortFrame) error {
	if !conn.IsPCMode() {
		h.logger.Warn("Measurement requested before PC connection mode",
			zap.String("remote", conn.RemoteAddr()))
		return nil
	}

	illuminance, err := protocol.ReadingFromFloat(h.sample())
	if err != nil {
		return fmt.Errorf("encode illuminance: %w", err)
	}

	resp, err := protocol.EncodeLong(protocol.LongFrame{
		ReceptorHead: frame.ReceptorHead,
		Command:      protocol.CmdMeasurement,
		Status:       "    ",
		Readings:     [3]protocol.Reading{illuminance},
	})
	if err != nil {
		return fmt.Errorf("encode measurement response: %w", err)
	}

	h.logger.Debug("Measurement response",
		zap.Int("receptor_head", frame.ReceptorHead),
		zap.Stringer("illuminance", illuminance))
	return h.reply(conn, resp)
}

func (h *Handler) sample() float64 {
	v := h.illuminance
	if h.jitter > 0 {
		v += h.jitter * h.noise()
	}
	if v < 0 {
		v = 0
	}
	return v
}

func (h *Handler) reply(conn Conn, frame []byte) error {
	n, err := conn.Write(frame)
	if err != nil {
		return fmt.Errorf("write response to %s: %w", conn.RemoteAddr(), err)
	}
	if n != len(frame) {
		return fmt.Errorf("write response to %s: wrote %d of %d bytes", conn.RemoteAddr(), n, len(frame))
	}
	h.logger.Debug("Sent response", zap.String("remote", conn.RemoteAddr()), zap.String("hex", hex.EncodeToString(frame)))
	return nil
}
