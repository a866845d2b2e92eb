package server

import (
	"context"
	"fmt"

	"github.com/panjf2000/gnet/v2"
	"go.uber.org/zap"

	"luxmeter-gateway/internal/config"
	protocol "luxmeter-gateway/internal/protocol/t10a"
	"luxmeter-gateway/internal/usecase/emulator"
)

// maxBuffered 是连接缓冲区中允许积压的未对齐字节数
const maxBuffered = 4096

// connContext 保存每个连接的状态
type connContext struct {
	buffer  []byte
	scanner *protocol.FrameScanner
	addr    string
	pcMode  bool
}

type GnetConnWrapper struct {
	conn gnet.Conn
	ctx  *connContext
}

func (w *GnetConnWrapper) RemoteAddr() string {
	return w.ctx.addr
}

func (w *GnetConnWrapper) Write(b []byte) (n int, err error) {
	return w.conn.Write(b)
}

func (w *GnetConnWrapper) SetPCMode(v bool) {
	w.ctx.pcMode = v
}

func (w *GnetConnWrapper) IsPCMode() bool {
	return w.ctx.pcMode
}

// FrameHandler 处理切分并校验后的命令帧
type FrameHandler interface {
	HandleFrame(conn emulator.Conn, frame protocol.ShortFrame) error
}

// TCPServer 是仪表模拟器的 gnet 服务端，每个连接独立维护 PC 连接模式。
type TCPServer struct {
	gnet.BuiltinEventEngine

	addr      string
	multicore bool
	logger    *zap.Logger
	handler   FrameHandler
}

func NewTCPServer(cfg config.EmulatorConfig, logger *zap.Logger, h FrameHandler) *TCPServer {
	return &TCPServer{
		addr:      fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port),
		multicore: true,
		logger:    logger,
		handler:   h,
	}
}

func (s *TCPServer) OnBoot(eng gnet.Engine) (action gnet.Action) {
	s.logger.Info("Emulator is booting", zap.String("address", s.addr))
	return
}

func (s *TCPServer) OnOpen(c gnet.Conn) (out []byte, action gnet.Action) {
	s.logger.Info("New connection opened", zap.String("remote_addr", c.RemoteAddr().String()))

	c.SetContext(newConnContext(c.RemoteAddr().String()))
	return
}

func newConnContext(addr string) *connContext {
	return &connContext{
		buffer:  make([]byte, 0, protocol.ShortFrameLength*4),
		scanner: protocol.NewShortFrameScanner(),
		addr:    addr,
	}
}

func (s *TCPServer) OnTraffic(c gnet.Conn) (action gnet.Action) {
	ctx := c.Context().(*connContext)

	buf, _ := c.Next(-1)
	if len(buf) == 0 {
		return
	}
	ctx.buffer = append(ctx.buffer, buf...)

	s.consume(ctx, &GnetConnWrapper{conn: c, ctx: ctx})

	if len(ctx.buffer) > maxBuffered {
		s.logger.Warn("Buffer overflow, closing connection", zap.String("addr", ctx.addr), zap.Int("buffered", len(ctx.buffer)))
		action = gnet.Close
	}
	return
}

// consume 从连接缓冲区切出所有完整帧并交给 handler，剩余的半帧留待下次数据到达
func (s *TCPServer) consume(ctx *connContext, conn emulator.Conn) {
	for {
		advance, token, err := ctx.scanner.SplitFunc(ctx.buffer, false)
		if err != nil {
			s.logger.Error("Frame split error", zap.Error(err), zap.String("addr", ctx.addr))
			ctx.buffer = ctx.buffer[:0]
			return
		}

		if advance > 0 && token == nil {
			// 跳过垃圾数据或校验失败的帧
			ctx.buffer = ctx.buffer[advance:]
			continue
		}

		if token != nil {
			frame, err := protocol.DecodeShort(token)
			if err != nil {
				s.logger.Warn("Failed to decode frame", zap.Error(err), zap.String("addr", ctx.addr))
			} else if err := s.handler.HandleFrame(conn, frame); err != nil {
				s.logger.Warn("Handle frame failed", zap.Error(err), zap.Stringer("frame", frame))
			}
			ctx.buffer = ctx.buffer[advance:]
			continue
		}

		// 需要更多数据
		break
	}
}

func (s *TCPServer) OnClose(c gnet.Conn, err error) (action gnet.Action) {
	s.logger.Info("Connection closed", zap.String("remote", c.RemoteAddr().String()), zap.Error(err))
	return
}

func (s *TCPServer) OnShutdown(eng gnet.Engine) {
	s.logger.Info("Emulator is shutting down")
}

// Start 阻塞运行事件循环直到 Stop 被调用
func (s *TCPServer) Start(ctx context.Context) error {
	s.logger.Info("Starting emulator", zap.String("addr", s.addr))
	return gnet.Run(s, s.addr,
		gnet.WithMulticore(s.multicore),
		gnet.WithLogger(s.logger.Sugar()),
		gnet.WithReusePort(true),
	)
}

func (s *TCPServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping emulator...")
	return gnet.Stop(ctx, s.addr)
}
