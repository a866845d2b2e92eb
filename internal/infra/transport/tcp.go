package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"luxmeter-gateway/internal/config"
)

// TCPTransport 用于串口服务器 (ser2net 等) 或仪表模拟器
type TCPTransport struct {
	conn        net.Conn
	readTimeout time.Duration
	logger      *zap.Logger
}

func DialTCP(cfg config.TCPConfig, logger *zap.Logger) (*TCPTransport, error) {
	conn, err := net.DialTimeout("tcp", cfg.Address, cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Address, err)
	}
	logger.Info("TCP transport connected", zap.String("address", cfg.Address))
	return NewTCPTransport(conn, cfg.ReadTimeout, logger), nil
}

func NewTCPTransport(conn net.Conn, readTimeout time.Duration, logger *zap.Logger) *TCPTransport {
	return &TCPTransport{conn: conn, readTimeout: readTimeout, logger: logger}
}

func (t *TCPTransport) Send(frame []byte) (int, error) {
	return t.conn.Write(frame)
}

func (t *TCPTransport) Receive(n int) ([]byte, error) {
	if t.readTimeout > 0 {
		if err := t.conn.SetReadDeadline(time.Now().Add(t.readTimeout)); err != nil {
			return nil, err
		}
	}
	buf := make([]byte, n)
	got, err := io.ReadFull(t.conn, buf)
	if err != nil {
		var ne net.Error
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) || (errors.As(err, &ne) && ne.Timeout()) {
			return nil, fmt.Errorf("%w: got %d of %d bytes: %w", ErrShortRead, got, n, err)
		}
		return nil, err
	}
	return buf, nil
}

func (t *TCPTransport) Close() error {
	t.logger.Info("TCP transport closed", zap.String("remote", t.conn.RemoteAddr().String()))
	return t.conn.Close()
}
