package transport

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"luxmeter-gateway/internal/config"
)

var (
	// ErrShortRead 在超时前未收到足够的字节。不足的数据不会被补齐或截断后返回。
	ErrShortRead = errors.New("short read")
	// ErrPortNotFound 未枚举到指定 VID/PID 的 USB 串口
	ErrPortNotFound = errors.New("serial port not found")
)

// Transport 与仪表之间的半双工字节链路
type Transport interface {
	Send(frame []byte) (int, error)
	Receive(n int) ([]byte, error)
	Close() error
}

// Open 按配置打开串口或 TCP 链路
func Open(cfg config.TransportConfig, logger *zap.Logger) (Transport, error) {
	switch cfg.Type {
	case "serial":
		return OpenSerial(cfg.Serial, logger)
	case "tcp":
		return DialTCP(cfg.TCP, logger)
	default:
		return nil, fmt.Errorf("unknown transport type %q", cfg.Type)
	}
}

// readExact 读取恰好 n 个字节。r 在超时时返回 (0, nil)，
// 或者 deadline 之前没有读满，都视为 ErrShortRead。
func readExact(r io.Reader, n int, timeout time.Duration) ([]byte, error) {
	buf := make([]byte, n)
	deadline := time.Now().Add(timeout)
	got := 0
	for got < n {
		k, err := r.Read(buf[got:])
		got += k
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: got %d of %d bytes: %w", ErrShortRead, got, n, err)
			}
			return nil, err
		}
		if got < n && (k == 0 || time.Now().After(deadline)) {
			return nil, fmt.Errorf("%w: got %d of %d bytes within %v", ErrShortRead, got, n, timeout)
		}
	}
	return buf, nil
}
