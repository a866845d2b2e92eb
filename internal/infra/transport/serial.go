package transport

import (
	"fmt"
	"strings"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"luxmeter-gateway/internal/config"
)

// SerialTransport 通过 USB 转串口芯片与仪表通信
type SerialTransport struct {
	port   serial.Port
	name   string
	cfg    config.SerialConfig
	logger *zap.Logger
}

// OpenSerial 打开并配置串口。cfg.Port 为空时按 VID/PID 查找设备。
func OpenSerial(cfg config.SerialConfig, logger *zap.Logger) (*SerialTransport, error) {
	name := cfg.Port
	if name == "" {
		found, err := FindPort(cfg.VendorID, cfg.ProductID)
		if err != nil {
			return nil, err
		}
		name = found
	}

	mode, err := serialMode(cfg)
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", name, err)
	}
	// 丢弃上一次会话残留的应答
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("reset input buffer on %s: %w", name, err)
	}

	logger.Info("Serial port opened",
		zap.String("port", name),
		zap.Int("baud_rate", mode.BaudRate),
		zap.Int("data_bits", mode.DataBits),
		zap.String("parity", cfg.Parity),
		zap.String("stop_bits", cfg.StopBits))

	return &SerialTransport{port: port, name: name, cfg: cfg, logger: logger}, nil
}

// FindPort 返回第一个匹配 VID/PID 的 USB 串口名称
func FindPort(vendorID, productID string) (string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", fmt.Errorf("enumerate serial ports: %w", err)
	}
	for _, p := range ports {
		if p.IsUSB && strings.EqualFold(p.VID, vendorID) && strings.EqualFold(p.PID, productID) {
			return p.Name, nil
		}
	}
	return "", fmt.Errorf("%w: vid=%s pid=%s", ErrPortNotFound, vendorID, productID)
}

func (t *SerialTransport) Send(frame []byte) (int, error) {
	return t.port.Write(frame)
}

func (t *SerialTransport) Receive(n int) ([]byte, error) {
	return readExact(t.port, n, t.cfg.ReadTimeout)
}

func (t *SerialTransport) Close() error {
	t.logger.Info("Serial port closed", zap.String("port", t.name))
	return t.port.Close()
}

func serialMode(cfg config.SerialConfig) (*serial.Mode, error) {
	parity, err := parseParity(cfg.Parity)
	if err != nil {
		return nil, err
	}
	stopBits, err := parseStopBits(cfg.StopBits)
	if err != nil {
		return nil, err
	}
	return &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		Parity:   parity,
		StopBits: stopBits,
	}, nil
}

func parseParity(s string) (serial.Parity, error) {
	switch strings.ToLower(s) {
	case "none", "n", "":
		return serial.NoParity, nil
	case "odd", "o":
		return serial.OddParity, nil
	case "even", "e":
		return serial.EvenParity, nil
	case "mark", "m":
		return serial.MarkParity, nil
	case "space", "s":
		return serial.SpaceParity, nil
	default:
		return 0, fmt.Errorf("unknown parity %q", s)
	}
}

func parseStopBits(s string) (serial.StopBits, error) {
	switch s {
	case "1", "":
		return serial.OneStopBit, nil
	case "1.5":
		return serial.OnePointFiveStopBits, nil
	case "2":
		return serial.TwoStopBits, nil
	default:
		return 0, fmt.Errorf("unknown stop bits %q", s)
	}
}
