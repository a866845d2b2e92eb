package t10a

import (
	"fmt"
)

// T-10A 通信协议常量定义
const (
	STX = 0x02
	ETX = 0x03
	CR  = 0x0D
	LF  = 0x0A

	ShortFrameLength = 14
	LongFrameLength  = 32

	ReceptorHeadWidth = 2
	CommandWidth      = 2
	ParameterWidth    = 4
	StatusWidth       = 4

	MaxReceptorHead = 99
)

// 字段偏移 (短帧与长帧共用头部)
// 0: STX
// 1-2: 受光头编号
// 3-4: 命令
// 5-8: 参数 (短帧) / 状态 (长帧)
// 短帧 9: ETX, 10-11: BCC, 12-13: CR LF
// 长帧 9-26: 三个测量值, 27: ETX, 28-29: BCC, 30-31: CR LF
const (
	offHead    = 1
	offCommand = offHead + ReceptorHeadWidth
	offPayload = offCommand + CommandWidth
	offReading = offPayload + StatusWidth

	shortETX = offPayload + ParameterWidth
	longETX  = offReading + 3*ReadingWidth
)

// ShortFrame 是解析后的短帧 (命令/应答)
type ShortFrame struct {
	ReceptorHead int
	Command      string
	Parameter    string
}

func (f ShortFrame) String() string {
	return fmt.Sprintf("(%d, %q, %q)", f.ReceptorHead, f.Command, f.Parameter)
}

// LongFrame 是解析后的长帧 (测量数据应答)
type LongFrame struct {
	ReceptorHead int
	Command      string
	Status       string
	Readings     [3]Reading
}

// EncodeShort 构建 14 字节短帧: STX + 头 + 命令 + 参数 + ETX + BCC + CR LF
func EncodeShort(receptorHead int, command, parameter string) ([]byte, error) {
	head, err := formatReceptorHead(receptorHead)
	if err != nil {
		return nil, err
	}
	if err := checkWidth("command", command, CommandWidth); err != nil {
		return nil, err
	}
	if err := checkWidth("parameter", parameter, ParameterWidth); err != nil {
		return nil, err
	}

	buf := make([]byte, 0, ShortFrameLength)
	buf = append(buf, STX)
	buf = append(buf, head...)
	buf = append(buf, command...)
	buf = append(buf, parameter...)
	buf = append(buf, ETX)
	return appendTrailer(buf), nil
}

// DecodeShort 解析 14 字节短帧。长度不符时不做任何进一步解析。
func DecodeShort(frame []byte) (ShortFrame, error) {
	if len(frame) != ShortFrameLength {
		return ShortFrame{}, fmt.Errorf("%w: short frame must be %d bytes, got %d", ErrWrongFrameLength, ShortFrameLength, len(frame))
	}
	if err := checkFrameBCC(frame, shortETX); err != nil {
		return ShortFrame{}, err
	}
	head, err := parseReceptorHead(frame[offHead:offCommand])
	if err != nil {
		return ShortFrame{}, err
	}
	return ShortFrame{
		ReceptorHead: head,
		Command:      string(frame[offCommand:offPayload]),
		Parameter:    string(frame[offPayload:shortETX]),
	}, nil
}

// DecodeLong 解析 32 字节长帧，三个测量值字段按位置解码。
func DecodeLong(frame []byte) (LongFrame, error) {
	if len(frame) != LongFrameLength {
		return LongFrame{}, fmt.Errorf("%w: long frame must be %d bytes, got %d", ErrWrongFrameLength, LongFrameLength, len(frame))
	}
	if err := checkFrameBCC(frame, longETX); err != nil {
		return LongFrame{}, err
	}
	head, err := parseReceptorHead(frame[offHead:offCommand])
	if err != nil {
		return LongFrame{}, err
	}

	lf := LongFrame{
		ReceptorHead: head,
		Command:      string(frame[offCommand:offPayload]),
		Status:       string(frame[offPayload:offReading]),
	}
	for i := range lf.Readings {
		start := offReading + i*ReadingWidth
		r, err := DecodeReading(frame[start : start+ReadingWidth])
		if err != nil {
			return LongFrame{}, fmt.Errorf("reading %d: %w", i+1, err)
		}
		lf.Readings[i] = r
	}
	return lf, nil
}

// EncodeLong 构建 32 字节长帧。
// 驱动只发送短帧，长帧编码仅供仪表模拟器与测试使用。
func EncodeLong(f LongFrame) ([]byte, error) {
	head, err := formatReceptorHead(f.ReceptorHead)
	if err != nil {
		return nil, err
	}
	if err := checkWidth("command", f.Command, CommandWidth); err != nil {
		return nil, err
	}
	if err := checkWidth("status", f.Status, StatusWidth); err != nil {
		return nil, err
	}

	buf := make([]byte, 0, LongFrameLength)
	buf = append(buf, STX)
	buf = append(buf, head...)
	buf = append(buf, f.Command...)
	buf = append(buf, f.Status...)
	for i, r := range f.Readings {
		field, err := EncodeReading(r)
		if err != nil {
			return nil, fmt.Errorf("reading %d: %w", i+1, err)
		}
		buf = append(buf, field...)
	}
	buf = append(buf, ETX)
	return appendTrailer(buf), nil
}

// appendTrailer appends BCC (over everything after STX) and CR LF.
func appendTrailer(buf []byte) []byte {
	buf = append(buf, ComputeBCC(buf[1:])...)
	return append(buf, CR, LF)
}

func formatReceptorHead(head int) (string, error) {
	if head < 0 || head > MaxReceptorHead {
		return "", fmt.Errorf("%w: %d not in 0-%d", ErrReceptorHeadOutOfRange, head, MaxReceptorHead)
	}
	return fmt.Sprintf("%02d", head), nil
}

func parseReceptorHead(b []byte) (int, error) {
	if !isDigit(b[0]) || !isDigit(b[1]) {
		return 0, fmt.Errorf("%w: %q is not numeric", ErrReceptorHeadOutOfRange, b)
	}
	return int(b[0]-'0')*10 + int(b[1]-'0'), nil
}

func checkWidth(name, value string, width int) error {
	if len(value) != width {
		return fmt.Errorf("%w: %s %q must be %d characters, got %d", ErrInvalidFieldWidth, name, value, width, len(value))
	}
	return nil
}
