package t10a

import (
	"errors"
	"fmt"
)

// 编解码错误类型。调用方通过 errors.Is 判断错误种类。
var (
	// ErrInvalidFieldWidth 字段宽度与帧格式不符
	ErrInvalidFieldWidth = errors.New("invalid field width")
	// ErrReceptorHeadOutOfRange 受光头编号不在 0-99 之间或不是两位数字
	ErrReceptorHeadOutOfRange = errors.New("receptor head out of range")
	// ErrWrongFrameLength 帧长度不是 14 (短帧) 或 32 (长帧)
	ErrWrongFrameLength = errors.New("wrong frame length")
	// ErrChecksumMismatch BCC 校验失败
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrMalformedNumericField 测量值字段无法解析
	ErrMalformedNumericField = errors.New("malformed numeric field")
)

// ChecksumError 携带期望与实际 BCC，便于日志记录。
type ChecksumError struct {
	Expected byte
	Actual   string
	Frame    []byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("BCC check failed, expected BCC '%02x', got '%s', received %q",
		e.Expected, e.Actual, e.Frame)
}

func (e *ChecksumError) Unwrap() error {
	return ErrChecksumMismatch
}
