package t10a

import (
	"errors"
	"fmt"

	protocol "luxmeter-gateway/internal/protocol/t10a"
)

var (
	// ErrUnexpectedResponse 仪表应答与期望不符
	ErrUnexpectedResponse = errors.New("unexpected response")
	// ErrTransport 底层链路 (串口/TCP) 收发失败
	ErrTransport = errors.New("transport error")
	// ErrInvalidState 当前会话状态不允许该操作
	ErrInvalidState = errors.New("invalid session state")
)

// UnexpectedResponseError 报告期望与实际的应答。
// 应答无法解码时 Actual 为 nil，Cause 为解码错误。
type UnexpectedResponseError struct {
	Expected protocol.ShortFrame
	Actual   *protocol.ShortFrame
	Cause    error
}

func (e *UnexpectedResponseError) Error() string {
	if e.Actual == nil {
		return fmt.Sprintf("wrong PcConnectionMode response, expected %v, got undecodable frame: %v", e.Expected, e.Cause)
	}
	return fmt.Sprintf("wrong PcConnectionMode response, expected %v, got %v", e.Expected, *e.Actual)
}

func (e *UnexpectedResponseError) Is(target error) bool {
	return target == ErrUnexpectedResponse
}

func (e *UnexpectedResponseError) Unwrap() error {
	return e.Cause
}

// KindOf 把错误归类为一个稳定的短名称，用作指标标签。
func KindOf(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrUnexpectedResponse):
		return "unexpected_response"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, protocol.ErrInvalidFieldWidth):
		return "invalid_field_width"
	case errors.Is(err, protocol.ErrReceptorHeadOutOfRange):
		return "receptor_head_out_of_range"
	case errors.Is(err, protocol.ErrWrongFrameLength):
		return "wrong_frame_length"
	case errors.Is(err, protocol.ErrChecksumMismatch):
		return "checksum_mismatch"
	case errors.Is(err, protocol.ErrMalformedNumericField):
		return "malformed_numeric_field"
	default:
		return "other"
	}
}
