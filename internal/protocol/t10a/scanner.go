package t10a

import (
	"bytes"
)

// FrameScanner 为 bufio.Scanner 提供 Split 函数，从字节流中切出定长帧。
// 帧内字段仍然按位置解析，扫描器只负责对齐到 STX。
type FrameScanner struct {
	frameLength int
	etxOffset   int
}

// NewShortFrameScanner 用于仪表侧接收 14 字节命令帧
func NewShortFrameScanner() *FrameScanner {
	return &FrameScanner{frameLength: ShortFrameLength, etxOffset: shortETX}
}

// NewLongFrameScanner 用于从流中切出 32 字节测量帧
func NewLongFrameScanner() *FrameScanner {
	return &FrameScanner{frameLength: LongFrameLength, etxOffset: longETX}
}

// SplitFunc 是用于 bufio.Scanner 的分割函数。
func (fs *FrameScanner) SplitFunc(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	// 1. 跳过 STX 之前的垃圾数据
	start := bytes.IndexByte(data, STX)
	if start < 0 {
		return len(data), nil, nil
	}
	if start > 0 {
		return start, nil, nil
	}

	// 2. 等待完整一帧
	if len(data) < fs.frameLength {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}

	// 3. ETX 位置或 BCC 不对说明这个 STX 是巧合，跳过它继续搜索
	frame := data[:fs.frameLength]
	if frame[fs.etxOffset] != ETX || checkFrameBCC(frame, fs.etxOffset) != nil {
		return 1, nil, nil
	}

	return fs.frameLength, frame, nil
}
