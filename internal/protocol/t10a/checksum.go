package t10a

import (
	"encoding/hex"
	"strconv"
)

// BCCWidth is the number of hex digits the BCC occupies on the wire.
const BCCWidth = 2

// CalculateBCC 计算给定数据的异或校验和 (Block Check Character)
func CalculateBCC(data []byte) byte {
	var bcc byte
	for _, b := range data {
		bcc ^= b
	}
	return bcc
}

// ComputeBCC 计算 BCC 并以两位小写十六进制返回，例如 "0a"。
func ComputeBCC(data []byte) string {
	return hex.EncodeToString([]byte{CalculateBCC(data)})
}

// VerifyBCC 重新计算 data 的 BCC 并与 claimedHex 比较。
// 比较按数值进行，所以 "0A" 与 "0a" 等价。
func VerifyBCC(data []byte, claimedHex string) bool {
	claimed, ok := parseBCC(claimedHex)
	return ok && claimed == CalculateBCC(data)
}

func parseBCC(s string) (byte, bool) {
	if len(s) != BCCWidth {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0, false
	}
	return byte(v), true
}

// checkFrameBCC verifies the BCC trailer of a frame whose covered span ends
// at etxOffset (inclusive).
func checkFrameBCC(frame []byte, etxOffset int) error {
	span := frame[1 : etxOffset+1]
	claimed := string(frame[etxOffset+1 : etxOffset+1+BCCWidth])
	if !VerifyBCC(span, claimed) {
		return &ChecksumError{
			Expected: CalculateBCC(span),
			Actual:   claimed,
			Frame:    append([]byte(nil), frame...),
		}
	}
	return nil
}
