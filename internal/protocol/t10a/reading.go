package t10a

import (
	"fmt"
	"math"
	"strconv"
)

// 测量值字段格式: [符号 1][尾数 4][指数 1]
// 数值 = 尾数 * 10^(指数位 - 4)，符号位为 '-' 时取负。六个空格表示无数据。
const (
	ReadingWidth = 6

	exponentBias    = 4
	maxMantissa     = 9999
	signNegative    = '-'
	signNonNegative = ' '
)

var blankReading = [ReadingWidth]byte{' ', ' ', ' ', ' ', ' ', ' '}

// Reading 是一个可能缺失的测量值。零值表示无数据。
type Reading struct {
	Present       bool
	Negative      bool
	Mantissa      int // 0-9999
	ExponentDigit int // 0-9, exponent = digit - 4
}

// Exponent returns the power of ten applied to the mantissa.
func (r Reading) Exponent() int {
	return r.ExponentDigit - exponentBias
}

// Float64 returns the decoded value and whether a value is present.
func (r Reading) Float64() (float64, bool) {
	if !r.Present {
		return 0, false
	}
	m := float64(r.Mantissa)
	var v float64
	if e := r.Exponent(); e >= 0 {
		v = m * math.Pow10(e)
	} else {
		// dividing keeps values like 1000e-2 exact
		v = m / math.Pow10(-e)
	}
	if r.Negative && v != 0 {
		v = -v
	}
	return v, true
}

func (r Reading) String() string {
	v, ok := r.Float64()
	if !ok {
		return "none"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// MarshalJSON encodes an absent reading as null.
func (r Reading) MarshalJSON() ([]byte, error) {
	v, ok := r.Float64()
	if !ok {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(v, 'f', -1, 64)), nil
}

// DecodeReading 解析 6 字节测量值字段。
// 全空格字段返回缺失值 (Present=false)，不是错误，也不是 0。
func DecodeReading(field []byte) (Reading, error) {
	if len(field) != ReadingWidth {
		return Reading{}, fmt.Errorf("%w: reading field must be %d bytes, got %d", ErrInvalidFieldWidth, ReadingWidth, len(field))
	}
	if [ReadingWidth]byte(field) == blankReading {
		return Reading{}, nil
	}

	mantissa := 0
	for _, c := range field[1:5] {
		if !isDigit(c) {
			return Reading{}, fmt.Errorf("%w: non-digit mantissa in %q", ErrMalformedNumericField, field)
		}
		mantissa = mantissa*10 + int(c-'0')
	}
	if !isDigit(field[5]) {
		return Reading{}, fmt.Errorf("%w: non-digit exponent in %q", ErrMalformedNumericField, field)
	}

	return Reading{
		Present:       true,
		Negative:      field[0] == signNegative,
		Mantissa:      mantissa,
		ExponentDigit: int(field[5] - '0'),
	}, nil
}

// EncodeReading 将测量值编码为 6 字节字段。
// 驱动从不发送测量值字段，该函数只服务于仪表模拟器和测试。
func EncodeReading(r Reading) ([]byte, error) {
	if !r.Present {
		return append([]byte(nil), blankReading[:]...), nil
	}
	if r.Mantissa < 0 || r.Mantissa > maxMantissa {
		return nil, fmt.Errorf("%w: mantissa %d out of range", ErrMalformedNumericField, r.Mantissa)
	}
	if r.ExponentDigit < 0 || r.ExponentDigit > 9 {
		return nil, fmt.Errorf("%w: exponent digit %d out of range", ErrMalformedNumericField, r.ExponentDigit)
	}
	sign := byte(signNonNegative)
	if r.Negative {
		sign = signNegative
	}
	return []byte(fmt.Sprintf("%c%04d%d", sign, r.Mantissa, r.ExponentDigit)), nil
}

// ReadingFromFloat picks the smallest exponent whose 4-digit mantissa can
// hold v, rounding away the remaining precision.
func ReadingFromFloat(v float64) (Reading, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Reading{}, fmt.Errorf("%w: cannot encode %v", ErrMalformedNumericField, v)
	}
	abs := math.Abs(v)
	for digit := 0; digit <= 9; digit++ {
		e := digit - exponentBias
		var m float64
		if e >= 0 {
			m = math.Round(abs / math.Pow10(e))
		} else {
			m = math.Round(abs * math.Pow10(-e))
		}
		if m <= maxMantissa {
			return Reading{
				Present:       true,
				Negative:      v < 0 && m != 0,
				Mantissa:      int(m),
				ExponentDigit: digit,
			}, nil
		}
	}
	return Reading{}, fmt.Errorf("%w: %v exceeds the field range", ErrMalformedNumericField, v)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
