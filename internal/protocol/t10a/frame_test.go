package t10a

import (
	"bufio"
	"bytes"
	"errors"
	"testing"
)

// buildFrame wraps a body (which must end with ETX) with STX, BCC and CR LF.
func buildFrame(body string) []byte {
	return []byte("\x02" + body + ComputeBCC([]byte(body)) + "\r\n")
}

func TestEncodeShort(t *testing.T) {
	tests := []struct {
		name      string
		head      int
		command   string
		parameter string
		want      string
	}{
		{name: "pc connection request", head: 0, command: "54", parameter: "1   ", want: "\x0200541   \x0313\r\n"},
		{name: "pc connection ack", head: 0, command: "54", parameter: "    ", want: "\x020054    \x0302\r\n"},
		{name: "measurement", head: 1, command: "10", parameter: "0200", want: "\x0201100200\x0301\r\n"},
		{name: "max head", head: 99, command: "AB", parameter: "zz 9", want: "\x0299ABzz 9\x0319\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeShort(tt.head, tt.command, tt.parameter)
			if err != nil {
				t.Fatalf("EncodeShort() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("EncodeShort() = %q, want %q", got, tt.want)
			}
			if len(got) != ShortFrameLength {
				t.Errorf("len(EncodeShort()) = %d, want %d", len(got), ShortFrameLength)
			}
		})
	}
}

func TestEncodeShortErrors(t *testing.T) {
	tests := []struct {
		name      string
		head      int
		command   string
		parameter string
		want      error
	}{
		{name: "negative head", head: -1, command: "54", parameter: "1   ", want: ErrReceptorHeadOutOfRange},
		{name: "head too large", head: 100, command: "54", parameter: "1   ", want: ErrReceptorHeadOutOfRange},
		{name: "short command", head: 0, command: "5", parameter: "1   ", want: ErrInvalidFieldWidth},
		{name: "long command", head: 0, command: "540", parameter: "1   ", want: ErrInvalidFieldWidth},
		{name: "short parameter", head: 0, command: "54", parameter: "1", want: ErrInvalidFieldWidth},
		{name: "long parameter", head: 0, command: "54", parameter: "1    ", want: ErrInvalidFieldWidth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeShort(tt.head, tt.command, tt.parameter)
			if !errors.Is(err, tt.want) {
				t.Errorf("EncodeShort() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestShortRoundTrip(t *testing.T) {
	for head := 0; head <= MaxReceptorHead; head++ {
		frame, err := EncodeShort(head, "10", "0200")
		if err != nil {
			t.Fatalf("EncodeShort(%d) error = %v", head, err)
		}
		got, err := DecodeShort(frame)
		if err != nil {
			t.Fatalf("DecodeShort(%q) error = %v", frame, err)
		}
		want := ShortFrame{ReceptorHead: head, Command: "10", Parameter: "0200"}
		if got != want {
			t.Errorf("DecodeShort() = %v, want %v", got, want)
		}
	}
}

func FuzzShortRoundTrip(f *testing.F) {
	f.Add(uint8(0), "54", "1   ")
	f.Add(uint8(1), "10", "0200")
	f.Fuzz(func(t *testing.T, head uint8, command, parameter string) {
		if head > MaxReceptorHead || len(command) != CommandWidth || len(parameter) != ParameterWidth {
			return
		}
		frame, err := EncodeShort(int(head), command, parameter)
		if err != nil {
			t.Fatalf("EncodeShort() error = %v", err)
		}
		got, err := DecodeShort(frame)
		if err != nil {
			t.Fatalf("DecodeShort(%q) error = %v", frame, err)
		}
		want := ShortFrame{ReceptorHead: int(head), Command: command, Parameter: parameter}
		if got != want {
			t.Errorf("DecodeShort() = %v, want %v", got, want)
		}
	})
}

func TestDecodeShortChecksum(t *testing.T) {
	frame := []byte("\x020054    \x0303\r\n")
	_, err := DecodeShort(frame)
	var ce *ChecksumError
	if !errors.As(err, &ce) {
		t.Fatalf("DecodeShort() error = %v, want *ChecksumError", err)
	}
	if ce.Expected != 0x02 || ce.Actual != "03" {
		t.Errorf("ChecksumError = {%02x %s}, want {02 03}", ce.Expected, ce.Actual)
	}
}

func TestDecodeShortUpperCaseBCC(t *testing.T) {
	// body chosen so that its BCC contains a hex letter
	body := "0054   \x09\x03"
	frame := buildFrame(body)
	upper := bytes.ToUpper(frame[10:12])
	copy(frame[10:12], upper)
	if _, err := DecodeShort(frame); err != nil {
		t.Errorf("DecodeShort(%q) error = %v", frame, err)
	}
}

func TestDecodeShortCorruption(t *testing.T) {
	valid := PCConnectionAckFrame()
	// every byte inside the BCC span: receptor head through ETX
	for i := 1; i <= shortETX; i++ {
		frame := append([]byte(nil), valid...)
		frame[i] ^= 0x01
		if _, err := DecodeShort(frame); !errors.Is(err, ErrChecksumMismatch) {
			t.Errorf("byte %d flipped: DecodeShort() error = %v, want %v", i, err, ErrChecksumMismatch)
		}
	}
}

func TestDecodeShortNonNumericHead(t *testing.T) {
	frame := buildFrame("A054    \x03")
	if _, err := DecodeShort(frame); !errors.Is(err, ErrReceptorHeadOutOfRange) {
		t.Errorf("DecodeShort() error = %v, want %v", err, ErrReceptorHeadOutOfRange)
	}
}

func TestDecodeWrongLength(t *testing.T) {
	short := PCConnectionAckFrame()
	long := buildFrame("0110     10004-10002      \x03")

	for _, n := range []int{0, 1, 13, 15, 32} {
		in := bytes.Repeat([]byte{' '}, n)
		_, err := DecodeShort(in)
		if !errors.Is(err, ErrWrongFrameLength) {
			t.Errorf("DecodeShort(len %d) error = %v, want %v", n, err, ErrWrongFrameLength)
		}
	}
	for _, n := range []int{0, 14, 31, 33} {
		in := bytes.Repeat([]byte{' '}, n)
		_, err := DecodeLong(in)
		if !errors.Is(err, ErrWrongFrameLength) {
			t.Errorf("DecodeLong(len %d) error = %v, want %v", n, err, ErrWrongFrameLength)
		}
	}

	// a valid frame with a byte appended fails on length, not checksum
	_, err := DecodeShort(append(short, 'x'))
	if !errors.Is(err, ErrWrongFrameLength) || errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("DecodeShort(valid+1) error = %v, want only %v", err, ErrWrongFrameLength)
	}
	_, err = DecodeLong(long[:len(long)-1])
	if !errors.Is(err, ErrWrongFrameLength) || errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("DecodeLong(valid-1) error = %v, want only %v", err, ErrWrongFrameLength)
	}
	if _, err := DecodeLong(short); !errors.Is(err, ErrWrongFrameLength) {
		t.Errorf("DecodeLong(short frame) error = %v, want %v", err, ErrWrongFrameLength)
	}
}

func TestDecodeLong(t *testing.T) {
	frame := []byte("\x020110     10004-10002      \x0308\r\n")

	got, err := DecodeLong(frame)
	if err != nil {
		t.Fatalf("DecodeLong() error = %v", err)
	}
	if got.ReceptorHead != 1 || got.Command != "10" || got.Status != "    " {
		t.Errorf("DecodeLong() header = (%d, %q, %q), want (1, \"10\", \"    \")", got.ReceptorHead, got.Command, got.Status)
	}

	want := []struct {
		value   float64
		present bool
	}{{1000, true}, {-10, true}, {0, false}}
	for i, w := range want {
		v, ok := got.Readings[i].Float64()
		if ok != w.present || v != w.value {
			t.Errorf("reading %d = (%v, %v), want (%v, %v)", i+1, v, ok, w.value, w.present)
		}
	}
}

func TestDecodeLongMalformedReading(t *testing.T) {
	frame := buildFrame("0110     10004-1x002      \x03")
	if _, err := DecodeLong(frame); !errors.Is(err, ErrMalformedNumericField) {
		t.Errorf("DecodeLong() error = %v, want %v", err, ErrMalformedNumericField)
	}
}

func TestDecodeLongCorruption(t *testing.T) {
	valid := buildFrame("0110     10004-10002      \x03")
	for i := 1; i <= longETX; i++ {
		frame := append([]byte(nil), valid...)
		frame[i] ^= 0x40
		if _, err := DecodeLong(frame); !errors.Is(err, ErrChecksumMismatch) {
			t.Errorf("byte %d flipped: DecodeLong() error = %v, want %v", i, err, ErrChecksumMismatch)
		}
	}
}

func TestEncodeLongRoundTrip(t *testing.T) {
	lux, _ := ReadingFromFloat(523.4)
	in := LongFrame{
		ReceptorHead: 7,
		Command:      CmdMeasurement,
		Status:       "    ",
		Readings:     [3]Reading{lux, {}, {Present: true, Negative: true, Mantissa: 12, ExponentDigit: 4}},
	}
	frame, err := EncodeLong(in)
	if err != nil {
		t.Fatalf("EncodeLong() error = %v", err)
	}
	if len(frame) != LongFrameLength {
		t.Fatalf("len(EncodeLong()) = %d, want %d", len(frame), LongFrameLength)
	}
	out, err := DecodeLong(frame)
	if err != nil {
		t.Fatalf("DecodeLong() error = %v", err)
	}
	if out != in {
		t.Errorf("DecodeLong(EncodeLong()) = %+v, want %+v", out, in)
	}

	if _, err := EncodeLong(LongFrame{Command: "10", Status: "   "}); !errors.Is(err, ErrInvalidFieldWidth) {
		t.Errorf("EncodeLong(short status) error = %v, want %v", err, ErrInvalidFieldWidth)
	}
}

func TestCommandFrames(t *testing.T) {
	if got := string(PCConnectionRequest()); got != "\x0200541   \x0313\r\n" {
		t.Errorf("PCConnectionRequest() = %q", got)
	}
	ack, err := DecodeShort(PCConnectionAckFrame())
	if err != nil {
		t.Fatalf("DecodeShort(PCConnectionAckFrame()) error = %v", err)
	}
	if ack != PCConnectionAck() {
		t.Errorf("PCConnectionAckFrame decodes to %v, want %v", ack, PCConnectionAck())
	}

	// callers must not be able to alter the template through a returned slice
	PCConnectionRequest()[1] = 'X'
	if PCConnectionRequest()[1] != '0' {
		t.Error("PCConnectionRequest() shares its backing array")
	}

	req, err := MeasurementRequest(1, "0200")
	if err != nil {
		t.Fatalf("MeasurementRequest() error = %v", err)
	}
	if string(req) != "\x0201100200\x0301\r\n" {
		t.Errorf("MeasurementRequest() = %q", req)
	}
}

func TestFrameScanner(t *testing.T) {
	var stream bytes.Buffer
	stream.WriteString("noise")
	stream.Write(PCConnectionRequest())
	stream.WriteString("\x02xx") // stray STX
	stream.Write(PCConnectionAckFrame())
	req, _ := MeasurementRequest(1, "0200")
	stream.Write(req[:7]) // truncated tail

	sc := bufio.NewScanner(&stream)
	sc.Split(NewShortFrameScanner().SplitFunc)

	var frames []string
	for sc.Scan() {
		frames = append(frames, sc.Text())
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scanner error = %v", err)
	}

	want := []string{string(PCConnectionRequest()), string(PCConnectionAckFrame())}
	if len(frames) != len(want) {
		t.Fatalf("scanned %d frames %q, want %d", len(frames), frames, len(want))
	}
	for i := range want {
		if frames[i] != want[i] {
			t.Errorf("frame %d = %q, want %q", i, frames[i], want[i])
		}
	}
}

func TestLongFrameScanner(t *testing.T) {
	long := buildFrame("0110     10004-10002      \x03")
	stream := append([]byte{0x00, 0x02}, long...)

	sc := bufio.NewScanner(bytes.NewReader(stream))
	sc.Split(NewLongFrameScanner().SplitFunc)
	if !sc.Scan() {
		t.Fatalf("Scan() = false, err = %v", sc.Err())
	}
	if !bytes.Equal(sc.Bytes(), long) {
		t.Errorf("Scan() = %q, want %q", sc.Bytes(), long)
	}
}
