package emulator

import (
	"bytes"
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	"luxmeter-gateway/internal/config"
	protocol "luxmeter-gateway/internal/protocol/t10a"
)

type fakeConn struct {
	written  [][]byte
	pcMode   bool
	writeErr error
}

func (c *fakeConn) RemoteAddr() string { return "127.0.0.1:50000" }
func (c *fakeConn) SetPCMode(v bool)   { c.pcMode = v }
func (c *fakeConn) IsPCMode() bool     { return c.pcMode }

func (c *fakeConn) Write(b []byte) (int, error) {
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	c.written = append(c.written, append([]byte(nil), b...))
	return len(b), nil
}

func newTestHandler(t *testing.T, illuminance float64) *Handler {
	t.Helper()
	return NewHandler(config.EmulatorConfig{Illuminance: illuminance}, zaptest.NewLogger(t))
}

func pcModeRequest() protocol.ShortFrame {
	return protocol.ShortFrame{
		ReceptorHead: protocol.PCModeReceptorHead,
		Command:      protocol.CmdPCConnectionMode,
		Parameter:    protocol.PCModeParameter,
	}
}

func TestHandlePCConnection(t *testing.T) {
	h := newTestHandler(t, 100)
	conn := &fakeConn{}

	if err := h.HandleFrame(conn, pcModeRequest()); err != nil {
		t.Fatalf("HandleFrame() error = %v", err)
	}
	if !conn.pcMode {
		t.Error("connection not switched to PC mode")
	}
	if len(conn.written) != 1 || !bytes.Equal(conn.written[0], []byte("\x020054    \x0302\r\n")) {
		t.Errorf("written = %q", conn.written)
	}
}

func TestHandlePCConnectionWrongParameter(t *testing.T) {
	h := newTestHandler(t, 100)
	conn := &fakeConn{}

	req := pcModeRequest()
	req.Parameter = "0   "
	if err := h.HandleFrame(conn, req); err != nil {
		t.Fatalf("HandleFrame() error = %v", err)
	}
	if conn.pcMode || len(conn.written) != 0 {
		t.Errorf("pcMode = %v, written = %q; want no reply", conn.pcMode, conn.written)
	}
}

func TestHandleMeasurement(t *testing.T) {
	h := newTestHandler(t, 523.4)
	conn := &fakeConn{pcMode: true}

	req := protocol.ShortFrame{ReceptorHead: 1, Command: protocol.CmdMeasurement, Parameter: "0200"}
	if err := h.HandleFrame(conn, req); err != nil {
		t.Fatalf("HandleFrame() error = %v", err)
	}
	if len(conn.written) != 1 {
		t.Fatalf("written %d frames, want 1", len(conn.written))
	}

	lf, err := protocol.DecodeLong(conn.written[0])
	if err != nil {
		t.Fatalf("DecodeLong() error = %v", err)
	}
	if lf.ReceptorHead != 1 || lf.Command != protocol.CmdMeasurement || lf.Status != "    " {
		t.Errorf("response header = %+v", lf)
	}
	v, ok := lf.Readings[0].Float64()
	if !ok || v != 523.4 {
		t.Errorf("Readings[0] = %v, %v; want 523.4", v, ok)
	}
	if lf.Readings[1].Present || lf.Readings[2].Present {
		t.Errorf("Readings[1:] = %+v, want absent", lf.Readings[1:])
	}
}

func TestHandleMeasurementJitter(t *testing.T) {
	h := NewHandler(config.EmulatorConfig{Illuminance: 10, Jitter: 20}, zaptest.NewLogger(t))
	h.noise = func() float64 { return -1 }
	conn := &fakeConn{pcMode: true}

	req := protocol.ShortFrame{ReceptorHead: 2, Command: protocol.CmdMeasurement, Parameter: "0200"}
	if err := h.HandleFrame(conn, req); err != nil {
		t.Fatalf("HandleFrame() error = %v", err)
	}
	lf, err := protocol.DecodeLong(conn.written[0])
	if err != nil {
		t.Fatalf("DecodeLong() error = %v", err)
	}
	if v, _ := lf.Readings[0].Float64(); v != 0 {
		t.Errorf("Readings[0] = %v, want clamp to 0", v)
	}
}

func TestHandleNoReply(t *testing.T) {
	tests := []struct {
		name   string
		pcMode bool
		frame  protocol.ShortFrame
	}{
		{
			name:  "measurement before pc mode",
			frame: protocol.ShortFrame{ReceptorHead: 1, Command: protocol.CmdMeasurement, Parameter: "0200"},
		},
		{
			name:   "unknown command",
			pcMode: true,
			frame:  protocol.ShortFrame{ReceptorHead: 1, Command: "99", Parameter: "    "},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, 100)
			conn := &fakeConn{pcMode: tt.pcMode}
			if err := h.HandleFrame(conn, tt.frame); err != nil {
				t.Fatalf("HandleFrame() error = %v", err)
			}
			if len(conn.written) != 0 {
				t.Errorf("written = %q, want no reply", conn.written)
			}
		})
	}
}

func TestHandleWriteError(t *testing.T) {
	h := newTestHandler(t, 100)
	writeErr := errors.New("broken pipe")
	conn := &fakeConn{writeErr: writeErr}

	if err := h.HandleFrame(conn, pcModeRequest()); !errors.Is(err, writeErr) {
		t.Errorf("HandleFrame() error = %v, want %v", err, writeErr)
	}
	if conn.pcMode {
		t.Error("PC mode set although the acknowledgement was not sent")
	}
}

func TestHandleOutOfRangeIlluminance(t *testing.T) {
	h := newTestHandler(t, 1e12)
	conn := &fakeConn{pcMode: true}

	req := protocol.ShortFrame{ReceptorHead: 1, Command: protocol.CmdMeasurement, Parameter: "0200"}
	if err := h.HandleFrame(conn, req); !errors.Is(err, protocol.ErrMalformedNumericField) {
		t.Errorf("HandleFrame() error = %v, want %v", err, protocol.ErrMalformedNumericField)
	}
}
