package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/OpenTraceLab/OpenTraceDecode/pkg/decode"
	"github.com/OpenTraceLab/OpenTraceDecode/pkg/synth"
)

func TestHexAndASCII(t *testing.T) {
	in := []byte{0x48, 0x69, 0x00, 0x7f, 0x20, 0xff}
	if got := Hex(in); got != "48 69 00 7F 20 FF" {
		t.Fatalf("Hex = %q", got)
	}
	if got := ASCII(in); got != "Hi.. ." {
		t.Fatalf("ASCII = %q", got)
	}
	if Hex(nil) != "" || ASCII(nil) != "" {
		t.Fatalf("empty input should render empty")
	}
}

func uartResult(t *testing.T) *decode.Result {
	t.Helper()
	tx := synth.NewUART("RX", 72_000_000, 9600)
	tx.BadStop = []int{1}
	res, err := decode.Decode(synth.Set(tx.Encode([]byte("OK!"))), decode.Config{
		Protocol:    decode.DefaultUART("RX"),
		NominalRate: 9600,
		TickRate:    72_000_000,
	})
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	return res
}

func TestWriteTextUART(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteText(&buf, uartResult(t)); err != nil {
		t.Fatalf("WriteText returned error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"3 bytes, 1 defective", "4F 4B 21", "OK!", "0x4B stop-bit"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteTextI2CEvents(t *testing.T) {
	bus := synth.I2C{Clock: "SCL", Data: "SDA", Period: 1000, Acks: true}
	res, err := decode.Decode(synth.Set(bus.Encode([]byte{0x42})...), decode.Config{
		Protocol: decode.I2C{Clock: "SCL", Data: "SDA", Acks: true},
		TickRate: 1_000_000,
	})
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	var buf bytes.Buffer
	if err := WriteText(&buf, res); err != nil {
		t.Fatalf("WriteText returned error: %v", err)
	}
	out := buf.String()
	start := strings.Index(out, "START")
	b := strings.Index(out, "SDA 0x42 ACK")
	stop := strings.Index(out, "STOP")
	if start < 0 || b < start || stop < b {
		t.Fatalf("events not in order:\n%s", out)
	}
}

func TestSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	res := uartResult(t)
	paths, err := Save(dir, res)
	if err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if len(paths) != 1 || filepath.Base(paths[0]) != "RX_decoded_uart.txt" {
		t.Fatalf("paths = %v", paths)
	}
	data, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "4F 4B 21\nOK!\n" {
		t.Fatalf("file = %q", data)
	}
	if got := FileName(res, "bus/rx 1"); got != "bus_rx_1_decoded_uart.txt" {
		t.Fatalf("FileName = %q", got)
	}
}
