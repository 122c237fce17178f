package decode_test

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/OpenTraceLab/OpenTraceDecode/pkg/decode"
	"github.com/OpenTraceLab/OpenTraceDecode/pkg/synth"
	"github.com/OpenTraceLab/OpenTraceDecode/pkg/timing"
	"github.com/OpenTraceLab/OpenTraceDecode/pkg/trace"
)

const tickRate = 72_000_000

func uartConfig(tx synth.UART) decode.Config {
	return decode.Config{
		Protocol: decode.UART{
			Lines:    []string{tx.Channel},
			DataBits: tx.DataBits,
			Parity:   tx.Parity,
			StopBits: tx.StopBits,
		},
		NominalRate: tx.Baud,
		TickRate:    tx.TickRate,
	}
}

func mustDecode(t *testing.T, set *trace.Set, cfg decode.Config) *decode.Result {
	t.Helper()
	res, err := decode.Decode(set, cfg)
	if err != nil {
		t.Fatalf("Decode(%s) returned error: %v", cfg, err)
	}
	return res
}

func mustStream(t *testing.T, res *decode.Result, channel string) decode.Stream {
	t.Helper()
	s, ok := res.Stream(channel)
	if !ok {
		t.Fatalf("result has no stream for %q", channel)
	}
	return s
}

func TestUARTDecodes0x41At9600Baud(t *testing.T) {
	tx := synth.NewUART("RX", tickRate, 9600)
	tx.Start = 1000
	set := synth.Set(tx.Encode([]byte{0x41}))

	res := mustDecode(t, set, uartConfig(tx))
	if res.Timing.UnitInterval != 7500 {
		t.Fatalf("unit interval = %v, want 7500", res.Timing.UnitInterval)
	}
	rx := mustStream(t, res, "RX")
	if len(rx.Bytes) != 1 {
		t.Fatalf("decoded %d bytes, want 1", len(rx.Bytes))
	}
	b := rx.Bytes[0]
	if b.Value != 0x41 || !b.Valid || b.Defects != 0 {
		t.Fatalf("byte = %+v, want valid 0x41", b)
	}
	if b.Time != tx.StartOf(0) {
		t.Fatalf("byte time = %d, want start edge %d", b.Time, tx.StartOf(0))
	}
}

func TestUARTRoundTrip(t *testing.T) {
	payload := []byte("Hi!\x00\xff\x55\xaa\x80\x01")
	type frame struct {
		bits   int
		parity decode.Parity
		stop   int
	}
	var frames []frame
	for _, bits := range []int{5, 7, 8} {
		for _, parity := range []decode.Parity{decode.ParityNone, decode.ParityEven, decode.ParityOdd} {
			for _, stop := range []int{1, 2} {
				frames = append(frames, frame{bits, parity, stop})
			}
		}
	}
	for _, baud := range []int64{9600, 115200} {
		for _, f := range frames {
			// Gap 0 sends frames back to back: each start bit follows the
			// previous stop bit directly.
			for _, gap := range []float64{0, 2} {
				for _, sampled := range []bool{false, true} {
					name := fmt.Sprintf("%d/%d%c%d/gap=%v/sampled=%v", baud, f.bits, byte(f.parity), f.stop, gap, sampled)
					t.Run(name, func(t *testing.T) {
						tx := synth.NewUART("RX", tickRate, baud)
						tx.DataBits, tx.Parity, tx.StopBits, tx.Gap = f.bits, f.parity, f.stop, gap
						want := make([]byte, len(payload))
						for i, v := range payload {
							want[i] = v & byte(1<<f.bits-1)
						}

						wave := tx.Encode(want)
						period := int64(tx.UnitInterval()/10) + 1
						set := synth.Set(wave)
						if sampled {
							set = synth.SampledSet(period, wave)
						}
						rx := mustStream(t, mustDecode(t, set, uartConfig(tx)), "RX")

						if got := rx.Values(); !reflect.DeepEqual(got, want) {
							t.Fatalf("values = % X, want % X", got, want)
						}
						for i, b := range rx.Bytes {
							if !b.Valid {
								t.Fatalf("byte %d flagged %s", i, b.Defects)
							}
							start := tx.StartOf(i)
							if !sampled && b.Time != start {
								t.Fatalf("byte %d time = %d, want %d", i, b.Time, start)
							}
							if sampled && (b.Time < start || b.Time >= start+period) {
								t.Fatalf("byte %d time = %d, want within one sample of %d", i, b.Time, start)
							}
						}
					})
				}
			}
		}
	}
}

func TestUARTStopBitDefectFlagsOnlyThatByte(t *testing.T) {
	tx := synth.NewUART("RX", tickRate, 115200)
	tx.BadStop = []int{2}
	payload := []byte{0x10, 0xF0, 0xFF, 0x7E, 0x00}
	rx := mustStream(t, mustDecode(t, synth.Set(tx.Encode(payload)), uartConfig(tx)), "RX")

	if got := rx.Values(); !reflect.DeepEqual(got, payload) {
		t.Fatalf("values = % X, want % X", got, payload)
	}
	for i, b := range rx.Bytes {
		wantDefect := i == 2
		if b.Defects.Has(decode.StopBitError) != wantDefect || b.Valid == wantDefect {
			t.Fatalf("byte %d = %+v, stop-bit defect expected %v", i, b, wantDefect)
		}
	}
	if rx.Defective() != 1 {
		t.Fatalf("Defective() = %d, want 1", rx.Defective())
	}
}

func TestUARTParityErrorKeepsByte(t *testing.T) {
	for _, parity := range []decode.Parity{decode.ParityEven, decode.ParityOdd} {
		tx := synth.NewUART("RX", tickRate, 9600)
		tx.Parity = parity
		tx.BadParity = []int{1}
		payload := []byte{0x03, 0x07, 0xA5}
		rx := mustStream(t, mustDecode(t, synth.Set(tx.Encode(payload)), uartConfig(tx)), "RX")

		if got := rx.Values(); !reflect.DeepEqual(got, payload) {
			t.Fatalf("%s: values = % X, want % X", parity, got, payload)
		}
		for i, b := range rx.Bytes {
			if got := b.Defects.Has(decode.ParityError); got != (i == 1) {
				t.Fatalf("%s: byte %d parity error = %v", parity, i, got)
			}
			if b.Defects.Has(decode.StopBitError) {
				t.Fatalf("%s: byte %d has unexpected stop-bit error", parity, i)
			}
		}
	}
}

func TestUARTRejectsGlitches(t *testing.T) {
	tx := synth.NewUART("RX", tickRate, 9600)
	tx.Lead = 4
	ui := int64(tx.UnitInterval())
	wave := tx.Encode([]byte{0x5A, 0xC3})
	// A short low pulse in the lead-in and another in the inter-frame gap.
	wave = wave.WithPulse(ui, ui/5, 0)
	wave = wave.WithPulse(tx.StartOf(1)-ui, ui/4, 0)

	for _, sampled := range []bool{false, true} {
		set := synth.Set(wave)
		if sampled {
			set = synth.SampledSet(ui/20, wave)
		}
		rx := mustStream(t, mustDecode(t, set, uartConfig(tx)), "RX")
		if got := rx.Values(); !reflect.DeepEqual(got, []byte{0x5A, 0xC3}) {
			t.Fatalf("sampled=%v: values = % X, want 5A C3", sampled, got)
		}
	}
}

func TestUARTDecodesEveryLine(t *testing.T) {
	rxTx := synth.NewUART("RX", tickRate, 57600)
	txTx := synth.NewUART("TX", tickRate, 57600)
	txTx.Start = 12345
	set := synth.Set(rxTx.Encode([]byte("ping")), txTx.Encode([]byte("pong")))

	cfg := uartConfig(rxTx)
	cfg.Protocol = decode.DefaultUART("RX", "TX")
	res := mustDecode(t, set, cfg)
	if string(mustStream(t, res, "RX").Values()) != "ping" {
		t.Fatalf("RX = %q", mustStream(t, res, "RX").Values())
	}
	if string(mustStream(t, res, "TX").Values()) != "pong" {
		t.Fatalf("TX = %q", mustStream(t, res, "TX").Values())
	}
	if res.Len() != 8 {
		t.Fatalf("Len() = %d, want 8", res.Len())
	}
}

func TestUARTEmptyTrace(t *testing.T) {
	empty, err := trace.NewEdgeTrace("RX", nil)
	if err != nil {
		t.Fatalf("NewEdgeTrace returned error: %v", err)
	}
	set := trace.MustSet(empty)
	cfg := uartConfig(synth.NewUART("RX", tickRate, 9600))

	res := mustDecode(t, set, cfg)
	if res.Len() != 0 {
		t.Fatalf("empty trace decoded %d bytes", res.Len())
	}

	cfg.Timing = timing.Measured
	if _, err := decode.Decode(set, cfg); !errors.Is(err, timing.ErrInsufficientSamples) {
		t.Fatalf("measured decode of empty trace = %v, want ErrInsufficientSamples", err)
	}
}

func TestUARTIdempotent(t *testing.T) {
	tx := synth.NewUART("RX", tickRate, 19200)
	tx.Parity = decode.ParityEven
	tx.BadStop = []int{1}
	set := synth.SampledSet(97, tx.Encode([]byte("repeat")))
	d, err := decode.New(uartConfig(tx))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	first, err := d.Decode(set)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	second, err := d.Decode(set)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("repeated decode differs:\n%+v\n%+v", first, second)
	}
}

func TestUARTMeasuredSampling(t *testing.T) {
	cases := []struct {
		period       int64
		undersampled bool
	}{
		{period: 700, undersampled: false},
		{period: 3000, undersampled: true},
	}
	for _, tc := range cases {
		tx := synth.NewUART("RX", tickRate, 9600)
		set := synth.SampledSet(tc.period, tx.Encode([]byte{0x31, 0x32, 0x33, 0x34}))
		cfg := uartConfig(tx)
		cfg.Timing = timing.Measured

		res := mustDecode(t, set, cfg)
		if res.Sampling == nil {
			t.Fatalf("period %d: no sampling model in measured mode", tc.period)
		}
		if res.Sampling.UnitInterval != float64(tc.period) {
			t.Fatalf("period %d: measured %v", tc.period, res.Sampling.UnitInterval)
		}
		if res.Sampling.Origin != timing.Measured {
			t.Fatalf("period %d: origin = %s", tc.period, res.Sampling.Origin)
		}
		if res.Undersampled() != tc.undersampled {
			t.Fatalf("period %d: Undersampled() = %v, want %v", tc.period, res.Undersampled(), tc.undersampled)
		}
		if res.Source != trace.KindSamples {
			t.Fatalf("period %d: source = %s", tc.period, res.Source)
		}
	}
}
