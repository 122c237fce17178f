package timing

import (
	"errors"
	"math"
	"testing"

	"github.com/OpenTraceLab/OpenTraceDecode/pkg/trace"
)

func TestNominalModel(t *testing.T) {
	m, err := NominalModel(1_000_000, 9600)
	if err != nil {
		t.Fatalf("NominalModel: %v", err)
	}
	if want := 1_000_000.0 / 9600.0; math.Abs(m.UnitInterval-want) > 1e-9 {
		t.Fatalf("UnitInterval = %f, want %f", m.UnitInterval, want)
	}
	if m.Origin != Nominal {
		t.Fatalf("Origin = %s, want nominal", m.Origin)
	}
	if got := m.Rate(1_000_000); math.Abs(got-9600) > 1e-6 {
		t.Fatalf("Rate = %f, want 9600", got)
	}
}

func TestNominalModelInvalidRate(t *testing.T) {
	for _, tc := range []struct{ tick, rate int64 }{
		{1_000_000, 0},
		{1_000_000, -9600},
		{0, 9600},
	} {
		if _, err := NominalModel(tc.tick, tc.rate); !errors.Is(err, ErrInvalidRate) {
			t.Fatalf("NominalModel(%d, %d) err = %v, want ErrInvalidRate", tc.tick, tc.rate, err)
		}
	}
}

func TestMeasureUniformSpacing(t *testing.T) {
	tr := sampleTrace(t, 150, func(i int) int64 { return int64(i) * 100 })

	m, err := Measure(tr)
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if m.UnitInterval != 100 {
		t.Fatalf("UnitInterval = %f, want 100", m.UnitInterval)
	}
	if got := m.Rate(1_000_000); got != 10_000 {
		t.Fatalf("Rate = %f, want 10000", got)
	}
	if m.Origin != Measured || m.Jitter != 0 || m.Samples != 149 {
		t.Fatalf("model = %+v", m)
	}
}

func TestMeasureUsesBoundedWindow(t *testing.T) {
	// Spacing changes after the window; it must not affect the estimate.
	tr := sampleTrace(t, 3000, func(i int) int64 {
		if i < Window {
			return int64(i) * 50
		}
		return int64(Window)*50 + int64(i-Window)*500
	})
	m, err := Measure(tr)
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if m.UnitInterval != 50 {
		t.Fatalf("UnitInterval = %f, want 50", m.UnitInterval)
	}
}

func TestMeasureInsufficientSamples(t *testing.T) {
	tr := sampleTrace(t, MinSamples-1, func(i int) int64 { return int64(i) })
	if _, err := Measure(tr); !errors.Is(err, ErrInsufficientSamples) {
		t.Fatalf("Measure err = %v, want ErrInsufficientSamples", err)
	}

	// An edge trace with all edges at one instant has no positive spacing.
	ts := make([]trace.Transition, 200)
	flat, err := trace.NewEdgeTrace("flat", ts)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Measure(flat); !errors.Is(err, ErrInsufficientSamples) {
		t.Fatalf("Measure(flat) err = %v, want ErrInsufficientSamples", err)
	}
}

func TestPer(t *testing.T) {
	bit, _ := NominalModel(1_000_000, 10_000) // 100 ticks
	sample := Model{UnitInterval: 25, Origin: Measured}
	if got := bit.Per(sample); got != 4 {
		t.Fatalf("Per = %f, want 4", got)
	}
	if got := bit.Offset(1.5); got != 150 {
		t.Fatalf("Offset(1.5) = %d, want 150", got)
	}
}

func TestParseOrigin(t *testing.T) {
	if o, err := ParseOrigin("Measured"); err != nil || o != Measured {
		t.Fatalf("ParseOrigin(Measured) = %v, %v", o, err)
	}
	if o, err := ParseOrigin(""); err != nil || o != Nominal {
		t.Fatalf("ParseOrigin(\"\") = %v, %v", o, err)
	}
	if _, err := ParseOrigin("guess"); err == nil {
		t.Fatalf("ParseOrigin(guess) accepted")
	}
}

func sampleTrace(t *testing.T, n int, at func(i int) int64) *trace.Trace {
	t.Helper()
	ss := make([]trace.LevelSample, n)
	for i := range ss {
		ss[i] = trace.LevelSample{Time: at(i), Level: uint8(i % 2)}
	}
	tr, err := trace.NewSampleTrace("CH1", ss)
	if err != nil {
		t.Fatalf("NewSampleTrace: %v", err)
	}
	return tr
}
