package timing

import (
	"errors"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/OpenTraceLab/OpenTraceDecode/pkg/trace"
)

const (
	// MinSamples is the smallest trace Measure will estimate from.
	MinSamples = 100
	// Window bounds how many leading samples Measure inspects.
	Window = 1000
)

var (
	ErrInvalidRate         = errors.New("timing: rate must be positive")
	ErrInsufficientSamples = errors.New("timing: insufficient samples")
)

// Origin records how a Model was derived.
type Origin uint8

const (
	Nominal Origin = iota
	Measured
)

func (o Origin) String() string {
	if o == Measured {
		return "measured"
	}
	return "nominal"
}

// ParseOrigin maps "nominal" or "measured" to an Origin.
func ParseOrigin(s string) (Origin, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nominal":
		return Nominal, nil
	case "measured":
		return Measured, nil
	}
	return 0, fmt.Errorf("timing: unknown mode %q (want nominal or measured)", s)
}

// Model is the unit interval of a decode session in trace ticks. It is
// derived once and never modified.
type Model struct {
	UnitInterval float64
	Origin       Origin

	// Measured models only.
	Jitter  float64 // standard deviation of the sample spacing
	Samples int     // number of positive deltas averaged
}

// NominalModel computes tickRate / rate, e.g. 1 MHz ticks at 9600 baud gives
// a unit interval of ~104.17 ticks.
func NominalModel(tickRate, rate int64) (Model, error) {
	if rate <= 0 {
		return Model{}, fmt.Errorf("%w: nominal rate %d", ErrInvalidRate, rate)
	}
	if tickRate <= 0 {
		return Model{}, fmt.Errorf("%w: tick rate %d", ErrInvalidRate, tickRate)
	}
	return Model{
		UnitInterval: float64(tickRate) / float64(rate),
		Origin:       Nominal,
	}, nil
}

// Measure estimates the sample period from the mean positive spacing of
// the first Window records of tr. Outliers are not rejected: a dropped
// sample or a long capture gap biases the mean upwards.
func Measure(tr *trace.Trace) (Model, error) {
	times := tr.Times()
	if len(times) < MinSamples {
		return Model{}, fmt.Errorf("%w: channel %q has %d, need %d",
			ErrInsufficientSamples, tr.Channel(), len(times), MinSamples)
	}
	if len(times) > Window {
		times = times[:Window]
	}

	deltas := make([]float64, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		if d := times[i] - times[i-1]; d > 0 {
			deltas = append(deltas, float64(d))
		}
	}
	if len(deltas) == 0 {
		return Model{}, fmt.Errorf("%w: channel %q has no positive sample spacing",
			ErrInsufficientSamples, tr.Channel())
	}

	mean, std := stat.MeanStdDev(deltas, nil)
	if len(deltas) == 1 {
		std = 0
	}
	return Model{
		UnitInterval: mean,
		Origin:       Measured,
		Jitter:       std,
		Samples:      len(deltas),
	}, nil
}

// Rate converts the unit interval back into a frequency in Hz.
func (m Model) Rate(tickRate int64) float64 {
	if m.UnitInterval <= 0 {
		return 0
	}
	return float64(tickRate) / m.UnitInterval
}

// Per reports how many intervals of other fit in one interval of m, for
// example samples per bit when m is a bit time and other a sample period.
func (m Model) Per(other Model) float64 {
	if other.UnitInterval <= 0 {
		return 0
	}
	return m.UnitInterval / other.UnitInterval
}

// Offset returns the tick offset of k unit intervals, truncated toward zero.
func (m Model) Offset(k float64) int64 {
	return int64(m.UnitInterval * k)
}

func (m Model) String() string {
	if m.Origin == Measured {
		return fmt.Sprintf("%.2f ticks (measured, σ=%.2f over %d deltas)", m.UnitInterval, m.Jitter, m.Samples)
	}
	return fmt.Sprintf("%.2f ticks (nominal)", m.UnitInterval)
}
