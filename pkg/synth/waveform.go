// Package synth generates synthetic probe traces for UART, SPI and I2C
// traffic. It is the software stand-in for a logic probe: tests, the
// simulator capture source and the synth command all build their traffic
// here.
package synth

import (
	"fmt"
	"math"
	"sort"

	"github.com/OpenTraceLab/OpenTraceDecode/pkg/trace"
)

// Waveform is a piecewise-constant logic level. Steps[i].Level holds from
// Steps[i].Time until the next step; End closes the last one.
type Waveform struct {
	Channel string
	Steps   []trace.LevelSample
	End     int64
}

// LevelAt returns the level driven at t, or the first level before the
// waveform starts.
func (w Waveform) LevelAt(t int64) uint8 {
	if len(w.Steps) == 0 {
		return trace.IdleLevel
	}
	i := sort.Search(len(w.Steps), func(i int) bool { return w.Steps[i].Time > t })
	if i == 0 {
		return w.Steps[0].Level
	}
	return w.Steps[i-1].Level
}

// Edges converts the waveform into an edge-event trace.
func (w Waveform) Edges() *trace.Trace {
	var ts []trace.Transition
	for i := 1; i < len(w.Steps); i++ {
		prev, cur := w.Steps[i-1].Level, w.Steps[i].Level
		switch {
		case cur > prev:
			ts = append(ts, trace.Transition{Edge: trace.Rising, Time: w.Steps[i].Time})
		case cur < prev:
			ts = append(ts, trace.Transition{Edge: trace.Falling, Time: w.Steps[i].Time})
		}
	}
	tr, err := trace.NewEdgeTrace(w.Channel, ts)
	if err != nil {
		panic(fmt.Sprintf("synth: %v", err))
	}
	return tr
}

// Sampled polls the waveform every period ticks from its first step to End.
func (w Waveform) Sampled(period int64) *trace.Trace {
	if len(w.Steps) == 0 {
		return w.sampled(0, -1, period)
	}
	return w.sampled(w.Steps[0].Time, w.End, period)
}

func (w Waveform) sampled(start, end, period int64) *trace.Trace {
	if period <= 0 {
		panic("synth: sample period must be positive")
	}
	var ss []trace.LevelSample
	for t := start; t <= end; t += period {
		ss = append(ss, trace.LevelSample{Time: t, Level: w.LevelAt(t)})
	}
	tr, err := trace.NewSampleTrace(w.Channel, ss)
	if err != nil {
		panic(fmt.Sprintf("synth: %v", err))
	}
	return tr
}

// WithPulse returns a copy of w with the line forced to level during
// [at, at+width). It is used to inject glitches.
func (w Waveform) WithPulse(at, width int64, level uint8) Waveform {
	after := w.LevelAt(at + width)
	out := Waveform{Channel: w.Channel, End: w.End}
	for _, s := range w.Steps {
		if s.Time < at {
			out.Steps = append(out.Steps, s)
		}
	}
	out.Steps = append(out.Steps,
		trace.LevelSample{Time: at, Level: level},
		trace.LevelSample{Time: at + width, Level: after})
	for _, s := range w.Steps {
		if s.Time > at+width {
			out.Steps = append(out.Steps, s)
		}
	}
	if out.End < at+width {
		out.End = at + width
	}
	return out
}

// Set builds an edge-trace set from waveforms.
func Set(ws ...Waveform) *trace.Set {
	trs := make([]*trace.Trace, len(ws))
	for i, w := range ws {
		trs[i] = w.Edges()
	}
	return trace.MustSet(trs...)
}

// SampledSet builds a polled trace set; all channels share one sample clock
// spanning the union of the waveforms.
func SampledSet(period int64, ws ...Waveform) *trace.Set {
	var (
		start, end int64
		seen       bool
	)
	for _, w := range ws {
		if len(w.Steps) == 0 {
			continue
		}
		if !seen || w.Steps[0].Time < start {
			start = w.Steps[0].Time
		}
		if !seen || w.End > end {
			end = w.End
		}
		seen = true
	}
	if !seen {
		end = -1
	}
	trs := make([]*trace.Trace, len(ws))
	for i, w := range ws {
		trs[i] = w.sampled(start, end, period)
	}
	return trace.MustSet(trs...)
}

// builder lays out levels on a grid of unit intervals starting at origin.
// Step times are rounded to whole ticks from the unit position, so
// rounding error never accumulates.
type builder struct {
	origin int64
	unit   float64
	pos    float64
	steps  []trace.LevelSample
}

func (b *builder) now() int64 {
	return b.origin + int64(math.Round(b.pos*b.unit))
}

// hold drives level for units unit intervals.
func (b *builder) hold(level uint8, units float64) {
	b.set(level)
	b.pos += units
}

// set drives level from the current position without advancing.
func (b *builder) set(level uint8) {
	t := b.now()
	n := len(b.steps)
	switch {
	case n > 0 && b.steps[n-1].Time == t:
		b.steps[n-1].Level = level
		if n > 1 && b.steps[n-2].Level == level {
			b.steps = b.steps[:n-1]
		}
	case n > 0 && b.steps[n-1].Level == level:
	default:
		b.steps = append(b.steps, trace.LevelSample{Time: t, Level: level})
	}
}

func (b *builder) wave(channel string) Waveform {
	return Waveform{Channel: channel, Steps: b.steps, End: b.now()}
}
