package trace

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Edge is the direction of a logic-level transition.
type Edge uint8

const (
	Rising Edge = iota
	Falling
)

func (e Edge) String() string {
	switch e {
	case Rising:
		return "rising"
	case Falling:
		return "falling"
	default:
		return fmt.Sprintf("Edge(%d)", e)
	}
}

// ParseEdge accepts "rising"/"falling" in any case, the single letters r and
// f, and the probe's 1/0 edge bit.
func ParseEdge(s string) (Edge, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rising", "r", "1":
		return Rising, nil
	case "falling", "f", "0":
		return Falling, nil
	}
	return 0, fmt.Errorf("trace: unknown edge direction %q", s)
}

// Level returns the line level after the edge.
func (e Edge) Level() uint8 {
	if e == Rising {
		return 1
	}
	return 0
}

// IdleLevel is reported for empty traces and, on edge traces, before the
// first transition unless that transition is a rising edge.
const IdleLevel uint8 = 1

// Transition is a single edge event on a channel.
type Transition struct {
	Edge Edge
	Time int64
}

// LevelSample is one polled observation of a channel.
type LevelSample struct {
	Time  int64
	Level uint8
}

// Kind records which capture style backs a Trace.
type Kind uint8

const (
	KindEdges Kind = iota
	KindSamples
)

func (k Kind) String() string {
	if k == KindSamples {
		return "samples"
	}
	return "edges"
}

var (
	ErrUnordered       = errors.New("trace: timestamps are not ordered")
	ErrDuplicateSample = errors.New("trace: duplicate sample timestamp")
	ErrInvalidLevel    = errors.New("trace: level must be 0 or 1")
)

// Trace is an immutable, time-ordered record of one channel. It is backed
// either by transitions (interrupt capture) or by level samples (polling).
type Trace struct {
	channel     string
	kind        Kind
	transitions []Transition
	samples     []LevelSample
}

// NewEdgeTrace copies ts into a transition-backed trace. Times must be
// non-decreasing; simultaneous edges are kept.
func NewEdgeTrace(channel string, ts []Transition) (*Trace, error) {
	for i := 1; i < len(ts); i++ {
		if ts[i].Time < ts[i-1].Time {
			return nil, fmt.Errorf("%w: channel %q index %d (%d < %d)",
				ErrUnordered, channel, i, ts[i].Time, ts[i-1].Time)
		}
	}
	return &Trace{
		channel:     channel,
		kind:        KindEdges,
		transitions: append([]Transition(nil), ts...),
	}, nil
}

// NewSampleTrace copies ss into a sample-backed trace. Times must be
// strictly increasing and levels must be 0 or 1.
func NewSampleTrace(channel string, ss []LevelSample) (*Trace, error) {
	for i, s := range ss {
		if s.Level > 1 {
			return nil, fmt.Errorf("%w: channel %q index %d got %d", ErrInvalidLevel, channel, i, s.Level)
		}
		if i == 0 {
			continue
		}
		switch prev := ss[i-1].Time; {
		case s.Time == prev:
			return nil, fmt.Errorf("%w: channel %q at %d", ErrDuplicateSample, channel, s.Time)
		case s.Time < prev:
			return nil, fmt.Errorf("%w: channel %q index %d (%d < %d)", ErrUnordered, channel, i, s.Time, prev)
		}
	}
	return &Trace{
		channel: channel,
		kind:    KindSamples,
		samples: append([]LevelSample(nil), ss...),
	}, nil
}

func (t *Trace) Channel() string { return t.channel }
func (t *Trace) Kind() Kind { return t.kind }

// Len reports the number of stored records (transitions or samples).
func (t *Trace) Len() int {
	if t.kind == KindSamples {
		return len(t.samples)
	}
	return len(t.transitions)
}

func (t *Trace) Empty() bool { return t.Len() == 0 }

// Start is the time of the first stored record, End the time of the last.
// Both are zero for an empty trace.
func (t *Trace) Start() int64 {
	if t.Empty() {
		return 0
	}
	if t.kind == KindSamples {
		return t.samples[0].Time
	}
	return t.transitions[0].Time
}

func (t *Trace) End() int64 {
	if t.Empty() {
		return 0
	}
	if t.kind == KindSamples {
		return t.samples[len(t.samples)-1].Time
	}
	return t.transitions[len(t.transitions)-1].Time
}

// Times returns the record timestamps in order.
func (t *Trace) Times() []int64 {
	out := make([]int64, 0, t.Len())
	if t.kind == KindSamples {
		for _, s := range t.samples {
			out = append(out, s.Time)
		}
		return out
	}
	for _, tr := range t.transitions {
		out = append(out, tr.Time)
	}
	return out
}

// Samples returns a copy of the level samples (nil for edge traces).
func (t *Trace) Samples() []LevelSample {
	if t.kind != KindSamples {
		return nil
	}
	return append([]LevelSample(nil), t.samples...)
}

// LevelAt reports the logic level at time tm.
func (t *Trace) LevelAt(tm int64) uint8 {
	if t.kind == KindSamples {
		if len(t.samples) == 0 {
			return IdleLevel
		}
		// first sample strictly after tm
		i := sort.Search(len(t.samples), func(i int) bool { return t.samples[i].Time > tm })
		if i == 0 {
			return t.samples[0].Level
		}
		return t.samples[i-1].Level
	}

	if len(t.transitions) == 0 {
		return IdleLevel
	}
	i := sort.Search(len(t.transitions), func(i int) bool { return t.transitions[i].Time > tm })
	if i == 0 {
		// A line can only rise from 0; otherwise assume the idle-high convention.
		if t.transitions[0].Edge == Rising {
			return 0
		}
		return IdleLevel
	}
	return t.transitions[i-1].Edge.Level()
}

// Transitions returns every edge of the trace. For sample traces the edges
// are derived by diffing consecutive levels; the samples are not modified.
func (t *Trace) Transitions() []Transition {
	if t.kind == KindEdges {
		return append([]Transition(nil), t.transitions...)
	}
	return diffSamples(t.samples)
}

// TransitionsIn returns the edges with from <= Time < to.
func (t *Trace) TransitionsIn(from, to int64) []Transition {
	if to <= from {
		return nil
	}
	if t.kind == KindEdges {
		lo := sort.Search(len(t.transitions), func(i int) bool { return t.transitions[i].Time >= from })
		hi := sort.Search(len(t.transitions), func(i int) bool { return t.transitions[i].Time >= to })
		return append([]Transition(nil), t.transitions[lo:hi]...)
	}

	// Include the sample just before the window so an edge landing on its
	// first sample is still seen.
	lo := sort.Search(len(t.samples), func(i int) bool { return t.samples[i].Time >= from })
	hi := sort.Search(len(t.samples), func(i int) bool { return t.samples[i].Time >= to })
	if lo > 0 {
		lo--
	}
	var out []Transition
	for _, tr := range diffSamples(t.samples[lo:hi]) {
		if tr.Time >= from {
			out = append(out, tr)
		}
	}
	return out
}

func diffSamples(ss []LevelSample) []Transition {
	if len(ss) < 2 {
		return nil
	}
	var out []Transition
	prev := ss[0].Level
	for _, s := range ss[1:] {
		if s.Level == prev {
			continue
		}
		e := Falling
		if s.Level > prev {
			e = Rising
		}
		out = append(out, Transition{Edge: e, Time: s.Time})
		prev = s.Level
	}
	return out
}
