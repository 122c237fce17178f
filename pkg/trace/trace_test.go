package trace

import (
	"errors"
	"reflect"
	"testing"
)

func TestEdgeTraceLevelAt(t *testing.T) {
	tr, err := NewEdgeTrace("RX", []Transition{
		{Edge: Falling, Time: 100},
		{Edge: Rising, Time: 200},
		{Edge: Falling, Time: 300},
		{Edge: Rising, Time: 300},
	})
	if err != nil {
		t.Fatalf("NewEdgeTrace: %v", err)
	}

	cases := []struct {
		at   int64
		want uint8
	}{
		{0, 1},
		{99, 1},
		{100, 0},
		{150, 0},
		{200, 1},
		{299, 1},
		{300, 1}, // last of the simultaneous edges wins
		{10_000, 1},
	}
	for _, tc := range cases {
		if got := tr.LevelAt(tc.at); got != tc.want {
			t.Fatalf("LevelAt(%d) = %d, want %d", tc.at, got, tc.want)
		}
	}
}

func TestEdgeTraceLeadingRisingEdge(t *testing.T) {
	tr, err := NewEdgeTrace("MOSI", []Transition{{Edge: Rising, Time: 50}})
	if err != nil {
		t.Fatal(err)
	}
	if got := tr.LevelAt(10); got != 0 {
		t.Fatalf("LevelAt before leading rising edge = %d, want 0", got)
	}
}

func TestSampleTraceLevelAt(t *testing.T) {
	tr, err := NewSampleTrace("CH1", []LevelSample{
		{Time: 10, Level: 0},
		{Time: 20, Level: 1},
		{Time: 30, Level: 1},
		{Time: 40, Level: 0},
	})
	if err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		at   int64
		want uint8
	}{
		{0, 0}, // before all samples: first sample's level
		{10, 0},
		{19, 0},
		{20, 1},
		{39, 1},
		{40, 0},
		{99, 0},
	}
	for _, tc := range cases {
		if got := tr.LevelAt(tc.at); got != tc.want {
			t.Fatalf("LevelAt(%d) = %d, want %d", tc.at, got, tc.want)
		}
	}
}

func TestEmptyTraceIsIdle(t *testing.T) {
	for _, tr := range []*Trace{
		mustEdges(t, "a", nil),
		mustSamples(t, "b", nil),
	} {
		if got := tr.LevelAt(123); got != IdleLevel {
			t.Fatalf("%s: LevelAt on empty trace = %d, want %d", tr.Kind(), got, IdleLevel)
		}
		if n := len(tr.Transitions()); n != 0 {
			t.Fatalf("%s: Transitions() on empty trace returned %d", tr.Kind(), n)
		}
	}
}

func TestSampleTransitionsDerived(t *testing.T) {
	samples := []LevelSample{
		{Time: 0, Level: 1},
		{Time: 1, Level: 1},
		{Time: 2, Level: 0},
		{Time: 3, Level: 0},
		{Time: 4, Level: 1},
	}
	tr := mustSamples(t, "ch", samples)

	want := []Transition{{Edge: Falling, Time: 2}, {Edge: Rising, Time: 4}}
	if got := tr.Transitions(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Transitions() = %v, want %v", got, want)
	}
	if got := tr.TransitionsIn(2, 4); !reflect.DeepEqual(got, want[:1]) {
		t.Fatalf("TransitionsIn(2,4) = %v, want %v", got, want[:1])
	}
	if got := tr.TransitionsIn(3, 10); !reflect.DeepEqual(got, want[1:]) {
		t.Fatalf("TransitionsIn(3,10) = %v, want %v", got, want[1:])
	}
	// source untouched
	if !reflect.DeepEqual(tr.Samples(), samples) {
		t.Fatalf("samples mutated")
	}
}

func TestConstructorsRejectBadInput(t *testing.T) {
	if _, err := NewEdgeTrace("x", []Transition{{Time: 5}, {Time: 4}}); !errors.Is(err, ErrUnordered) {
		t.Fatalf("NewEdgeTrace unordered err = %v, want ErrUnordered", err)
	}
	if _, err := NewSampleTrace("x", []LevelSample{{Time: 5}, {Time: 5}}); !errors.Is(err, ErrDuplicateSample) {
		t.Fatalf("NewSampleTrace duplicate err = %v, want ErrDuplicateSample", err)
	}
	if _, err := NewSampleTrace("x", []LevelSample{{Time: 5, Level: 2}}); !errors.Is(err, ErrInvalidLevel) {
		t.Fatalf("NewSampleTrace level err = %v, want ErrInvalidLevel", err)
	}
}

func TestSetLookup(t *testing.T) {
	s := MustSet(mustEdges(t, "RX", nil), mustEdges(t, "TX", nil))
	if _, err := s.Lookup("RX"); err != nil {
		t.Fatalf("Lookup(RX): %v", err)
	}
	if _, err := s.Lookup("CLK"); !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("Lookup(CLK) err = %v, want ErrChannelNotFound", err)
	}
	if _, err := NewSet(mustEdges(t, "RX", nil), mustEdges(t, "RX", nil)); err == nil {
		t.Fatalf("NewSet accepted duplicate channel")
	}
}

func TestLevelAtLargeTrace(t *testing.T) {
	const n = 200_000
	ts := make([]Transition, n)
	for i := range ts {
		e := Falling
		if i%2 == 1 {
			e = Rising
		}
		ts[i] = Transition{Edge: e, Time: int64(i) * 10}
	}
	tr := mustEdges(t, "big", ts)
	for i := 0; i < n; i++ {
		want := uint8(i % 2)
		if got := tr.LevelAt(int64(i)*10 + 5); got != want {
			t.Fatalf("LevelAt(%d) = %d, want %d", int64(i)*10+5, got, want)
		}
	}
}

func mustEdges(t *testing.T, ch string, ts []Transition) *Trace {
	t.Helper()
	tr, err := NewEdgeTrace(ch, ts)
	if err != nil {
		t.Fatalf("NewEdgeTrace(%s): %v", ch, err)
	}
	return tr
}

func mustSamples(t *testing.T, ch string, ss []LevelSample) *Trace {
	t.Helper()
	tr, err := NewSampleTrace(ch, ss)
	if err != nil {
		t.Fatalf("NewSampleTrace(%s): %v", ch, err)
	}
	return tr
}
