package trace

import (
	"errors"
	"fmt"
	"sort"
)

// ErrChannelNotFound is returned when a decode request names a channel that
// is absent from the trace set.
var ErrChannelNotFound = errors.New("trace: channel not found")

// Set groups the traces of one capture by channel name. A Set is read-only
// once built and may be shared between concurrent decoders.
type Set struct {
	traces map[string]*Trace
	order  []string
}

// NewSet builds a set from traces. Channel names must be unique.
func NewSet(traces ...*Trace) (*Set, error) {
	s := &Set{traces: make(map[string]*Trace, len(traces))}
	for _, t := range traces {
		if _, dup := s.traces[t.Channel()]; dup {
			return nil, fmt.Errorf("trace: duplicate channel %q", t.Channel())
		}
		s.traces[t.Channel()] = t
		s.order = append(s.order, t.Channel())
	}
	return s, nil
}

// MustSet is NewSet for tests and fixed fixtures; it panics on duplicates.
func MustSet(traces ...*Trace) *Set {
	s, err := NewSet(traces...)
	if err != nil {
		panic(err)
	}
	return s
}

// Lookup returns the trace for channel or an error wrapping ErrChannelNotFound.
func (s *Set) Lookup(channel string) (*Trace, error) {
	if s != nil {
		if t, ok := s.traces[channel]; ok {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %q (have %v)", ErrChannelNotFound, channel, s.Channels())
}

// Channels lists channel names in insertion order.
func (s *Set) Channels() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.order...)
}

// Len reports the number of channels.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Span returns the earliest start and latest end across non-empty traces.
func (s *Set) Span() (start, end int64) {
	first := true
	for _, name := range s.Channels() {
		t := s.traces[name]
		if t.Empty() {
			continue
		}
		if first || t.Start() < start {
			start = t.Start()
		}
		if first || t.End() > end {
			end = t.End()
		}
		first = false
	}
	return start, end
}

// Sorted returns the channel names sorted lexically.
func (s *Set) Sorted() []string {
	names := s.Channels()
	sort.Strings(names)
	return names
}
