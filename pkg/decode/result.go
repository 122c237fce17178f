package decode

import (
	"fmt"
	"strings"

	"github.com/OpenTraceLab/OpenTraceDecode/pkg/timing"
	"github.com/OpenTraceLab/OpenTraceDecode/pkg/trace"
)

// Defect is a set of frame-level problems found on a decoded byte.
type Defect uint8

const (
	ParityError Defect = 1 << iota
	StopBitError
)

// Has reports whether every flag in x is set.
func (d Defect) Has(x Defect) bool { return d&x == x }

func (d Defect) String() string {
	if d == 0 {
		return "none"
	}
	var parts []string
	if d.Has(ParityError) {
		parts = append(parts, "parity")
	}
	if d.Has(StopBitError) {
		parts = append(parts, "stop-bit")
	}
	return strings.Join(parts, "|")
}

// Ack is the acknowledge bit following an I2C byte.
type Ack uint8

const (
	AckNotSampled Ack = iota
	Acked
	Nacked
)

func (a Ack) String() string {
	switch a {
	case Acked:
		return "ACK"
	case Nacked:
		return "NACK"
	}
	return ""
}

// Byte is one decoded byte. It is produced once per confirmed frame and not
// modified afterwards.
type Byte struct {
	Value   byte
	Time    int64 // frame anchor: start-bit edge (UART) or first data clock (SPI/I2C)
	Valid   bool
	Defects Defect
	Ack     Ack
}

// MarkerKind classifies an out-of-band I2C bus condition.
type MarkerKind uint8

const (
	Start MarkerKind = iota
	Stop
)

func (m MarkerKind) String() string {
	if m == Stop {
		return "STOP"
	}
	return "START"
}

// Marker is an I2C START or STOP condition.
type Marker struct {
	Kind MarkerKind
	Time int64
}

// Stream is the decoded byte sequence of one channel.
type Stream struct {
	Channel string
	Role    string // MOSI, MISO, SDA, or empty for UART lines
	Bytes   []Byte
}

// Values returns the raw byte values of the stream.
func (s Stream) Values() []byte {
	out := make([]byte, len(s.Bytes))
	for i, b := range s.Bytes {
		out[i] = b.Value
	}
	return out
}

// Defective counts bytes carrying at least one defect.
func (s Stream) Defective() int {
	n := 0
	for _, b := range s.Bytes {
		if !b.Valid {
			n++
		}
	}
	return n
}

// Result is the output of a single Decode call.
type Result struct {
	Protocol Kind
	Config   Config

	// Timing is the nominal unit interval; zero when no rate was given.
	Timing timing.Model
	// Sampling is the measured sample period in measured mode, else nil.
	Sampling *timing.Model
	// Source is the capture style of the decoded traces.
	Source trace.Kind

	Streams []Stream
	Markers []Marker
}

// MinSamplesPerUnit is the sampling density below which mid-bit sampling of
// a polled trace becomes unreliable.
const MinSamplesPerUnit = 3.0

// Undersampled reports whether a measured polling trace has too few samples
// per unit interval.
func (r *Result) Undersampled() bool {
	if r.Sampling == nil || r.Source != trace.KindSamples || r.Timing.UnitInterval <= 0 {
		return false
	}
	return r.Timing.Per(*r.Sampling) < MinSamplesPerUnit
}

// Stream returns the stream decoded from channel.
func (r *Result) Stream(channel string) (Stream, bool) {
	for _, s := range r.Streams {
		if s.Channel == channel {
			return s, true
		}
	}
	return Stream{}, false
}

// Len is the total number of decoded bytes over all streams.
func (r *Result) Len() int {
	n := 0
	for _, s := range r.Streams {
		n += len(s.Bytes)
	}
	return n
}

// EventKind discriminates Event.
type EventKind uint8

const (
	EventByte EventKind = iota
	EventStart
	EventStop
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "START"
	case EventStop:
		return "STOP"
	}
	return "BYTE"
}

// Event is one entry of the time-ordered view of a result.
type Event struct {
	Time    int64
	Kind    EventKind
	Channel string
	Byte    Byte
}

func (e Event) String() string {
	if e.Kind != EventByte {
		return fmt.Sprintf("%d %s", e.Time, e.Kind)
	}
	return fmt.Sprintf("%d %s 0x%02X", e.Time, e.Channel, e.Byte.Value)
}

// Events merges all streams and markers by time. At equal times markers
// come first, then streams in result order.
func (r *Result) Events() []Event {
	out := make([]Event, 0, len(r.Markers))
	for _, m := range r.Markers {
		k := EventStart
		if m.Kind == Stop {
			k = EventStop
		}
		out = append(out, Event{Time: m.Time, Kind: k})
	}
	for _, s := range r.Streams {
		evs := make([]Event, len(s.Bytes))
		for i, b := range s.Bytes {
			evs[i] = Event{Time: b.Time, Kind: EventByte, Channel: s.Channel, Byte: b}
		}
		out = mergeEvents(out, evs)
	}
	return out
}

// mergeEvents merges two time-ordered slices; a wins ties.
func mergeEvents(a, b []Event) []Event {
	out := make([]Event, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i].Time <= b[j].Time {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}
