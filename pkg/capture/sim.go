package capture

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/OpenTraceLab/OpenTraceDecode/pkg/trace"
)

// SimSource replays a trace set as the packet stream a probe would send.
// Channels map to probe inputs in set order.
type SimSource struct {
	buf   []byte
	off   int
	chunk int
	info  InterfaceInfo
}

// simChunk mimics the probe's USB full-speed bulk packet size.
const simChunk = 64

// NewSimSource encodes set in format. Edge streams carry every transition;
// sample streams poll the set every period ticks from time zero, where the
// probe timer starts, to the end of the set.
// Timestamps are truncated to the packet width, so long captures wrap like
// the hardware timer does.
func NewSimSource(set *trace.Set, format Format, period int64) (*SimSource, error) {
	names := set.Channels()
	if len(names) > MaxChannels {
		return nil, fmt.Errorf("%w: %d channels, probe has %d", ErrBadChannel, len(names), MaxChannels)
	}
	traces := make([]*trace.Trace, len(names))
	for i, n := range names {
		traces[i], _ = set.Lookup(n)
	}

	s := &SimSource{
		chunk: simChunk,
		info:  InterfaceInfo{Kind: InterfaceKindSim, Description: "Simulator (no hardware)"},
	}
	switch format {
	case FormatEdges:
		s.buf = encodeEdgeStream(traces)
	case FormatSamples:
		if period <= 0 {
			return nil, fmt.Errorf("capture: simulator sample period must be positive, got %d", period)
		}
		s.buf = encodeSampleStream(set, traces, period)
	default:
		return nil, fmt.Errorf("capture: simulator: %s", format)
	}
	return s, nil
}

func encodeEdgeStream(traces []*trace.Trace) []byte {
	type ev struct {
		ch uint8
		tr trace.Transition
	}
	var evs []ev
	for i, tr := range traces {
		for _, e := range tr.Transitions() {
			evs = append(evs, ev{ch: uint8(i), tr: e})
		}
	}
	sort.SliceStable(evs, func(i, j int) bool { return evs[i].tr.Time < evs[j].tr.Time })

	buf := make([]byte, len(evs)*EdgePacketSize)
	for i, e := range evs {
		// Channel and buffer size are checked above.
		_ = EncodeEdge(buf[i*EdgePacketSize:], EdgeEvent{Channel: e.ch, Edge: e.tr.Edge, Time: uint32(e.tr.Time)})
	}
	return buf
}

func encodeSampleStream(set *trace.Set, traces []*trace.Trace, period int64) []byte {
	start, end := set.Span()
	if start > 0 {
		start = 0
	}
	var buf []byte
	pkt := make([]byte, SamplePacketSize)
	for t := start; t <= end; t += period {
		var levels uint8
		for i, tr := range traces {
			levels |= tr.LevelAt(t) << i
		}
		_ = EncodeSample(pkt, SampleEvent{Time: uint32(t), Levels: levels})
		buf = append(buf, pkt...)
	}
	return buf
}

func (s *SimSource) Info() InterfaceInfo { return s.info }

// Read returns at most one USB-sized chunk per call, then io.EOF.
func (s *SimSource) Read(ctx context.Context, p []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.off >= len(s.buf) {
		return 0, io.EOF
	}
	end := s.off + s.chunk
	if end > len(s.buf) {
		end = len(s.buf)
	}
	n := copy(p, s.buf[s.off:end])
	s.off += n
	return n, nil
}

// Len is the total stream size in bytes.
func (s *SimSource) Len() int { return len(s.buf) }

func (s *SimSource) Close() error { return nil }
