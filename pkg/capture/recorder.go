package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/OpenTraceLab/OpenTraceDecode/pkg/trace"
)

// RecorderStats counts what a Recorder has ingested.
type RecorderStats struct {
	Packets int
	// Ignored counts edge packets for unnamed channels and samples that
	// do not advance time. Packets stepping back by less than half the
	// timer range are ignored too.
	Ignored int
	Wraps   int
}

// Recorder accumulates a live packet stream into per-channel traces. Write
// may run on the capture goroutine while Snapshot is called from another.
type Recorder struct {
	mu sync.Mutex

	format  Format
	names   [MaxChannels]string
	session uuid.UUID

	partial []byte
	epoch   int64
	last    int64
	started bool

	edges   [MaxChannels][]trace.Transition
	samples [MaxChannels][]trace.LevelSample

	stats RecorderStats
}

// NewRecorder records format packets. names[i] is the channel name of
// probe input i; inputs with an empty name are dropped.
func NewRecorder(format Format, names ...string) (*Recorder, error) {
	if format != FormatEdges && format != FormatSamples {
		return nil, fmt.Errorf("capture: recorder: %s", format)
	}
	if len(names) > MaxChannels {
		return nil, fmt.Errorf("%w: %d names for %d inputs", ErrBadChannel, len(names), MaxChannels)
	}
	r := &Recorder{format: format, session: uuid.New()}
	seen := map[string]bool{}
	for i, n := range names {
		if n == "" {
			continue
		}
		if seen[n] {
			return nil, fmt.Errorf("capture: recorder: channel %q named twice", n)
		}
		seen[n] = true
		r.names[i] = n
	}
	return r, nil
}

// Session identifies this recording in exported files.
func (r *Recorder) Session() uuid.UUID { return r.session }

func (r *Recorder) Format() Format { return r.format }

// Stats returns the ingestion counters.
func (r *Recorder) Stats() RecorderStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Write ingests raw stream bytes. Packets may be split across writes.
func (r *Recorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := r.format.PacketSize()
	data := p
	if len(r.partial) > 0 {
		data = append(r.partial, p...)
		r.partial = nil
	}
	for len(data) >= size {
		r.ingest(data[:size])
		data = data[size:]
	}
	if len(data) > 0 {
		r.partial = append([]byte(nil), data...)
	}
	return len(p), nil
}

func (r *Recorder) ingest(pkt []byte) {
	r.stats.Packets++
	if r.format == FormatEdges {
		e, _ := DecodeEdge(pkt)
		t, ok := r.unwrap(int64(e.Time), EdgeTimeBits)
		name := r.names[e.Channel]
		if !ok || name == "" {
			r.stats.Ignored++
			return
		}
		r.edges[e.Channel] = append(r.edges[e.Channel], trace.Transition{Edge: e.Edge, Time: t})
		return
	}

	s, _ := DecodeSample(pkt)
	prev, had := r.last, r.started
	t, ok := r.unwrap(int64(s.Time), 32)
	if !ok || had && t <= prev {
		r.stats.Ignored++
		return
	}
	for ch := range r.names {
		if r.names[ch] != "" {
			r.samples[ch] = append(r.samples[ch], trace.LevelSample{Time: t, Level: s.Level(ch)})
		}
	}
}

// unwrap extends a bits-wide timer value into a monotonic timestamp. A drop
// of more than half the timer range is a single overflow. Smaller drops come
// from packets emitted out of order and are reported as not ok.
func (r *Recorder) unwrap(raw int64, bits uint) (int64, bool) {
	t := r.epoch + raw
	if r.started && t < r.last {
		if r.last-t <= 1<<(bits-1) {
			return 0, false
		}
		r.epoch += 1 << bits
		r.stats.Wraps++
		t = r.epoch + raw
	}
	r.last, r.started = t, true
	return t, true
}

// Snapshot copies the traces recorded so far into a set. Channels appear in
// probe input order.
func (r *Recorder) Snapshot() (*trace.Set, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var traces []*trace.Trace
	for ch, name := range r.names {
		if name == "" {
			continue
		}
		var (
			tr  *trace.Trace
			err error
		)
		if r.format == FormatEdges {
			tr, err = trace.NewEdgeTrace(name, append([]trace.Transition(nil), r.edges[ch]...))
		} else {
			tr, err = trace.NewSampleTrace(name, append([]trace.LevelSample(nil), r.samples[ch]...))
		}
		if err != nil {
			return nil, fmt.Errorf("capture: snapshot: %w", err)
		}
		traces = append(traces, tr)
	}
	return trace.NewSet(traces...)
}

// Run copies src into rec until the stream ends or ctx is done. Both are
// normal ends of a capture and return nil.
func Run(ctx context.Context, src Source, rec *Recorder) (int64, error) {
	buf := make([]byte, 4096)
	var total int64
	for {
		n, err := src.Read(ctx, buf)
		if n > 0 {
			rec.Write(buf[:n])
			total += int64(n)
		}
		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF):
			return total, nil
		case ctx.Err() != nil:
			return total, nil
		default:
			return total, err
		}
	}
}
