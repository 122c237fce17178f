package decode

import "github.com/OpenTraceLab/OpenTraceDecode/pkg/trace"

const (
	// idleFactor is the minimum quiet time before a start bit, in unit intervals.
	idleFactor = 0.8
	// pulseFactor is the minimum start-bit low time, in unit intervals.
	pulseFactor = 0.5
)

type uartDecoder struct {
	session
	p UART
}

func newUARTDecoder(cfg Config, p UART) *uartDecoder {
	return &uartDecoder{session: newSession(cfg), p: p}
}

func (d *uartDecoder) Decode(set *trace.Set) (*Result, error) {
	lines, err := d.lookup(set, d.p.Lines...)
	if err != nil {
		return nil, err
	}
	res, err := d.newResult(lines[0])
	if err != nil {
		return nil, err
	}
	for _, tr := range lines {
		res.Streams = append(res.Streams, Stream{
			Channel: tr.Channel(),
			Bytes:   d.decodeLine(tr),
		})
	}
	return res, nil
}

func (d *uartDecoder) decodeLine(tr *trace.Trace) []Byte {
	var out []Byte
	for _, anchor := range d.anchors(tr) {
		f := sampleUART(tr, anchor, d.unit, d.p)
		defects := checkUART(d.p, f)
		out = append(out, Byte{
			Value:   composeLSB(f.data),
			Time:    anchor,
			Valid:   defects == 0,
			Defects: defects,
		})
	}
	return out
}

// anchors returns the start-bit falling edges of tr in time order. A falling
// edge starts a frame when the line was quiet for idleFactor unit intervals
// since the previous falling edge and stays low for at least pulseFactor.
// Edges before the last stop-bit sample of an accepted frame belong to
// that frame.
func (d *uartDecoder) anchors(tr *trace.Trace) []int64 {
	edges := tr.Transitions()
	minIdle := idleFactor * d.unit.UnitInterval
	minLow := pulseFactor * d.unit.UnitInterval
	span := d.unit.Offset(d.p.frameUnits())

	var (
		out      []int64
		prevFall int64
		havePrev bool
		busy     bool
		busyTo   int64
	)
	for i, e := range edges {
		if e.Edge != trace.Falling {
			continue
		}
		idle := quietBefore(tr, e.Time, prevFall, havePrev, minIdle)
		prevFall, havePrev = e.Time, true

		if busy && e.Time <= busyTo {
			continue
		}
		if !idle || float64(lowWidth(tr, edges[i+1:], e.Time)) < minLow {
			continue
		}
		out = append(out, e.Time)
		busy, busyTo = true, e.Time+span
	}
	return out
}

// quietBefore applies the idle-gap rule. With no previous falling edge a
// sample trace measures from its first sample; an edge trace has nothing
// observable before its first edge and passes.
func quietBefore(tr *trace.Trace, at, prevFall int64, havePrev bool, minIdle float64) bool {
	switch {
	case havePrev:
		return float64(at-prevFall) > minIdle
	case tr.Kind() == trace.KindSamples:
		return float64(at-tr.Start()) > minIdle
	default:
		return true
	}
}

// lowWidth is the time from a falling edge to the next rising edge, or to
// the end of the trace when the line never rises again.
func lowWidth(tr *trace.Trace, after []trace.Transition, at int64) int64 {
	for _, e := range after {
		if e.Edge == trace.Rising {
			return e.Time - at
		}
	}
	return tr.End() - at
}
