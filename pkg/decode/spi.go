package decode

import "github.com/OpenTraceLab/OpenTraceDecode/pkg/trace"

type spiDecoder struct {
	session
	p SPI
}

func newSPIDecoder(cfg Config, p SPI) *spiDecoder {
	return &spiDecoder{session: newSession(cfg), p: p}
}

// SampleEdge returns the clock edge on which data is valid for the given
// clock polarity and phase (SPI modes 0-3).
func SampleEdge(polarity, phase int) trace.Edge {
	if polarity == 0 {
		if phase == 0 {
			return trace.Rising
		}
		return trace.Falling
	}
	if phase == 0 {
		return trace.Falling
	}
	return trace.Rising
}

func (d *spiDecoder) Decode(set *trace.Set) (*Result, error) {
	traces, err := d.lookup(set, d.p.Inputs()...)
	if err != nil {
		return nil, err
	}
	clk := traces[0]
	res, err := d.newResult(clk)
	if err != nil {
		return nil, err
	}

	anchors := clockAnchors(clk, SampleEdge(d.p.Polarity, d.p.Phase))
	data := traces[1:]
	roles := make([]string, 0, 2)
	if d.p.MOSI != "" {
		roles = append(roles, "MOSI")
	}
	if d.p.MISO != "" {
		roles = append(roles, "MISO")
	}
	for i, tr := range data {
		res.Streams = append(res.Streams, Stream{
			Channel: tr.Channel(),
			Role:    roles[i],
			Bytes:   sampleClocked(tr, anchors),
		})
	}
	return res, nil
}

// clockAnchors returns the times of every edge e on clk, in order.
func clockAnchors(clk *trace.Trace, e trace.Edge) []int64 {
	var out []int64
	for _, t := range clk.Transitions() {
		if t.Edge == e {
			out = append(out, t.Time)
		}
	}
	return out
}

// sampleClocked reads one bit of data at each anchor and groups them MSB
// first into bytes. A trailing partial byte is dropped.
func sampleClocked(data *trace.Trace, anchors []int64) []Byte {
	var (
		acc msbAccumulator
		out []Byte
	)
	for _, at := range anchors {
		if v, first, ok := acc.push(data.LevelAt(at), at); ok {
			out = append(out, Byte{Value: v, Time: first, Valid: true})
		}
	}
	return out
}
