package decode

import "github.com/OpenTraceLab/OpenTraceDecode/pkg/trace"

type i2cDecoder struct {
	session
	p I2C
}

func newI2CDecoder(cfg Config, p I2C) *i2cDecoder {
	return &i2cDecoder{session: newSession(cfg), p: p}
}

func (d *i2cDecoder) Decode(set *trace.Set) (*Result, error) {
	traces, err := d.lookup(set, d.p.Clock, d.p.Data)
	if err != nil {
		return nil, err
	}
	scl, sda := traces[0], traces[1]
	res, err := d.newResult(scl)
	if err != nil {
		return nil, err
	}

	res.Markers = busConditions(scl, sda)
	anchors := clockAnchors(scl, trace.Rising)

	var bytes []Byte
	if d.p.Acks {
		bytes = sampleFramed(sda, anchors, res.Markers)
	} else {
		bytes = sampleClocked(sda, anchors)
	}
	res.Streams = []Stream{{Channel: sda.Channel(), Role: "SDA", Bytes: bytes}}
	return res, nil
}

// busConditions classifies SDA edges that occur while SCL is high.
func busConditions(scl, sda *trace.Trace) []Marker {
	var out []Marker
	for _, e := range sda.Transitions() {
		if scl.LevelAt(e.Time) == 1 {
			out = append(out, Marker{Kind: classifyCondition(e.Edge), Time: e.Time})
		}
	}
	return out
}

// sampleFramed is sampleClocked with byte framing: every ninth clock is the
// acknowledge bit and bus conditions restart the bit count.
func sampleFramed(sda *trace.Trace, anchors []int64, markers []Marker) []Byte {
	var (
		acc     msbAccumulator
		out     []Byte
		needAck bool
		mi      int
	)
	for _, at := range anchors {
		for mi < len(markers) && markers[mi].Time <= at {
			acc.reset()
			needAck = false
			mi++
		}
		bit := sda.LevelAt(at)
		if needAck {
			out[len(out)-1].Ack = Nacked
			if bit == 0 {
				out[len(out)-1].Ack = Acked
			}
			needAck = false
			continue
		}
		if v, first, ok := acc.push(bit, at); ok {
			out = append(out, Byte{Value: v, Time: first, Valid: true})
			needAck = true
		}
	}
	return out
}
