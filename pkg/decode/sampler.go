package decode

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceDecode/pkg/timing"
	"github.com/OpenTraceLab/OpenTraceDecode/pkg/trace"
)

// uartState is the per-frame UART receiver state. Every frame starts in
// StartDetected and always ends back in Idle, valid or not.
type uartState uint8

const (
	stateIdle uartState = iota
	stateStartDetected
	stateSampling
	stateParity
	stateStopCheck
)

var uartStateNames = map[uartState]string{
	stateIdle:          "Idle",
	stateStartDetected: "StartDetected",
	stateSampling:      "Sampling",
	stateParity:        "Parity",
	stateStopCheck:     "StopCheck",
}

func (s uartState) String() string {
	if name, ok := uartStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("uartState(%d)", s)
}

// uartFrame holds the raw levels sampled for one UART frame.
type uartFrame struct {
	anchor int64
	data   []uint8 // in wire order, LSB first
	parity []uint8 // empty without parity
	stop   []uint8
}

// sampleUART walks the receiver state machine for the frame anchored at
// the start-bit falling edge, sampling every bit at its centre.
func sampleUART(tr *trace.Trace, anchor int64, unit timing.Model, p UART) uartFrame {
	f := uartFrame{
		anchor: anchor,
		data:   make([]uint8, 0, p.DataBits),
		stop:   make([]uint8, 0, p.StopBits),
	}
	at := func(units float64) uint8 { return tr.LevelAt(anchor + unit.Offset(units)) }

	// The start bit occupies [0,1); bit i of the payload is centred on 1.5+i.
	pos := 1.5
	for state := stateStartDetected; state != stateIdle; {
		switch state {
		case stateStartDetected:
			state = stateSampling
		case stateSampling:
			f.data = append(f.data, at(pos))
			pos++
			if len(f.data) < p.DataBits {
				continue
			}
			state = stateStopCheck
			if p.Parity.Bits() > 0 {
				state = stateParity
			}
		case stateParity:
			f.parity = append(f.parity, at(pos))
			pos++
			state = stateStopCheck
		case stateStopCheck:
			for k := 0; k < p.StopBits; k++ {
				f.stop = append(f.stop, at(pos))
				pos++
			}
			state = stateIdle
		}
	}
	return f
}

// composeLSB packs bits with bits[0] as the least significant bit.
func composeLSB(bits []uint8) byte {
	var v byte
	for i, b := range bits {
		v |= (b & 1) << i
	}
	return v
}

// composeMSB packs bits with bits[0] as the most significant bit.
func composeMSB(bits []uint8) byte {
	var v byte
	for _, b := range bits {
		v = v<<1 | b&1
	}
	return v
}

// msbAccumulator collects clocked bits MSB first and yields a byte every
// eighth bit. Leftover bits are never emitted.
type msbAccumulator struct {
	bits  [8]uint8
	n     int
	first int64
}

func (a *msbAccumulator) push(bit uint8, at int64) (byte, int64, bool) {
	if a.n == 0 {
		a.first = at
	}
	a.bits[a.n] = bit
	a.n++
	if a.n < len(a.bits) {
		return 0, 0, false
	}
	a.n = 0
	return composeMSB(a.bits[:]), a.first, true
}

func (a *msbAccumulator) reset() { a.n = 0 }

// pending reports how many bits are waiting for a full byte.
func (a *msbAccumulator) pending() int { return a.n }
