package synth

import "github.com/OpenTraceLab/OpenTraceDecode/pkg/decode"

// UART describes a synthetic UART transmitter.
type UART struct {
	Channel  string
	TickRate int64
	Baud     int64
	DataBits int
	Parity   decode.Parity
	StopBits int

	// Start is the time of the first step. Lead and Gap are idle time, in
	// bit times, before the first frame and between frames.
	Start int64
	Lead  float64
	Gap   float64

	// BadStop and BadParity list frame indices whose first stop bit is
	// driven low or whose parity bit is inverted.
	BadStop   []int
	BadParity []int
}

// NewUART returns an 8N1 transmitter with two idle bit times around frames.
func NewUART(channel string, tickRate, baud int64) UART {
	return UART{
		Channel:  channel,
		TickRate: tickRate,
		Baud:     baud,
		DataBits: 8,
		Parity:   decode.ParityNone,
		StopBits: 1,
		Lead:     2,
		Gap:      2,
	}
}

// UnitInterval is the bit time in ticks.
func (u UART) UnitInterval() float64 {
	return float64(u.TickRate) / float64(u.Baud)
}

// Encode transmits data and returns the line waveform. Frame i starts at
// StartOf(i).
func (u UART) Encode(data []byte) Waveform {
	b := &builder{origin: u.Start, unit: u.UnitInterval()}
	b.hold(1, u.Lead)
	for i, v := range data {
		b.hold(0, 1)
		ones := 0
		for k := 0; k < u.DataBits; k++ {
			bit := v >> k & 1
			ones += int(bit)
			b.hold(bit, 1)
		}
		if u.Parity.Bits() > 0 {
			p := uint8(ones & 1)
			if u.Parity == decode.ParityOdd {
				p ^= 1
			}
			if contains(u.BadParity, i) {
				p ^= 1
			}
			b.hold(p, 1)
		}
		for k := 0; k < u.StopBits; k++ {
			level := uint8(1)
			if k == 0 && contains(u.BadStop, i) {
				level = 0
			}
			b.hold(level, 1)
		}
		b.hold(1, u.Gap)
	}
	b.hold(1, 0)
	return b.wave(u.Channel)
}

// StartOf is the start-bit edge time of frame i.
func (u UART) StartOf(i int) int64 {
	frame := float64(1+u.DataBits+u.Parity.Bits()+u.StopBits) + u.Gap
	b := builder{origin: u.Start, unit: u.UnitInterval(), pos: u.Lead + float64(i)*frame}
	return b.now()
}

func contains(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
