package synth

// SPI describes a synthetic SPI master. Data lines idle high.
type SPI struct {
	Clock, MOSI, MISO string
	Polarity, Phase   int

	// Period is the clock period in ticks; Start the time of the first step.
	Period int64
	Start  int64
}

// Encode clocks mosi and miso out MSB first and returns the clock waveform
// followed by the MOSI and MISO waveforms for the channels that are set.
// The shorter payload is padded with 0xFF.
func (s SPI) Encode(mosi, miso []byte) []Waveform {
	n := len(mosi)
	if len(miso) > n {
		n = len(miso)
	}
	unit := float64(s.Period) / 2
	idle := uint8(s.Polarity & 1)
	clk := &builder{origin: s.Start, unit: unit}
	mo := &builder{origin: s.Start, unit: unit}
	mi := &builder{origin: s.Start, unit: unit}

	clk.hold(idle, 2)
	mo.hold(1, 2)
	mi.hold(1, 2)
	for i := 0; i < n; i++ {
		a, b := byteAt(mosi, i), byteAt(miso, i)
		for k := 7; k >= 0; k-- {
			// Each bit is one period: two half-period cells. Data is driven at
			// the start of the period; with phase 0 the first clock edge
			// falls mid-period, with phase 1 at its start.
			mo.hold(a>>k&1, 2)
			mi.hold(b>>k&1, 2)
			if s.Phase == 0 {
				clk.hold(idle, 1)
				clk.hold(idle^1, 1)
			} else {
				clk.hold(idle^1, 1)
				clk.hold(idle, 1)
			}
		}
	}
	clk.hold(idle, 2)
	mo.hold(1, 2)
	mi.hold(1, 2)

	out := []Waveform{clk.wave(s.Clock)}
	if s.MOSI != "" {
		out = append(out, mo.wave(s.MOSI))
	}
	if s.MISO != "" {
		out = append(out, mi.wave(s.MISO))
	}
	return out
}

func byteAt(b []byte, i int) byte {
	if i < len(b) {
		return b[i]
	}
	return 0xFF
}
