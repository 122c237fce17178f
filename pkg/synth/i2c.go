package synth

// I2C describes a synthetic I2C master. Both lines idle high.
type I2C struct {
	Clock, Data string

	// Period is the SCL period in ticks; Start the time of the first step.
	Period int64
	Start  int64

	// Acks appends an acknowledge clock after every byte. The bit is low
	// (ACK) except after the last byte of a transaction when NackLast is set.
	Acks     bool
	NackLast bool
}

// Encode sends each message as one START ... STOP transaction and returns
// the SCL and SDA waveforms.
func (c I2C) Encode(msgs ...[]byte) []Waveform {
	bits := make([][]uint8, len(msgs))
	for m, msg := range msgs {
		for i, v := range msg {
			for k := 7; k >= 0; k-- {
				bits[m] = append(bits[m], v>>k&1)
			}
			if c.Acks {
				ack := uint8(0)
				if c.NackLast && i == len(msg)-1 {
					ack = 1
				}
				bits[m] = append(bits[m], ack)
			}
		}
	}
	return c.EncodeBits(bits...)
}

// EncodeBits clocks raw bit sequences, one transaction each, with no
// acknowledge bits added. It can produce partial bytes.
func (c I2C) EncodeBits(txs ...[]uint8) []Waveform {
	// The grid is a quarter SCL period.
	unit := float64(c.Period) / 4
	scl := &builder{origin: c.Start, unit: unit}
	sda := &builder{origin: c.Start, unit: unit}
	step := func(sclLevel, sdaLevel uint8) {
		scl.hold(sclLevel, 1)
		sda.hold(sdaLevel, 1)
	}

	step(1, 1)
	step(1, 1)
	for _, bits := range txs {
		// START: SDA falls while SCL is high.
		step(1, 0)
		data := uint8(0)
		for _, bit := range bits {
			step(0, data)
			data = bit
			step(0, data)
			step(1, data)
			step(1, data)
		}
		// STOP: SDA rises while SCL is high.
		step(0, data)
		step(0, 0)
		step(1, 0)
		step(1, 1)
		step(1, 1)
		step(1, 1)
	}
	return []Waveform{scl.wave(c.Clock), sda.wave(c.Data)}
}
