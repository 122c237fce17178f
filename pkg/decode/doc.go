// Package decode reconstructs UART, SPI and I2C byte streams from logic
// probe traces.
//
// The package is the frame-level half of the decoder. It consumes
// trace.Set values (built by package capture from CSV files or live probe
// packets) and produces a Result holding, per channel, the decoded bytes with
// their anchor timestamps and defect flags.
//
// # Overview
//
// A decode runs through the same stages for every protocol:
//  1. Timing: the unit interval is derived once from the nominal rate
//     (tick_rate / baud). In measured mode the sample period of a polled
//     trace is estimated as well (package timing).
//  2. Synchronization: frame anchors are located in the transition stream.
//  3. Sampling: the trace level is read at the bit instants derived from
//     each anchor and composed into a byte.
//  4. Validation: parity and stop bits are checked; I2C bus conditions are
//     classified.
//
// # Usage
//
//	cfg := decode.Config{
//		Protocol:    decode.DefaultUART("RX"),
//		NominalRate: 9600,
//		TickRate:    72_000_000,
//	}
//	res, err := decode.Decode(set, cfg)
//	if err != nil {
//		return err
//	}
//	rx, _ := res.Stream("RX")
//	fmt.Printf("% X\n", rx.Values())
//
// # UART
//
// A falling edge is a start bit when the line was quiet for 0.8 bit times
// since the previous falling edge and stays low for at least half a bit.
// Data bits are sampled at (1.5+i) bit times from the edge, LSB first,
// followed by the optional parity bit and the stop bits. A frame with a
// parity or stop-bit error is still emitted, flagged, and the receiver
// returns to idle so the next qualifying edge starts a new frame.
//
// # SPI
//
// The sampling edge follows the clock mode: rising for modes 0 and 3,
// falling for modes 1 and 2. MOSI and MISO are read at every sampling edge
// and grouped MSB first, eight clocks per byte. Chip select is not used.
//
// # I2C
//
// SDA is read on every SCL rising edge, MSB first. SDA edges while SCL is
// high are reported as START (falling) and STOP (rising) markers; use
// Result.Events for the time-ordered merge of markers and bytes. With
// I2C.Acks set, the ninth clock of each byte is read as ACK/NACK.
//
// # Errors
//
//   - *ConfigError: the configuration is unusable; returned before decoding.
//   - trace.ErrChannelNotFound: a configured channel is missing from the set.
//   - timing.ErrInsufficientSamples: measured mode could not estimate the
//     sample period; retry in nominal mode.
//
// Frame defects are never errors: see Byte.Defects.
//
// # Concurrency
//
// Decoders are immutable and every Decode call allocates its own Result, so
// one Decoder may be used from several goroutines. DecodeAll runs a list of
// configurations in parallel against one set.
package decode
