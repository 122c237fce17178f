package capture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/OpenTraceLab/OpenTraceDecode/pkg/trace"
)

// Format is the capture style of a probe stream or trace file.
type Format uint8

const (
	// FormatEdges is the interrupt-driven firmware: one packet per edge.
	FormatEdges Format = iota + 1
	// FormatSamples is the polling firmware: one packet per timer tick.
	FormatSamples
)

func (f Format) String() string {
	switch f {
	case FormatEdges:
		return "edges"
	case FormatSamples:
		return "samples"
	}
	return fmt.Sprintf("Format(%d)", f)
}

// ParseFormat accepts edges/interrupt and samples/polling.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "edges", "edge", "interrupt":
		return FormatEdges, nil
	case "samples", "sample", "polling":
		return FormatSamples, nil
	}
	return 0, fmt.Errorf("capture: unknown format %q (want edges or samples)", s)
}

// TickRate is the probe timer frequency for the format: the edge firmware
// runs a 5.14 MHz timer, the polling firmware counts at the 72 MHz core
// clock.
func (f Format) TickRate() int64 {
	if f == FormatSamples {
		return 72_000_000
	}
	return 5_140_000
}

// PacketSize is the wire size of one probe packet.
func (f Format) PacketSize() int {
	if f == FormatSamples {
		return SamplePacketSize
	}
	return EdgePacketSize
}

const (
	EdgePacketSize   = 4
	SamplePacketSize = 5

	// MaxChannels is the number of probe inputs.
	MaxChannels = 4

	// EdgeTimeBits is the width of the edge packet timestamp.
	EdgeTimeBits = 29
	edgeTimeMask = 1<<EdgeTimeBits - 1
)

var (
	ErrShortPacket = errors.New("capture: short packet")
	ErrBadChannel  = errors.New("capture: channel out of range")
)

// EdgeEvent is one decoded edge packet.
type EdgeEvent struct {
	Channel uint8
	Edge    trace.Edge
	Time    uint32 // 29-bit timer value
}

// EncodeEdge packs e as edge<<31 | channel<<29 | time, little endian, with
// edge bit 1 for a rising edge.
func EncodeEdge(dst []byte, e EdgeEvent) error {
	if len(dst) < EdgePacketSize {
		return ErrShortPacket
	}
	if e.Channel >= MaxChannels {
		return fmt.Errorf("%w: %d", ErrBadChannel, e.Channel)
	}
	v := uint32(e.Channel)<<EdgeTimeBits | e.Time&edgeTimeMask
	if e.Edge == trace.Rising {
		v |= 1 << 31
	}
	binary.LittleEndian.PutUint32(dst, v)
	return nil
}

// DecodeEdge unpacks an edge packet.
func DecodeEdge(b []byte) (EdgeEvent, error) {
	if len(b) < EdgePacketSize {
		return EdgeEvent{}, ErrShortPacket
	}
	v := binary.LittleEndian.Uint32(b)
	e := EdgeEvent{
		Channel: uint8(v >> EdgeTimeBits & 0x3),
		Edge:    trace.Falling,
		Time:    v & edgeTimeMask,
	}
	if v>>31 == 1 {
		e.Edge = trace.Rising
	}
	return e, nil
}

// SampleEvent is one polling packet: a timestamp and a level bitmask with
// bit n holding channel n.
type SampleEvent struct {
	Time   uint32
	Levels uint8
}

// Level returns the level of channel ch.
func (s SampleEvent) Level(ch int) uint8 {
	return s.Levels >> ch & 1
}

// EncodeSample packs s as a little-endian uint32 time and the bitmask.
func EncodeSample(dst []byte, s SampleEvent) error {
	if len(dst) < SamplePacketSize {
		return ErrShortPacket
	}
	binary.LittleEndian.PutUint32(dst, s.Time)
	dst[4] = s.Levels
	return nil
}

// DecodeSample unpacks a polling packet.
func DecodeSample(b []byte) (SampleEvent, error) {
	if len(b) < SamplePacketSize {
		return SampleEvent{}, ErrShortPacket
	}
	return SampleEvent{Time: binary.LittleEndian.Uint32(b), Levels: b[4]}, nil
}
