package decode

import (
	"fmt"
	"strings"

	"github.com/OpenTraceLab/OpenTraceDecode/pkg/timing"
)

// Kind identifies a serial protocol.
type Kind uint8

const (
	KindUART Kind = iota + 1
	KindSPI
	KindI2C
)

var kindNames = map[Kind]string{
	KindUART: "UART",
	KindSPI:  "SPI",
	KindI2C:  "I2C",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// ParseKind accepts protocol names in any case.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if strings.EqualFold(s, name) {
			return k, nil
		}
	}
	return 0, &ConfigError{Field: "protocol", Reason: fmt.Sprintf("unknown protocol %q (supported: uart, spi, i2c)", s)}
}

// Parity selects the UART parity mode.
type Parity byte

const (
	ParityNone Parity = 'N'
	ParityEven Parity = 'E'
	ParityOdd  Parity = 'O'
)

func (p Parity) String() string {
	switch p {
	case ParityNone:
		return "none"
	case ParityEven:
		return "even"
	case ParityOdd:
		return "odd"
	}
	return fmt.Sprintf("Parity(%q)", byte(p))
}

// Bits is the number of parity bits in a frame.
func (p Parity) Bits() int {
	if p == ParityEven || p == ParityOdd {
		return 1
	}
	return 0
}

// ParseParity accepts none/even/odd or their initials.
func ParseParity(s string) (Parity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "n", "none":
		return ParityNone, nil
	case "e", "even":
		return ParityEven, nil
	case "o", "odd":
		return ParityOdd, nil
	}
	return 0, &ConfigError{Field: "parity", Reason: fmt.Sprintf("unknown parity %q (want none, even or odd)", s)}
}

// Protocol is the per-protocol half of a decode configuration. It is
// implemented by UART, SPI and I2C only.
type Protocol interface {
	Kind() Kind
	// Inputs lists the channels the protocol reads.
	Inputs() []string
	validate(rate int64) error
	build(cfg Config) Decoder
}

// UART decodes each listed line independently (typically RX and TX).
type UART struct {
	Lines    []string
	DataBits int
	Parity   Parity
	StopBits int
}

// DefaultUART returns the common 8N1 framing for lines.
func DefaultUART(lines ...string) UART {
	return UART{Lines: lines, DataBits: 8, Parity: ParityNone, StopBits: 1}
}

func (UART) Kind() Kind { return KindUART }
func (u UART) Inputs() []string { return append([]string(nil), u.Lines...) }
func (u UART) build(c Config) Decoder { return newUARTDecoder(c, u) }

func (u UART) validate(rate int64) error {
	if rate <= 0 {
		return &ConfigError{Field: "nominal_rate", Reason: fmt.Sprintf("baud rate must be positive, got %d", rate)}
	}
	if len(u.Lines) == 0 {
		return &ConfigError{Field: "channel", Reason: "uart needs at least one line channel"}
	}
	if u.DataBits < 5 || u.DataBits > 8 {
		return &ConfigError{Field: "data_bits", Reason: fmt.Sprintf("must be 5..8, got %d", u.DataBits)}
	}
	switch u.Parity {
	case ParityNone, ParityEven, ParityOdd:
	default:
		return &ConfigError{Field: "parity", Reason: fmt.Sprintf("unknown parity %s", u.Parity)}
	}
	if u.StopBits != 1 && u.StopBits != 2 {
		return &ConfigError{Field: "stop_bits", Reason: fmt.Sprintf("must be 1 or 2, got %d", u.StopBits)}
	}
	return uniqueChannels(u.Lines...)
}

// frameUnits is the offset, in unit intervals, of the last stop-bit sample.
func (u UART) frameUnits() float64 {
	return 1.5 + float64(u.DataBits+u.Parity.Bits()+u.StopBits-1)
}

// SPI samples MOSI and/or MISO on the clock edge selected by the mode.
type SPI struct {
	Clock    string
	MOSI     string
	MISO     string
	Polarity int // CPOL: 0 idle low, 1 idle high
	Phase    int // CPHA: 0 sample on leading edge, 1 on trailing edge
}

func (SPI) Kind() Kind { return KindSPI }
func (s SPI) build(c Config) Decoder { return newSPIDecoder(c, s) }

func (s SPI) Inputs() []string {
	in := []string{s.Clock}
	for _, ch := range []string{s.MOSI, s.MISO} {
		if ch != "" {
			in = append(in, ch)
		}
	}
	return in
}

func (s SPI) validate(rate int64) error {
	if rate < 0 {
		return &ConfigError{Field: "nominal_rate", Reason: fmt.Sprintf("clock rate must not be negative, got %d", rate)}
	}
	if s.Clock == "" {
		return &ConfigError{Field: "clk", Reason: "spi needs a clock channel"}
	}
	if s.MOSI == "" && s.MISO == "" {
		return &ConfigError{Field: "mosi", Reason: "spi needs a MOSI or MISO channel"}
	}
	if s.Polarity != 0 && s.Polarity != 1 {
		return &ConfigError{Field: "clock_polarity", Reason: fmt.Sprintf("must be 0 or 1, got %d", s.Polarity)}
	}
	if s.Phase != 0 && s.Phase != 1 {
		return &ConfigError{Field: "clock_phase", Reason: fmt.Sprintf("must be 0 or 1, got %d", s.Phase)}
	}
	return uniqueChannels(s.Inputs()...)
}

// I2C samples SDA on every SCL rising edge.
type I2C struct {
	Clock string
	Data  string

	// Acks reads the ninth clock of every byte as ACK/NACK and restarts bit
	// counting at START/STOP. When false every clock carries a data bit.
	Acks bool
}

func (I2C) Kind() Kind { return KindI2C }
func (i I2C) Inputs() []string { return []string{i.Clock, i.Data} }
func (i I2C) build(c Config) Decoder { return newI2CDecoder(c, i) }

func (i I2C) validate(rate int64) error {
	if rate < 0 {
		return &ConfigError{Field: "nominal_rate", Reason: fmt.Sprintf("clock rate must not be negative, got %d", rate)}
	}
	if i.Clock == "" {
		return &ConfigError{Field: "scl", Reason: "i2c needs a clock channel"}
	}
	if i.Data == "" {
		return &ConfigError{Field: "sda", Reason: "i2c needs a data channel"}
	}
	return uniqueChannels(i.Clock, i.Data)
}

// Config is a complete, validated-before-use decode request.
type Config struct {
	Protocol Protocol

	// NominalRate is the UART baud rate or the SPI/I2C clock in Hz. It is
	// optional (zero) for the clocked protocols.
	NominalRate int64
	// TickRate is the number of trace ticks per second.
	TickRate int64
	// Timing selects whether the sample period is also measured from the
	// trace. The bit timing itself always derives from NominalRate.
	Timing timing.Origin
}

// Validate reports the first configuration problem as a *ConfigError.
func (c Config) Validate() error {
	if c.Protocol == nil {
		return &ConfigError{Field: "protocol", Reason: "no protocol selected"}
	}
	if c.TickRate <= 0 {
		return &ConfigError{Field: "tick_rate", Reason: fmt.Sprintf("must be positive, got %d", c.TickRate)}
	}
	if c.Timing != timing.Nominal && c.Timing != timing.Measured {
		return &ConfigError{Field: "timing", Reason: fmt.Sprintf("unknown mode %d", c.Timing)}
	}
	return c.Protocol.validate(c.NominalRate)
}

func (c Config) String() string {
	switch p := c.Protocol.(type) {
	case UART:
		return fmt.Sprintf("UART %v %d baud %d%c%d", p.Lines, c.NominalRate, p.DataBits, byte(p.Parity), p.StopBits)
	case SPI:
		return fmt.Sprintf("SPI clk=%s mosi=%s miso=%s mode %d", p.Clock, p.MOSI, p.MISO, p.Polarity<<1|p.Phase)
	case I2C:
		return fmt.Sprintf("I2C scl=%s sda=%s", p.Clock, p.Data)
	}
	return "unconfigured"
}

func uniqueChannels(names ...string) error {
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		if seen[n] {
			return &ConfigError{Field: "channel", Reason: fmt.Sprintf("channel %q assigned to more than one role", n)}
		}
		seen[n] = true
	}
	return nil
}
