// Package descriptor parses compact decoder descriptors into decode
// configurations, for command lines and session files.
//
// A descriptor is a protocol name followed by colon separated options:
//
//	uart:rx=RX:tx=TX:baud=115200:bits=8:parity=even:stop=1
//	spi:clk=SCK:mosi=MOSI:miso=MISO:mode=3
//	i2c:scl=SCL:sda=SDA:rate=400k:acks=1
//
// Several descriptors may be joined with ';'. Every protocol also accepts
// tick (ticks per second) and timing (nominal or measured).
package descriptor

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"

	"github.com/OpenTraceLab/OpenTraceDecode/pkg/decode"
	"github.com/OpenTraceLab/OpenTraceDecode/pkg/timing"
)

// Defaults fills options a descriptor leaves out.
type Defaults struct {
	TickRate int64
	Timing   timing.Origin
}

// Parser turns descriptor text into decode configurations.
type Parser struct {
	parser *participle.Parser[List]
}

// NewParser builds the descriptor grammar.
func NewParser() (*Parser, error) {
	p, err := participle.Build[List](
		participle.Lexer(Lexer),
		participle.Elide("Whitespace"),
	)
	if err != nil {
		return nil, fmt.Errorf("descriptor: build parser: %w", err)
	}
	return &Parser{parser: p}, nil
}

// ParseList parses the raw syntax tree without interpreting options.
func (p *Parser) ParseList(input string) (*List, error) {
	list, err := p.parser.ParseString("", input)
	if err != nil {
		return nil, fmt.Errorf("descriptor: %w", err)
	}
	return list, nil
}

// Parse parses input and validates every resulting configuration.
func (p *Parser) Parse(input string, def Defaults) ([]decode.Config, error) {
	list, err := p.ParseList(input)
	if err != nil {
		return nil, err
	}
	out := make([]decode.Config, 0, len(list.Items))
	for _, d := range list.Items {
		cfg, err := d.Config(def)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

// Parse is a convenience wrapper building a one-off Parser.
func Parse(input string, def Defaults) ([]decode.Config, error) {
	p, err := NewParser()
	if err != nil {
		return nil, err
	}
	return p.Parse(input, def)
}

// Config interprets the descriptor's options. The result is validated.
func (d *Descriptor) Config(def Defaults) (decode.Config, error) {
	kind, err := decode.ParseKind(d.Protocol)
	if err != nil {
		return decode.Config{}, fmt.Errorf("descriptor: %s: %w", d.Pos, err)
	}
	cfg := decode.Config{TickRate: def.TickRate, Timing: def.Timing}
	var (
		uart = decode.DefaultUART()
		spi  decode.SPI
		i2c  decode.I2C
	)

	for _, o := range d.Options {
		key := strings.ToLower(o.Key)
		handled := true
		switch key {
		case "tick":
			cfg.TickRate, err = parseRate(o.Value)
		case "timing":
			cfg.Timing, err = timing.ParseOrigin(o.Value)
		case "baud", "rate":
			cfg.NominalRate, err = parseRate(o.Value)
		default:
			handled = false
		}
		if !handled {
			switch kind {
			case decode.KindUART:
				err = uartOption(&uart, key, o.Value)
			case decode.KindSPI:
				err = spiOption(&spi, key, o.Value)
			case decode.KindI2C:
				err = i2cOption(&i2c, key, o.Value)
			}
		}
		if err != nil {
			return decode.Config{}, fmt.Errorf("descriptor: %s: %s=%s: %w", o.Pos, o.Key, o.Value, err)
		}
	}

	switch kind {
	case decode.KindUART:
		cfg.Protocol = uart
	case decode.KindSPI:
		cfg.Protocol = spi
	case decode.KindI2C:
		cfg.Protocol = i2c
	}
	if err := cfg.Validate(); err != nil {
		return decode.Config{}, fmt.Errorf("descriptor: %s: %w", d.Pos, err)
	}
	return cfg, nil
}

func uartOption(u *decode.UART, key, value string) (err error) {
	switch key {
	case "rx", "tx", "line", "ch":
		u.Lines = append(u.Lines, value)
	case "bits", "data_bits":
		u.DataBits, err = strconv.Atoi(value)
	case "parity":
		u.Parity, err = decode.ParseParity(value)
	case "stop", "stop_bits":
		u.StopBits, err = strconv.Atoi(value)
	default:
		return unknownOption(decode.KindUART, key)
	}
	return err
}

func spiOption(s *decode.SPI, key, value string) (err error) {
	switch key {
	case "clk", "sck":
		s.Clock = value
	case "mosi":
		s.MOSI = value
	case "miso":
		s.MISO = value
	case "cpol":
		s.Polarity, err = strconv.Atoi(value)
	case "cpha":
		s.Phase, err = strconv.Atoi(value)
	case "mode":
		var m int
		if m, err = strconv.Atoi(value); err == nil {
			if m < 0 || m > 3 {
				return fmt.Errorf("spi mode must be 0..3")
			}
			s.Polarity, s.Phase = m>>1, m&1
		}
	default:
		return unknownOption(decode.KindSPI, key)
	}
	return err
}

func i2cOption(c *decode.I2C, key, value string) (err error) {
	switch key {
	case "scl", "clk":
		c.Clock = value
	case "sda":
		c.Data = value
	case "acks", "ack":
		c.Acks, err = strconv.ParseBool(value)
	default:
		return unknownOption(decode.KindI2C, key)
	}
	return err
}

func unknownOption(k decode.Kind, key string) error {
	return fmt.Errorf("unknown %s option %q", k, key)
}

// parseRate accepts plain integers and k/M suffixed values such as 400k or
// 1.5M.
func parseRate(s string) (int64, error) {
	mult := 1.0
	switch {
	case strings.HasSuffix(s, "k"), strings.HasSuffix(s, "K"):
		mult, s = 1e3, s[:len(s)-1]
	case strings.HasSuffix(s, "M"):
		mult, s = 1e6, s[:len(s)-1]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("bad rate %q", s)
	}
	return int64(math.Round(v * mult)), nil
}

// Format renders cfg back into descriptor syntax.
func Format(cfg decode.Config) string {
	var b strings.Builder
	opt := func(k string, v any) { fmt.Fprintf(&b, ":%s=%v", k, v) }
	switch p := cfg.Protocol.(type) {
	case decode.UART:
		b.WriteString("uart")
		for _, l := range p.Lines {
			opt("line", l)
		}
		opt("baud", cfg.NominalRate)
		opt("bits", p.DataBits)
		opt("parity", p.Parity)
		opt("stop", p.StopBits)
	case decode.SPI:
		b.WriteString("spi")
		opt("clk", p.Clock)
		if p.MOSI != "" {
			opt("mosi", p.MOSI)
		}
		if p.MISO != "" {
			opt("miso", p.MISO)
		}
		opt("mode", p.Polarity<<1|p.Phase)
	case decode.I2C:
		b.WriteString("i2c")
		opt("scl", p.Clock)
		opt("sda", p.Data)
		if p.Acks {
			opt("acks", 1)
		}
	default:
		return ""
	}
	if _, ok := cfg.Protocol.(decode.UART); !ok && cfg.NominalRate > 0 {
		opt("rate", cfg.NominalRate)
	}
	opt("tick", cfg.TickRate)
	if cfg.Timing == timing.Measured {
		opt("timing", cfg.Timing)
	}
	return b.String()
}
