// internal/config/decoders.go
package config

import (
	"fmt"
	"strings"

	"github.com/OpenTraceLab/OpenTraceDecode/pkg/decode"
	"github.com/OpenTraceLab/OpenTraceDecode/pkg/descriptor"
	"github.com/OpenTraceLab/OpenTraceDecode/pkg/timing"
)

// DescriptorText returns the decoder in descriptor syntax. An explicit
// descriptor wins over the structured fields.
func (d DecoderConfig) DescriptorText() string {
	if d.Descriptor != "" {
		return d.Descriptor
	}
	var b strings.Builder
	b.WriteString(strings.ToLower(d.Protocol))
	opt := func(k, v string) {
		if v != "" {
			fmt.Fprintf(&b, ":%s=%s", k, v)
		}
	}
	for _, l := range d.Lines {
		opt("line", l)
	}
	opt("rate", d.Rate)
	if d.DataBits != 0 {
		opt("bits", fmt.Sprint(d.DataBits))
	}
	opt("parity", d.Parity)
	if d.StopBits != 0 {
		opt("stop", fmt.Sprint(d.StopBits))
	}
	opt("clk", d.Clock)
	opt("mosi", d.MOSI)
	opt("miso", d.MISO)
	if d.Mode != nil {
		opt("mode", fmt.Sprint(*d.Mode))
	}
	opt("sda", d.Data)
	if d.Acks {
		opt("acks", "1")
	}
	return b.String()
}

// DecodeConfigs builds validated decode configurations for every decoder. The
// tick rate passed in applies where the session leaves it at zero.
func (s SessionConfig) DecodeConfigs(tickRate int64) ([]decode.Config, error) {
	if s.TickRate > 0 {
		tickRate = s.TickRate
	}
	origin, err := timing.ParseOrigin(s.Timing)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	p, err := descriptor.NewParser()
	if err != nil {
		return nil, err
	}
	def := descriptor.Defaults{TickRate: tickRate, Timing: origin}
	out := make([]decode.Config, 0, len(s.Decoders))
	for i, d := range s.Decoders {
		cfgs, err := p.Parse(d.DescriptorText(), def)
		if err != nil {
			return nil, fmt.Errorf("config: decoder %s: %w", d.label(i), err)
		}
		out = append(out, cfgs...)
	}
	return out, nil
}

func (d DecoderConfig) label(i int) string {
	if d.Name != "" {
		return fmt.Sprintf("%q", d.Name)
	}
	return fmt.Sprintf("#%d", i)
}
