// internal/config/normalize.go
package config

import (
	"fmt"
	"strings"

	"github.com/OpenTraceLab/OpenTraceDecode/pkg/capture"
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	s := &cfg.Session
	if s.OutputDir == "" {
		s.OutputDir = "."
	}
	if s.Timing == "" {
		s.Timing = "nominal"
	}
	for i := range s.Decoders {
		d := &s.Decoders[i]
		if d.Name == "" {
			proto := d.Protocol
			if proto == "" {
				proto, _, _ = strings.Cut(d.Descriptor, ":")
			}
			d.Name = fmt.Sprintf("%s-%d", strings.ToLower(strings.TrimSpace(proto)), i)
		}
	}

	c := &cfg.Capture
	if c.Format == "" {
		c.Format = capture.FormatEdges.String()
	}
	if c.Baud == 0 {
		c.Baud = capture.DefaultSerialBaud
	}
	if len(c.Channels) == 0 {
		c.Channels = []string{"CH0", "CH1", "CH2", "CH3"}
	}
}
