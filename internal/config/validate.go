// internal/config/validate.go
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/OpenTraceLab/OpenTraceDecode/pkg/capture"
	"github.com/OpenTraceLab/OpenTraceDecode/pkg/descriptor"
	"github.com/OpenTraceLab/OpenTraceDecode/pkg/timing"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: empty configuration")
	}
	if err := validateSession(&cfg.Session); err != nil {
		return err
	}
	return validateCapture(&cfg.Capture)
}

func validateSession(s *SessionConfig) error {
	for _, in := range s.Inputs {
		if !doublestar.ValidatePattern(filepath.ToSlash(in)) {
			return fmt.Errorf("session: input %q is not a valid pattern", in)
		}
	}
	if s.TickRate < 0 {
		return fmt.Errorf("session: tick_rate must not be negative, got %d", s.TickRate)
	}
	if _, err := timing.ParseOrigin(s.Timing); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if len(s.Inputs) > 0 && len(s.Decoders) == 0 {
		return fmt.Errorf("session: inputs given but no decoders defined")
	}

	// Parse with a placeholder tick rate when the probe default applies.
	tick := s.TickRate
	if tick == 0 {
		tick = 1
	}
	p, err := descriptor.NewParser()
	if err != nil {
		return err
	}
	names := make(map[string]int)
	for i, d := range s.Decoders {
		if d.Name != "" {
			if prev, dup := names[d.Name]; dup {
				return fmt.Errorf("session: decoder name %q used by #%d and #%d", d.Name, prev, i)
			}
			names[d.Name] = i
		}
		if d.Descriptor != "" && d.Protocol != "" {
			return fmt.Errorf("session: decoder %s: set descriptor or protocol, not both", d.label(i))
		}
		if d.Descriptor == "" && d.Protocol == "" {
			return fmt.Errorf("session: decoder %s: needs a descriptor or a protocol", d.label(i))
		}
		if _, err := p.Parse(d.DescriptorText(), descriptor.Defaults{TickRate: tick}); err != nil {
			return fmt.Errorf("session: decoder %s: %w", d.label(i), err)
		}
	}
	return nil
}

func validateCapture(c *CaptureConfig) error {
	if c.Interface == "" && len(c.Channels) == 0 && c.Format == "" {
		return nil
	}
	if c.Format != "" {
		if _, err := capture.ParseFormat(c.Format); err != nil {
			return fmt.Errorf("capture: %w", err)
		}
	}
	if c.Baud < 0 {
		return fmt.Errorf("capture: baud must not be negative, got %d", c.Baud)
	}
	if c.DurationMs < 0 {
		return fmt.Errorf("capture: duration_ms must not be negative, got %d", c.DurationMs)
	}
	if len(c.Channels) > capture.MaxChannels {
		return fmt.Errorf("capture: %d channels, probe has %d inputs", len(c.Channels), capture.MaxChannels)
	}
	seen := make(map[string]bool)
	for _, ch := range c.Channels {
		if strings.TrimSpace(ch) == "" {
			continue
		}
		if seen[ch] {
			return fmt.Errorf("capture: channel %q listed twice", ch)
		}
		seen[ch] = true
	}
	return nil
}
