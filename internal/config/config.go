// internal/config/config.go
package config

type Config struct {
	Session SessionConfig `yaml:"session"`
	Capture CaptureConfig `yaml:"capture"`
}

// ---- SESSION ----

type SessionConfig struct {
	// Inputs are trace files or doublestar globs (captures/**/*.csv.xz).
	Inputs    []string        `yaml:"inputs"`
	TickRate  int64           `yaml:"tick_rate"` // 0 => per-format probe default
	Timing    string          `yaml:"timing"`    // nominal | measured
	OutputDir string          `yaml:"output_dir"`
	Plot      string          `yaml:"plot"` // optional image path
	Decoders  []DecoderConfig `yaml:"decoders"`
}

// ---- DECODER ----

// DecoderConfig is either a descriptor string or the structured fields.
type DecoderConfig struct {
	Name       string `yaml:"name"`
	Descriptor string `yaml:"descriptor"`

	Protocol string `yaml:"protocol"`
	Rate     string `yaml:"rate"` // baud or clock, 400k / 1M allowed

	// UART
	Lines    []string `yaml:"lines"`
	DataBits int      `yaml:"data_bits"`
	Parity   string   `yaml:"parity"`
	StopBits int      `yaml:"stop_bits"`

	// SPI
	Clock string `yaml:"clock"`
	MOSI  string `yaml:"mosi"`
	MISO  string `yaml:"miso"`
	Mode  *int   `yaml:"mode"`

	// I2C (Clock above is SCL)
	Data string `yaml:"data"`
	Acks bool   `yaml:"acks"`
}

// ---- CAPTURE ----

type CaptureConfig struct {
	// Interface is a serial path, "usb", or "simulator".
	Interface  string   `yaml:"interface"`
	Format     string   `yaml:"format"` // edges | samples
	Baud       int      `yaml:"baud"`
	DurationMs int      `yaml:"duration_ms"` // 0 => until interrupted
	Channels   []string `yaml:"channels"`    // probe inputs 0..3
	Output     string   `yaml:"output"`
}
