package decode

import "fmt"

// ConfigError reports a configuration that cannot be decoded at all. It is
// returned before any trace is read.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("decode: invalid config: %s: %s", e.Field, e.Reason)
}
