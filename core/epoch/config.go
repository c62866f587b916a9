package epoch

import "fmt"

// Config describes how yield epochs are derived.
type Config struct {
	// Length is the epoch duration in seconds. The value must be greater
	// than zero.
	Length uint64

	// GenesisUnix anchors epoch zero. Timestamps before the anchor resolve
	// to epoch zero rather than failing.
	GenesisUnix int64
}

// DefaultConfig returns daily epochs anchored at the Unix epoch.
func DefaultConfig() Config {
	return Config{
		Length:      86_400,
		GenesisUnix: 0,
	}
}

// Validate ensures the configuration is self-consistent.
func (c Config) Validate() error {
	if c.Length == 0 {
		return fmt.Errorf("epoch length must be greater than zero")
	}
	if c.GenesisUnix < 0 {
		return fmt.Errorf("epoch genesis cannot be negative")
	}
	return nil
}
