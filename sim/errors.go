package sim

import "fmt"

// CapacityError reports a spawn request that exceeds lane capacity.
// Fatal to that spawn call only; the caller decides what to do next.
type CapacityError struct {
	Requested int
	Capacity  int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("spawn of %d vehicles exceeds lane capacity %d", e.Requested, e.Capacity)
}

// ConfigError reports an invalid configuration value. Configuration
// errors are the only fault class that is fatal to startup.
type ConfigError struct {
	Field  string
	Topic  string // set for per-topic bus fields
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Topic != "" {
		return fmt.Sprintf("config: %s (topic %s): %s", e.Field, e.Topic, e.Reason)
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}
