package jscall

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// validate is a package-level singleton; building a validator is expensive.
var validate = validator.New()

// DefaultConfig returns the configuration used by the CLI: no memory
// limit, no timeout, sources read from disk as-is.
func DefaultConfig() Config {
	return Config{
		MemoryLimitMB:    0,
		ExecutionTimeout: 0,
		MaxScriptSizeKB:  1024,
	}
}

// ValidateConfig checks cfg's field constraints.
func ValidateConfig(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// timeoutString renders a watchdog limit for log fields.
func timeoutString(d time.Duration) string {
	if d <= 0 {
		return "none"
	}
	return d.String()
}
