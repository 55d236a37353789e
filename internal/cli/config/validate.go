package config

import (
	"fmt"
	"strings"
)

// OutputModes lists the accepted values of the output key.
var OutputModes = []string{"auto", "text", "markdown", "json", "yaml"}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Catalog == "" {
		return fmt.Errorf("catalog is required")
	}
	if c.Schema == "" {
		return fmt.Errorf("schema is required")
	}
	if c.SourceSchema == "" {
		return fmt.Errorf("source_schema is required")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.MaxDepth < 1 {
		return fmt.Errorf("max_depth must be at least 1, got %d", c.MaxDepth)
	}
	if !validOutput(c.OutputFormat) {
		return fmt.Errorf("unknown output format %q (expected one of %s)", c.OutputFormat, strings.Join(OutputModes, ", "))
	}
	return nil
}

func validOutput(mode string) bool {
	if mode == "" {
		return true
	}
	for _, m := range OutputModes {
		if mode == m {
			return true
		}
	}
	return false
}
