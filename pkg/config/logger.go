package config

import "fmt"

// LoggerConfig configures process logging.
//
// Priority order (highest to lowest):
//  1. CLI flags (--log-level, --log-file, --log-format)
//  2. Config file (logger section)
//  3. Defaults (info level, simple format, stderr)
//
// Example:
//
//	logger:
//	  level: info
//	  format: simple
//	  file: herald.log
type LoggerConfig struct {
	// Level is the log level (debug, info, warn, error). Default: info.
	Level string `yaml:"level,omitempty"`

	// Format is "simple" (level + message) or "verbose" (timestamp added).
	// Default: simple.
	Format string `yaml:"format,omitempty"`

	// File is the log file path. Empty means stderr.
	File string `yaml:"file,omitempty"`
}

// SetDefaults applies default values.
func (c *LoggerConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
}

// Validate checks the logger configuration.
func (c *LoggerConfig) Validate() error {
	validLevels := map[string]bool{
		"debug":   true,
		"info":    true,
		"warn":    true,
		"warning": true,
		"error":   true,
	}
	if c.Level != "" && !validLevels[c.Level] {
		return fmt.Errorf("invalid log level %q (valid: debug, info, warn, error)", c.Level)
	}

	validFormats := map[string]bool{
		"simple":  true,
		"verbose": true,
		"text":    true,
	}
	if c.Format != "" && !validFormats[c.Format] {
		return fmt.Errorf("invalid log format %q (valid: simple, verbose, text)", c.Format)
	}
	return nil
}
