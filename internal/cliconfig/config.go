package cliconfig

import (
	"fmt"
	"time"
)

// DefaultSubject is the default NATS subject for bridged unsolicited frames.
const DefaultSubject = "framelink.unsolicited"

// Config holds CLI configuration for framelink.
type Config struct {
	// Address is the TCP address of the serial bridge the link connects to.
	Address string

	// NATSURL enables the unsolicited-frame bridge when non-empty.
	NATSURL     string
	NATSSubject string

	LogLevel string

	// DialTimeout bounds each connection attempt.
	DialTimeout time.Duration

	// OpTimeout bounds one send or query handshake.
	OpTimeout time.Duration

	// ReconnectMin/ReconnectMax bound the backoff between reconnects in
	// monitor mode.
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		NATSSubject:  DefaultSubject,
		LogLevel:     "info",
		DialTimeout:  10 * time.Second,
		OpTimeout:    5 * time.Second,
		ReconnectMin: 500 * time.Millisecond,
		ReconnectMax: 30 * time.Second,
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("address is required")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level %q is not one of debug, info, warn, error", c.LogLevel)
	}

	if c.NATSSubject == "" {
		c.NATSSubject = DefaultSubject
	}

	if c.DialTimeout <= 0 {
		return fmt.Errorf("dial timeout must be positive")
	}
	if c.OpTimeout <= 0 {
		return fmt.Errorf("operation timeout must be positive")
	}
	if c.ReconnectMin <= 0 || c.ReconnectMax < c.ReconnectMin {
		return fmt.Errorf("reconnect interval range is invalid")
	}

	return nil
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}
