package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	Address      string `toml:"address"`
	NATSURL      string `toml:"nats_url"`
	NATSSubject  string `toml:"nats_subject"`
	LogLevel     string `toml:"log_level"`
	DialTimeout  string `toml:"dial_timeout"`
	OpTimeout    string `toml:"op_timeout"`
	ReconnectMin string `toml:"reconnect_min"`
	ReconnectMax string `toml:"reconnect_max"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.framelink/config.toml if the user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".framelink", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("address", fc.Address, &cfg.Address)
	s.setString("nats-url", fc.NATSURL, &cfg.NATSURL)
	s.setString("nats-subject", fc.NATSSubject, &cfg.NATSSubject)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	if err := s.setDuration("dial-timeout", fc.DialTimeout, &cfg.DialTimeout); err != nil {
		return err
	}
	if err := s.setDuration("op-timeout", fc.OpTimeout, &cfg.OpTimeout); err != nil {
		return err
	}
	if err := s.setDuration("reconnect-min", fc.ReconnectMin, &cfg.ReconnectMin); err != nil {
		return err
	}
	if err := s.setDuration("reconnect-max", fc.ReconnectMax, &cfg.ReconnectMax); err != nil {
		return err
	}

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
