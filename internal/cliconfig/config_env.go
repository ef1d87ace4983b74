package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (FRAMELINK_*).
// It respects flags that have been explicitly set (changed map).
// Returns an error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("address", os.Getenv("FRAMELINK_ADDRESS"), &cfg.Address)
	s.setString("nats-url", os.Getenv("FRAMELINK_NATS_URL"), &cfg.NATSURL)
	s.setString("nats-subject", os.Getenv("FRAMELINK_NATS_SUBJECT"), &cfg.NATSSubject)
	s.setString("log-level", os.Getenv("FRAMELINK_LOG_LEVEL"), &cfg.LogLevel)

	if err := s.setDuration("dial-timeout", os.Getenv("FRAMELINK_DIAL_TIMEOUT"), &cfg.DialTimeout); err != nil {
		return err
	}
	if err := s.setDuration("op-timeout", os.Getenv("FRAMELINK_OP_TIMEOUT"), &cfg.OpTimeout); err != nil {
		return err
	}
	if err := s.setDuration("reconnect-min", os.Getenv("FRAMELINK_RECONNECT_MIN"), &cfg.ReconnectMin); err != nil {
		return err
	}
	if err := s.setDuration("reconnect-max", os.Getenv("FRAMELINK_RECONNECT_MAX"), &cfg.ReconnectMax); err != nil {
		return err
	}

	return nil
}
