// internal/config/config.go

package config

import (
	"fmt"

	apperr "sshHarness/internal/error"
	"sshHarness/internal/logging"
	"sshHarness/internal/models"
	"sshHarness/internal/ssh"
)

// MasterKeyEnv names the environment variable holding the passphrase for
// enc: secrets in the hosts section.
const MasterKeyEnv = "SSHHARNESS_MASTER_KEY"

// Config is the harness configuration.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Session ssh.Options   `mapstructure:"session"`
	Hosts   []models.Host `mapstructure:"hosts"`
}

// LoggingConfig configures the global zerolog logger.
type LoggingConfig struct {
	Level        string `mapstructure:"level"`
	Format       string `mapstructure:"format"`
	EnableCaller bool   `mapstructure:"enable_caller"`
}

// DefaultConfig returns a configuration with every session default filled in.
func DefaultConfig() *Config {
	cfg := &Config{
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Hosts:   make([]models.Host, 0),
	}
	// The zero Options value always normalizes.
	_ = cfg.Session.Normalize()
	return cfg
}

// Validate checks the session options and every host.
func (c *Config) Validate() error {
	if err := c.Session.Normalize(); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Hosts))
	for i := range c.Hosts {
		host := &c.Hosts[i]
		if err := host.Validate(); err != nil {
			return fmt.Errorf("hosts[%d] (%s): %w", i, host.DisplayName(), err)
		}
		if host.Name == "" {
			continue
		}
		if seen[host.Name] {
			return fmt.Errorf("duplicate host name %q", host.Name)
		}
		seen[host.Name] = true
	}
	return nil
}

// LogConfig converts the logging section for logging.Init.
func (c *Config) LogConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.Logging.Level
	cfg.Format = c.Logging.Format
	cfg.EnableCaller = c.Logging.EnableCaller
	return cfg
}

// GetHosts returns all configured hosts.
func (c *Config) GetHosts() []models.Host {
	return c.Hosts
}

// FindHostByName looks a host up by name.
func (c *Config) FindHostByName(name string) (models.Host, error) {
	for _, host := range c.Hosts {
		if host.Name == name {
			return host, nil
		}
	}
	return models.Host{}, apperr.New(apperr.ConfigError, "host not found: "+name, nil)
}
