// internal/config/loader.go

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"sshHarness/internal/crypto"
	apperr "sshHarness/internal/error"
)

// Loader handles configuration loading with Viper.
type Loader struct {
	v          *viper.Viper
	configFile string
	masterKey  string
}

// NewLoader creates a new configuration loader. The master key is taken
// from SSHHARNESS_MASTER_KEY.
func NewLoader() *Loader {
	return &Loader{
		v:         viper.New(),
		masterKey: os.Getenv(MasterKeyEnv),
	}
}

// SetConfigFile sets an explicit config file path.
func (l *Loader) SetConfigFile(path string) {
	l.configFile = path
}

// SetMasterKey overrides the passphrase used for enc: secrets.
func (l *Loader) SetMasterKey(key string) {
	l.masterKey = key
}

// Load loads configuration with precedence
// defaults < config file < env vars.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()
	l.setupViper(cfg)

	if err := l.loadConfigFile(); err != nil {
		// Config file is optional, only error if explicitly specified
		if l.configFile != "" {
			return nil, apperr.New(apperr.ConfigError, "failed to load config file", err)
		}
	}

	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, apperr.New(apperr.ConfigError, "failed to unmarshal config", err)
	}

	cfg.Session.KnownHostsPath = expandTilde(cfg.Session.KnownHostsPath)

	if err := l.revealSecrets(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, apperr.New(apperr.ValidationError, "config validation failed", err)
	}
	return cfg, nil
}

// ConfigFileUsed returns the config file that was loaded.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

func (l *Loader) setupViper(cfg *Config) {
	v := l.v

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		v.AddConfigPath(filepath.Join(xdgConfig, "sshharness"))
	}
	if homeDir, _ := os.UserHomeDir(); homeDir != "" {
		v.AddConfigPath(filepath.Join(homeDir, ".config", "sshharness"))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("SSHHARNESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	l.setDefaults(cfg)
	bindEnvVars(v)
	v.AutomaticEnv()
}

func (l *Loader) setDefaults(cfg *Config) {
	v := l.v
	s := cfg.Session

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.enable_caller", cfg.Logging.EnableCaller)

	v.SetDefault("session.poll_interval", s.PollInterval)
	v.SetDefault("session.execute_timeout", s.ExecuteTimeout)
	v.SetDefault("session.expect_timeout", s.ExpectTimeout)
	v.SetDefault("session.watchdog_kill_after", s.WatchdogKillAfter)
	v.SetDefault("session.connect_timeout", s.ConnectTimeout)
	v.SetDefault("session.connect_retry_delay", s.ConnectRetryDelay)
	v.SetDefault("session.stale_after", s.StaleAfter)
	v.SetDefault("session.stale_disconnect", s.StaleDisconnect)
	v.SetDefault("session.drain_mode", string(s.DrainMode))
	v.SetDefault("session.read_buffer_size", s.ReadBufferSize)
	v.SetDefault("session.transfer_buffer_size", s.TransferBufferSize)
	v.SetDefault("session.transfer_protocol", string(s.TransferProtocol))
	v.SetDefault("session.large_output_commands", s.LargeOutputCommands)
	v.SetDefault("session.known_hosts_path", s.KnownHostsPath)
	v.SetDefault("session.accept_new_host_keys", s.AcceptNewHostKeys)
}

func (l *Loader) loadConfigFile() error {
	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	}

	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return err
	}
	return nil
}

// revealSecrets decrypts enc: passwords of every host.
func (l *Loader) revealSecrets(cfg *Config) error {
	var c *crypto.Cipher
	if l.masterKey != "" {
		c = crypto.NewCipher(l.masterKey)
	}

	for i := range cfg.Hosts {
		host := &cfg.Hosts[i]
		for _, field := range []*string{&host.Password, &host.RootPassword} {
			plain, err := crypto.Reveal(c, *field)
			if err != nil {
				return apperr.New(apperr.CryptoError,
					fmt.Sprintf("failed to decrypt secret of host %s", host.DisplayName()), err)
			}
			*field = plain
		}
	}
	return nil
}

// LoadFromFile loads configuration from a specific file.
func LoadFromFile(path string) (*Config, error) {
	loader := NewLoader()
	loader.SetConfigFile(path)
	return loader.Load()
}

// bindEnvVars binds SSHHARNESS_* variables for the scalar keys.
// Viper's Unmarshal ignores env vars on nested structs unless bound.
func bindEnvVars(v *viper.Viper) {
	envBindings := []string{
		"logging.level",
		"logging.format",
		"logging.enable_caller",
		"session.poll_interval",
		"session.execute_timeout",
		"session.expect_timeout",
		"session.watchdog_kill_after",
		"session.connect_timeout",
		"session.connect_retry_delay",
		"session.stale_after",
		"session.stale_disconnect",
		"session.drain_mode",
		"session.read_buffer_size",
		"session.transfer_buffer_size",
		"session.transfer_protocol",
		"session.known_hosts_path",
		"session.accept_new_host_keys",
	}

	for _, key := range envBindings {
		envVar := "SSHHARNESS_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(key, envVar)
	}
}

func expandTilde(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
