// internal/ssh/options.go

package ssh

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
)

// DrainMode decides when the batch path stops reading output.
type DrainMode string

const (
	// DrainFirstByte returns once output arrived and a later poll saw none.
	DrainFirstByte DrainMode = "first_byte"
	// DrainFullCompletion waits for the exit status and both streams to end.
	DrainFullCompletion DrainMode = "full_completion"
)

// TransferProtocol selects the file transfer backend.
type TransferProtocol string

const (
	TransferSFTP TransferProtocol = "sftp"
	TransferSCP  TransferProtocol = "scp"
)

// Options configures a Session. Zero fields take the tagged defaults.
type Options struct {
	PollInterval      time.Duration `mapstructure:"poll_interval" default:"250ms"`
	ExecuteTimeout    time.Duration `mapstructure:"execute_timeout" default:"600s"`
	ExpectTimeout     time.Duration `mapstructure:"expect_timeout" default:"60s"`
	WatchdogKillAfter time.Duration `mapstructure:"watchdog_kill_after" default:"600s"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout" default:"30s"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay" default:"5s"`

	// StaleAfter is the idle time since the last connect after which the
	// transport counts as stale. Staleness is only logged unless
	// StaleDisconnect is set.
	StaleAfter      time.Duration `mapstructure:"stale_after" default:"600s"`
	StaleDisconnect bool          `mapstructure:"stale_disconnect"`

	DrainMode          DrainMode        `mapstructure:"drain_mode" default:"first_byte"`
	ReadBufferSize     int              `mapstructure:"read_buffer_size" default:"4096"`
	TransferBufferSize int              `mapstructure:"transfer_buffer_size" default:"131072"`
	TransferProtocol   TransferProtocol `mapstructure:"transfer_protocol" default:"sftp"`

	// LargeOutputCommands are substrings that route a command through the
	// expect path with a doubled timeout.
	LargeOutputCommands []string `mapstructure:"large_output_commands" default:"[\"xmllint\"]"`

	// KnownHostsPath enables host key verification. Empty disables it.
	KnownHostsPath    string `mapstructure:"known_hosts_path"`
	AcceptNewHostKeys bool   `mapstructure:"accept_new_host_keys"`
}

// Normalize fills in defaults and checks the enumerated fields.
func (o *Options) Normalize() error {
	if err := defaults.Set(o); err != nil {
		return fmt.Errorf("failed to apply session defaults: %w", err)
	}
	switch o.DrainMode {
	case DrainFirstByte, DrainFullCompletion:
	default:
		return fmt.Errorf("invalid drain_mode %q", o.DrainMode)
	}
	switch o.TransferProtocol {
	case TransferSFTP, TransferSCP:
	default:
		return fmt.Errorf("invalid transfer_protocol %q", o.TransferProtocol)
	}
	if o.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if o.ReadBufferSize <= 0 {
		return fmt.Errorf("read_buffer_size must be positive")
	}
	if o.TransferBufferSize <= 0 {
		return fmt.Errorf("transfer_buffer_size must be positive")
	}
	return nil
}

func (o *Options) isLargeOutput(cmd string) bool {
	for _, marker := range o.LargeOutputCommands {
		if marker != "" && strings.Contains(cmd, marker) {
			return true
		}
	}
	return false
}

// ExecOptions tunes one Execute call. Zero durations use the session
// options.
type ExecOptions struct {
	Username string
	Password string
	// IPv6 selects the IPv6 address; IPv4 is the default.
	IPv6      bool
	UseSudo   bool
	RunAsRoot bool

	PollInterval      time.Duration
	Timeout           time.Duration
	WatchdogKillAfter time.Duration

	ReturnImmediately bool
	DrainMode         DrainMode
}

// ExpectOptions tunes one ExecuteExpects call.
type ExpectOptions struct {
	Username  string
	Password  string
	IPv6      bool
	RunAsRoot bool

	PollInterval time.Duration
	Timeout      time.Duration
}

// TransferOptions tunes one CopyFile or DownloadFile call.
type TransferOptions struct {
	AsRoot bool
	IPv6   bool
	// Mode is applied to uploaded files. Zero means 0644.
	Mode os.FileMode
}

func orDuration(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
