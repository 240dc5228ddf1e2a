// internal/cli/root.go

// Package cli implements the sshharness command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"sshHarness/internal/config"
	"sshHarness/internal/logging"
	"sshHarness/internal/models"
	"sshHarness/internal/ssh"
)

// Exit codes of the sshharness binary. A completed remote command passes
// its own exit status through instead.
const (
	ExitCodeSuccess = 0
	ExitCodeFailure = 1
)

// remote is the part of ssh.Session the commands drive.
type remote interface {
	Execute(ctx context.Context, cmd string, opts ssh.ExecOptions) (*ssh.ExecutionResult, error)
	ExecuteExpects(ctx context.Context, cmd string, rules []ssh.ExpectRule, opts ssh.ExpectOptions) (*ssh.ExecutionResult, error)
	CopyFile(ctx context.Context, localPath, remotePath string, opts ssh.TransferOptions) error
	DownloadFile(ctx context.Context, remotePath, localPath string, opts ssh.TransferOptions) error
	Disconnect()
}

type app struct {
	configFile string
	logLevel   string
	logFormat  string

	cfg    *config.Config
	in     *os.File
	out    io.Writer
	errOut io.Writer

	newSession   func(host models.Host, opts ssh.Options) (remote, error)
	readPassword func(label string) (string, error)
}

func newApp() *app {
	a := &app{
		in:     os.Stdin,
		out:    os.Stdout,
		errOut: os.Stderr,
		newSession: func(host models.Host, opts ssh.Options) (remote, error) {
			s, err := ssh.NewSession(host, opts)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
	}
	a.readPassword = func(label string) (string, error) {
		return readSecret(a.in, a.errOut, label)
	}
	return a
}

// Execute runs the sshharness command line and returns the process exit
// code.
func Execute(version string) int {
	root := newRootCommand(newApp())
	root.Version = version
	root.SetVersionTemplate(`{{printf "sshharness version %s\n" .Version}}`)

	if err := root.Execute(); err != nil {
		var exitErr *ExitCodeError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: ")+err.Error())
		}
		return exitCode(err)
	}
	return ExitCodeSuccess
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "sshharness",
		Short: "Drive QA target machines over SSH",
		Long: `sshharness runs commands on remote test machines over SSH, answers
interactive prompts, escalates to root through su and copies files.
Hosts and session tuning come from config.yaml.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.loadConfig()
		},
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default is $HOME/.config/sshharness/config.yaml)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	flags.StringVar(&a.logFormat, "log-format", "", "log format (console, json)")

	root.AddCommand(newExecCmd(a))
	root.AddCommand(newExpectCmd(a))
	root.AddCommand(newPutCmd(a))
	root.AddCommand(newGetCmd(a))
	root.AddCommand(newHostsCmd(a))
	root.AddCommand(newSealCmd(a))
	return root
}

func (a *app) loadConfig() error {
	loader := config.NewLoader()
	if a.configFile != "" {
		loader.SetConfigFile(a.configFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	logCfg := cfg.LogConfig()
	if a.logLevel != "" {
		logCfg.Level = a.logLevel
	}
	if a.logFormat != "" {
		logCfg.Format = a.logFormat
	}
	logCfg.Output = a.errOut
	logging.Init(logCfg)

	if used := loader.ConfigFileUsed(); used != "" {
		log := logging.Component("cli")
		log.Debug().Str("file", used).Msg("config loaded")
	}
	a.cfg = cfg
	return nil
}

// openSession resolves the host argument, applies the login flags and
// opens a session for it.
func (a *app) openSession(target string, login *loginFlags) (remote, models.Host, error) {
	host, err := resolveHost(a.cfg, target)
	if err != nil {
		return nil, models.Host{}, err
	}
	if err := login.apply(a, &host); err != nil {
		return nil, models.Host{}, err
	}
	sess, err := a.newSession(host, a.cfg.Session)
	if err != nil {
		return nil, models.Host{}, err
	}
	return sess, host, nil
}
