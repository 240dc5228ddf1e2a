// internal/cli/exec.go

package cli

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	apperr "sshHarness/internal/error"
	"sshHarness/internal/ssh"
)

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func newExecCmd(a *app) *cobra.Command {
	var (
		login     loginFlags
		useSudo   bool
		asRoot    bool
		noWait    bool
		timeout   time.Duration
		killAfter time.Duration
		drain     string
	)

	cmd := &cobra.Command{
		Use:   "exec <host> <command>",
		Short: "Run a command on a host",
		Long:  "Run a command on a host. Flags go before the host; everything after it is the remote command.",
		Example: `  sshharness exec node-a 'systemctl is-active app'
  sshharness exec --root node-a journalctl -u app -n 50
  sshharness exec --user qa --ask-password 10.0.0.7 uptime`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			command := strings.Join(args[1:], " ")
			if drain != "" && drain != string(ssh.DrainFirstByte) && drain != string(ssh.DrainFullCompletion) {
				return apperr.New(apperr.ValidationError, "invalid --drain value: "+drain, nil)
			}

			sess, host, err := a.openSession(args[0], &login)
			if err != nil {
				return err
			}
			defer sess.Disconnect()

			ctx, cancel := signalContext(cmd)
			defer cancel()

			result, err := sess.Execute(ctx, command, ssh.ExecOptions{
				Username:          host.Username,
				Password:          host.Password,
				IPv6:              login.ipv6,
				UseSudo:           useSudo,
				RunAsRoot:         asRoot,
				Timeout:           timeout,
				WatchdogKillAfter: killAfter,
				ReturnImmediately: noWait,
				DrainMode:         ssh.DrainMode(drain),
			})
			if err != nil {
				return err
			}
			renderResult(a.out, a.errOut, result, host.Password, host.RootPassword)
			return resultError(result)
		},
	}

	login.bind(cmd)
	flags := cmd.Flags()
	flags.BoolVar(&useSudo, "sudo", false, "run through sudo with the login password")
	flags.BoolVar(&asRoot, "root", false, "run as root through su")
	flags.BoolVar(&noWait, "no-wait", false, "start the command and return without waiting")
	flags.DurationVar(&timeout, "timeout", 0, "overall timeout (default from config)")
	flags.DurationVar(&killAfter, "kill-after", 0, "reconnect when the session stays idle this long (default from config)")
	flags.StringVar(&drain, "drain", "", "output drain mode: first_byte or full_completion (default from config)")
	cmd.Flags().SetInterspersed(false)
	return cmd
}
