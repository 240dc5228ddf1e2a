// internal/cli/expect.go

package cli

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	apperr "sshHarness/internal/error"
	"sshHarness/internal/ssh"
)

// parseRules turns "prompt=response" pairs into expect rules. The first
// '=' separates the two, so responses may contain '='.
func parseRules(pairs []string) ([]ssh.ExpectRule, error) {
	rules := make([]ssh.ExpectRule, 0, len(pairs))
	for _, pair := range pairs {
		prompt, response, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, apperr.New(apperr.ValidationError, "rule must be prompt=response: "+pair, nil)
		}
		rules = append(rules, ssh.ExpectRule{Prompt: prompt, Response: response})
	}
	return rules, nil
}

func newExpectCmd(a *app) *cobra.Command {
	var (
		login   loginFlags
		asRoot  bool
		timeout time.Duration
		pairs   []string
	)

	cmd := &cobra.Command{
		Use:   "expect <host> <command>",
		Short: "Run an interactive command, answering prompts in order",
		Example: `  sshharness expect --rule 'Continue? [y/n]=y' node-a ./install.sh
  sshharness expect --root --rule 'Proceed?=yes' node-a ./reset.sh`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := parseRules(pairs)
			if err != nil {
				return err
			}

			sess, host, err := a.openSession(args[0], &login)
			if err != nil {
				return err
			}
			defer sess.Disconnect()

			ctx, cancel := signalContext(cmd)
			defer cancel()

			result, err := sess.ExecuteExpects(ctx, strings.Join(args[1:], " "), rules, ssh.ExpectOptions{
				Username:  host.Username,
				Password:  host.Password,
				IPv6:      login.ipv6,
				RunAsRoot: asRoot,
				Timeout:   timeout,
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
	flags.StringArrayVarP(&pairs, "rule", "r", nil, "prompt=response pair, repeatable and matched in order")
	flags.BoolVar(&asRoot, "root", false, "run as root through su")
	flags.DurationVar(&timeout, "timeout", 0, "overall timeout (default from config)")
	flags.SetInterspersed(false)
	return cmd
}
