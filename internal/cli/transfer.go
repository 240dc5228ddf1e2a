// internal/cli/transfer.go

package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	apperr "sshHarness/internal/error"
	"sshHarness/internal/ssh"
)

// parseMode reads an octal permission string such as "0755".
func parseMode(s string) (os.FileMode, error) {
	if s == "" {
		return 0, nil
	}
	mode, err := strconv.ParseUint(s, 8, 32)
	if err != nil || mode > 0o7777 {
		return 0, apperr.New(apperr.ValidationError, "invalid file mode: "+s, err)
	}
	return os.FileMode(mode), nil
}

func newPutCmd(a *app) *cobra.Command {
	var (
		login  loginFlags
		asRoot bool
		mode   string
	)

	cmd := &cobra.Command{
		Use:   "put <host> <local> <remote>",
		Short: "Upload a file to a host",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			fileMode, err := parseMode(mode)
			if err != nil {
				return err
			}

			sess, _, err := a.openSession(args[0], &login)
			if err != nil {
				return err
			}
			defer sess.Disconnect()

			ctx, cancel := signalContext(cmd)
			defer cancel()

			err = sess.CopyFile(ctx, args[1], args[2], ssh.TransferOptions{
				AsRoot: asRoot,
				IPv6:   login.ipv6,
				Mode:   fileMode,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(a.errOut, SuccessStyle.Render("uploaded")+" "+args[1]+" -> "+args[0]+":"+args[2])
			return nil
		},
	}

	login.bind(cmd)
	cmd.Flags().BoolVar(&asRoot, "root", false, "transfer as root")
	cmd.Flags().StringVar(&mode, "mode", "", "octal permissions of the remote file (default 0644)")
	return cmd
}

func newGetCmd(a *app) *cobra.Command {
	var (
		login  loginFlags
		asRoot bool
	)

	cmd := &cobra.Command{
		Use:   "get <host> <remote> <local>",
		Short: "Download a file from a host",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, _, err := a.openSession(args[0], &login)
			if err != nil {
				return err
			}
			defer sess.Disconnect()

			ctx, cancel := signalContext(cmd)
			defer cancel()

			err = sess.DownloadFile(ctx, args[1], args[2], ssh.TransferOptions{
				AsRoot: asRoot,
				IPv6:   login.ipv6,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(a.errOut, SuccessStyle.Render("downloaded")+" "+args[0]+":"+args[1]+" -> "+args[2])
			return nil
		},
	}

	login.bind(cmd)
	cmd.Flags().BoolVar(&asRoot, "root", false, "transfer as root")
	return cmd
}
