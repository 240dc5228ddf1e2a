// internal/cli/hosts.go

package cli

import (
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"sshHarness/internal/config"
	apperr "sshHarness/internal/error"
	"sshHarness/internal/models"
)

// loginFlags are shared by every command that opens a session.
type loginFlags struct {
	user            string
	password        string
	ipv6            bool
	askPassword     bool
	askRootPassword bool
}

func (l *loginFlags) bind(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&l.user, "user", "u", "", "login user (default is the host's username)")
	flags.StringVarP(&l.password, "password", "p", "", "login password")
	flags.BoolVar(&l.ipv6, "ipv6", false, "connect over the host's IPv6 address")
	flags.BoolVar(&l.askPassword, "ask-password", false, "read the login password from the terminal")
	flags.BoolVar(&l.askRootPassword, "ask-root-password", false, "read the root password from the terminal")
}

// apply overrides the host login with the flags, prompting on the terminal
// where requested.
func (l *loginFlags) apply(a *app, host *models.Host) error {
	if l.askPassword {
		pw, err := a.readPassword("Password for " + host.DisplayName() + ": ")
		if err != nil {
			return err
		}
		l.password = pw
	}
	if l.user != "" && l.user != host.Username {
		host.Username = l.user
		host.Password = l.password
	} else if l.password != "" {
		host.Password = l.password
	}

	if l.askRootPassword {
		pw, err := a.readPassword("Root password for " + host.DisplayName() + ": ")
		if err != nil {
			return err
		}
		host.RootPassword = pw
	}
	return nil
}

func readSecret(in *os.File, prompt io.Writer, label string) (string, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return "", apperr.New(apperr.ValidationError, "password prompt needs a terminal", nil)
	}
	fmt.Fprint(prompt, label)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}

// resolveHost looks target up by name. A bare IP address that is not a
// configured name becomes an ad-hoc host.
func resolveHost(cfg *config.Config, target string) (models.Host, error) {
	host, err := cfg.FindHostByName(target)
	if err == nil {
		return host, nil
	}
	ip := net.ParseIP(target)
	if ip == nil {
		return models.Host{}, err
	}
	host = models.Host{Name: target}
	if ip.To4() != nil {
		host.IPv4 = target
	} else {
		host.IPv6 = target
	}
	return host, nil
}

func newHostsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "hosts",
		Short: "List configured hosts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			hosts := a.cfg.GetHosts()
			if len(hosts) == 0 {
				fmt.Fprintln(a.out, DescriptionStyle.Render("no hosts configured"))
				return nil
			}
			renderHosts(a.out, hosts)
			return nil
		},
	}
}

func renderHosts(w io.Writer, hosts []models.Host) {
	headers := []string{"NAME", "IPV4", "IPV6", "PORT", "USER", "HOSTNAME"}
	columns := make([][]string, len(headers))
	for i, h := range headers {
		columns[i] = []string{h}
	}
	for _, h := range hosts {
		row := []string{h.DisplayName(), h.IPv4, h.IPv6, fmt.Sprint(h.SSHPort()), h.Username, h.Hostname}
		for i, cell := range row {
			columns[i] = append(columns[i], cell)
		}
	}

	widths := make([]int, len(columns))
	for i, col := range columns {
		widths[i] = maxWidth(col)
	}

	var header []string
	for i, h := range headers {
		header = append(header, HeaderStyle.Width(widths[i]+2).Render(h))
	}
	fmt.Fprintln(w, lipgloss.JoinHorizontal(lipgloss.Top, header...))

	for r := 1; r < len(columns[0]); r++ {
		var line []string
		for i := range columns {
			line = append(line, CellStyle.Width(widths[i]+2).Render(columns[i][r]))
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(line, ""), " "))
	}
}
