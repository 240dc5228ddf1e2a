// internal/ssh/connect.go

package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// errAuthRejected marks a handshake the server refused because of the
// credentials.
var errAuthRejected = errors.New("authentication rejected")

// sshDialer opens real SSH transports.
type sshDialer struct {
	hostKeys ssh.HostKeyCallback
	timeout  time.Duration
}

func (d *sshDialer) Dial(ctx context.Context, network, addr string, id ConnectionIdentity) (transport, error) {
	config := &ssh.ClientConfig{
		User: id.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(id.Password),
			// Some appliances only offer keyboard-interactive; answer every
			// question with the password.
			ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = id.Password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: d.hostKeys,
		Timeout:         d.timeout,
	}

	netDialer := &net.Dialer{Timeout: d.timeout}
	conn, err := netDialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, fmt.Errorf("%w: %v", errAuthRejected, err)
		}
		return nil, fmt.Errorf("handshake failed with %s: %w", addr, err)
	}

	return &sshTransport{client: ssh.NewClient(sshConn, chans, reqs)}, nil
}

// sshTransport is one authenticated *ssh.Client.
type sshTransport struct {
	client *ssh.Client
}

func (t *sshTransport) OpenChannel(pty bool) (channel, error) {
	session, err := t.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if pty {
		modes := ssh.TerminalModes{
			ssh.ECHO:          1,
			ssh.TTY_OP_ISPEED: 14400,
			ssh.TTY_OP_OSPEED: 14400,
		}
		if err := session.RequestPty("xterm", 40, 200, modes); err != nil {
			session.Close()
			return nil, fmt.Errorf("failed to request pty: %w", err)
		}
	}

	ch := &sshChannel{session: session}
	if ch.stdin, err = session.StdinPipe(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	if ch.stdout, err = session.StdoutPipe(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	if ch.stderr, err = session.StderrPipe(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	return ch, nil
}

func (t *sshTransport) OpenTransfer(protocol TransferProtocol, bufferSize int) (fileTransfer, error) {
	switch protocol {
	case TransferSCP:
		return newSCPTransfer(t.client)
	case TransferSFTP, "":
		return newSFTPTransfer(t.client, bufferSize)
	default:
		return nil, fmt.Errorf("unknown transfer protocol %q", protocol)
	}
}

func (t *sshTransport) Close() error {
	return t.client.Close()
}

// sshChannel is one exec request on an *ssh.Session.
type sshChannel struct {
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
	stderr  io.Reader
}

func (c *sshChannel) Start(cmd string) error {
	if err := c.session.Start(cmd); err != nil {
		return fmt.Errorf("failed to start command: %w", err)
	}
	return nil
}

func (c *sshChannel) Stdin() io.Writer  { return c.stdin }
func (c *sshChannel) Stdout() io.Reader { return c.stdout }
func (c *sshChannel) Stderr() io.Reader { return c.stderr }

func (c *sshChannel) Wait() (int, error) {
	err := c.session.Wait()
	if err == nil {
		return 0, nil
	}

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus(), nil
	}
	var missing *ssh.ExitMissingError
	if errors.As(err, &missing) {
		return ExitStatusUnavailable, errChannelLost
	}
	return ExitStatusUnavailable, err
}

func (c *sshChannel) Close() error {
	c.stdin.Close()
	err := c.session.Close()
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
