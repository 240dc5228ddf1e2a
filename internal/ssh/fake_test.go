package ssh

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sshHarness/internal/models"
)

// script plays the remote side of one command and returns its exit code.
type script func(cmd string, p *fakeProc) int

type dialCall struct {
	network string
	addr    string
	id      ConnectionIdentity
}

// fakeDialer hands out in-memory transports that run a script per command.
type fakeDialer struct {
	script script

	mu          sync.Mutex
	dials       []dialCall
	failures    []error
	channelErrs int
	transports  []*fakeTransport
	files       map[string]fakeFile
}

type fakeFile struct {
	data []byte
	mode os.FileMode
}

func newFakeDialer(s script) *fakeDialer {
	return &fakeDialer{script: s, files: map[string]fakeFile{}}
}

func (d *fakeDialer) Dial(_ context.Context, network, addr string, id ConnectionIdentity) (transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials = append(d.dials, dialCall{network: network, addr: addr, id: id})
	if len(d.failures) > 0 {
		err := d.failures[0]
		d.failures = d.failures[1:]
		if err != nil {
			return nil, err
		}
	}

	tr := &fakeTransport{dialer: d, id: id, closed: make(chan struct{})}
	d.transports = append(d.transports, tr)
	return tr, nil
}

func (d *fakeDialer) failWith(errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = append(d.failures, errs...)
}

// failChannels makes the next n OpenChannel calls fail as if the
// connection dropped.
func (d *fakeDialer) failChannels(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channelErrs = n
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dials)
}

func (d *fakeDialer) dial(i int) dialCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[i]
}

func (d *fakeDialer) transport(i int) *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transports[i]
}

func (d *fakeDialer) file(path string) (fakeFile, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.files[path]
	return f, ok
}

type fakeTransport struct {
	dialer *fakeDialer
	id     ConnectionIdentity

	mu        sync.Mutex
	commands  []string
	ptys      []bool
	channels  []*fakeChannel
	closed    chan struct{}
	closeOnce sync.Once
}

func (t *fakeTransport) OpenChannel(pty bool) (channel, error) {
	if t.isClosed() {
		return nil, io.EOF
	}

	t.dialer.mu.Lock()
	if t.dialer.channelErrs > 0 {
		t.dialer.channelErrs--
		t.dialer.mu.Unlock()
		return nil, io.EOF
	}
	t.dialer.mu.Unlock()

	ch := &fakeChannel{
		tr:     t,
		stdin:  make(chan string, 64),
		exit:   make(chan int, 1),
		closed: make(chan struct{}),
	}
	ch.stdoutR, ch.stdoutW = io.Pipe()
	ch.stderrR, ch.stderrW = io.Pipe()

	t.mu.Lock()
	t.ptys = append(t.ptys, pty)
	t.channels = append(t.channels, ch)
	t.mu.Unlock()
	return ch, nil
}

func (t *fakeTransport) OpenTransfer(protocol TransferProtocol, _ int) (fileTransfer, error) {
	if t.isClosed() {
		return nil, io.EOF
	}
	return &fakeFileTransfer{dialer: t.dialer}, nil
}

func (t *fakeTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
		t.mu.Lock()
		channels := append([]*fakeChannel(nil), t.channels...)
		t.mu.Unlock()
		for _, ch := range channels {
			ch.Close()
		}
	})
	return nil
}

func (t *fakeTransport) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

func (t *fakeTransport) ranCommands() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.commands...)
}

func (t *fakeTransport) usedPty() []bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]bool(nil), t.ptys...)
}

type fakeChannel struct {
	tr *fakeTransport

	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	stderrR *io.PipeReader
	stderrW *io.PipeWriter
	stdin   chan string
	exit    chan int

	closed    chan struct{}
	closeOnce sync.Once
}

func (c *fakeChannel) Start(cmd string) error {
	c.tr.mu.Lock()
	c.tr.commands = append(c.tr.commands, cmd)
	c.tr.mu.Unlock()

	p := &fakeProc{stdout: c.stdoutW, stderr: c.stderrW, stdin: c.stdin, done: c.closed}
	go func() {
		code := c.tr.dialer.script(cmd, p)
		c.stdoutW.Close()
		c.stderrW.Close()
		c.exit <- code
	}()
	return nil
}

func (c *fakeChannel) Stdin() io.Writer  { return fakeStdin{c} }
func (c *fakeChannel) Stdout() io.Reader { return c.stdoutR }
func (c *fakeChannel) Stderr() io.Reader { return c.stderrR }

func (c *fakeChannel) Wait() (int, error) {
	select {
	case code := <-c.exit:
		return code, nil
	case <-c.closed:
		return ExitStatusUnavailable, errChannelLost
	}
}

func (c *fakeChannel) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.stdoutR.Close()
		c.stderrR.Close()
	})
	return nil
}

type fakeStdin struct{ c *fakeChannel }

func (w fakeStdin) Write(p []byte) (int, error) {
	select {
	case <-w.c.closed:
		return 0, io.ErrClosedPipe
	case w.c.stdin <- strings.TrimSuffix(string(p), "\n"):
		return len(p), nil
	}
}

// fakeProc is the remote process as seen by a script.
type fakeProc struct {
	stdout io.Writer
	stderr io.Writer
	stdin  chan string
	done   <-chan struct{}
}

func (p *fakeProc) out(s string)    { io.WriteString(p.stdout, s) }
func (p *fakeProc) errOut(s string) { io.WriteString(p.stderr, s) }

// read returns the next line typed by the session.
func (p *fakeProc) read() (string, bool) {
	select {
	case line := <-p.stdin:
		return line, true
	case <-p.done:
		return "", false
	case <-time.After(5 * time.Second):
		return "", false
	}
}

// hang blocks until the channel is torn down.
func (p *fakeProc) hang() int {
	<-p.done
	return ExitStatusUnavailable
}

type fakeFileTransfer struct {
	dialer *fakeDialer
}

func (f *fakeFileTransfer) Upload(_ context.Context, localPath, remotePath string, mode os.FileMode) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	f.dialer.mu.Lock()
	defer f.dialer.mu.Unlock()
	f.dialer.files[remotePath] = fakeFile{data: data, mode: mode}
	return nil
}

func (f *fakeFileTransfer) Download(_ context.Context, remotePath, localPath string) error {
	file, ok := f.dialer.file(remotePath)
	if !ok {
		return os.ErrNotExist
	}
	return os.WriteFile(localPath, file.data, 0600)
}

func (f *fakeFileTransfer) Close() error { return nil }

func testHost() models.Host {
	return models.Host{
		Name:         "node-a",
		IPv4:         "10.0.0.1",
		IPv6:         "fd00::1",
		Username:     "qa",
		Password:     "qa-pass",
		RootPassword: "root-pass",
		Hostname:     "node-a",
	}
}

func testOptions(t *testing.T) Options {
	t.Helper()
	opts := Options{
		PollInterval:      5 * time.Millisecond,
		ExpectTimeout:     2 * time.Second,
		ExecuteTimeout:    2 * time.Second,
		ConnectRetryDelay: time.Millisecond,
		ConnectTimeout:    time.Second,
	}
	require.NoError(t, opts.Normalize())
	return opts
}

func newTestSession(t *testing.T, s script) (*Session, *fakeDialer) {
	t.Helper()
	return newTestSessionWith(t, testOptions(t), s)
}

func newTestSessionWith(t *testing.T, opts Options, s script) (*Session, *fakeDialer) {
	t.Helper()
	d := newFakeDialer(s)
	session := newSession(testHost(), opts, d)
	t.Cleanup(session.Disconnect)
	return session, d
}

// shellScript answers a few fixed commands.
func shellScript(cmd string, p *fakeProc) int {
	switch {
	case cmd == "echo hi":
		p.out("hi\r\n")
		return 0
	case cmd == "false":
		return 1
	case cmd == "warn":
		p.out("partial\n")
		p.errOut("something odd\t\r\n")
		return 2
	case strings.HasPrefix(cmd, "echo 'qa-pass' | sudo -S -p '' "):
		p.out("[sudo] password for qa: \r\nqa-pass\r\nroot\r\n")
		return 0
	case cmd == "sleep":
		return p.hang()
	}
	p.errOut("command not found\n")
	return 127
}

func refused() error {
	return &net.OpError{Op: "dial", Net: "tcp4", Err: syscall.ECONNREFUSED}
}

var errBoom = errors.New("boom")
