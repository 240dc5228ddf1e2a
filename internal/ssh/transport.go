// internal/ssh/transport.go

package ssh

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"
)

// errChannelLost reports a channel that ended without an exit status,
// typically because the transport under it was closed.
var errChannelLost = errors.New("channel closed without exit status")

// dialer opens authenticated transports.
type dialer interface {
	Dial(ctx context.Context, network, addr string, id ConnectionIdentity) (transport, error)
}

// transport is one authenticated connection to a host.
type transport interface {
	OpenChannel(pty bool) (channel, error)
	OpenTransfer(protocol TransferProtocol, bufferSize int) (fileTransfer, error)
	Close() error
}

// channel is one remote process on a transport.
type channel interface {
	Start(cmd string) error
	Stdin() io.Writer
	Stdout() io.Reader
	Stderr() io.Reader
	// Wait blocks until the process exits and returns its exit code. A
	// non-nil error means no exit code was received.
	Wait() (int, error)
	Close() error
}

// fileTransfer moves single files over a transport.
type fileTransfer interface {
	Upload(ctx context.Context, localPath, remotePath string, mode os.FileMode) error
	Download(ctx context.Context, remotePath, localPath string) error
	Close() error
}

// streamBuffer collects everything read from one output stream. A reader
// goroutine fills it; the poll loops take newly arrived bytes from it.
type streamBuffer struct {
	mu   sync.Mutex
	data []byte
	read int
	done bool
	err  error
}

func pumpStream(r io.Reader, chunkSize int) *streamBuffer {
	b := &streamBuffer{}
	if r == nil {
		b.done = true
		return b
	}
	go func() {
		buf := make([]byte, chunkSize)
		for {
			n, err := r.Read(buf)
			b.mu.Lock()
			if n > 0 {
				b.data = append(b.data, buf[:n]...)
			}
			if err != nil {
				b.done = true
				if !errors.Is(err, io.EOF) {
					b.err = err
				}
				b.mu.Unlock()
				return
			}
			b.mu.Unlock()
		}
	}()
	return b
}

// take returns the bytes that arrived since the previous call.
func (b *streamBuffer) take() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.read == len(b.data) {
		return nil
	}
	chunk := make([]byte, len(b.data)-b.read)
	copy(chunk, b.data[b.read:])
	b.read = len(b.data)
	return chunk
}

// drained reports that the stream hit EOF and every byte was taken.
func (b *streamBuffer) drained() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done && b.read == len(b.data)
}

// activeChannel is a started channel with its output pumps and exit waiter.
type activeChannel struct {
	ch     channel
	stdout *streamBuffer
	stderr *streamBuffer

	mu      sync.Mutex
	exited  bool
	code    int
	waitErr error

	closeOnce sync.Once
}

func startChannel(tr transport, cmd string, pty bool, chunkSize int) (*activeChannel, error) {
	ch, err := tr.OpenChannel(pty)
	if err != nil {
		return nil, err
	}
	if err := ch.Start(cmd); err != nil {
		ch.Close()
		return nil, err
	}

	ac := &activeChannel{
		ch:     ch,
		stdout: pumpStream(ch.Stdout(), chunkSize),
		stderr: pumpStream(ch.Stderr(), chunkSize),
	}
	go func() {
		code, err := ch.Wait()
		ac.mu.Lock()
		ac.exited = true
		ac.code = code
		ac.waitErr = err
		ac.mu.Unlock()
	}()
	return ac, nil
}

// exitStatus reports whether the process ended, its code, and whether the
// channel was lost instead.
func (ac *activeChannel) exitStatus() (ready bool, code int, err error) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	return ac.exited, ac.code, ac.waitErr
}

// settled is true once the exit code is in and both streams are drained.
func (ac *activeChannel) settled() bool {
	ready, _, _ := ac.exitStatus()
	return ready && ac.stdout.drained() && ac.stderr.drained()
}

func (ac *activeChannel) send(text string) error {
	_, err := io.WriteString(ac.ch.Stdin(), text)
	return err
}

func (ac *activeChannel) close() {
	ac.closeOnce.Do(func() {
		ac.ch.Close()
	})
}

// sleepContext waits d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
