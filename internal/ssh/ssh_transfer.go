// internal/ssh/ssh_transfer.go

package ssh

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"sshHarness/internal/utils"
)

const defaultTransferBuffer = 128 * 1024

// sftpTransfer moves files over an SFTP subsystem on the session transport.
type sftpTransfer struct {
	client  *sftp.Client
	bufSize int
}

func newSFTPTransfer(conn *ssh.Client, bufSize int) (fileTransfer, error) {
	client, err := sftp.NewClient(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create SFTP client: %w", err)
	}
	return newSFTPTransferClient(client, bufSize), nil
}

func newSFTPTransferClient(client *sftp.Client, bufSize int) *sftpTransfer {
	if bufSize <= 0 {
		bufSize = defaultTransferBuffer
	}
	return &sftpTransfer{client: client, bufSize: bufSize}
}

func (t *sftpTransfer) Upload(_ context.Context, localPath, remotePath string, mode os.FileMode) error {
	remotePath = utils.ToSFTPPath(remotePath)

	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open local file: %w", err)
	}
	defer src.Close()

	dst, err := t.client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("failed to create remote file: %w", err)
	}
	defer dst.Close()

	if err := copyBuffered(dst, src, t.bufSize); err != nil {
		return err
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("failed to close remote file: %w", err)
	}
	if err := t.client.Chmod(remotePath, mode); err != nil {
		return fmt.Errorf("failed to chmod remote file: %w", err)
	}
	return nil
}

func (t *sftpTransfer) Download(_ context.Context, remotePath, localPath string) error {
	src, err := t.client.Open(utils.ToSFTPPath(remotePath))
	if err != nil {
		return fmt.Errorf("failed to open remote file: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file: %w", err)
	}
	defer dst.Close()

	if err := copyBuffered(dst, src, t.bufSize); err != nil {
		return err
	}
	if err := dst.Sync(); err != nil {
		return fmt.Errorf("failed to sync local file: %w", err)
	}
	return nil
}

func (t *sftpTransfer) Close() error {
	return t.client.Close()
}

// copyBuffered copies src to dst in bufSize chunks and fails on short writes.
func copyBuffered(dst io.Writer, src io.Reader, bufSize int) error {
	buf := make([]byte, bufSize)
	for {
		n, err := src.Read(buf)
		if err != nil && err != io.EOF {
			return fmt.Errorf("error reading source: %w", err)
		}

		if n > 0 {
			written, writeErr := dst.Write(buf[:n])
			if writeErr != nil {
				return fmt.Errorf("error writing destination: %w", writeErr)
			}
			if written != n {
				return fmt.Errorf("incomplete write: wrote %d bytes instead of %d", written, n)
			}
		}

		if err == io.EOF {
			return nil
		}
	}
}
