// internal/ssh/transfer.go

package ssh

import (
	"context"
	"fmt"
	"os"

	scp "github.com/bramvdbogaerde/go-scp"
	"golang.org/x/crypto/ssh"

	apperr "sshHarness/internal/error"
)

const defaultUploadMode os.FileMode = 0644

// CopyFile uploads localPath to remotePath as the default user, or as root
// with opts.AsRoot. Transfer failures are not retried.
func (s *Session) CopyFile(ctx context.Context, localPath, remotePath string, opts TransferOptions) error {
	ft, err := s.openTransfer(ctx, opts)
	if err != nil {
		return err
	}
	defer ft.Close()

	mode := opts.Mode
	if mode == 0 {
		mode = defaultUploadMode
	}

	log := s.log.With().Str("local", localPath).Str("remote", remotePath).Logger()
	if err := ft.Upload(ctx, localPath, remotePath, mode); err != nil {
		log.Error().Err(err).Msg("upload failed")
		return apperr.New(apperr.TransferError, "failed to upload "+localPath, err)
	}
	s.touch()
	log.Info().Str("mode", fmt.Sprintf("%04o", mode.Perm())).Msg("uploaded file")
	return nil
}

// DownloadFile fetches remotePath into localPath.
func (s *Session) DownloadFile(ctx context.Context, remotePath, localPath string, opts TransferOptions) error {
	ft, err := s.openTransfer(ctx, opts)
	if err != nil {
		return err
	}
	defer ft.Close()

	log := s.log.With().Str("local", localPath).Str("remote", remotePath).Logger()
	if err := ft.Download(ctx, remotePath, localPath); err != nil {
		log.Error().Err(err).Msg("download failed")
		return apperr.New(apperr.TransferError, "failed to download "+remotePath, err)
	}
	s.touch()
	log.Info().Msg("downloaded file")
	return nil
}

func (s *Session) openTransfer(ctx context.Context, opts TransferOptions) (fileTransfer, error) {
	id := s.resolveIdentity("", "")
	if opts.AsRoot {
		id = s.rootIdentity()
	}

	tr, err := s.ensure(ctx, id, familyFor(!opts.IPv6))
	if err != nil {
		return nil, err
	}

	ft, err := tr.OpenTransfer(s.opts.TransferProtocol, s.opts.TransferBufferSize)
	if err != nil {
		s.log.Error().Err(err).Str("protocol", string(s.opts.TransferProtocol)).Msg("failed to open transfer channel")
		return nil, apperr.New(apperr.TransferError, "failed to open "+string(s.opts.TransferProtocol)+" channel", err)
	}
	return ft, nil
}

// scpTransfer moves files with the scp protocol over the session transport.
type scpTransfer struct {
	client scp.Client
}

func newSCPTransfer(conn *ssh.Client) (fileTransfer, error) {
	client, err := scp.NewClientBySSH(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create SCP client: %w", err)
	}
	return &scpTransfer{client: client}, nil
}

func (t *scpTransfer) Upload(ctx context.Context, localPath, remotePath string, mode os.FileMode) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open local file: %w", err)
	}
	defer f.Close()

	if err := t.client.CopyFromFile(ctx, *f, remotePath, fmt.Sprintf("%04o", mode.Perm())); err != nil {
		return fmt.Errorf("scp upload failed: %w", err)
	}
	return nil
}

func (t *scpTransfer) Download(ctx context.Context, remotePath, localPath string) error {
	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file: %w", err)
	}
	defer f.Close()

	if err := t.client.CopyFromRemote(ctx, f, remotePath); err != nil {
		return fmt.Errorf("scp download failed: %w", err)
	}
	return f.Sync()
}

// Close is a no-op; the scp client borrows the session's connection.
func (t *scpTransfer) Close() error {
	return nil
}
