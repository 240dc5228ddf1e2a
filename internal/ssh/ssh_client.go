// internal/ssh/ssh_client.go

package ssh

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"sshHarness/internal/logging"
)

// newHostKeyCallback verifies host keys against a known_hosts file. An
// empty path disables verification. With acceptNew, keys of hosts missing
// from the file are appended on first contact.
func newHostKeyCallback(path string, acceptNew bool) (ssh.HostKeyCallback, error) {
	if path == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open known_hosts %s: %w", path, err)
	}
	f.Close()

	kh := &knownHosts{path: path, acceptNew: acceptNew}
	if err := kh.reload(); err != nil {
		return nil, err
	}
	return kh.check, nil
}

type knownHosts struct {
	path      string
	acceptNew bool

	mu       sync.Mutex
	callback ssh.HostKeyCallback
}

func (k *knownHosts) reload() error {
	cb, err := knownhosts.New(k.path)
	if err != nil {
		return fmt.Errorf("failed to parse known_hosts %s: %w", k.path, err)
	}
	k.callback = cb
	return nil
}

func (k *knownHosts) check(hostname string, remote net.Addr, key ssh.PublicKey) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	err := k.callback(hostname, remote, key)
	if err == nil {
		return nil
	}

	var keyErr *knownhosts.KeyError
	if !errors.As(err, &keyErr) || len(keyErr.Want) > 0 || !k.acceptNew {
		// A non-empty Want means the host is known under a different key.
		return err
	}

	if err := k.record(hostname, key); err != nil {
		return err
	}
	log := logging.Component("ssh")
	log.Info().
		Str("host", hostname).
		Str("fingerprint", ssh.FingerprintSHA256(key)).
		Msg("recorded new host key")
	return k.reload()
}

func (k *knownHosts) record(hostname string, key ssh.PublicKey) error {
	f, err := os.OpenFile(k.path, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open known_hosts %s: %w", k.path, err)
	}
	defer f.Close()

	line := knownhosts.Line([]string{knownhosts.Normalize(hostname)}, key)
	if _, err := fmt.Fprintln(f, line); err != nil {
		return fmt.Errorf("failed to write known_hosts %s: %w", k.path, err)
	}
	return nil
}
