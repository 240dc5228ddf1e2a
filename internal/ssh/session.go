// internal/ssh/session.go

package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/sync/semaphore"

	apperr "sshHarness/internal/error"
	"sshHarness/internal/logging"
	"sshHarness/internal/models"
)

const (
	maxWatchdogs      = 4
	reservedWatchdogs = 1
)

// Session drives one host over at most one authenticated transport. It is
// safe for concurrent use; state changes are serialised by mu.
type Session struct {
	ID string

	host   models.Host
	opts   Options
	dialer dialer
	log    zerolog.Logger
	now    func() time.Time

	mu            sync.Mutex
	tr            transport
	identity      ConnectionIdentity
	family        AddressFamily
	rootConnected bool
	lastConnect   time.Time
	lastActivity  time.Time
	retries       int

	watchdogs       *semaphore.Weighted
	retryWatchdogs  *semaphore.Weighted
	activeWatchdogs atomic.Int32
	retrying        atomic.Bool
}

// NewSession validates host and opts and returns a disconnected session.
func NewSession(host models.Host, opts Options) (*Session, error) {
	if err := host.Validate(); err != nil {
		return nil, apperr.New(apperr.ValidationError, "invalid host "+host.DisplayName(), err)
	}
	if err := opts.Normalize(); err != nil {
		return nil, apperr.New(apperr.ConfigError, "invalid session options", err)
	}

	hostKeys, err := newHostKeyCallback(opts.KnownHostsPath, opts.AcceptNewHostKeys)
	if err != nil {
		return nil, apperr.New(apperr.ConfigError, "failed to load known hosts", err)
	}

	return newSession(host, opts, &sshDialer{hostKeys: hostKeys, timeout: opts.ConnectTimeout}), nil
}

func newSession(host models.Host, opts Options, d dialer) *Session {
	id := uuid.NewString()
	return &Session{
		ID:             id,
		host:           host,
		opts:           opts,
		dialer:         d,
		log:            logging.WithSession(id, host.DisplayName()),
		now:            time.Now,
		watchdogs:      semaphore.NewWeighted(maxWatchdogs),
		retryWatchdogs: semaphore.NewWeighted(reservedWatchdogs),
	}
}

// Connected reports whether a transport is open.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tr != nil
}

// Identity returns the identity of the open transport.
func (s *Session) Identity() (ConnectionIdentity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity, s.tr != nil
}

// Connect opens a new transport, closing any previous one. Empty username
// and password fall back to the host's configured login.
func (s *Session) Connect(ctx context.Context, username, password string, useIPv4 bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked(ctx, s.resolveIdentity(username, password), familyFor(useIPv4))
}

// Disconnect closes the transport. Calling it on a closed session is a no-op.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnectLocked()
}

// EnsureConnection makes sure a transport for the requested identity and
// address family is open, reusing the current one when allowed.
func (s *Session) EnsureConnection(ctx context.Context, username, password string, useIPv4 bool) error {
	_, err := s.ensure(ctx, s.resolveIdentity(username, password), familyFor(useIPv4))
	return err
}

func (s *Session) ensure(ctx context.Context, id ConnectionIdentity, family AddressFamily) (transport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tr != nil {
		if idle := s.now().Sub(s.lastConnect); idle > s.opts.StaleAfter {
			s.log.Warn().
				Dur("idle", idle).
				Bool("disconnect", s.opts.StaleDisconnect).
				Msg("connection is stale")
			if s.opts.StaleDisconnect {
				s.disconnectLocked()
			}
		}
	}

	switch {
	case s.tr == nil || s.family != family:
	case s.identity == id:
		return s.tr, nil
	case privilegeCompatible(id, s.rootConnected):
		return s.tr, nil
	}

	if err := s.connectLocked(ctx, id, family); err != nil {
		return nil, err
	}
	return s.tr, nil
}

func (s *Session) connectLocked(ctx context.Context, id ConnectionIdentity, family AddressFamily) error {
	s.disconnectLocked()

	addr := s.host.Address(family == FamilyIPv4)
	log := s.log.With().
		Str("user", id.Username).
		Str("addr", addr).
		Logger()

	operation := func() (transport, error) {
		tr, err := s.dialer.Dial(ctx, family.network(), addr, id)
		if err == nil {
			return tr, nil
		}
		if errors.Is(err, errAuthRejected) || ctx.Err() != nil || !isTransient(err) {
			return nil, backoff.Permanent(err)
		}
		log.Warn().Err(err).Dur("retry_in", s.opts.ConnectRetryDelay).Msg("transient connect failure")
		return nil, err
	}

	tr, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(s.opts.ConnectRetryDelay)),
		backoff.WithMaxTries(2),
	)
	if err != nil {
		switch {
		case errors.Is(err, errAuthRejected):
			log.Error().Err(err).Msg("authentication failed")
			return apperr.New(apperr.AuthError, "authentication failed for "+id.Username, err)
		case ctx.Err() == nil && isTransient(err):
			log.Error().Err(err).Msg("connect failed after retry")
			return apperr.New(apperr.ConnectError, "failed to connect to "+addr, err)
		default:
			log.Error().Err(err).Msg("connect failed")
			return fmt.Errorf("connect to %s: %w", addr, err)
		}
	}

	s.tr = tr
	s.identity = id
	s.family = family
	s.rootConnected = id.IsRoot()
	s.lastConnect = s.now()
	s.retries = 0
	log.Info().Str("family", family.String()).Msg("connected")
	return nil
}

func (s *Session) disconnectLocked() {
	if s.tr == nil {
		return
	}
	if err := s.tr.Close(); err != nil && !errors.Is(err, io.EOF) {
		s.log.Debug().Err(err).Msg("error while closing transport")
	}
	s.tr = nil
	s.identity = ConnectionIdentity{}
	s.rootConnected = false
	s.log.Info().Msg("disconnected")
}

// resolveIdentity fills in the host's configured login for empty fields.
func (s *Session) resolveIdentity(username, password string) ConnectionIdentity {
	if username == "" {
		username = s.host.Username
	}
	if password == "" {
		switch {
		case username == s.host.Username:
			password = s.host.Password
		case username == rootUser:
			password = s.host.RootPassword
		}
	}
	return ConnectionIdentity{Username: username, Password: password}
}

func (s *Session) rootIdentity() ConnectionIdentity {
	return s.resolveIdentity(rootUser, "")
}

// touch records activity and clears the retry counter.
func (s *Session) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = s.now()
	s.retries = 0
}

func (s *Session) activitySince(t time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity.After(t)
}

// secrets lists every password the session may type or send.
func (s *Session) secrets(extra ...string) []string {
	return append([]string{s.host.Password, s.host.RootPassword}, extra...)
}

// isTransient reports network and protocol failures worth one retry. Host
// key rejections never are.
func isTransient(err error) bool {
	var (
		netErr     net.Error
		keyErr     *knownhosts.KeyError
		revokedErr *knownhosts.RevokedError
	)
	switch {
	case errors.As(err, &keyErr), errors.As(err, &revokedErr):
		return false
	case errors.As(err, &netErr):
		return true
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return true
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET):
		return true
	}
	return strings.Contains(err.Error(), "handshake failed")
}
