// internal/ssh/execute.go

package ssh

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperr "sshHarness/internal/error"
	"sshHarness/internal/logging"
)

// Execute runs cmd in batch mode and collects its output. A transport
// failure disconnects and runs the whole call once more; a second failure
// is returned as a ConnectionError. Timeouts are reported in the result
// status, not as errors.
func (s *Session) Execute(ctx context.Context, cmd string, opts ExecOptions) (*ExecutionResult, error) {
	stop := s.startWatchdog(
		s.watchdogThreshold(cmd, opts),
		orDuration(opts.PollInterval, s.opts.PollInterval),
	)
	defer stop()
	defer s.touch()

	log := s.log.With().
		Str("command", logging.RedactSecrets(cmd, s.secrets(opts.Password)...)).
		Logger()

	result, err := s.executeOnce(ctx, cmd, opts)
	if err == nil || apperr.IsType(err, apperr.AuthError) || ctx.Err() != nil {
		return result, err
	}

	log.Warn().Err(err).Msg("execution failed, reconnecting for one retry")
	s.retrying.Store(true)
	defer s.retrying.Store(false)

	s.mu.Lock()
	s.disconnectLocked()
	s.retries++
	s.mu.Unlock()

	result, err = s.executeOnce(ctx, cmd, opts)
	if err != nil {
		if apperr.IsType(err, apperr.AuthError) || ctx.Err() != nil {
			return nil, err
		}
		log.Error().Err(err).Msg("execution failed after reconnect")
		return nil, apperr.New(apperr.ConnectionError, "execution failed after reconnect", err)
	}
	return result, nil
}

// watchdogThreshold scales the kill threshold with the timeout, so the
// large-output path is not torn down before its doubled timeout.
func (s *Session) watchdogThreshold(cmd string, opts ExecOptions) time.Duration {
	killAfter := orDuration(opts.WatchdogKillAfter, s.opts.WatchdogKillAfter)
	if !opts.RunAsRoot && s.opts.isLargeOutput(cmd) {
		killAfter *= 2
	}
	return killAfter
}

func (s *Session) executeOnce(ctx context.Context, cmd string, opts ExecOptions) (*ExecutionResult, error) {
	id := s.resolveIdentity(opts.Username, opts.Password)
	run := expectRun{
		identity: id,
		family:   familyFor(!opts.IPv6),
		poll:     orDuration(opts.PollInterval, s.opts.PollInterval),
		timeout:  orDuration(opts.Timeout, s.opts.ExecuteTimeout),
	}

	if opts.RunAsRoot {
		return s.runExpect(ctx, "su", s.rootRules(cmd, nil), run)
	}
	if s.opts.isLargeOutput(cmd) {
		run.timeout *= 2
		return s.runExpect(ctx, cmd, nil, run)
	}

	tr, err := s.ensure(ctx, run.identity, run.family)
	if err != nil {
		return nil, err
	}
	return s.runBatch(ctx, tr, cmd, id.Password, run, opts)
}

func (s *Session) runBatch(ctx context.Context, tr transport, cmd, password string, run expectRun, opts ExecOptions) (*ExecutionResult, error) {
	mode := opts.DrainMode
	if mode == "" {
		mode = s.opts.DrainMode
	}

	remote := cmd
	var sudoSecret string
	if opts.UseSudo {
		remote = sudoWrap(password, cmd)
		sudoSecret = password
	}

	log := s.log.With().
		Str("command", logging.RedactSecrets(remote, s.secrets(password)...)).
		Logger()
	log.Debug().Str("drain", string(mode)).Msg("executing")

	started := time.Now()
	ac, err := startChannel(tr, remote, false, s.opts.ReadBufferSize)
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	defer ac.close()

	result := &ExecutionResult{Command: cmd, Stdout: []string{}, Stderr: []string{}}

	if opts.ReturnImmediately {
		for i := 0; i < 2; i++ {
			if err := sleepContext(ctx, run.poll); err != nil {
				return nil, err
			}
			if ready, _, _ := ac.exitStatus(); ready {
				break
			}
		}
		result.Status = StatusNotAwaited
		result.Duration = time.Since(started)
		log.Debug().Msg("returning without waiting for completion")
		return result, nil
	}

	var stdout, stderr []byte
	sawData := false

	for ticks := 1; ; ticks++ {
		if err := sleepContext(ctx, run.poll); err != nil {
			return nil, err
		}

		ready, code, waitErr := ac.exitStatus()
		out, errOut := ac.stdout.take(), ac.stderr.take()
		stdout = append(stdout, out...)
		stderr = append(stderr, errOut...)
		fresh := len(out)+len(errOut) > 0

		if ready && waitErr != nil {
			log.Error().Err(waitErr).Msg("channel lost during execution")
			return nil, fmt.Errorf("channel lost: %w", waitErr)
		}

		if ready && ac.stdout.drained() && ac.stderr.drained() {
			result.Status, result.Code = StatusCompleted, code
			break
		}
		if mode == DrainFirstByte && sawData && !fresh {
			if ready {
				result.Status, result.Code = StatusCompleted, code
			} else {
				result.Status = StatusPartial
			}
			break
		}
		sawData = sawData || fresh

		if time.Duration(ticks)*run.poll > run.timeout {
			log.Warn().Dur("timeout", run.timeout).Msg("execution timed out")
			result.Status = StatusTimedOut
			break
		}
	}

	result.Stdout = stripSecrets(splitLines(stdout), sudoSecret)
	result.Stderr = stripSecrets(splitLines(stderr), sudoSecret)
	result.Duration = time.Since(started)

	log.Debug().
		Str("status", result.Status.String()).
		Int("code", result.ExitStatus()).
		Dur("duration", result.Duration).
		Msg("execution finished")
	return result, nil
}

func sudoWrap(password, cmd string) string {
	return fmt.Sprintf("echo %s | sudo -S -p '' %s", shellQuote(password), cmd)
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
