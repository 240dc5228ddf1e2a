// internal/ssh/watchdog.go

package ssh

import (
	"context"
	"time"
)

// startWatchdog guards one execution. Once killAfter passes without
// activity it forces a reconnect so the hung channel is torn down. The
// returned func cancels the watchdog.
//
// At most maxWatchdogs run at a time; one more is allowed while an
// execution is being retried. Executions beyond that run unguarded.
func (s *Session) startWatchdog(killAfter, poll time.Duration) (stop func()) {
	pool := s.watchdogs
	if !pool.TryAcquire(1) {
		if !s.retrying.Load() || !s.retryWatchdogs.TryAcquire(1) {
			s.log.Debug().
				Int32("active", s.activeWatchdogs.Load()).
				Msg("watchdog pool exhausted, execution is unguarded")
			return func() {}
		}
		pool = s.retryWatchdogs
	}

	ctx, cancel := context.WithCancel(context.Background())
	start := s.now()
	s.activeWatchdogs.Add(1)
	go func() {
		defer pool.Release(1)
		defer s.activeWatchdogs.Add(-1)
		s.watch(ctx, start, killAfter, poll)
	}()
	return cancel
}

func (s *Session) watch(ctx context.Context, start time.Time, killAfter, poll time.Duration) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	// The transport may still be opening when the watchdog starts, so a
	// closed transport only ends the watch after one was seen.
	seenConnected := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if s.activitySince(start) {
			return
		}
		connected := s.Connected()
		if !connected && seenConnected {
			return
		}
		seenConnected = seenConnected || connected

		if !connected || s.now().Sub(start) < killAfter {
			continue
		}
		s.forceReconnect(killAfter)
		return
	}
}

func (s *Session) forceReconnect(killAfter time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tr == nil {
		return
	}

	id, family := s.identity, s.family
	s.log.Warn().
		Dur("kill_after", killAfter).
		Str("user", id.Username).
		Msg("execution exceeded watchdog threshold, forcing reconnect")

	s.disconnectLocked()
	ctx, cancel := context.WithTimeout(context.Background(), 2*s.opts.ConnectTimeout+s.opts.ConnectRetryDelay)
	defer cancel()
	if err := s.connectLocked(ctx, id, family); err != nil {
		s.log.Error().Err(err).Msg("watchdog reconnect failed")
	}
}
