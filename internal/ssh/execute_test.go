package ssh

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "sshHarness/internal/error"
)

var fullDrain = ExecOptions{DrainMode: DrainFullCompletion}

func TestExecuteBatch(t *testing.T) {
	tests := []struct {
		name       string
		cmd        string
		opts       ExecOptions
		wantStdout []string
		wantStderr []string
		wantCode   int
	}{
		{name: "echo", cmd: "echo hi", wantStdout: []string{"hi"}, wantStderr: []string{}},
		{name: "failing command", cmd: "false", wantStdout: []string{}, wantStderr: []string{}, wantCode: 1},
		{name: "both streams", cmd: "warn", wantStdout: []string{"partial"}, wantStderr: []string{"something odd"}, wantCode: 2},
		{name: "unknown command", cmd: "nope", wantStdout: []string{}, wantStderr: []string{"command not found"}, wantCode: 127},
		{name: "sudo", cmd: "whoami", opts: ExecOptions{UseSudo: true}, wantStdout: []string{"root"}, wantStderr: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, d := newTestSession(t, shellScript)
			tt.opts.DrainMode = DrainFullCompletion

			result, err := s.Execute(context.Background(), tt.cmd, tt.opts)
			require.NoError(t, err)

			assert.Equal(t, StatusCompleted, result.Status)
			assert.Equal(t, tt.wantCode, result.ExitStatus())
			assert.Equal(t, tt.wantStdout, result.Stdout)
			assert.Equal(t, tt.wantStderr, result.Stderr)
			assert.Equal(t, []bool{false}, d.transport(0).usedPty())
		})
	}
}

func TestExecuteSudoWrapsCommand(t *testing.T) {
	s, d := newTestSession(t, shellScript)

	_, err := s.Execute(context.Background(), "whoami", ExecOptions{UseSudo: true, DrainMode: DrainFullCompletion})
	require.NoError(t, err)

	assert.Equal(t, []string{"echo 'qa-pass' | sudo -S -p '' whoami"}, d.transport(0).ranCommands())
}

func TestExecuteFirstByteDrain(t *testing.T) {
	s, _ := newTestSession(t, func(cmd string, p *fakeProc) int {
		p.out("started\n")
		return p.hang()
	})

	result, err := s.Execute(context.Background(), "daemon", ExecOptions{})
	require.NoError(t, err)

	assert.Equal(t, StatusPartial, result.Status)
	assert.Equal(t, ExitStatusUnavailable, result.ExitStatus())
	assert.Equal(t, []string{"started"}, result.Stdout)
}

func TestExecuteTimeout(t *testing.T) {
	s, _ := newTestSession(t, shellScript)

	start := time.Now()
	result, err := s.Execute(context.Background(), "sleep", ExecOptions{Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	assert.Equal(t, StatusTimedOut, result.Status)
	assert.Equal(t, ExitStatusUnavailable, result.ExitStatus())
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestExecuteReturnImmediately(t *testing.T) {
	s, _ := newTestSession(t, func(cmd string, p *fakeProc) int {
		p.out("noise\n")
		return p.hang()
	})

	start := time.Now()
	result, err := s.Execute(context.Background(), "sleep", ExecOptions{ReturnImmediately: true})
	require.NoError(t, err)

	assert.Equal(t, StatusNotAwaited, result.Status)
	assert.Empty(t, result.Stdout)
	assert.Empty(t, result.Stderr)
	assert.Less(t, time.Since(start), time.Second)
}

func TestExecuteRunAsRoot(t *testing.T) {
	s, d := newTestSession(t, suScript)

	result, err := s.Execute(context.Background(), "whoami", ExecOptions{RunAsRoot: true})
	require.NoError(t, err)

	tr := d.transport(0)
	assert.Equal(t, []string{"su"}, tr.ranCommands())
	assert.Equal(t, []bool{true}, tr.usedPty())
	assert.Equal(t, "qa", d.dial(0).id.Username)

	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, 0, result.ExitStatus())
	assert.Equal(t, []string{"root"}, result.Stdout)
	assert.Empty(t, result.MissingPrompts)
}

func TestExecuteRunAsRootReportsCommandStatus(t *testing.T) {
	s, d := newTestSession(t, suScript)

	result, err := s.Execute(context.Background(), "false", ExecOptions{RunAsRoot: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"su"}, d.transport(0).ranCommands())
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, 1, result.ExitStatus())
	assert.Empty(t, result.MissingPrompts)

	result, err = s.Execute(context.Background(), "whoami", ExecOptions{RunAsRoot: true})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitStatus())
}

func TestWatchdogThresholdFollowsLargeOutputTimeout(t *testing.T) {
	s, _ := newTestSession(t, shellScript)
	s.opts.WatchdogKillAfter = 600 * time.Second

	assert.Equal(t, 600*time.Second, s.watchdogThreshold("uptime", ExecOptions{}))
	assert.Equal(t, 1200*time.Second, s.watchdogThreshold("xmllint --format big.xml", ExecOptions{}))
	assert.Equal(t, 20*time.Second, s.watchdogThreshold("xmllint big.xml", ExecOptions{WatchdogKillAfter: 10 * time.Second}))
	assert.Equal(t, 600*time.Second, s.watchdogThreshold("xmllint big.xml", ExecOptions{RunAsRoot: true}))
}

func TestExecuteLargeOutputUsesExpectPath(t *testing.T) {
	s, d := newTestSession(t, shellScript)

	result, err := s.Execute(context.Background(), "xmllint --format big.xml", ExecOptions{Timeout: 40 * time.Millisecond})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, []bool{true}, d.transport(0).usedPty())
	assert.Equal(t, "command not found", strings.Join(result.Stderr, ""))

	s2, _ := newTestSession(t, func(cmd string, p *fakeProc) int { return p.hang() })
	start := time.Now()
	result, err = s2.Execute(context.Background(), "xmllint --format big.xml", ExecOptions{Timeout: 40 * time.Millisecond})
	require.NoError(t, err)

	assert.Equal(t, StatusTimedOut, result.Status)
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestExecuteRetriesOnTransportFailure(t *testing.T) {
	s, d := newTestSession(t, shellScript)
	d.failChannels(1)

	result, err := s.Execute(context.Background(), "echo hi", fullDrain)
	require.NoError(t, err)

	assert.Equal(t, []string{"hi"}, result.Stdout)
	assert.Equal(t, 2, d.dialCount())
	assert.True(t, d.transport(0).isClosed())
	assert.False(t, s.retrying.Load())
	assert.Zero(t, s.retries)
}

func TestExecuteSecondFailureIsConnectionError(t *testing.T) {
	s, d := newTestSession(t, shellScript)
	d.failChannels(2)

	result, err := s.Execute(context.Background(), "echo hi", fullDrain)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, apperr.IsType(err, apperr.ConnectionError))
	assert.Equal(t, 2, d.dialCount())
}

func TestExecuteDoesNotRetryAuthFailure(t *testing.T) {
	s, d := newTestSession(t, shellScript)
	d.failWith(errAuthRejected)

	_, err := s.Execute(context.Background(), "echo hi", fullDrain)
	require.Error(t, err)
	assert.True(t, apperr.IsType(err, apperr.AuthError))
	assert.Equal(t, 1, d.dialCount())
}

func TestExecuteRetriesLostChannel(t *testing.T) {
	var runs atomic.Int32
	s, d := newTestSession(t, func(cmd string, p *fakeProc) int {
		if runs.Add(1) == 1 {
			return p.hang()
		}
		p.out("done\n")
		return 0
	})

	go func() {
		assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, time.Millisecond)
		d.transport(0).Close()
	}()

	result, err := s.Execute(context.Background(), "job", fullDrain)
	require.NoError(t, err)
	assert.Equal(t, []string{"done"}, result.Stdout)
	assert.Equal(t, 2, d.dialCount())
}

func TestExecuteRefreshesActivity(t *testing.T) {
	s, _ := newTestSession(t, shellScript)
	before := time.Now()

	_, err := s.Execute(context.Background(), "echo hi", fullDrain)
	require.NoError(t, err)

	assert.True(t, s.activitySince(before))
}

func TestExecuteCancelled(t *testing.T) {
	s, d := newTestSession(t, shellScript)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := s.Execute(ctx, "sleep", ExecOptions{Timeout: time.Minute})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, d.dialCount())
}

func TestSudoWrapQuotesPassword(t *testing.T) {
	assert.Equal(t, `echo 'it'\''s' | sudo -S -p '' ls`, sudoWrap("it's", "ls"))
}
