// internal/ssh/result.go

package ssh

import (
	"strings"
	"time"
)

// ExitStatusUnavailable is returned by ExitStatus when the remote process
// did not report an exit code.
const ExitStatusUnavailable = -1

// Status tells how an execution ended.
type Status int

const (
	// StatusCompleted means the remote process exited and Code is valid.
	StatusCompleted Status = iota
	// StatusTimedOut means the overall timeout elapsed first.
	StatusTimedOut
	// StatusNotAwaited means the caller asked not to wait for completion.
	StatusNotAwaited
	// StatusPartial means a first_byte drain returned before the exit status
	// was available. Output may be incomplete.
	StatusPartial
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusTimedOut:
		return "timed_out"
	case StatusNotAwaited:
		return "not_awaited"
	case StatusPartial:
		return "partial"
	default:
		return "unknown"
	}
}

// ExecutionResult is the outcome of one Execute or ExecuteExpects call.
type ExecutionResult struct {
	Command string
	Stdout  []string
	Stderr  []string
	Status  Status
	Code    int

	// MissingPrompts lists the prompts of expect rules that never fired.
	MissingPrompts []string

	Duration time.Duration
}

// ExitStatus returns the remote exit code, or ExitStatusUnavailable when
// the process was not observed to finish.
func (r *ExecutionResult) ExitStatus() int {
	if r == nil || r.Status != StatusCompleted {
		return ExitStatusUnavailable
	}
	return r.Code
}

// OK reports a completed run with exit code 0.
func (r *ExecutionResult) OK() bool {
	return r.ExitStatus() == 0
}

// StdoutText joins stdout lines with newlines.
func (r *ExecutionResult) StdoutText() string {
	return strings.Join(r.Stdout, "\n")
}

// splitLines breaks raw output into lines, trims trailing carriage returns
// and tabs, and drops blank lines.
func splitLines(raw []byte) []string {
	if len(raw) == 0 {
		return []string{}
	}
	parts := strings.Split(string(raw), "\n")
	lines := make([]string, 0, len(parts))
	for _, part := range parts {
		line := strings.TrimRight(part, "\r\t")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// stripSecrets removes echoed secrets from lines and drops lines that become
// blank, along with sudo's own password prompt.
func stripSecrets(lines []string, secrets ...string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "[sudo] password for") {
			continue
		}
		for _, secret := range secrets {
			if secret != "" {
				line = strings.ReplaceAll(line, secret, "")
			}
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}

// filterExchanges drops every line that equals or contains the prompt or
// response of a consumed rule.
func filterExchanges(lines []string, consumed []ExpectRule) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if !mentionsRule(line, consumed) {
			out = append(out, line)
		}
	}
	return out
}

func mentionsRule(line string, rules []ExpectRule) bool {
	for _, rule := range rules {
		if rule.Prompt != "" && strings.Contains(line, rule.Prompt) {
			return true
		}
		if rule.Response != "" && strings.Contains(line, rule.Response) {
			return true
		}
	}
	return false
}
