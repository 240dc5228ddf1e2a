// internal/cli/result.go

package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"sshHarness/internal/logging"
	"sshHarness/internal/ssh"
)

// ExitCodeError carries the exit code of a remote command that did not
// succeed. Its output has already been rendered.
type ExitCodeError struct {
	Code   int
	Status ssh.Status
}

func (e *ExitCodeError) Error() string {
	if e.Status == ssh.StatusCompleted {
		return fmt.Sprintf("remote command exited with %d", e.Code)
	}
	return "remote command " + e.Status.String()
}

// resultError maps a result onto the CLI outcome: nil for exit status 0,
// the remote exit code otherwise, and 1 when no exit status was observed.
func resultError(r *ssh.ExecutionResult) error {
	if r.OK() {
		return nil
	}
	code := r.ExitStatus()
	if code == ssh.ExitStatusUnavailable {
		code = ExitCodeFailure
	}
	return &ExitCodeError{Code: code, Status: r.Status}
}

func exitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}
	var exitErr *ExitCodeError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCodeFailure
}

// renderResult writes remote stdout to out and remote stderr plus a
// status line to errOut. Secrets are masked in both streams.
func renderResult(out, errOut io.Writer, r *ssh.ExecutionResult, secrets ...string) {
	shown := *r
	shown.Stdout = logging.RedactLines(r.Stdout, secrets...)
	shown.Stderr = logging.RedactLines(r.Stderr, secrets...)

	if len(shown.Stdout) > 0 {
		fmt.Fprintln(out, shown.StdoutText())
	}
	for _, line := range shown.Stderr {
		fmt.Fprintln(errOut, line)
	}
	for _, prompt := range r.MissingPrompts {
		fmt.Fprintln(errOut, WarningStyle.Render("missing prompt: ")+fmt.Sprintf("%q", prompt))
	}
	fmt.Fprintln(errOut, statusLine(r))
}

func statusLine(r *ssh.ExecutionResult) string {
	details := DescriptionStyle.Render(fmt.Sprintf("(%s)", r.Duration.Round(time.Millisecond)))
	var status string
	switch {
	case r.OK():
		status = SuccessStyle.Render("completed")
	case r.Status == ssh.StatusCompleted:
		status = ErrorStyle.Render(fmt.Sprintf("exit %d", r.Code))
	case r.Status == ssh.StatusNotAwaited:
		status = DescriptionStyle.Render("not awaited")
	default:
		status = WarningStyle.Render(strings.ReplaceAll(r.Status.String(), "_", " "))
	}
	return TitleStyle.Render(r.Command) + " " + status + " " + details
}
