// internal/ssh/expect.go

package ssh

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"sshHarness/internal/logging"
)

// ExpectRule answers Prompt with Response once Prompt shows up in the output.
type ExpectRule struct {
	Prompt   string
	Response string
}

// expectRun carries the resolved parameters of one expect-mode run.
type expectRun struct {
	identity ConnectionIdentity
	family   AddressFamily
	poll     time.Duration
	timeout  time.Duration
}

// expectAutomaton consumes rules strictly in order.
type expectAutomaton struct {
	rules []ExpectRule
	index int
}

func (a *expectAutomaton) current() (ExpectRule, bool) {
	if a.index >= len(a.rules) {
		return ExpectRule{}, false
	}
	return a.rules[a.index], true
}

func (a *expectAutomaton) consumed() []ExpectRule {
	return a.rules[:a.index]
}

func (a *expectAutomaton) missing() []string {
	var prompts []string
	for _, rule := range a.rules[a.index:] {
		prompts = append(prompts, rule.Prompt)
	}
	return prompts
}

// step looks for the current prompt after the stream cursor. On a match it
// moves the cursor past the prompt and advances to the next rule.
func (a *expectAutomaton) step(st *expectStream) (ExpectRule, bool) {
	rule, ok := a.current()
	if !ok {
		return ExpectRule{}, false
	}
	i := bytes.Index(st.seen[st.cursor:], []byte(rule.Prompt))
	if i < 0 {
		return ExpectRule{}, false
	}
	st.cursor += i + len(rule.Prompt)
	a.index++
	return rule, true
}

// expectStream is everything read from one stream plus the match cursor.
type expectStream struct {
	buf    *streamBuffer
	seen   []byte
	cursor int
}

func (st *expectStream) pull() {
	st.seen = append(st.seen, st.buf.take()...)
}

// ExecuteExpects runs cmd on a pseudo-terminal and answers prompts in the
// order given. Rules that never fire are reported in MissingPrompts.
func (s *Session) ExecuteExpects(ctx context.Context, cmd string, rules []ExpectRule, opts ExpectOptions) (*ExecutionResult, error) {
	defer s.touch()

	run := expectRun{
		identity: s.resolveIdentity(opts.Username, opts.Password),
		family:   familyFor(!opts.IPv6),
		poll:     orDuration(opts.PollInterval, s.opts.PollInterval),
		timeout:  orDuration(opts.Timeout, s.opts.ExpectTimeout),
	}
	if opts.RunAsRoot {
		rules = s.rootRules(cmd, rules)
		cmd = "su"
	}
	return s.runExpect(ctx, cmd, rules, run)
}

// rootRules wraps cmd in an su exchange. Extra rules run inside the root
// shell before it exits.
func (s *Session) rootRules(cmd string, extra []ExpectRule) []ExpectRule {
	prompt := rootUser + "@" + s.host.Hostname
	rules := make([]ExpectRule, 0, len(extra)+3)
	rules = append(rules,
		ExpectRule{Prompt: "Password:", Response: s.host.RootPassword},
		ExpectRule{Prompt: prompt, Response: cmd},
	)
	rules = append(rules, extra...)
	return append(rules, ExpectRule{Prompt: prompt, Response: "exit"})
}

func (s *Session) runExpect(ctx context.Context, cmd string, rules []ExpectRule, run expectRun) (*ExecutionResult, error) {
	tr, err := s.ensure(ctx, run.identity, run.family)
	if err != nil {
		return nil, err
	}

	secrets := s.secrets(run.identity.Password)
	log := s.log.With().
		Str("command", logging.RedactSecrets(cmd, secrets...)).
		Int("rules", len(rules)).
		Logger()
	log.Debug().Msg("executing with expectations")

	started := time.Now()
	ac, err := startChannel(tr, cmd, true, s.opts.ReadBufferSize)
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	defer ac.close()

	auto := &expectAutomaton{rules: rules}
	stdout := &expectStream{buf: ac.stdout}
	stderr := &expectStream{buf: ac.stderr}
	result := &ExecutionResult{Command: cmd}

	for ticks := 1; ; ticks++ {
		if err := sleepContext(ctx, run.poll); err != nil {
			return nil, err
		}

		ready, code, waitErr := ac.exitStatus()
		sent := false
		for _, st := range []*expectStream{stdout, stderr} {
			st.pull()
			rule, ok := auto.step(st)
			if !ok {
				continue
			}
			sent = true
			log.Debug().
				Str("prompt", rule.Prompt).
				Str("response", logging.RedactSecrets(rule.Response, secrets...)).
				Msg("prompt matched")
			if err := ac.send(rule.Response + "\n"); err != nil {
				if exited, _, _ := ac.exitStatus(); exited {
					log.Debug().Err(err).Msg("process exited before response was sent")
					continue
				}
				log.Error().Err(err).Msg("failed to send response")
				return nil, fmt.Errorf("failed to send response: %w", err)
			}
		}
		if sent {
			continue
		}

		if ready && waitErr != nil {
			log.Error().Err(waitErr).Msg("channel lost during execution")
			return nil, fmt.Errorf("channel lost: %w", waitErr)
		}
		if ready && ac.stdout.drained() && ac.stderr.drained() {
			result.Status, result.Code = StatusCompleted, code
			break
		}
		if time.Duration(ticks)*run.poll > run.timeout {
			log.Warn().Dur("timeout", run.timeout).Msg("execution timed out")
			result.Status = StatusTimedOut
			break
		}
	}

	if missing := auto.missing(); len(missing) > 0 {
		log.Error().Strs("prompts", missing).Msg("missing expected prompt")
		result.MissingPrompts = missing
	}

	consumed := auto.consumed()
	result.Stdout = filterExchanges(splitLines(stdout.seen), consumed)
	result.Stderr = filterExchanges(splitLines(stderr.seen), consumed)
	result.Duration = time.Since(started)

	log.Debug().
		Str("status", result.Status.String()).
		Int("code", result.ExitStatus()).
		Dur("duration", result.Duration).
		Msg("execution finished")
	return result, nil
}
