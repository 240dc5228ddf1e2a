package logging

import (
	"regexp"
	"strings"
)

// RedactedValue is the replacement for sensitive values.
const RedactedValue = "[REDACTED]"

var secretPatterns = []*regexp.Regexp{
	// echo 'pw' | sudo -S ...
	regexp.MustCompile(`echo\s+('[^']*'|"[^"]*"|\S+)\s*\|\s*sudo\s+-S`),
	regexp.MustCompile(`(?i)(password|passwd|secret|token)[=:]\s*\S+`),
}

// Redact replaces known secret shapes in a command or output line.
func Redact(s string) string {
	result := s
	for _, pattern := range secretPatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			if strings.HasPrefix(match, "echo") {
				return "echo " + RedactedValue + " | sudo -S"
			}
			if i := strings.IndexAny(match, "=:"); i >= 0 {
				return match[:i+1] + RedactedValue
			}
			return RedactedValue
		})
	}
	return result
}

// RedactSecrets applies Redact and additionally replaces every literal
// occurrence of the given secrets. Empty secrets are ignored.
func RedactSecrets(s string, secrets ...string) string {
	result := s
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		result = strings.ReplaceAll(result, secret, RedactedValue)
	}
	return Redact(result)
}

// RedactLines applies RedactSecrets to each line.
func RedactLines(lines []string, secrets ...string) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = RedactSecrets(line, secrets...)
	}
	return out
}
