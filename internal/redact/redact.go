// Package redact strips sensitive information from strings before they are
// logged at API edges or written into notification payloads that users read.
// Connection strings, credentials, tokens, file paths, stack traces, e-mail
// addresses and SQL values are replaced with fixed placeholders.
package redact

import "regexp"

// Placeholders written in place of redacted content.
const (
	RedactionPlaceholder          = "[REDACTED]"
	RedactedCredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	RedactedJWTPlaceholder        = "[REDACTED_JWT]"
	RedactedEmailPlaceholder      = "[REDACTED_EMAIL]"
	RedactedPathPlaceholder       = "[REDACTED_PATH]"
	RedactedStackPlaceholder      = "[STACK_TRACE_REDACTED]"
	RedactedSQLPlaceholder        = "[SQL_VALUES_REDACTED]"
)

type rule struct {
	re          *regexp.Regexp
	replacement string
}

// Rules run in order; later rules see the output of earlier ones.
var rules = []rule{
	// Stack traces swallow the rest of the message.
	{regexp.MustCompile(`goroutine \d+ \[[^\]]*\]:[\s\S]*`), RedactedStackPlaceholder},

	// user:password@ in any scheme://
	{regexp.MustCompile(`(?i)\b[a-z][a-z0-9+.-]*://[^\s/@]+@`), RedactedCredentialPlaceholder + "@"},

	// key=value and key: value credentials
	{
		regexp.MustCompile(`(?i)\b(password|passwd|pwd|secret|api[_-]?key|token)\s*[=:]\s*[^\s&'",]+`),
		"${1}=" + RedactionPlaceholder,
	},

	{regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`), RedactedJWTPlaceholder},

	// Everything after WHERE or VALUES up to the end of the line.
	{regexp.MustCompile(`(?i)\b(WHERE|VALUES)\b[^\n]*`), "${1} " + RedactedSQLPlaceholder},

	{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), RedactedEmailPlaceholder},

	{regexp.MustCompile(`(?:/[\w.-]+){2,}`), RedactedPathPlaceholder},
}

// String redacts sensitive information from the input string.
func String(input string) string {
	if input == "" {
		return input
	}

	result := input
	for _, r := range rules {
		result = r.re.ReplaceAllString(result, r.replacement)
	}
	return result
}

// Error redacts sensitive information from an error's Error() output.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
