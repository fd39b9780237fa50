package textutil

import (
	"strings"
	"unicode/utf8"
)

// RedactedMarker replaces secrets in text.
const RedactedMarker = "***"

// Redact replaces every non-empty secret in text with RedactedMarker.
func Redact(text string, secrets ...string) string {
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		text = strings.ReplaceAll(text, secret, RedactedMarker)
	}
	return text
}

// RedactArgs returns a copy of args with secrets redacted. Useful for logging
// command lines that carry credentials.
func RedactArgs(args []string, secrets ...string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = Redact(arg, secrets...)
	}
	return out
}

// Truncate shortens text to at most limit bytes on a rune boundary, keeping
// the tail. Diagnostic output is most useful at its end.
func Truncate(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	cut := len(text) - limit
	for cut < len(text) && !utf8.RuneStart(text[cut]) {
		cut++
	}
	return "…" + text[cut:]
}
