package textutil

import (
	"strings"
	"unicode"
)

// DirName turns a release name into a single safe path element. Path
// separators and ':' '*' become '-', shell-hostile punctuation is dropped,
// and a name that would still be empty or a dot entry falls back to
// Token.
func DirName(release string) string {
	name := strings.TrimSpace(strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*':
			return '-'
		case '?', '"', '<', '>', '|':
			return -1
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, release))
	if name == "" || name == "." || name == ".." {
		return Token(release)
	}
	return name
}

// Token lowercases value and keeps only ASCII letters, digits, '-' and '_';
// everything else becomes '_'. The result never starts or ends with a
// separator and is "unknown" when nothing usable remains.
func Token(value string) string {
	out := strings.Map(func(r rune) rune {
		r = unicode.ToLower(r)
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, strings.TrimSpace(value))
	if out = strings.Trim(out, "_-"); out == "" {
		return "unknown"
	}
	return out
}
