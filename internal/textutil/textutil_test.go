package textutil

import "testing"

func TestDirName(t *testing.T) {
	cases := map[string]string{
		"  Beat Saber v1.2 ":      "Beat Saber v1.2",
		"Game: Deluxe/Edition?":   "Game- Deluxe-Edition",
		"Pipe|Name<with>Quotes\"": "PipeNamewithQuotes",
		"..":                      "unknown",
		"???":                     "unknown",
		"":                        "unknown",
	}
	for input, want := range cases {
		if got := DirName(input); got != want {
			t.Fatalf("DirName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestToken(t *testing.T) {
	cases := map[string]string{
		"Beat Saber v1.2": "beat_saber_v1_2",
		"__x__":           "x",
		"  ":              "unknown",
	}
	for input, want := range cases {
		if got := Token(input); got != want {
			t.Fatalf("Token(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestRedact(t *testing.T) {
	got := Redact("7z x a.7z -psecret -y", "secret", "")
	if got != "7z x a.7z -p*** -y" {
		t.Fatalf("unexpected redaction %q", got)
	}
	args := RedactArgs([]string{"x", "-psecret"}, "secret")
	if args[1] != "-p***" {
		t.Fatalf("unexpected redacted args %v", args)
	}
}

func TestTruncateKeepsTail(t *testing.T) {
	if got := Truncate("abcdef", 10); got != "abcdef" {
		t.Fatalf("unexpected %q", got)
	}
	if got := Truncate("abcdef", 3); got != "…def" {
		t.Fatalf("unexpected %q", got)
	}
	if got := Truncate("ab€", 2); got != "…" {
		t.Fatalf("unexpected rune-boundary result %q", got)
	}
}
