package logger

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizeString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		max   int
		want  string
	}{
		{"empty", "", 10, ""},
		{"plain", "hello", 10, "hello"},
		{"control characters removed", "a\x00b\x1bc", 10, "abc"},
		{"newlines kept", "a\nb\tc", 10, "a\nb\tc"},
		{"truncated", "abcdefghij", 4, "abcd..."},
		{"invalid utf8 dropped", "ok\xffok", 10, "okok"},
		{"default max", strings.Repeat("x", 10), 0, strings.Repeat("x", 10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := SanitizeString(tt.input, tt.max); got != tt.want {
				t.Errorf("SanitizeString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitizeString_TruncatesOnRuneBoundary(t *testing.T) {
	t.Parallel()

	got := SanitizeString("ééééé", 3)
	if !utf8.ValidString(got) {
		t.Fatalf("result is not valid UTF-8: %q", got)
	}
	if got != "é..." {
		t.Errorf("got %q, want %q", got, "é...")
	}
}

func TestSanitizeError(t *testing.T) {
	t.Parallel()

	if SanitizeError(nil) != "" {
		t.Error("expected empty string for nil error")
	}
	long := errors.New(strings.Repeat("e", MaxErrorMessageLength+50))
	if got := SanitizeError(long); len(got) != MaxErrorMessageLength+3 {
		t.Errorf("len = %d, want %d", len(got), MaxErrorMessageLength+3)
	}
}
