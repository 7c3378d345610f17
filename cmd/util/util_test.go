package util

import (
	"strings"
	"testing"
)

func TestWrapString(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"short", "one two", "one two"},
		{"collapses whitespace", "one   two\n three", "one two three"},
		{
			"wraps at limit",
			strings.Repeat("word ", 12),
			"word word word word word word word word word word\nword word",
		},
		{"long word stays whole", strings.Repeat("x", 60), strings.Repeat("x", 60)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WrapString(tt.in); got != tt.want {
				t.Errorf("WrapString() = %q, want %q", got, tt.want)
			}
		})
	}
}
