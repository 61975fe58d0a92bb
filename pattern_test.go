package relay

import (
	"strings"
	"testing"
)

func TestNewPattern(t *testing.T) {
	tests := []struct {
		name        string
		pattern     string
		shouldError bool
	}{
		{
			name:        "simple static route",
			pattern:     "/users",
			shouldError: false,
		},
		{
			name:        "route with wildcard segment",
			pattern:     "/users/*",
			shouldError: false,
		},
		{
			name:        "route with multiple wildcard segments",
			pattern:     "/users/*/posts/*",
			shouldError: false,
		},
		{
			name:        "bare wildcard",
			pattern:     "*",
			shouldError: false,
		},
		{
			name:        "regexp metacharacters are literal",
			pattern:     "/items/(a|b)+",
			shouldError: false,
		},
		{
			name:        "pattern over the length bound",
			pattern:     "/" + strings.Repeat("a", maxPatternLength),
			shouldError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pattern, err := NewPattern(tt.pattern)
			if tt.shouldError {
				if err == nil {
					t.Errorf("expected error for pattern %q, got nil", tt.pattern)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error for pattern %q: %v", tt.pattern, err)
			}
			if pattern == nil {
				t.Fatalf("expected pattern for %q, got nil", tt.pattern)
			}
			if pattern.String() != tt.pattern {
				t.Errorf("expected pattern.String() to be %q, got %q", tt.pattern, pattern.String())
			}
		})
	}
}

func TestPatternMatch(t *testing.T) {
	tests := []struct {
		name        string
		pattern     string
		candidate   string
		shouldMatch bool
	}{
		{
			name:        "exact match",
			pattern:     "/users",
			candidate:   "/users",
			shouldMatch: true,
		},
		{
			name:        "wildcard matches one segment",
			pattern:     "/users/*",
			candidate:   "/users/42",
			shouldMatch: true,
		},
		{
			name:        "wildcard does not span segments",
			pattern:     "/users/*",
			candidate:   "/users/42/x",
			shouldMatch: false,
		},
		{
			name:        "wildcard requires a segment",
			pattern:     "/users/*",
			candidate:   "/users",
			shouldMatch: false,
		},
		{
			name:        "wildcard requires a non-empty segment",
			pattern:     "/users/*",
			candidate:   "/users/",
			shouldMatch: false,
		},
		{
			name:        "match is anchored at the start",
			pattern:     "/users",
			candidate:   "/v1/users",
			shouldMatch: false,
		},
		{
			name:        "match is anchored at the end",
			pattern:     "/users",
			candidate:   "/users/42",
			shouldMatch: false,
		},
		{
			name:        "wildcard in the middle",
			pattern:     "/users/*/posts",
			candidate:   "/users/42/posts",
			shouldMatch: true,
		},
		{
			name:        "action pattern exact",
			pattern:     "UPDATE",
			candidate:   "UPDATE",
			shouldMatch: true,
		},
		{
			name:        "action pattern mismatch",
			pattern:     "UPDATE",
			candidate:   "CREATE",
			shouldMatch: false,
		},
		{
			name:        "default action pattern matches any action",
			pattern:     "*",
			candidate:   "DELETE",
			shouldMatch: true,
		},
		{
			name:        "filter value prefix wildcard",
			pattern:     "ok*",
			candidate:   "ok-confirmed",
			shouldMatch: true,
		},
		{
			name:        "filter value prefix wildcard mismatch",
			pattern:     "ok*",
			candidate:   "fail",
			shouldMatch: false,
		},
		{
			name:        "regexp metacharacters do not leak",
			pattern:     "/items/(a|b)+",
			candidate:   "/items/a",
			shouldMatch: false,
		},
		{
			name:        "regexp metacharacters match literally",
			pattern:     "/items/(a|b)+",
			candidate:   "/items/(a|b)+",
			shouldMatch: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pattern, err := NewPattern(tt.pattern)
			if err != nil {
				t.Fatalf("unexpected error compiling %q: %v", tt.pattern, err)
			}
			if got := pattern.Match(tt.candidate); got != tt.shouldMatch {
				t.Errorf("pattern %q match %q = %v, want %v", tt.pattern, tt.candidate, got, tt.shouldMatch)
			}
		})
	}
}

func TestMustPatternPanicsOnInvalidPattern(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected MustPattern to panic")
		}
	}()
	MustPattern(strings.Repeat("x", maxPatternLength+1))
}
