package model

import (
	"regexp"
	"testing"
)

// crockfordBase32 matches valid ULID strings (26 chars, Crockford Base32 alphabet).
var crockfordBase32 = regexp.MustCompile(`^[0123456789ABCDEFGHJKMNPQRSTVWXYZ]{26}$`)

func TestNewRunIDFormat(t *testing.T) {
	id := NewRunID()
	if !crockfordBase32.MatchString(id) {
		t.Errorf("NewRunID() = %q, does not match Crockford Base32 ULID format", id)
	}
}

func TestNewRunIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewRunID()
		if seen[id] {
			t.Fatalf("NewRunID() produced duplicate: %s", id)
		}
		seen[id] = true
	}
}

func TestValidTransition(t *testing.T) {
	tests := []struct {
		from string
		to   string
		want bool
	}{
		{StatusQueued, StatusRunning, true},
		{StatusQueued, StatusCancelled, true},
		{StatusQueued, StatusError, true},
		{StatusQueued, StatusSuccess, false},
		{StatusQueued, StatusTimeout, false},
		{StatusRunning, StatusSuccess, true},
		{StatusRunning, StatusError, true},
		{StatusRunning, StatusTimeout, true},
		{StatusRunning, StatusCancelled, true},
		{StatusRunning, StatusQueued, false},
		{StatusSuccess, StatusRunning, false},
		{StatusSuccess, StatusError, false},
		{StatusError, StatusSuccess, false},
		{StatusTimeout, StatusRunning, false},
		{StatusCancelled, StatusQueued, false},
		{"bogus", StatusRunning, false},
	}
	for _, tt := range tests {
		if got := ValidTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("ValidTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := []string{StatusSuccess, StatusError, StatusTimeout, StatusCancelled}
	for _, s := range terminal {
		if !IsTerminal(s) {
			t.Errorf("IsTerminal(%q) = false, want true", s)
		}
	}
	for _, s := range []string{StatusQueued, StatusRunning, "bogus", ""} {
		if IsTerminal(s) {
			t.Errorf("IsTerminal(%q) = true, want false", s)
		}
	}
}

func TestValidStrategy(t *testing.T) {
	if !ValidStrategy(StrategyParallel) || !ValidStrategy(StrategyChain) {
		t.Error("expected parallel and chain to be valid strategies")
	}
	if ValidStrategy("sequential") || ValidStrategy("") {
		t.Error("expected unknown strategies to be invalid")
	}
}

func TestValidParamType(t *testing.T) {
	for _, pt := range []string{TypeString, TypeNumber, TypeInteger, TypeBoolean, TypeObject, TypeArray} {
		if !ValidParamType(pt) {
			t.Errorf("ValidParamType(%q) = false, want true", pt)
		}
	}
	if ValidParamType("float") || ValidParamType("") {
		t.Error("expected unknown param types to be invalid")
	}
}

func TestFullName(t *testing.T) {
	v := &SkillVersion{SkillName: "csv-summarize", Version: "1.2.0"}
	if got := v.FullName(); got != "csv-summarize@1.2.0" {
		t.Errorf("FullName() = %q, want %q", got, "csv-summarize@1.2.0")
	}
}
