package plan

import "testing"

func TestDurationValid(t *testing.T) {
	for _, d := range Durations {
		if !d.Valid() {
			t.Errorf("%d should be valid", d)
		}
	}
	for _, d := range []Duration{0, 1, 15, 29, 31, 90, -7} {
		if d.Valid() {
			t.Errorf("%d should not be valid", d)
		}
	}
}

func TestScopeOverlaps(t *testing.T) {
	tests := []struct {
		a, b Scope
		want bool
	}{
		{ScopeBoth, ScopeBoth, true},
		{ScopeBoth, ScopeLunch, true},
		{ScopeBoth, ScopeDinner, true},
		{ScopeLunch, ScopeBoth, true},
		{ScopeLunch, ScopeLunch, true},
		{ScopeLunch, ScopeDinner, false},
		{ScopeDinner, ScopeLunch, false},
		{ScopeDinner, ScopeDinner, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.a)+"/"+string(tt.b), func(t *testing.T) {
			if got := tt.a.Overlaps(tt.b); got != tt.want {
				t.Errorf("Overlaps: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScopeSatisfies(t *testing.T) {
	tests := []struct {
		held, requested Scope
		want            bool
	}{
		{ScopeBoth, ScopeLunch, true},
		{ScopeBoth, ScopeDinner, true},
		{ScopeLunch, ScopeLunch, true},
		{ScopeLunch, ScopeDinner, false},
		{ScopeDinner, ScopeDinner, true},
		{ScopeDinner, ScopeLunch, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.held)+"/"+string(tt.requested), func(t *testing.T) {
			if got := tt.held.Satisfies(tt.requested); got != tt.want {
				t.Errorf("Satisfies: got %v, want %v", got, tt.want)
			}
		})
	}
}
