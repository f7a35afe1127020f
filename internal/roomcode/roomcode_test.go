package roomcode

import (
	"strings"
	"testing"
)

func TestNewProducesValidCodes(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code := New()
		if !Valid(code) {
			t.Fatalf("generated invalid code %q", code)
		}
		if strings.ContainsRune(code, 'O') {
			t.Fatalf("code %q contains the excluded letter O", code)
		}
		seen[code] = true
	}
	// 25^4 codes; a hundred draws colliding into one bucket means the
	// generator is broken, not unlucky.
	if len(seen) < 2 {
		t.Fatal("generator produced no variety")
	}
}

func TestValid(t *testing.T) {
	cases := []struct {
		code string
		want bool
	}{
		{"ABCD", true},
		{"ZZZZ", true},
		{"ABC", false},
		{"ABCDE", false},
		{"ABCO", false},
		{"abcd", false},
		{"AB1D", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := Valid(tc.code); got != tc.want {
			t.Errorf("Valid(%q) = %v, want %v", tc.code, got, tc.want)
		}
	}
}
