package httpapi

import (
	"testing"

	"github.com/park285/darkchess-server/internal/session"
	"github.com/park285/darkchess-server/pkg/chessdto"
)

func TestValidMove(t *testing.T) {
	good := []string{"e2-e4", "a1-h8", "h8-a1", "g1-f3"}
	for _, m := range good {
		if !ValidMove(m) {
			t.Fatalf("%q must be valid", m)
		}
	}
	bad := []string{"", "e2e4", "e2 e4", "e9-e4", "i2-e4", "e2-e4-e5", "0-0", "E2-E4"}
	for _, m := range bad {
		if ValidMove(m) {
			t.Fatalf("%q must be rejected", m)
		}
	}
}

func TestValidateNewGame(t *testing.T) {
	cases := []struct {
		typ, period string
		wantErr     bool
	}{
		{"no limit", "", false},
		{"slow", "3d", false},
		{"fast", "5m", false},
		{"fast", "2d", true},
		{"slow", "5m", true},
		{"no limit", "5m", true},
		{"bullet", "1m", true},
		{"", "", true},
	}
	for _, c := range cases {
		req := &chessdto.NewGameRequest{Type: c.typ, Period: c.period}
		gt, period, err := ValidateNewGame(req)
		if c.wantErr {
			if err == nil {
				t.Fatalf("%q/%q must fail", c.typ, c.period)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q/%q: %v", c.typ, c.period, err)
		}
		if gt != session.GameType(c.typ) || period != c.period {
			t.Fatalf("normalization wrong: %s %s", gt, period)
		}
	}
}

func TestValidChat(t *testing.T) {
	if !ValidChat("gg") {
		t.Fatalf("short chat must pass")
	}
	if ValidChat("   ") {
		t.Fatalf("blank chat must fail")
	}
	long := make([]byte, ChatLimit+1)
	for i := range long {
		long[i] = 'a'
	}
	if ValidChat(string(long)) {
		t.Fatalf("oversized chat must fail")
	}
}
