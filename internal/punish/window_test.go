package punish

import (
	"testing"
	"time"
)

func TestParseWindow(t *testing.T) {
	t.Parallel()
	def := 30 * Day
	tests := []struct {
		token string
		want  time.Duration
		ok    bool
	}{
		{"7d", 7 * Day, true},
		{"7D", 7 * Day, true},
		{"2w", 14 * Day, true},
		{"3m", 90 * Day, true},
		{"12", 12 * Day, true},
		{"", def, false},
		{"d", def, false},
		{"abc", def, false},
		{"-3d", def, false},
		{"0", def, false},
		{"@bob", def, false},
	}
	for _, tt := range tests {
		got, ok := ParseWindow(tt.token, def)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("ParseWindow(%q) = %v, %v; want %v, %v", tt.token, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFindWindowScansArgs(t *testing.T) {
	t.Parallel()
	if got := FindWindow([]string{"@bob", "2w"}, 30*Day); got != 14*Day {
		t.Fatalf("FindWindow = %v", got)
	}
	if got := FindWindow(nil, 30*Day); got != 30*Day {
		t.Fatalf("FindWindow(nil) = %v", got)
	}
	if Days(14*Day) != 14 || Days(time.Hour) != 1 {
		t.Fatal("Days rounding")
	}
}
