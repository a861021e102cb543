package punish

import (
	"strconv"
	"strings"
	"time"
)

const Day = 24 * time.Hour

// ParseWindow parses a window token: "Nd" days, "Nw" weeks, "Nm" months of
// 30 days, or a bare N days. An empty or invalid token yields def and false.
func ParseWindow(token string, def time.Duration) (time.Duration, bool) {
	t := strings.ToLower(strings.TrimSpace(token))
	if t == "" {
		return def, false
	}
	unit := Day
	switch t[len(t)-1] {
	case 'd':
		t = t[:len(t)-1]
	case 'w':
		unit = 7 * Day
		t = t[:len(t)-1]
	case 'm':
		unit = 30 * Day
		t = t[:len(t)-1]
	}
	n, err := strconv.Atoi(t)
	if err != nil || n <= 0 || n > 36500 {
		return def, false
	}
	return time.Duration(n) * unit, true
}

// FindWindow returns the first token in args that parses as a window.
func FindWindow(args []string, def time.Duration) time.Duration {
	for _, a := range args {
		if d, ok := ParseWindow(a, def); ok {
			return d
		}
	}
	return def
}

// Days is the whole number of days in d, at least 1.
func Days(d time.Duration) int {
	n := int(d / Day)
	if n < 1 {
		return 1
	}
	return n
}
