package config

import (
	"fmt"
	"strings"
	"time"

	"doggobot/internal/punish"
)

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// ParseWindowField accepts a window token ("30d", "2w", "1m", "7") or a Go
// duration of at least one day. Empty yields def.
func ParseWindowField(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	if d, ok := punish.ParseWindow(s, def); ok {
		return d, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < punish.Day {
		return 0, fmt.Errorf("%s: invalid window %q (use e.g. 30d, 2w, 1m)", path, raw)
	}
	return d, nil
}
