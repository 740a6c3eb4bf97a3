package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	day     = 24 * time.Hour
	maxDays = int(int64(^uint64(0)>>1) / int64(day))
)

// ParseDurationField parses a config duration. Besides Go syntax ("90s",
// "1h30m") a leading day count is accepted: "30d", "1d12h". Empty is zero,
// negatives are rejected, path prefixes the error.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := parseDays(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func parseDays(s string) (time.Duration, error) {
	head, rest, ok := strings.Cut(s, "d")
	if !ok {
		return time.ParseDuration(s)
	}
	n, err := strconv.Atoi(head)
	if err != nil {
		return 0, fmt.Errorf("bad day count %q", head)
	}
	if n > maxDays || n < -maxDays {
		return 0, fmt.Errorf("%d days out of range", n)
	}
	d := time.Duration(n) * day
	if rest == "" {
		return d, nil
	}
	tail, err := time.ParseDuration(rest)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return d - tail, nil
	}
	return d + tail, nil
}

// ParseDurationOrDefault returns def when raw is empty or zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	switch {
	case err != nil:
		return 0, err
	case d == 0:
		return def, nil
	default:
		return d, nil
	}
}

// MustDuration is for values Validate already accepted.
func MustDuration(raw string, def time.Duration) time.Duration {
	if d, err := ParseDurationOrDefault("", raw, def); err == nil {
		return d
	}
	return def
}
