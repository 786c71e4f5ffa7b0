package config

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// TicksPerSecond is the game's simulation rate.
const TicksPerSecond = 20

var ErrInvalidDuration = errors.New("invalid duration")

// longer alternatives first, RE2 alternation is leftmost-first
var durationTerm = regexp.MustCompile(`(\d+)[^\pL\pN]*(years?|y|months?|days?|d|hours?|h|minutes?|mins?|seconds?|secs?|s)`)

var unitSeconds = map[string]uint64{
	"year": 365 * 24 * 3600, "years": 365 * 24 * 3600, "y": 365 * 24 * 3600,
	"month": 30 * 24 * 3600, "months": 30 * 24 * 3600,
	"day": 24 * 3600, "days": 24 * 3600, "d": 24 * 3600,
	"hour": 3600, "hours": 3600, "h": 3600,
	"minute": 60, "minutes": 60, "min": 60, "mins": 60,
	"second": 1, "seconds": 1, "sec": 1, "secs": 1, "s": 1,
}

// ParseDuration parses a sum of "<n><unit>" terms such as "1 year 2 months"
// or "3d12h" and returns the total in seconds. Terms may be separated by
// anything that is neither a letter nor a digit.
func ParseDuration(s string) (uint64, error) {
	matches := durationTerm.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return 0, fmt.Errorf("%w %q: no duration terms", ErrInvalidDuration, s)
	}

	var total uint64
	prev := 0
	for _, m := range matches {
		if gap := s[prev:m[0]]; !separatorOnly(gap) {
			return 0, fmt.Errorf("%w %q: unexpected %q", ErrInvalidDuration, s, strings.TrimSpace(gap))
		}
		n, err := strconv.ParseUint(s[m[2]:m[3]], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w %q: %w", ErrInvalidDuration, s, err)
		}
		unit := unitSeconds[s[m[4]:m[5]]]
		if n > (math.MaxUint64-total)/unit {
			return 0, fmt.Errorf("%w %q: overflow", ErrInvalidDuration, s)
		}
		total += n * unit
		prev = m[1]
	}
	if rest := s[prev:]; !separatorOnly(rest) {
		return 0, fmt.Errorf("%w %q: unexpected %q", ErrInvalidDuration, s, strings.TrimSpace(rest))
	}
	return total, nil
}

// ParseTicks parses a duration and converts it to game ticks.
func ParseTicks(s string) (uint64, error) {
	secs, err := ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if secs > math.MaxUint64/TicksPerSecond {
		return 0, fmt.Errorf("%w %q: overflow", ErrInvalidDuration, s)
	}
	return secs * TicksPerSecond, nil
}

func separatorOnly(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) < 0
}
