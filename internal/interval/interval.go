package interval

import (
	"errors"
	"fmt"
)

const (
	// MinutesPerDay is the exclusive upper bound for a minute-of-day value.
	MinutesPerDay = 24 * 60
	// EndOfDay is the clamp target for arithmetic that would spill past midnight.
	EndOfDay = MinutesPerDay - 1
)

var ErrBadClock = errors.New("time must be HH:mm between 00:00 and 23:59")

// Span is a half-open [Start, End) window in minutes since midnight.
// All scheduling arithmetic works on these to stay clear of timezone
// and DST ambiguity; facility-local wall time is the only frame.
type Span struct {
	Start int
	End   int
}

func (s Span) Empty() bool {
	return s.End <= s.Start
}

func (s Span) Duration() int {
	if s.Empty() {
		return 0
	}
	return s.End - s.Start
}

func (s Span) String() string {
	return fmt.Sprintf("%s-%s", FromMinutes(s.Start), FromMinutes(s.End))
}

// Overlaps reports whether two half-open spans intersect.
// Touching endpoints (a.End == b.Start) do not overlap.
func Overlaps(a, b Span) bool {
	if a.Empty() || b.Empty() {
		return false
	}
	return a.Start < b.End && b.Start < a.End
}

// Contains reports whether inner lies entirely within outer.
func Contains(outer, inner Span) bool {
	if inner.Empty() {
		return false
	}
	return outer.Start <= inner.Start && inner.End <= outer.End
}

// Subtract removes the given break spans from a working span, returning the
// remaining sub-spans in ascending order. Breaks outside the span are ignored;
// a break that swallows the whole span yields an empty result.
func Subtract(span Span, breaks []Span) []Span {
	remaining := []Span{span}

	for _, brk := range breaks {
		if brk.Empty() {
			continue
		}

		next := make([]Span, 0, len(remaining)+1)
		for _, cur := range remaining {
			if !Overlaps(cur, brk) {
				next = append(next, cur)
				continue
			}
			if left := (Span{Start: cur.Start, End: brk.Start}); !left.Empty() {
				next = append(next, left)
			}
			if right := (Span{Start: brk.End, End: cur.End}); !right.Empty() {
				next = append(next, right)
			}
		}
		remaining = next
	}

	return remaining
}

// ToMinutes parses a 24h "HH:mm" clock string into minutes since midnight.
func ToMinutes(clock string) (int, error) {
	if len(clock) != 5 || clock[2] != ':' {
		return 0, fmt.Errorf("%w: %q", ErrBadClock, clock)
	}

	h, ok1 := atoi2(clock[0], clock[1])
	m, ok2 := atoi2(clock[3], clock[4])
	if !ok1 || !ok2 || h > 23 || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrBadClock, clock)
	}

	return h*60 + m, nil
}

// FromMinutes renders a minute-of-day value as "HH:mm". Out-of-range input is
// clamped into the day.
func FromMinutes(m int) string {
	if m < 0 {
		m = 0
	}
	if m > EndOfDay {
		m = EndOfDay
	}
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// AddMinutes advances a clock string by n minutes, clamping at 23:59 rather
// than rolling into the next day. Appointments never span midnight.
func AddMinutes(clock string, n int) (string, error) {
	m, err := ToMinutes(clock)
	if err != nil {
		return "", err
	}
	return FromMinutes(m + n), nil
}

func atoi2(a, b byte) (int, bool) {
	if a < '0' || a > '9' || b < '0' || b > '9' {
		return 0, false
	}
	return int(a-'0')*10 + int(b-'0'), true
}
