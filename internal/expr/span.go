package expr

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Span is a calendar-aware duration written as an ISO 8601 duration
// (P1w, P2Y3M, PT1h30m). Calendar units are kept separate so that adding
// a span to a date follows the calendar rather than a fixed nanosecond count.
type Span struct {
	Years   int64
	Months  int64
	Weeks   int64
	Days    int64
	Hours   int64
	Minutes int64
	Seconds int64
}

// span designators in the order they must appear
const (
	rankYears = iota
	rankMonths
	rankWeeks
	rankDays
	rankHours
	rankMinutes
	rankSeconds
)

// ParseSpan parses an ISO 8601 duration with an optional leading sign
// (-P7D). Designators are case-insensitive.
func ParseSpan(s string) (Span, error) {
	if s != "" && (s[0] == '-' || s[0] == '+') {
		sp, err := parseUnsignedSpan(s[1:])
		if err != nil {
			return Span{}, fmt.Errorf("span %q: %w", s, err)
		}
		if s[0] == '-' {
			sp = sp.Negate()
		}
		return sp, nil
	}
	return parseUnsignedSpan(s)
}

func parseUnsignedSpan(s string) (Span, error) {
	var sp Span
	if len(s) < 2 || (s[0] != 'P' && s[0] != 'p') {
		return sp, fmt.Errorf("span %q must start with 'P'", s)
	}

	inTime := false
	timeSeen := false
	seen := false
	last := -1

	for i := 1; i < len(s); {
		if s[i] == 'T' || s[i] == 't' {
			if inTime {
				return sp, fmt.Errorf("span %q has more than one time designator", s)
			}
			inTime = true
			i++
			continue
		}

		j := i
		for j < len(s) && isDigit(s[j]) {
			j++
		}
		if j == i {
			return sp, fmt.Errorf("span %q: expected digits at offset %d", s, i)
		}
		if j == len(s) {
			return sp, fmt.Errorf("span %q: missing unit designator", s)
		}
		n, err := strconv.ParseInt(s[i:j], 10, 64)
		if err != nil {
			return sp, fmt.Errorf("span %q: %w", s, err)
		}

		rank := -1
		switch d := upper(s[j]); {
		case !inTime && d == 'Y':
			rank, sp.Years = rankYears, n
		case !inTime && d == 'M':
			rank, sp.Months = rankMonths, n
		case !inTime && d == 'W':
			rank, sp.Weeks = rankWeeks, n
		case !inTime && d == 'D':
			rank, sp.Days = rankDays, n
		case inTime && d == 'H':
			rank, sp.Hours = rankHours, n
		case inTime && d == 'M':
			rank, sp.Minutes = rankMinutes, n
		case inTime && d == 'S':
			rank, sp.Seconds = rankSeconds, n
		default:
			return sp, fmt.Errorf("span %q: unexpected designator %q", s, s[j])
		}
		if rank <= last {
			return sp, fmt.Errorf("span %q: designator %q out of order", s, s[j])
		}
		last = rank
		seen = true
		if inTime {
			timeSeen = true
		}
		i = j + 1
	}

	if !seen {
		return sp, fmt.Errorf("span %q has no components", s)
	}
	if inTime && !timeSeen {
		return sp, fmt.Errorf("span %q has an empty time part", s)
	}
	return sp, nil
}

// IsZero reports whether every component is zero.
func (s Span) IsZero() bool {
	return s == Span{}
}

// Negate returns the span with every component negated.
func (s Span) Negate() Span {
	return Span{
		Years:   -s.Years,
		Months:  -s.Months,
		Weeks:   -s.Weeks,
		Days:    -s.Days,
		Hours:   -s.Hours,
		Minutes: -s.Minutes,
		Seconds: -s.Seconds,
	}
}

// AddTo shifts t by the span. Date units are applied first.
func (s Span) AddTo(t time.Time) time.Time {
	t = t.AddDate(int(s.Years), int(s.Months), int(s.Weeks*7+s.Days))
	return t.Add(time.Duration(s.Hours)*time.Hour +
		time.Duration(s.Minutes)*time.Minute +
		time.Duration(s.Seconds)*time.Second)
}

// IsNegative reports whether any component is negative. Spans built by
// the language never mix signs.
func (s Span) IsNegative() bool {
	return s.Years < 0 || s.Months < 0 || s.Weeks < 0 || s.Days < 0 ||
		s.Hours < 0 || s.Minutes < 0 || s.Seconds < 0
}

// String renders the span in ISO 8601 form, with the sign in front of a
// negative span (-P7D).
func (s Span) String() string {
	if s.IsZero() {
		return "PT0S"
	}
	var sb strings.Builder
	if s.IsNegative() {
		sb.WriteByte('-')
		s = s.Negate()
	}
	sb.WriteByte('P')
	writePart(&sb, s.Years, 'Y')
	writePart(&sb, s.Months, 'M')
	writePart(&sb, s.Weeks, 'W')
	writePart(&sb, s.Days, 'D')
	if s.Hours != 0 || s.Minutes != 0 || s.Seconds != 0 {
		sb.WriteByte('T')
		writePart(&sb, s.Hours, 'H')
		writePart(&sb, s.Minutes, 'M')
		writePart(&sb, s.Seconds, 'S')
	}
	return sb.String()
}

func writePart(sb *strings.Builder, n int64, unit byte) {
	if n == 0 {
		return
	}
	sb.WriteString(strconv.FormatInt(n, 10))
	sb.WriteByte(unit)
}

// spanBetween returns the span from a to b in days, hours, minutes and seconds.
func spanBetween(a, b time.Time) Span {
	d := b.Sub(a)
	days := int64(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	hours := int64(d / time.Hour)
	d -= time.Duration(hours) * time.Hour
	minutes := int64(d / time.Minute)
	d -= time.Duration(minutes) * time.Minute
	return Span{Days: days, Hours: hours, Minutes: minutes, Seconds: int64(d / time.Second)}
}

func upper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
