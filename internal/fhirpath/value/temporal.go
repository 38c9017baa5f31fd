package value

import (
	"fmt"
	"strings"
	"time"
)

// Precision tags a temporal value with how much of it was actually stated.
// FHIRPath comparison is precision-aware: @2010 and @2010-05 share a year but
// neither orders before the other.
type Precision uint8

const (
	PrecYear Precision = iota
	PrecMonth
	PrecDay
	PrecHour
	PrecMinute
	PrecSecond
	PrecMillisecond
)

// String returns the precision name.
func (p Precision) String() string {
	switch p {
	case PrecYear:
		return "year"
	case PrecMonth:
		return "month"
	case PrecDay:
		return "day"
	case PrecHour:
		return "hour"
	case PrecMinute:
		return "minute"
	case PrecSecond:
		return "second"
	case PrecMillisecond:
		return "millisecond"
	}
	return fmt.Sprintf("precision(%d)", uint8(p))
}

// dateLayouts maps progressively longer date layouts to their precision.
var dateLayouts = []struct {
	layout string
	prec   Precision
}{
	{"2006-01-02", PrecDay},
	{"2006-01", PrecMonth},
	{"2006", PrecYear},
}

// ParseDate parses a FHIRPath date literal body (no leading @).
func ParseDate(s string) (time.Time, Precision, error) {
	for _, dl := range dateLayouts {
		if t, err := time.Parse(dl.layout, s); err == nil && len(s) == len(dl.layout) {
			return t, dl.prec, nil
		}
	}
	return time.Time{}, 0, fmt.Errorf("value: invalid date %q", s)
}

// ParseDateTime parses a FHIRPath date-time literal body: a date optionally
// followed by T, a partial time and an optional zone offset.
func ParseDateTime(s string) (time.Time, Precision, error) {
	if !strings.ContainsRune(s, 'T') {
		return ParseDate(s)
	}
	layouts := []struct {
		layout string
		prec   Precision
	}{
		{"2006-01-02T15:04:05.000Z07:00", PrecMillisecond},
		{"2006-01-02T15:04:05.000", PrecMillisecond},
		{"2006-01-02T15:04:05Z07:00", PrecSecond},
		{"2006-01-02T15:04:05", PrecSecond},
		{"2006-01-02T15:04Z07:00", PrecMinute},
		{"2006-01-02T15:04", PrecMinute},
		{"2006-01-02T15Z07:00", PrecHour},
		{"2006-01-02T15", PrecHour},
	}
	for _, dl := range layouts {
		if t, err := time.Parse(dl.layout, s); err == nil {
			return t, dl.prec, nil
		}
	}
	// Fractional seconds with other digit counts.
	if t, err := time.Parse("2006-01-02T15:04:05.999999999Z07:00", s); err == nil {
		return t, PrecMillisecond, nil
	}
	if t, err := time.Parse("2006-01-02T15:04:05.999999999", s); err == nil {
		return t, PrecMillisecond, nil
	}
	return time.Time{}, 0, fmt.Errorf("value: invalid dateTime %q", s)
}

// ParseTime parses a FHIRPath time-of-day literal body.
func ParseTime(s string) (time.Time, Precision, error) {
	layouts := []struct {
		layout string
		prec   Precision
	}{
		{"15:04:05.000", PrecMillisecond},
		{"15:04:05", PrecSecond},
		{"15:04", PrecMinute},
		{"15", PrecHour},
	}
	for _, dl := range layouts {
		if t, err := time.Parse(dl.layout, s); err == nil {
			return t, dl.prec, nil
		}
	}
	if t, err := time.Parse("15:04:05.999999999", s); err == nil {
		return t, PrecMillisecond, nil
	}
	return time.Time{}, 0, fmt.Errorf("value: invalid time %q", s)
}

// formatTemporal renders a temporal payload at its stated precision.
func formatTemporal(t time.Time, p Precision, k Kind) string {
	if k == KindTime {
		switch p {
		case PrecHour:
			return t.Format("15")
		case PrecMinute:
			return t.Format("15:04")
		case PrecSecond:
			return t.Format("15:04:05")
		default:
			return t.Format("15:04:05.000")
		}
	}
	switch p {
	case PrecYear:
		return t.Format("2006")
	case PrecMonth:
		return t.Format("2006-01")
	case PrecDay:
		return t.Format("2006-01-02")
	case PrecHour:
		return t.Format("2006-01-02T15")
	case PrecMinute:
		return t.Format("2006-01-02T15:04")
	case PrecSecond:
		return t.Format("2006-01-02T15:04:05Z07:00")
	default:
		return t.Format("2006-01-02T15:04:05.000Z07:00")
	}
}

// truncateTo clamps a temporal instant to the given precision.
func truncateTo(t time.Time, p Precision) time.Time {
	y, mo, d := t.Date()
	h, mi, s := t.Clock()
	switch p {
	case PrecYear:
		return time.Date(y, 1, 1, 0, 0, 0, 0, t.Location())
	case PrecMonth:
		return time.Date(y, mo, 1, 0, 0, 0, 0, t.Location())
	case PrecDay:
		return time.Date(y, mo, d, 0, 0, 0, 0, t.Location())
	case PrecHour:
		return time.Date(y, mo, d, h, 0, 0, 0, t.Location())
	case PrecMinute:
		return time.Date(y, mo, d, h, mi, 0, 0, t.Location())
	case PrecSecond:
		return time.Date(y, mo, d, h, mi, s, 0, t.Location())
	default:
		return t.Truncate(time.Millisecond)
	}
}

// CompareTemporal orders two temporal values of the same kind.
// Differing precisions compare over the shared (coarser) prefix; if the
// prefixes tie the ordering is indeterminate and ok is false, mirroring the
// language's empty result for such comparisons.
func CompareTemporal(a, b Value) (cmp int, ok bool) {
	p := a.prec
	if b.prec < p {
		p = b.prec
	}
	at := truncateTo(a.t, p)
	bt := truncateTo(b.t, p)
	switch {
	case at.Before(bt):
		return -1, true
	case at.After(bt):
		return 1, true
	}
	if a.prec != b.prec {
		return 0, false
	}
	return 0, true
}
