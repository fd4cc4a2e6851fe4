package recurrence

import (
	"fmt"
	"strings"
	"time"
)

const (
	dateFormat        = "20060102"
	dateTimeFormat    = "20060102T150405"
	dateTimeUTCFormat = "20060102T150405Z"
)

// Instant is a calendar DATE or DATE-TIME value.
//
// A DATE value is stored as midnight of its calendar day. A floating
// DATE-TIME (no "Z" suffix and no TZID) keeps the location it was resolved
// in but is written back without timezone information.
type Instant struct {
	Time     time.Time
	DateOnly bool
	Floating bool
}

// DateTime returns a timezone-qualified DATE-TIME instant.
func DateTime(t time.Time) Instant {
	return Instant{Time: t}
}

// Date returns a DATE instant for the calendar day of t.
func Date(t time.Time) Instant {
	y, m, d := t.Date()
	return Instant{Time: time.Date(y, m, d, 0, 0, 0, 0, t.Location()), DateOnly: true}
}

// IsZero reports whether the instant holds no time.
func (i Instant) IsZero() bool {
	return i.Time.IsZero()
}

// Compare orders instants by absolute time. A DATE sorts before a DATE-TIME
// denoting the same absolute time so both can live in one ordered table.
func (i Instant) Compare(o Instant) int {
	if c := i.Time.Compare(o.Time); c != 0 {
		return c
	}
	switch {
	case i.DateOnly == o.DateOnly:
		return 0
	case i.DateOnly:
		return -1
	default:
		return 1
	}
}

func (i Instant) Before(o Instant) bool { return i.Compare(o) < 0 }

func (i Instant) After(o Instant) bool { return i.Compare(o) > 0 }

func (i Instant) Equal(o Instant) bool { return i.Compare(o) == 0 }

// Add applies d to the instant. Weeks and days are added on the wall clock,
// the time part is added as elapsed time. A DATE stays a DATE.
func (i Instant) Add(d Dur) Instant {
	return d.Apply(i)
}

// As coerces i to the value kind of like: a DATE-TIME becomes a DATE when
// like is a DATE, and a DATE becomes a midnight DATE-TIME otherwise.
func (i Instant) As(like Instant) Instant {
	if like.DateOnly == i.DateOnly {
		return i
	}
	if like.DateOnly {
		return Date(i.Time)
	}
	return Instant{Time: i.Time, Floating: like.Floating}
}

// UTC converts a timezone-qualified DATE-TIME to UTC. DATE and floating
// values carry no timezone and are returned unchanged.
func (i Instant) UTC() Instant {
	if i.DateOnly || i.Floating {
		return i
	}
	return Instant{Time: i.Time.UTC()}
}

// Format renders the instant as an iCalendar value.
func (i Instant) Format() string {
	switch {
	case i.DateOnly:
		return i.Time.Format(dateFormat)
	case i.Floating:
		return i.Time.Format(dateTimeFormat)
	default:
		return i.Time.UTC().Format(dateTimeUTCFormat)
	}
}

func (i Instant) String() string {
	return i.Format()
}

// ParseInstant parses a single iCalendar DATE or DATE-TIME value. Floating
// values and DATE values are resolved in loc; a nil loc means UTC.
func ParseInstant(value string, loc *time.Location) (Instant, error) {
	if loc == nil {
		loc = time.UTC
	}
	value = strings.TrimSpace(value)
	switch len(value) {
	case len(dateFormat):
		t, err := time.ParseInLocation(dateFormat, value, loc)
		if err != nil {
			return Instant{}, fmt.Errorf("invalid date %q: %w", value, err)
		}
		return Instant{Time: t, DateOnly: true}, nil
	case len(dateTimeUTCFormat):
		t, err := time.Parse(dateTimeUTCFormat, value)
		if err != nil {
			return Instant{}, fmt.Errorf("invalid UTC date-time %q: %w", value, err)
		}
		return Instant{Time: t}, nil
	case len(dateTimeFormat):
		t, err := time.ParseInLocation(dateTimeFormat, value, loc)
		if err != nil {
			return Instant{}, fmt.Errorf("invalid date-time %q: %w", value, err)
		}
		return Instant{Time: t, Floating: true}, nil
	}
	return Instant{}, fmt.Errorf("invalid date or date-time %q", value)
}
