package recurrence

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidDuration is returned when a DURATION value cannot be parsed.
var ErrInvalidDuration = errors.New("invalid duration")

const day = 24 * time.Hour

// Dur is a signed iCalendar duration. Weeks and days are nominal (they
// follow the wall clock across DST changes); hours, minutes and seconds
// are exact.
type Dur struct {
	Negative bool
	Weeks    int
	Days     int
	Hours    int
	Minutes  int
	Seconds  int
}

// DurFromStd splits an elapsed time.Duration into days and a time part.
func DurFromStd(d time.Duration) Dur {
	var out Dur
	if d < 0 {
		out.Negative = true
		d = -d
	}
	out.Days = int(d / day)
	d -= time.Duration(out.Days) * day
	out.Hours = int(d / time.Hour)
	d -= time.Duration(out.Hours) * time.Hour
	out.Minutes = int(d / time.Minute)
	d -= time.Duration(out.Minutes) * time.Minute
	out.Seconds = int(d / time.Second)
	return out
}

// Between returns the duration that takes start to end, so that
// Between(start, end).Apply(start) equals end.
func Between(start, end Instant) Dur {
	if start.DateOnly && end.DateOnly {
		return betweenDates(start, end)
	}
	if end.Time.Before(start.Time) {
		days := max(int(start.Time.Sub(end.Time)/day)-1, 0)
		for !start.Time.AddDate(0, 0, -(days + 1)).Before(end.Time) {
			days++
		}
		rem := start.Time.AddDate(0, 0, -days).Sub(end.Time)
		d := DurFromStd(rem)
		d.Days += days
		d.Negative = d.Days != 0 || rem != 0
		return d
	}
	days := max(int(end.Time.Sub(start.Time)/day)-1, 0)
	for !start.Time.AddDate(0, 0, days+1).After(end.Time) {
		days++
	}
	d := DurFromStd(end.Time.Sub(start.Time.AddDate(0, 0, days)))
	d.Days += days
	return d
}

func betweenDates(start, end Instant) Dur {
	sy, sm, sd := start.Time.Date()
	ey, em, ed := end.Time.Date()
	a := time.Date(sy, sm, sd, 0, 0, 0, 0, time.UTC)
	b := time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC)
	days := int(b.Sub(a) / day)
	var d Dur
	if days < 0 {
		d.Negative = true
		days = -days
	}
	if days%7 == 0 && days != 0 {
		d.Weeks = days / 7
	} else {
		d.Days = days
	}
	return d
}

// IsZero reports whether d has no length.
func (d Dur) IsZero() bool {
	return d.Weeks == 0 && d.Days == 0 && d.Hours == 0 && d.Minutes == 0 && d.Seconds == 0
}

func (d Dur) nominalDays() int {
	return d.Weeks*7 + d.Days
}

func (d Dur) exact() time.Duration {
	return time.Duration(d.Hours)*time.Hour + time.Duration(d.Minutes)*time.Minute + time.Duration(d.Seconds)*time.Second
}

// Approx returns the length of d counting every day as 24 hours.
func (d Dur) Approx() time.Duration {
	total := time.Duration(d.nominalDays())*day + d.exact()
	if d.Negative {
		return -total
	}
	return total
}

// Compare orders durations by Approx.
func (d Dur) Compare(o Dur) int {
	a, b := d.Approx(), o.Approx()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Negate flips the sign of d.
func (d Dur) Negate() Dur {
	if d.IsZero() {
		return d
	}
	d.Negative = !d.Negative
	return d
}

// Apply adds d to an instant. A DATE result is truncated back to its day.
func (d Dur) Apply(i Instant) Instant {
	t := i.Time
	if d.Negative {
		t = t.AddDate(0, 0, -d.nominalDays()).Add(-d.exact())
	} else {
		t = t.AddDate(0, 0, d.nominalDays()).Add(d.exact())
	}
	if i.DateOnly {
		return Date(t)
	}
	return Instant{Time: t, Floating: i.Floating}
}

// String renders d in the RFC 5545 dur-value form, e.g. "-P1DT2H".
func (d Dur) String() string {
	var b strings.Builder
	if d.Negative {
		b.WriteByte('-')
	}
	b.WriteByte('P')
	if d.Weeks != 0 && d.Days == 0 && d.exact() == 0 {
		fmt.Fprintf(&b, "%dW", d.Weeks)
		return b.String()
	}
	if days := d.nominalDays(); days != 0 {
		fmt.Fprintf(&b, "%dD", days)
	}
	if d.exact() != 0 || d.nominalDays() == 0 {
		b.WriteByte('T')
		if d.Hours != 0 {
			fmt.Fprintf(&b, "%dH", d.Hours)
		}
		if d.Minutes != 0 {
			fmt.Fprintf(&b, "%dM", d.Minutes)
		}
		if d.Seconds != 0 || d.exact() == 0 {
			fmt.Fprintf(&b, "%dS", d.Seconds)
		}
	}
	return b.String()
}

// ParseDur parses an RFC 5545 dur-value such as "P1W", "-PT15M" or
// "P1DT12H".
func ParseDur(s string) (Dur, error) {
	var d Dur
	v := strings.ToUpper(strings.TrimSpace(s))
	switch {
	case strings.HasPrefix(v, "-"):
		d.Negative = true
		v = v[1:]
	case strings.HasPrefix(v, "+"):
		v = v[1:]
	}
	if !strings.HasPrefix(v, "P") || len(v) < 3 {
		return Dur{}, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}
	v = v[1:]

	inTime := false
	timeParts := 0
	num := ""
	for _, r := range v {
		switch {
		case r >= '0' && r <= '9':
			num += string(r)
			continue
		case r == 'T':
			if inTime || num != "" {
				return Dur{}, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
			}
			inTime = true
			continue
		}
		if num == "" {
			return Dur{}, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
		}
		n, err := strconv.Atoi(num)
		if err != nil {
			return Dur{}, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
		}
		num = ""
		if inTime {
			timeParts++
		}
		switch {
		case r == 'W' && !inTime:
			d.Weeks = n
		case r == 'D' && !inTime:
			d.Days = n
		case r == 'H' && inTime:
			d.Hours = n
		case r == 'M' && inTime:
			d.Minutes = n
		case r == 'S' && inTime:
			d.Seconds = n
		default:
			return Dur{}, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
		}
	}
	if num != "" || (inTime && timeParts == 0) {
		return Dur{}, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}
	if d.IsZero() {
		d.Negative = false
	}
	return d, nil
}
