package recurrence

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Period is the half-open interval [Start, End).
type Period struct {
	Start Instant
	End   Instant
}

// NewPeriod builds a period from two instants.
func NewPeriod(start, end Instant) Period {
	return Period{Start: start, End: end}
}

// Before reports whether p ends at or before o starts.
func (p Period) Before(o Period) bool {
	return !p.End.After(o.Start)
}

// After reports whether p starts at or after o ends.
func (p Period) After(o Period) bool {
	return !p.Start.Before(o.End)
}

// Intersects reports whether p and o share any time.
func (p Period) Intersects(o Period) bool {
	return p.Start.Before(o.End) && p.End.After(o.Start)
}

// Contains reports whether o lies entirely inside p.
func (p Period) Contains(o Period) bool {
	return !o.Start.Before(p.Start) && !o.End.After(p.End)
}

// Duration returns the nominal length of p.
func (p Period) Duration() Dur {
	return Between(p.Start, p.End)
}

// UTC converts both bounds with Instant.UTC.
func (p Period) UTC() Period {
	return Period{Start: p.Start.UTC(), End: p.End.UTC()}
}

// String renders p in the explicit "start/end" PERIOD form.
func (p Period) String() string {
	return p.Start.Format() + "/" + p.End.Format()
}

// ParsePeriod parses a PERIOD value in either the "start/end" or the
// "start/duration" form.
func ParsePeriod(value string, loc *time.Location) (Period, error) {
	startStr, endStr, ok := strings.Cut(strings.TrimSpace(value), "/")
	if !ok {
		return Period{}, fmt.Errorf("invalid period %q: missing '/'", value)
	}
	start, err := ParseInstant(startStr, loc)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q: %w", value, err)
	}
	if strings.ContainsAny(endStr, "Pp") {
		d, err := ParseDur(endStr)
		if err != nil {
			return Period{}, fmt.Errorf("invalid period %q: %w", value, err)
		}
		return Period{Start: start, End: d.Apply(start)}, nil
	}
	end, err := ParseInstant(endStr, loc)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q: %w", value, err)
	}
	return Period{Start: start, End: end}, nil
}

// NormalizePeriods returns the minimal set of disjoint periods covering the
// input, sorted by start. Overlapping and touching periods are merged. The
// input slice is not modified.
func NormalizePeriods(periods []Period) []Period {
	if len(periods) == 0 {
		return nil
	}
	sorted := slices.Clone(periods)
	slices.SortFunc(sorted, func(a, b Period) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return a.End.Compare(b.End)
	})

	out := make([]Period, 0, len(sorted))
	cur := sorted[0]
	for _, p := range sorted[1:] {
		if p.Start.After(cur.End) {
			out = append(out, cur)
			cur = p
			continue
		}
		if p.End.After(cur.End) {
			cur.End = p.End
		}
	}
	return append(out, cur)
}
