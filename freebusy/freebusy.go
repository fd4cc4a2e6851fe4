// Package freebusy derives busy and free time from calendar components and
// builds VFREEBUSY replies.
package freebusy

import (
	"io"
	"log/slog"
	"time"

	"github.com/cyp0633/calrecur/recurrence"
	"github.com/emersion/go-ical"
)

// Computer answers free/busy questions over a flat set of components.
type Computer struct {
	engine *recurrence.Engine
	logger *slog.Logger
	now    func() time.Time
}

// Option modifies a Computer
type Option func(*Computer)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Computer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock sets the clock used for DTSTAMP
func WithClock(now func() time.Time) Option {
	return func(c *Computer) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a Computer expanding recurring events with engine. A nil
// engine uses recurrence.NewEngine().
func New(engine *recurrence.Engine, opts ...Option) *Computer {
	if engine == nil {
		engine = recurrence.NewEngine()
	}
	c := &Computer{
		engine: engine,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ConsumedTime returns the normalized periods consumed by components in
// [rangeStart, rangeEnd). Periods that do not intersect the range are
// discarded; the rest are merged into disjoint periods sorted by start.
// VTIMEZONE components among them define the TZIDs the others use.
func (c *Computer) ConsumedTime(components []*ical.Component, rangeStart, rangeEnd recurrence.Instant) []recurrence.Period {
	window := recurrence.NewPeriod(rangeStart, rangeEnd)
	zones := c.engine.Timezones(components)
	var periods []recurrence.Period
	for _, raw := range components {
		comp := c.engine.Wrap(raw).WithTimezones(zones)
		for _, p := range c.engine.ConsumedTime(comp, rangeStart, rangeEnd) {
			if p.Intersects(window) {
				periods = append(periods, p)
			}
		}
	}
	return recurrence.NormalizePeriods(periods)
}

// BusyTime returns the consumed periods of components intersecting
// [start, end).
func (c *Computer) BusyTime(start, end recurrence.Instant, components []*ical.Component) []recurrence.Period {
	window := recurrence.NewPeriod(start, end)
	consumed := c.ConsumedTime(components, start, end)
	busy := consumed[:0]
	for _, p := range consumed {
		if p.Before(window) || p.After(window) {
			continue
		}
		busy = append(busy, p)
	}
	return busy
}

// FreeTime returns the gaps of at least minDuration between the busy
// periods of components in [start, end).
func (c *Computer) FreeTime(start, end recurrence.Instant, minDuration recurrence.Dur, components []*ical.Component) []recurrence.Period {
	busy := c.BusyTime(start, end, components)
	c.logger.Debug("computing free time", "start", start, "end", end, "busy", len(busy))
	return Gaps(start, end, minDuration, busy)
}

// Gaps walks normalized busy periods and returns every free gap in
// [start, end) lasting at least minDuration. The days of minDuration are
// counted on the wall clock of the gap's start, so "P1D" fits a 23 hour
// day at a DST change while "PT24H" does not.
func Gaps(start, end recurrence.Instant, minDuration recurrence.Dur, busy []recurrence.Period) []recurrence.Period {
	var free []recurrence.Period
	gapStart := start
	for _, b := range busy {
		if b.Start.After(gapStart) && lasts(gapStart, b.Start, minDuration) {
			free = append(free, recurrence.NewPeriod(gapStart, b.Start))
		}
		if b.End.After(gapStart) {
			gapStart = b.End
		}
	}
	if end.After(gapStart) && lasts(gapStart, end, minDuration) {
		free = append(free, recurrence.NewPeriod(gapStart, end))
	}
	return free
}

func lasts(start, end recurrence.Instant, d recurrence.Dur) bool {
	return !d.Apply(start).After(end)
}

// Truncate clips periods to limit. Periods entirely outside limit are
// dropped, periods inside it are kept as they are.
func Truncate(periods []recurrence.Period, limit recurrence.Period) []recurrence.Period {
	var out []recurrence.Period
	for _, p := range periods {
		if p.Before(limit) || p.After(limit) {
			continue
		}
		if !limit.Contains(p) {
			if p.Start.Before(limit.Start) {
				p.Start = limit.Start
			}
			if p.End.After(limit.End) {
				p.End = limit.End
			}
		}
		out = append(out, p)
	}
	return out
}
