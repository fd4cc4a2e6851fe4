package recurrence

import (
	"github.com/emersion/go-ical"
)

// ExpandMaster builds the instance table of a master component for the
// window [rangeStart, rangeEnd).
//
// The master's own occurrence is added whenever it starts before
// rangeEnd, even if it ends before rangeStart, so that overrides can always
// find it. Callers filter the table against the window afterwards.
// Exclusions are applied after all inclusions. A master without DTSTART
// yields an empty table.
func (e *Engine) ExpandMaster(master *Component, rangeStart, rangeEnd Instant) *InstanceTable {
	table := NewInstanceTable()

	own, duration, ok := master.Interval()
	if !ok {
		if master.Raw().Props.Get(ical.PropDateTimeStart) != nil {
			e.logger.Warn("skipping master with unreadable DTSTART", "uid", master.UID(), "component", master.Name())
		} else {
			e.logger.Debug("skipping master without DTSTART", "uid", master.UID(), "component", master.Name())
		}
		return table
	}
	start := own.Start
	window := Period{Start: rangeStart, End: rangeEnd}

	if start.Before(rangeEnd) {
		table.Put(Instance{Source: master, RecurrenceID: start, Start: start, End: own.End})
	}

	info := master.RecurrenceInfo()

	for _, period := range info.RPeriods {
		if period.Intersects(window) {
			table.Put(Instance{Source: master, RecurrenceID: period.Start, Start: period.Start, End: period.End})
		}
	}
	for _, rdate := range info.RDates {
		rdate = rdate.As(start)
		table.Put(Instance{Source: master, RecurrenceID: rdate, Start: rdate, End: duration.Apply(rdate)})
	}

	for _, rule := range info.RRules {
		starts, err := e.evaluator.Occurrences(rule, start, rangeStart, rangeEnd)
		if err != nil {
			e.logger.Warn("failed to evaluate recurrence rule", "uid", master.UID(), "rrule", rule, "error", err)
			continue
		}
		for _, s := range starts {
			if e.config.MaxInstances > 0 && table.Len() >= e.config.MaxInstances {
				e.logger.Warn("instance cap reached, truncating expansion",
					"uid", master.UID(), "cap", e.config.MaxInstances)
				break
			}
			table.Put(Instance{Source: master, RecurrenceID: s, Start: s, End: duration.Apply(s)})
		}
	}

	for _, exdate := range info.ExDates {
		table.Delete(exdate.As(start))
	}

	for _, rule := range info.ExRules {
		starts, err := e.evaluator.Occurrences(rule, start, rangeStart, rangeEnd)
		if err != nil {
			e.logger.Warn("failed to evaluate exception rule", "uid", master.UID(), "exrule", rule, "error", err)
			continue
		}
		for _, s := range starts {
			table.Delete(s)
		}
	}

	return table
}
