package recurrence

import (
	"slices"

	"github.com/emersion/go-ical"
)

// recurrenceGroup is the master and overrides sharing one UID.
type recurrenceGroup struct {
	uid       string
	master    *Component
	overrides []*Component
}

// ExpandCalendar returns a new calendar holding one component per
// occurrence visible in window.
//
// Top-level properties are copied. TZIDs resolve against the calendar's
// VTIMEZONE definitions first and the IANA database second, and every
// TZID-qualified date-time is rewritten in UTC. VTIMEZONE components are
// then dropped, unless some value could not be converted. Components that
// cannot recur are copied through. Recurring components are expanded per
// UID: the master first, then each override in RECURRENCE-ID order. The
// input calendar is never modified.
func (e *Engine) ExpandCalendar(cal *ical.Calendar, window Period) *ical.Calendar {
	out := ical.NewCalendar()
	for name, props := range cal.Props {
		out.Props[name] = copyProps(props)
	}

	zones := e.Timezones(cal.Children)
	var groups []*recurrenceGroup
	byUID := make(map[string]*recurrenceGroup)
	var others []*Component
	var timezones []*ical.Component

	for _, child := range cal.Children {
		comp := e.Wrap(child).WithTimezones(zones)
		switch {
		case comp.IsRecurrable():
			uid := comp.UID()
			g, ok := byUID[uid]
			if !ok || uid == "" {
				g = &recurrenceGroup{uid: uid}
				groups = append(groups, g)
				if uid != "" {
					byUID[uid] = g
				}
			}
			if comp.RecurrenceID().IsPresent() {
				g.overrides = append(g.overrides, comp)
			} else if g.master == nil {
				g.master = comp
			} else {
				e.logger.Warn("ignoring duplicate master component", "uid", uid)
			}
		case child.Name == ical.CompTimezone:
			timezones = append(timezones, child)
		default:
			others = append(others, comp)
		}
	}

	var children []*ical.Component
	unresolved := 0
	for _, comp := range others {
		copied := comp.DeepCopy()
		if !normalizeToUTC(comp.view(copied)) {
			unresolved++
		}
		children = append(children, copied)
	}
	for _, g := range groups {
		expanded, n := e.expandGroup(g, window)
		children = append(children, expanded...)
		unresolved += n
	}

	if unresolved > 0 {
		e.logger.Warn("keeping timezone definitions for values not converted to UTC",
			"components", unresolved, "timezones", len(timezones))
		for _, tz := range timezones {
			out.Children = append(out.Children, deepCopy(tz))
		}
	}
	out.Children = append(out.Children, children...)
	return out
}

// expandGroup materializes the visible instances of one UID and reports
// how many of them kept values that could not be converted to UTC.
func (e *Engine) expandGroup(g *recurrenceGroup, window Period) ([]*ical.Component, int) {
	table := NewInstanceTable()
	if g.master != nil {
		table = e.ExpandMaster(g.master, window.Start, window.End)
	} else {
		e.logger.Debug("expanding overrides without a master", "uid", g.uid, "overrides", len(g.overrides))
	}

	// Later THISANDFUTURE overrides must win over earlier ones whatever
	// their order in the calendar.
	overrides := slices.Clone(g.overrides)
	slices.SortStableFunc(overrides, func(a, b *Component) int {
		ra, _ := a.RecurrenceID().Get()
		rb, _ := b.RecurrenceID().Get()
		return ra.Compare(rb)
	})
	for _, o := range overrides {
		e.ApplyOverride(table, o)
	}

	var template *ical.Component
	recurring := false
	if g.master != nil {
		recurring = g.master.IsRecurring()
		template = g.master.DeepCopy()
		for _, name := range recurrenceProps {
			delete(template.Props, name)
		}
	}

	var out []*ical.Component
	unresolved := 0
	table.Ascend(func(inst Instance) bool {
		if !inst.Period().Intersects(window) {
			return true
		}
		var copied *ical.Component
		switch {
		case inst.Overridden:
			copied = inst.Source.DeepCopy()
		case template != nil:
			copied = deepCopy(template)
		default:
			return true
		}
		if !normalizeToUTC(inst.Source.view(copied)) {
			unresolved++
		}

		if recurring {
			setInstantProp(copied, ical.PropRecurrenceID, inst.RecurrenceID.UTC())
			setInstantProp(copied, ical.PropDateTimeStart, inst.Start.UTC())
			if copied.Props.Get(ical.PropDateTimeEnd) != nil {
				setInstantProp(copied, ical.PropDateTimeEnd, inst.End.UTC())
			} else if inst.Shifted && copied.Props.Get(ical.PropDuration) != nil {
				copied.Props[ical.PropDuration] = []ical.Prop{{
					Name:   ical.PropDuration,
					Params: make(ical.Params),
					Value:  Between(inst.Start, inst.End).String(),
				}}
			}
		}
		out = append(out, copied)
		return true
	})

	e.logger.Debug("expanded recurrence set",
		"uid", g.uid, "instances", table.Len(), "visible", len(out), "overrides", len(g.overrides))
	return out, unresolved
}

// LimitRecurrenceSet returns a copy of cal without the overrides that
// cannot affect limit. An override is kept when its own interval or its
// RECURRENCE-ID falls in limit, or when it is a THISANDFUTURE override
// taking effect before limit ends. Masters, timezones and every other
// component are kept unchanged; nothing is expanded or converted to UTC.
func (e *Engine) LimitRecurrenceSet(cal *ical.Calendar, limit Period) *ical.Calendar {
	out := ical.NewCalendar()
	for name, props := range cal.Props {
		out.Props[name] = copyProps(props)
	}

	zones := e.Timezones(cal.Children)
	dropped := 0
	for _, child := range cal.Children {
		comp := e.Wrap(child).WithTimezones(zones)
		if comp.IsRecurrable() && !affects(comp, limit) {
			dropped++
			continue
		}
		out.Children = append(out.Children, comp.DeepCopy())
	}
	e.logger.Debug("limited recurrence set", "limit", limit, "dropped", dropped)
	return out
}

// affects reports whether a component may contribute an instance to limit.
// Components that are not overrides always do.
func affects(comp *Component, limit Period) bool {
	rid, ok := comp.RecurrenceID().Get()
	if !ok {
		return true
	}
	if own, _, ok := comp.Interval(); ok && own.Intersects(limit) {
		return true
	}
	if !rid.Before(limit.Start) && rid.Before(limit.End) {
		return true
	}
	return comp.ThisAndFuture() && rid.Before(limit.End)
}
