package recurrence

import (
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/samber/mo"
)

// Property and parameter names go-ical has no constants for.
const (
	PropExceptionRule  = "EXRULE"
	ParamRange         = "RANGE"
	RangeThisAndFuture = "THISANDFUTURE"
	RangeThisAndPrior  = "THISANDPRIOR"

	valuePeriod       = "PERIOD"
	transpTransparent = "TRANSPARENT"
)

// recurrenceProps are stripped from the template used to materialize
// generated instances.
var recurrenceProps = []string{
	ical.PropRecurrenceRule,
	ical.PropRecurrenceDates,
	PropExceptionRule,
	ical.PropExceptionDates,
}

// Component is a read-only view of an iCalendar component. Floating
// date-times are resolved in the location the view was created with.
type Component struct {
	raw   *ical.Component
	loc   *time.Location
	zones *Timezones
}

// NewComponent wraps comp. A nil loc resolves floating times in UTC.
func NewComponent(comp *ical.Component, loc *time.Location) *Component {
	if loc == nil {
		loc = time.UTC
	}
	return &Component{raw: comp, loc: loc}
}

// WithTimezones returns a view of the same component that resolves TZIDs
// against zones before the IANA database.
func (c *Component) WithTimezones(zones *Timezones) *Component {
	return &Component{raw: c.raw, loc: c.loc, zones: zones}
}

// Raw returns the wrapped component. Callers must not modify it.
func (c *Component) Raw() *ical.Component {
	return c.raw
}

func (c *Component) Name() string {
	return c.raw.Name
}

// UID returns the UID property value, or "" when absent.
func (c *Component) UID() string {
	if p := c.raw.Props.Get(ical.PropUID); p != nil {
		return p.Value
	}
	return ""
}

// IsRecurrable reports whether the component can carry a recurrence set.
func (c *Component) IsRecurrable() bool {
	switch c.raw.Name {
	case ical.CompEvent, ical.CompToDo, ical.CompJournal:
		return true
	}
	return false
}

// ConsumesTime reports whether the component blocks time for free/busy.
// Only opaque events do.
func (c *Component) ConsumesTime() bool {
	if c.raw.Name != ical.CompEvent {
		return false
	}
	if p := c.raw.Props.Get(ical.PropTransparency); p != nil {
		return !strings.EqualFold(strings.TrimSpace(p.Value), transpTransparent)
	}
	return true
}

// IsRecurring reports whether the component has any recurrence property.
func (c *Component) IsRecurring() bool {
	for _, name := range recurrenceProps {
		if len(c.raw.Props[name]) > 0 {
			return true
		}
	}
	return false
}

// SubComponents returns views of the nested components, e.g. VALARMs.
func (c *Component) SubComponents() []*Component {
	out := make([]*Component, 0, len(c.raw.Children))
	for _, child := range c.raw.Children {
		out = append(out, c.view(child))
	}
	return out
}

// Start returns DTSTART.
func (c *Component) Start() mo.Option[Instant] {
	return c.instantProp(ical.PropDateTimeStart)
}

// End returns DTEND, or DTSTART plus DURATION when DTEND is absent.
func (c *Component) End() mo.Option[Instant] {
	if end := c.instantProp(ical.PropDateTimeEnd); end.IsPresent() {
		return end
	}
	start, ok := c.Start().Get()
	if !ok {
		return mo.None[Instant]()
	}
	p := c.raw.Props.Get(ical.PropDuration)
	if p == nil {
		return mo.None[Instant]()
	}
	d, err := ParseDur(p.Value)
	if err != nil {
		return mo.None[Instant]()
	}
	return mo.Some(d.Apply(start))
}

// Interval returns the component's own [start, end) and its nominal
// duration. Without DTEND or DURATION a DATE lasts one day and a DATE-TIME
// has no length.
func (c *Component) Interval() (Period, Dur, bool) {
	start, ok := c.Start().Get()
	if !ok {
		return Period{}, Dur{}, false
	}
	if end, ok := c.End().Get(); ok {
		return Period{Start: start, End: end}, Between(start, end), true
	}
	var d Dur
	if start.DateOnly {
		d.Days = 1
	}
	return Period{Start: start, End: d.Apply(start)}, d, true
}

// RecurrenceID returns the RECURRENCE-ID of an override.
func (c *Component) RecurrenceID() mo.Option[Instant] {
	return c.instantProp(ical.PropRecurrenceID)
}

// ThisAndFuture reports whether the RECURRENCE-ID carries
// RANGE=THISANDFUTURE. THISANDPRIOR is not supported and reads as false.
func (c *Component) ThisAndFuture() bool {
	p := c.raw.Props.Get(ical.PropRecurrenceID)
	if p == nil {
		return false
	}
	return strings.EqualFold(p.Params.Get(ParamRange), RangeThisAndFuture)
}

// RecurrenceInfo collects the recurrence properties of the component.
func (c *Component) RecurrenceInfo() RecurrenceInfo {
	info := RecurrenceInfo{
		RecurrenceID:  c.RecurrenceID(),
		ThisAndFuture: c.ThisAndFuture(),
	}
	for _, p := range c.raw.Props[ical.PropRecurrenceRule] {
		if v := strings.TrimSpace(p.Value); v != "" {
			info.RRules = append(info.RRules, v)
		}
	}
	for _, p := range c.raw.Props[PropExceptionRule] {
		if v := strings.TrimSpace(p.Value); v != "" {
			info.ExRules = append(info.ExRules, v)
		}
	}
	for _, p := range c.raw.Props[ical.PropRecurrenceDates] {
		dates, periods := c.parseDateList(p)
		info.RDates = append(info.RDates, dates...)
		info.RPeriods = append(info.RPeriods, periods...)
	}
	for _, p := range c.raw.Props[ical.PropExceptionDates] {
		dates, _ := c.parseDateList(p)
		info.ExDates = append(info.ExDates, dates...)
	}
	return info
}

// view wraps comp with the same floating location and timezones as c.
func (c *Component) view(comp *ical.Component) *Component {
	return &Component{raw: comp, loc: c.loc, zones: c.zones}
}

// DeepCopy returns an independent copy of the wrapped component tree.
func (c *Component) DeepCopy() *ical.Component {
	return deepCopy(c.raw)
}

func (c *Component) instantProp(name string) mo.Option[Instant] {
	p := c.raw.Props.Get(name)
	if p == nil {
		return mo.None[Instant]()
	}
	inst, err := c.parseInstant(p.Params, p.Value)
	if err != nil {
		return mo.None[Instant]()
	}
	return mo.Some(inst)
}

// parseDateList splits a multi-valued RDATE or EXDATE property. Values
// that fail to parse are dropped.
func (c *Component) parseDateList(p ical.Prop) ([]Instant, []Period) {
	var dates []Instant
	var periods []Period
	isPeriod := strings.EqualFold(p.Params.Get(ical.ParamValue), valuePeriod)
	for _, v := range strings.Split(p.Value, ",") {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if isPeriod || strings.Contains(v, "/") {
			if period, err := c.parsePeriod(p.Params, v); err == nil {
				periods = append(periods, period)
			}
			continue
		}
		if inst, err := c.parseInstant(p.Params, v); err == nil {
			dates = append(dates, inst)
		}
	}
	return dates, periods
}

// parseInstant parses one value of a date property, honouring TZID.
func (c *Component) parseInstant(params ical.Params, value string) (Instant, error) {
	tzid := params.Get(ical.ParamTimezoneID)
	if tzid == "" || strings.HasSuffix(strings.TrimSpace(value), "Z") {
		return ParseInstant(value, c.loc)
	}
	tz, err := c.zones.Location(tzid)
	if err != nil {
		return Instant{}, err
	}
	inst, err := ParseInstant(value, tz)
	if err != nil {
		return Instant{}, err
	}
	inst.Floating = false
	return inst, nil
}

func (c *Component) parsePeriod(params ical.Params, value string) (Period, error) {
	tzid := params.Get(ical.ParamTimezoneID)
	if tzid == "" {
		return ParsePeriod(value, c.loc)
	}
	tz, err := c.zones.Location(tzid)
	if err != nil {
		return Period{}, err
	}
	p, err := ParsePeriod(value, tz)
	if err != nil {
		return Period{}, err
	}
	p.Start.Floating = false
	p.End.Floating = false
	return p, nil
}

func deepCopy(comp *ical.Component) *ical.Component {
	out := &ical.Component{
		Name:  comp.Name,
		Props: make(ical.Props, len(comp.Props)),
	}
	for name, props := range comp.Props {
		out.Props[name] = copyProps(props)
	}
	for _, child := range comp.Children {
		out.Children = append(out.Children, deepCopy(child))
	}
	return out
}

func copyParams(params ical.Params) ical.Params {
	out := make(ical.Params, len(params))
	for k, v := range params {
		out[k] = append([]string(nil), v...)
	}
	return out
}
