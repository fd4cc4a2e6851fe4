package recurrence

import (
	"testing"
	_ "time/tzdata"

	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCalendar(children ...*ical.Component) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//calrecur//test//EN")
	cal.Children = append(cal.Children, children...)
	return cal
}

func value(comp *ical.Component, name string) string {
	if p := comp.Props.Get(name); p != nil {
		return p.Value
	}
	return ""
}

func TestEngine_ExpandCalendar_FutureOverride(t *testing.T) {
	master := event(
		prop(ical.PropUID, "weekly@example.com"),
		prop(ical.PropSummary, "Standup"),
		prop(ical.PropDateTimeStart, "20200106T100000Z"),
		prop(ical.PropDateTimeEnd, "20200106T110000Z"),
		prop(ical.PropRecurrenceRule, "FREQ=WEEKLY;COUNT=4"),
	)
	moved := event(
		prop(ical.PropUID, "weekly@example.com"),
		prop(ical.PropSummary, "Standup (afternoon)"),
		prop(ical.PropRecurrenceID, "20200120T100000Z", ParamRange, RangeThisAndFuture),
		prop(ical.PropDateTimeStart, "20200120T140000Z"),
		prop(ical.PropDateTimeEnd, "20200120T150000Z"),
	)
	cal := newCalendar(master, moved)

	out := NewEngine().ExpandCalendar(cal, NewPeriod(utc(2020, 1, 1, 0, 0), utc(2020, 2, 1, 0, 0)))

	require.Len(t, out.Children, 4)
	expected := []struct {
		rid, start, end, summary string
	}{
		{"20200106T100000Z", "20200106T100000Z", "20200106T110000Z", "Standup"},
		{"20200113T100000Z", "20200113T100000Z", "20200113T110000Z", "Standup"},
		{"20200120T100000Z", "20200120T140000Z", "20200120T150000Z", "Standup (afternoon)"},
		{"20200127T100000Z", "20200127T140000Z", "20200127T150000Z", "Standup"},
	}
	for i, want := range expected {
		got := out.Children[i]
		assert.Equal(t, ical.CompEvent, got.Name)
		assert.Equal(t, want.rid, value(got, ical.PropRecurrenceID))
		assert.Equal(t, want.start, value(got, ical.PropDateTimeStart))
		assert.Equal(t, want.end, value(got, ical.PropDateTimeEnd))
		assert.Equal(t, want.summary, value(got, ical.PropSummary))
		assert.Nil(t, got.Props.Get(ical.PropRecurrenceRule))
	}

	assert.Equal(t, "2.0", value(out.Component, ical.PropVersion))
	assert.Len(t, cal.Children, 2, "input must not change")
	assert.NotNil(t, master.Props.Get(ical.PropRecurrenceRule))
}

func TestEngine_ExpandCalendar_Timezones(t *testing.T) {
	alarm := component(ical.CompAlarm,
		prop(ical.PropAction, "DISPLAY"),
		prop(ical.PropTrigger, "20240115T083000", ical.ParamTimezoneID, "Europe/Berlin", ical.ParamValue, "DATE-TIME"),
	)
	master := event(
		prop(ical.PropUID, "berlin@example.com"),
		prop(ical.PropDateTimeStart, "20240115T090000", ical.ParamTimezoneID, "Europe/Berlin"),
		prop(ical.PropDateTimeEnd, "20240115T100000", ical.ParamTimezoneID, "Europe/Berlin"),
		prop(ical.PropRecurrenceRule, "FREQ=DAILY;COUNT=2"),
		prop(ical.PropExceptionDates, "20240116T090000", ical.ParamTimezoneID, "Europe/Berlin"),
	)
	master.Children = append(master.Children, alarm)
	single := event(
		prop(ical.PropUID, "single@example.com"),
		prop(ical.PropDateTimeStart, "20240120T090000", ical.ParamTimezoneID, "America/New_York"),
		prop(ical.PropDuration, "PT30M"),
	)
	tz := component(ical.CompTimezone, prop(ical.PropTimezoneID, "Europe/Berlin"))
	cal := newCalendar(tz, master, single)

	out := NewEngine().ExpandCalendar(cal, NewPeriod(utc(2024, 1, 1, 0, 0), utc(2024, 2, 1, 0, 0)))

	require.Len(t, out.Children, 2)
	for _, child := range out.Children {
		assert.NotEqual(t, ical.CompTimezone, child.Name)
	}

	recurring := out.Children[0]
	assert.Equal(t, "20240115T080000Z", value(recurring, ical.PropDateTimeStart))
	assert.Equal(t, "20240115T090000Z", value(recurring, ical.PropDateTimeEnd))
	assert.Equal(t, "20240115T080000Z", value(recurring, ical.PropRecurrenceID))
	assert.Empty(t, recurring.Props.Get(ical.PropDateTimeStart).Params.Get(ical.ParamTimezoneID))
	require.Len(t, recurring.Children, 1)
	trigger := recurring.Children[0].Props.Get(ical.PropTrigger)
	assert.Equal(t, "20240115T073000Z", trigger.Value)
	assert.Empty(t, trigger.Params.Get(ical.ParamTimezoneID))

	plain := out.Children[1]
	assert.Equal(t, "20240120T140000Z", value(plain, ical.PropDateTimeStart))
	assert.Equal(t, "PT30M", value(plain, ical.PropDuration))
	assert.Nil(t, plain.Props.Get(ical.PropRecurrenceID), "non-recurring events get no RECURRENCE-ID")

	assert.Equal(t, "Europe/Berlin", master.Props.Get(ical.PropDateTimeStart).Params.Get(ical.ParamTimezoneID))
	assert.Equal(t, "Europe/Berlin", alarm.Props.Get(ical.PropTrigger).Params.Get(ical.ParamTimezoneID))
}

func TestEngine_ExpandCalendar_ShiftedDuration(t *testing.T) {
	master := event(
		prop(ical.PropUID, "dur@example.com"),
		prop(ical.PropDateTimeStart, "20240101T090000Z"),
		prop(ical.PropDuration, "PT1H"),
		prop(ical.PropRecurrenceRule, "FREQ=DAILY;COUNT=3"),
	)
	longer := event(
		prop(ical.PropUID, "dur@example.com"),
		prop(ical.PropRecurrenceID, "20240102T090000Z", ParamRange, RangeThisAndFuture),
		prop(ical.PropDateTimeStart, "20240102T090000Z"),
		prop(ical.PropDuration, "PT2H"),
	)

	out := NewEngine().ExpandCalendar(newCalendar(master, longer), NewPeriod(utc(2024, 1, 1, 0, 0), utc(2024, 2, 1, 0, 0)))

	require.Len(t, out.Children, 3)
	assert.Equal(t, "PT1H", value(out.Children[0], ical.PropDuration))
	assert.Equal(t, "PT2H", value(out.Children[1], ical.PropDuration))
	assert.Equal(t, "PT2H", value(out.Children[2], ical.PropDuration))
	assert.Equal(t, "20240103T090000Z", value(out.Children[2], ical.PropDateTimeStart))
	assert.Nil(t, out.Children[2].Props.Get(ical.PropDateTimeEnd))
}

func TestEngine_ExpandCalendar_Window(t *testing.T) {
	master := event(
		prop(ical.PropUID, "daily@example.com"),
		prop(ical.PropDateTimeStart, "20240101T090000Z"),
		prop(ical.PropDateTimeEnd, "20240101T100000Z"),
		prop(ical.PropRecurrenceRule, "FREQ=DAILY;COUNT=10"),
		prop(ical.PropExceptionDates, "20240104T090000Z"),
	)
	orphan := event(
		prop(ical.PropUID, "orphan@example.com"),
		prop(ical.PropRecurrenceID, "20240105T090000Z"),
		prop(ical.PropDateTimeStart, "20240105T120000Z"),
		prop(ical.PropDateTimeEnd, "20240105T130000Z"),
	)
	todo := component(ical.CompToDo,
		prop(ical.PropUID, "todo@example.com"),
		prop(ical.PropDateTimeStart, "20240101T080000Z"),
	)

	window := NewPeriod(utc(2024, 1, 3, 0, 0), utc(2024, 1, 6, 0, 0))
	out := NewEngine().ExpandCalendar(newCalendar(master, orphan, todo), window)

	var got []string
	for _, child := range out.Children {
		got = append(got, value(child, ical.PropUID)+" "+value(child, ical.PropDateTimeStart))
	}
	assert.Equal(t, []string{
		"daily@example.com 20240103T090000Z",
		"daily@example.com 20240105T090000Z",
		"orphan@example.com 20240105T120000Z",
	}, got)
}

func TestEngine_ExpandCalendar_Empty(t *testing.T) {
	out := NewEngine().ExpandCalendar(newCalendar(), NewPeriod(utc(2024, 1, 1, 0, 0), utc(2024, 2, 1, 0, 0)))
	assert.Empty(t, out.Children)
	assert.Equal(t, "-//calrecur//test//EN", value(out.Component, ical.PropProductID))
}

func TestEngine_ExpandCalendar_OverrideOrder(t *testing.T) {
	master := event(
		prop(ical.PropUID, "daily@example.com"),
		prop(ical.PropDateTimeStart, "20240101T090000Z"),
		prop(ical.PropDateTimeEnd, "20240101T093000Z"),
		prop(ical.PropRecurrenceRule, "FREQ=DAILY;COUNT=4"),
	)
	hourLater := event(
		prop(ical.PropUID, "daily@example.com"),
		prop(ical.PropRecurrenceID, "20240102T090000Z", ParamRange, RangeThisAndFuture),
		prop(ical.PropDateTimeStart, "20240102T100000Z"),
		prop(ical.PropDateTimeEnd, "20240102T103000Z"),
	)
	twoHoursLater := event(
		prop(ical.PropUID, "daily@example.com"),
		prop(ical.PropRecurrenceID, "20240103T090000Z", ParamRange, RangeThisAndFuture),
		prop(ical.PropDateTimeStart, "20240103T110000Z"),
		prop(ical.PropDateTimeEnd, "20240103T113000Z"),
	)
	window := NewPeriod(utc(2024, 1, 1, 0, 0), utc(2024, 2, 1, 0, 0))
	want := []string{"20240101T090000Z", "20240102T100000Z", "20240103T110000Z", "20240104T110000Z"}

	tests := []struct {
		name     string
		children []*ical.Component
	}{
		{name: "calendar order", children: []*ical.Component{master, hourLater, twoHoursLater}},
		{name: "reversed overrides", children: []*ical.Component{master, twoHoursLater, hourLater}},
		{name: "overrides first", children: []*ical.Component{twoHoursLater, hourLater, master}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := NewEngine().ExpandCalendar(newCalendar(tt.children...), window)
			var got []string
			for _, child := range out.Children {
				got = append(got, value(child, ical.PropDateTimeStart))
			}
			assert.Equal(t, want, got)
			assert.Equal(t, "20240104T113000Z", value(out.Children[3], ical.PropDateTimeEnd))
		})
	}
}

func TestEngine_LimitRecurrenceSet(t *testing.T) {
	uid := prop(ical.PropUID, "weekly@example.com")
	master := event(uid,
		prop(ical.PropDateTimeStart, "20200106T100000Z"),
		prop(ical.PropDateTimeEnd, "20200106T110000Z"),
		prop(ical.PropRecurrenceRule, "FREQ=WEEKLY;COUNT=6"),
	)
	override := func(rid, start, end string, params ...string) *ical.Component {
		return event(uid,
			prop(ical.PropRecurrenceID, rid, params...),
			prop(ical.PropDateTimeStart, start),
			prop(ical.PropDateTimeEnd, end),
		)
	}
	future := override("20200113T100000Z", "20200113T140000Z", "20200113T150000Z", ParamRange, RangeThisAndFuture)
	movedIn := override("20200106T100000Z", "20200121T100000Z", "20200121T110000Z")
	inside := override("20200127T100000Z", "20200127T110000Z", "20200127T120000Z")
	after := override("20200210T100000Z", "20200210T120000Z", "20200210T130000Z")
	laterFuture := override("20200203T100000Z", "20200203T090000Z", "20200203T100000Z", ParamRange, RangeThisAndFuture)
	note := component(ical.CompJournal, prop(ical.PropUID, "note@example.com"))
	cal := newCalendar(master, future, movedIn, inside, after, laterFuture, note)

	out := NewEngine().LimitRecurrenceSet(cal, NewPeriod(utc(2020, 1, 20, 0, 0), utc(2020, 2, 1, 0, 0)))

	var got []string
	for _, child := range out.Children {
		got = append(got, child.Name+" "+value(child, ical.PropRecurrenceID))
	}
	assert.Equal(t, []string{
		"VEVENT ",
		"VEVENT 20200113T100000Z",
		"VEVENT 20200106T100000Z",
		"VEVENT 20200127T100000Z",
		"VJOURNAL ",
	}, got)
	assert.NotNil(t, out.Children[0].Props.Get(ical.PropRecurrenceRule), "masters are not expanded")
	assert.Len(t, cal.Children, 7, "input must not change")
}
