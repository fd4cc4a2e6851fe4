package freebusy

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/cyp0633/calrecur/recurrence"
	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, min int) recurrence.Instant {
	return recurrence.DateTime(time.Date(2024, 1, 1, hour, min, 0, 0, time.UTC))
}

func period(startHour, startMin, endHour, endMin int) recurrence.Period {
	return recurrence.NewPeriod(at(startHour, startMin), at(endHour, endMin))
}

func newEvent(uid, start, end string, extra ...ical.Prop) *ical.Component {
	comp := ical.NewComponent(ical.CompEvent)
	comp.Props.SetText(ical.PropUID, uid)
	comp.Props[ical.PropDateTimeStart] = []ical.Prop{{Name: ical.PropDateTimeStart, Params: make(ical.Params), Value: start}}
	comp.Props[ical.PropDateTimeEnd] = []ical.Prop{{Name: ical.PropDateTimeEnd, Params: make(ical.Params), Value: end}}
	for _, p := range extra {
		if p.Params == nil {
			p.Params = make(ical.Params)
		}
		comp.Props[p.Name] = append(comp.Props[p.Name], p)
	}
	return comp
}

func render(periods []recurrence.Period) []string {
	out := make([]string, len(periods))
	for i, p := range periods {
		out[i] = p.String()
	}
	return out
}

func TestComputer_FreeTime(t *testing.T) {
	components := []*ical.Component{
		newEvent("a", "20240101T090000Z", "20240101T100000Z"),
		newEvent("b", "20240101T103000Z", "20240101T110000Z"),
	}
	c := New(nil)

	free := c.FreeTime(at(9, 0), at(12, 0), recurrence.Dur{Minutes: 20}, components)
	assert.Equal(t, []string{
		"20240101T100000Z/20240101T103000Z",
		"20240101T110000Z/20240101T120000Z",
	}, render(free))

	t.Run("short gaps are dropped", func(t *testing.T) {
		free := c.FreeTime(at(9, 0), at(12, 0), recurrence.Dur{Minutes: 45}, components)
		assert.Equal(t, []string{"20240101T110000Z/20240101T120000Z"}, render(free))
	})

	t.Run("no events", func(t *testing.T) {
		free := c.FreeTime(at(9, 0), at(12, 0), recurrence.Dur{}, nil)
		assert.Equal(t, []string{"20240101T090000Z/20240101T120000Z"}, render(free))
	})
}

func TestComputer_BusyTime(t *testing.T) {
	components := []*ical.Component{
		newEvent("a", "20240101T083000Z", "20240101T093000Z"),
		newEvent("b", "20240101T091500Z", "20240101T100000Z"),
		newEvent("c", "20240101T130000Z", "20240101T140000Z"),
		newEvent("transparent", "20240101T110000Z", "20240101T120000Z",
			ical.Prop{Name: ical.PropTransparency, Value: "TRANSPARENT"}),
		newEvent("before", "20240101T060000Z", "20240101T070000Z"),
		newEvent("daily", "20231231T113000Z", "20231231T114500Z",
			ical.Prop{Name: ical.PropRecurrenceRule, Value: "FREQ=DAILY;COUNT=3"}),
	}
	todo := ical.NewComponent(ical.CompToDo)
	todo.Props.SetText(ical.PropUID, "todo")
	todo.Props[ical.PropDateTimeStart] = []ical.Prop{{Name: ical.PropDateTimeStart, Params: make(ical.Params), Value: "20240101T100000Z"}}
	todo.Props[ical.PropDuration] = []ical.Prop{{Name: ical.PropDuration, Params: make(ical.Params), Value: "PT1H"}}
	components = append(components, todo)

	busy := New(nil).BusyTime(at(9, 0), at(17, 0), components)
	assert.Equal(t, []string{
		"20240101T083000Z/20240101T100000Z",
		"20240101T113000Z/20240101T114500Z",
		"20240101T130000Z/20240101T140000Z",
	}, render(busy))
}

func TestComputer_ComplementLaw(t *testing.T) {
	sets := [][]*ical.Component{
		nil,
		{newEvent("a", "20240101T090000Z", "20240101T170000Z")},
		{
			newEvent("a", "20240101T070000Z", "20240101T091000Z"),
			newEvent("b", "20240101T092000Z", "20240101T100000Z"),
			newEvent("c", "20240101T095000Z", "20240101T103000Z"),
			newEvent("d", "20240101T120000Z", "20240101T121500Z"),
			newEvent("e", "20240101T163000Z", "20240101T190000Z"),
		},
	}
	window := period(9, 0, 17, 0)

	for _, minDur := range []recurrence.Dur{{}, {Minutes: 15}, {Hours: 2}} {
		for i, components := range sets {
			c := New(nil)
			busy := c.BusyTime(window.Start, window.End, components)
			free := c.FreeTime(window.Start, window.End, minDur, components)

			for j, f := range free {
				assert.GreaterOrEqual(t, f.Duration().Compare(minDur), 0, "set %d: free period shorter than %s", i, minDur)
				assert.True(t, window.Contains(f))
				if j > 0 {
					assert.False(t, free[j-1].Intersects(f), "set %d: free periods overlap", i)
				}
				for _, b := range busy {
					assert.False(t, b.Intersects(f), "set %d: free overlaps busy", i)
				}
			}

			covered := append(Truncate(busy, window), free...)
			uncovered := Gaps(window.Start, window.End, recurrence.Dur{}, recurrence.NormalizePeriods(covered))
			for _, gap := range uncovered {
				assert.Equal(t, -1, gap.Duration().Compare(minDur), "set %d: gap %s not reported as free", i, gap)
			}
		}
	}
}

func TestGaps(t *testing.T) {
	busy := []recurrence.Period{period(9, 0, 10, 0), period(10, 30, 11, 0)}
	assert.Equal(t, []string{
		"20240101T100000Z/20240101T103000Z",
		"20240101T110000Z/20240101T120000Z",
	}, render(Gaps(at(9, 0), at(12, 0), recurrence.Dur{Minutes: 20}, busy)))

	t.Run("busy covers everything", func(t *testing.T) {
		assert.Empty(t, Gaps(at(9, 0), at(12, 0), recurrence.Dur{}, []recurrence.Period{period(8, 0, 13, 0)}))
	})

	t.Run("days follow the wall clock", func(t *testing.T) {
		newYork, err := time.LoadLocation("America/New_York")
		require.NoError(t, err)
		// 2024-03-10 is 23 hours long in New York.
		start := recurrence.DateTime(time.Date(2024, 3, 10, 0, 0, 0, 0, newYork))
		end := recurrence.DateTime(time.Date(2024, 3, 11, 0, 0, 0, 0, newYork))

		assert.Len(t, Gaps(start, end, recurrence.Dur{Days: 1}, nil), 1)
		assert.Empty(t, Gaps(start, end, recurrence.Dur{Hours: 24}, nil))
	})
}

func TestTruncate(t *testing.T) {
	limit := period(10, 0, 12, 0)
	got := Truncate([]recurrence.Period{
		period(8, 0, 9, 0),
		period(9, 30, 10, 30),
		period(10, 45, 11, 15),
		period(11, 30, 13, 0),
		period(12, 0, 13, 0),
	}, limit)
	assert.Equal(t, []string{
		"20240101T100000Z/20240101T103000Z",
		"20240101T104500Z/20240101T111500Z",
		"20240101T113000Z/20240101T120000Z",
	}, render(got))
	assert.Empty(t, Truncate(nil, limit))
}

func TestComputer_ConsumedTime_Recurring(t *testing.T) {
	master := newEvent("weekly", "20240101T090000Z", "20240101T100000Z",
		ical.Prop{Name: ical.PropRecurrenceRule, Value: "FREQ=WEEKLY;COUNT=3"})
	start := recurrence.DateTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	end := recurrence.DateTime(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))

	got := New(recurrence.NewEngine()).ConsumedTime([]*ical.Component{master}, start, end)
	require.Len(t, got, 3)
	assert.Equal(t, "20240115T090000Z/20240115T100000Z", got[2].String())
}

func TestComputer_ConsumedTime_DefinedTimezone(t *testing.T) {
	tz := ical.NewComponent(ical.CompTimezone)
	tz.Props.SetText(ical.PropTimezoneID, "Eastern Standard Time")
	for _, o := range []struct{ name, from, to, rule string }{
		{ical.CompTimezoneStandard, "-0400", "-0500", "FREQ=YEARLY;BYDAY=1SU;BYMONTH=11"},
		{ical.CompTimezoneDaylight, "-0500", "-0400", "FREQ=YEARLY;BYDAY=2SU;BYMONTH=3"},
	} {
		obs := ical.NewComponent(o.name)
		for name, v := range map[string]string{
			ical.PropDateTimeStart:      "16010101T020000",
			ical.PropTimezoneOffsetFrom: o.from,
			ical.PropTimezoneOffsetTo:   o.to,
			ical.PropRecurrenceRule:     o.rule,
		} {
			obs.Props.Set(&ical.Prop{Name: name, Params: make(ical.Params), Value: v})
		}
		tz.Children = append(tz.Children, obs)
	}
	meeting := newEvent("outlook", "20240105T090000", "20240105T100000")
	for _, name := range []string{ical.PropDateTimeStart, ical.PropDateTimeEnd} {
		meeting.Props[name][0].Params.Set(ical.ParamTimezoneID, "Eastern Standard Time")
	}

	start := recurrence.DateTime(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))
	end := recurrence.DateTime(time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC))
	got := New(nil).ConsumedTime([]*ical.Component{tz, meeting}, start, end)
	assert.Equal(t, []string{"20240105T140000Z/20240105T150000Z"}, render(got))
}
