package recurrence

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-ical"
)

// ErrUnknownTimezone is returned when a TZID matches neither a VTIMEZONE
// definition nor an IANA zone.
var ErrUnknownTimezone = errors.New("unknown timezone")

// timezoneHorizon bounds the onsets generated for open-ended observance
// rules. Later times keep the offset of the last onset.
var timezoneHorizon = time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)

// Timezones resolves TZID parameter values. Zones defined by the calendar's
// VTIMEZONE components win over IANA zones of the same name.
type Timezones struct {
	defined map[string]*time.Location
}

// Location returns the location a TZID refers to. A nil Timezones only
// consults the IANA database.
func (z *Timezones) Location(tzid string) (*time.Location, error) {
	if z != nil {
		if loc, ok := z.defined[tzid]; ok {
			return loc, nil
		}
	}
	if tzid == "" {
		return nil, fmt.Errorf("%w: empty TZID", ErrUnknownTimezone)
	}
	loc, err := time.LoadLocation(tzid)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrUnknownTimezone, tzid, err)
	}
	return loc, nil
}

// Len returns the number of zones compiled from VTIMEZONE definitions.
func (z *Timezones) Len() int {
	if z == nil {
		return 0
	}
	return len(z.defined)
}

// Timezones compiles the VTIMEZONE components among comps. Definitions
// that cannot be compiled are logged and left to the IANA database.
func (e *Engine) Timezones(comps []*ical.Component) *Timezones {
	z := &Timezones{defined: make(map[string]*time.Location)}
	for _, comp := range comps {
		if comp.Name != ical.CompTimezone {
			continue
		}
		tzid, loc, err := e.compileTimezone(comp)
		if err != nil {
			e.logger.Warn("failed to compile timezone definition", "tzid", tzid, "error", err)
			continue
		}
		z.defined[tzid] = loc
	}
	return z
}

// observance is one STANDARD or DAYLIGHT block of a VTIMEZONE.
type observance struct {
	name       string
	dst        bool
	offsetFrom int
	offsetTo   int
}

type onset struct {
	at   int64
	zone uint8
}

// compileTimezone turns a VTIMEZONE into a time.Location whose transitions
// are the onsets of its observances.
func (e *Engine) compileTimezone(comp *ical.Component) (string, *time.Location, error) {
	var tzid string
	if p := comp.Props.Get(ical.PropTimezoneID); p != nil {
		tzid = strings.TrimSpace(p.Value)
	}
	if tzid == "" {
		return "", nil, errors.New("missing TZID")
	}

	var observances []observance
	var onsets []onset
	for _, child := range comp.Children {
		if child.Name != ical.CompTimezoneStandard && child.Name != ical.CompTimezoneDaylight {
			continue
		}
		if len(observances) == 255 {
			return tzid, nil, errors.New("too many observances")
		}
		obs, starts, err := e.observanceOnsets(child)
		if err != nil {
			return tzid, nil, fmt.Errorf("%s: %w", child.Name, err)
		}
		// zone 0 is reserved for the offset in force before the first onset
		zone := uint8(len(observances) + 1)
		observances = append(observances, obs)
		for _, t := range starts {
			onsets = append(onsets, onset{at: t.Unix(), zone: zone})
		}
	}
	if len(observances) == 0 || len(onsets) == 0 {
		return tzid, nil, errors.New("no STANDARD or DAYLIGHT observance")
	}

	slices.SortStableFunc(onsets, func(a, b onset) int {
		switch {
		case a.at < b.at:
			return -1
		case a.at > b.at:
			return 1
		}
		return 0
	})
	onsets = slices.CompactFunc(onsets, func(a, b onset) bool { return a.at == b.at })

	first := observances[onsets[0].zone-1]
	initial := observance{name: first.name, offsetTo: first.offsetFrom}
	for _, obs := range observances {
		if obs.offsetTo == first.offsetFrom {
			initial.name, initial.dst = obs.name, obs.dst
			break
		}
	}
	zones := append([]observance{initial}, observances...)

	data, err := tzif(zones, onsets)
	if err != nil {
		return tzid, nil, err
	}
	loc, err := time.LoadLocationFromTZData(tzid, data)
	if err != nil {
		return tzid, nil, fmt.Errorf("failed to build location: %w", err)
	}
	return tzid, loc, nil
}

// observanceOnsets returns the UTC onsets of an observance up to
// timezoneHorizon. DTSTART, RRULE and RDATE are local times in the
// TZOFFSETFROM offset.
func (e *Engine) observanceOnsets(comp *ical.Component) (observance, []time.Time, error) {
	obs := observance{dst: comp.Name == ical.CompTimezoneDaylight, name: comp.Name}
	if p := comp.Props.Get(ical.PropTimezoneName); p != nil && p.Value != "" {
		obs.name = p.Value
	}

	var err error
	if obs.offsetFrom, err = offsetProp(comp, ical.PropTimezoneOffsetFrom); err != nil {
		return obs, nil, err
	}
	if obs.offsetTo, err = offsetProp(comp, ical.PropTimezoneOffsetTo); err != nil {
		return obs, nil, err
	}

	from := time.FixedZone("", obs.offsetFrom)
	p := comp.Props.Get(ical.PropDateTimeStart)
	if p == nil {
		return obs, nil, errors.New("missing DTSTART")
	}
	start, err := ParseInstant(p.Value, from)
	if err != nil {
		return obs, nil, err
	}
	seed := DateTime(start.Time)
	out := []time.Time{seed.Time}

	horizon := DateTime(timezoneHorizon)
	for _, rule := range comp.Props[ical.PropRecurrenceRule] {
		starts, err := e.evaluator.Occurrences(rule.Value, seed, seed, horizon)
		if err != nil {
			return obs, nil, err
		}
		for _, s := range starts {
			out = append(out, s.Time)
		}
	}
	for _, rdate := range comp.Props[ical.PropRecurrenceDates] {
		for _, v := range strings.Split(rdate.Value, ",") {
			inst, err := ParseInstant(v, from)
			if err != nil {
				continue
			}
			out = append(out, inst.Time)
		}
	}
	return obs, out, nil
}

func offsetProp(comp *ical.Component, name string) (int, error) {
	p := comp.Props.Get(name)
	if p == nil {
		return 0, fmt.Errorf("missing %s", name)
	}
	return parseUTCOffset(p.Value)
}

// parseUTCOffset parses a UTC-OFFSET value such as "-0500" or "+053000"
// into seconds east of UTC.
func parseUTCOffset(v string) (int, error) {
	v = strings.TrimSpace(v)
	if (len(v) != 5 && len(v) != 7) || (v[0] != '+' && v[0] != '-') {
		return 0, fmt.Errorf("invalid UTC offset %q", v)
	}
	secs := 0
	for i, unit := range []int{3600, 60, 1} {
		if 1+2*i >= len(v) {
			break
		}
		n, err := strconv.Atoi(v[1+2*i : 3+2*i])
		if err != nil {
			return 0, fmt.Errorf("invalid UTC offset %q", v)
		}
		secs += n * unit
	}
	if v[0] == '-' {
		secs = -secs
	}
	return secs, nil
}

// tzif encodes zones and onsets as version 2 TZif data. The version 1
// block is left empty, so readers use the 64-bit transition times.
func tzif(zones []observance, onsets []onset) ([]byte, error) {
	var abbrev []byte
	index := make(map[string]int)
	for _, z := range zones {
		if _, ok := index[z.name]; !ok {
			if len(abbrev) > 255 {
				return nil, errors.New("zone names too long")
			}
			index[z.name] = len(abbrev)
			abbrev = append(append(abbrev, z.name...), 0)
		}
	}

	var buf bytes.Buffer
	header := func(counts [6]uint32) {
		buf.WriteString("TZif2")
		buf.Write(make([]byte, 15))
		for _, n := range counts {
			_ = binary.Write(&buf, binary.BigEndian, n)
		}
	}
	header([6]uint32{})
	header([6]uint32{0, 0, 0, uint32(len(onsets)), uint32(len(zones)), uint32(len(abbrev))})
	for _, o := range onsets {
		_ = binary.Write(&buf, binary.BigEndian, o.at)
	}
	for _, o := range onsets {
		buf.WriteByte(o.zone)
	}
	for _, z := range zones {
		_ = binary.Write(&buf, binary.BigEndian, int32(z.offsetTo))
		if z.dst {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		buf.WriteByte(byte(index[z.name]))
	}
	buf.Write(abbrev)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}
