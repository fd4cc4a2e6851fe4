package recurrence

import (
	"strings"

	"github.com/emersion/go-ical"
)

const valueDate = "DATE"

// normalizeToUTC rewrites every TZID-qualified value of the component
// viewed by c, and of its sub-components, as a UTC date-time and drops the
// TZID parameter. c must wrap a private copy. Values that do not parse are
// left as they are; the result reports whether there were none.
func normalizeToUTC(c *Component) bool {
	ok := true
	for _, props := range c.raw.Props {
		for i := range props {
			ok = c.normalizePropToUTC(&props[i]) && ok
		}
	}
	for _, sub := range c.SubComponents() {
		ok = normalizeToUTC(sub) && ok
	}
	return ok
}

func (c *Component) normalizePropToUTC(prop *ical.Prop) bool {
	tzid := prop.Params.Get(ical.ParamTimezoneID)
	if tzid == "" {
		return true
	}
	values := strings.Split(prop.Value, ",")
	for i, v := range values {
		converted, ok := c.valueToUTC(prop.Params, strings.TrimSpace(v))
		if !ok {
			return false
		}
		values[i] = converted
	}
	prop.Value = strings.Join(values, ",")
	delete(prop.Params, ical.ParamTimezoneID)
	return true
}

func (c *Component) valueToUTC(params ical.Params, v string) (string, bool) {
	if start, end, ok := strings.Cut(v, "/"); ok {
		s, ok := c.valueToUTC(params, start)
		if !ok {
			return "", false
		}
		if strings.ContainsAny(end, "Pp") {
			return s + "/" + end, true
		}
		en, ok := c.valueToUTC(params, end)
		if !ok {
			return "", false
		}
		return s + "/" + en, true
	}
	inst, err := c.parseInstant(params, v)
	if err != nil {
		return "", false
	}
	return inst.UTC().Format(), true
}

// setInstantProp replaces the named property with a single value.
func setInstantProp(comp *ical.Component, name string, inst Instant) {
	prop := ical.Prop{Name: name, Params: make(ical.Params), Value: inst.Format()}
	if inst.DateOnly {
		prop.Params[ical.ParamValue] = []string{valueDate}
	}
	comp.Props[name] = []ical.Prop{prop}
}

func copyProps(props []ical.Prop) []ical.Prop {
	out := make([]ical.Prop, len(props))
	for i, p := range props {
		out[i] = ical.Prop{Name: p.Name, Value: p.Value, Params: copyParams(p.Params)}
	}
	return out
}
