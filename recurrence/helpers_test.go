package recurrence

import (
	"time"

	"github.com/emersion/go-ical"
)

// prop builds a property; params are given as name, value pairs.
func prop(name, value string, params ...string) ical.Prop {
	p := ical.Prop{Name: name, Params: make(ical.Params), Value: value}
	for i := 0; i+1 < len(params); i += 2 {
		p.Params[params[i]] = []string{params[i+1]}
	}
	return p
}

func component(name string, props ...ical.Prop) *ical.Component {
	comp := &ical.Component{Name: name, Props: make(ical.Props)}
	for _, p := range props {
		comp.Props[p.Name] = append(comp.Props[p.Name], p)
	}
	return comp
}

func event(props ...ical.Prop) *ical.Component {
	return component(ical.CompEvent, props...)
}

func utc(year int, month time.Month, day, hour, min int) Instant {
	return DateTime(time.Date(year, month, day, hour, min, 0, 0, time.UTC))
}

func starts(instances []Instance) []Instant {
	out := make([]Instant, len(instances))
	for i, inst := range instances {
		out[i] = inst.Start
	}
	return out
}

func formatted(instants []Instant) []string {
	out := make([]string, len(instants))
	for i, inst := range instants {
		out[i] = inst.Format()
	}
	return out
}
