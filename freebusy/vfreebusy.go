package freebusy

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cyp0633/calrecur/recurrence"
	"github.com/emersion/go-ical"
	"github.com/google/uuid"
	"github.com/samber/mo"
)

const (
	// ParamFreeBusyType is the FBTYPE parameter of FREEBUSY properties.
	ParamFreeBusyType = "FBTYPE"
	// TypeFree marks a FREEBUSY property listing free periods.
	TypeFree = "FREE"
)

var (
	// ErrMissingBounds is returned for VFREEBUSY requests without DTSTART or DTEND.
	ErrMissingBounds = errors.New("free/busy request requires DTSTART and DTEND")
	// ErrNotFreeBusy is returned when a component is not a VFREEBUSY.
	ErrNotFreeBusy = errors.New("component is not a VFREEBUSY")
)

// NewRequest builds a VFREEBUSY request for [start, end). With a duration
// the request asks for free periods of at least that length, otherwise for
// busy time.
func (c *Computer) NewRequest(start, end time.Time, duration mo.Option[recurrence.Dur]) *ical.Component {
	req := ical.NewComponent(ical.CompFreeBusy)
	req.Props.SetText(ical.PropUID, uuid.NewString())
	req.Props.SetDateTime(ical.PropDateTimeStamp, c.now().UTC())
	req.Props.SetDateTime(ical.PropDateTimeStart, start.UTC())
	req.Props.SetDateTime(ical.PropDateTimeEnd, end.UTC())
	if d, ok := duration.Get(); ok {
		setValue(req, ical.PropDuration, d.String(), nil)
	}
	return req
}

// Reply answers a VFREEBUSY request from components. When the request has
// a DURATION the reply carries one FREEBUSY;FBTYPE=FREE property listing
// free periods at least that long, otherwise one FREEBUSY property listing
// busy periods. The property is omitted when it would be empty.
func (c *Computer) Reply(request *ical.Component, components []*ical.Component) (*ical.Component, error) {
	if request.Name != ical.CompFreeBusy {
		return nil, fmt.Errorf("%w: %s", ErrNotFreeBusy, request.Name)
	}
	if request.Props.Get(ical.PropDateTimeStart) == nil || request.Props.Get(ical.PropDateTimeEnd) == nil {
		return nil, ErrMissingBounds
	}
	start, err := request.Props.DateTime(ical.PropDateTimeStart, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DTSTART: %w", err)
	}
	end, err := request.Props.DateTime(ical.PropDateTimeEnd, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DTEND: %w", err)
	}

	reply := ical.NewComponent(ical.CompFreeBusy)
	reply.Props.SetText(ical.PropUID, uuid.NewString())
	reply.Props.SetDateTime(ical.PropDateTimeStamp, c.now().UTC())
	reply.Props.SetDateTime(ical.PropDateTimeStart, start.UTC())
	reply.Props.SetDateTime(ical.PropDateTimeEnd, end.UTC())

	rangeStart := recurrence.DateTime(start.UTC())
	rangeEnd := recurrence.DateTime(end.UTC())

	if p := request.Props.Get(ical.PropDuration); p != nil {
		minDuration, err := recurrence.ParseDur(p.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DURATION: %w", err)
		}
		setValue(reply, ical.PropDuration, minDuration.String(), nil)
		free := c.FreeTime(rangeStart, rangeEnd, minDuration, components)
		if len(free) > 0 {
			setValue(reply, ical.PropFreeBusy, formatPeriods(free), map[string]string{ParamFreeBusyType: TypeFree})
		}
		c.logger.Debug("built free time reply", "start", rangeStart, "end", rangeEnd, "periods", len(free))
		return reply, nil
	}

	busy := c.BusyTime(rangeStart, rangeEnd, components)
	if len(busy) > 0 {
		setValue(reply, ical.PropFreeBusy, formatPeriods(busy), nil)
	}
	c.logger.Debug("built busy time reply", "start", rangeStart, "end", rangeEnd, "periods", len(busy))
	return reply, nil
}

// LimitFreeBusy returns a copy of a VFREEBUSY component whose FREEBUSY
// properties only cover limit. Properties left without periods are removed.
func LimitFreeBusy(comp *ical.Component, limit recurrence.Period) *ical.Component {
	out := recurrence.NewComponent(comp, time.UTC).DeepCopy()
	var kept []ical.Prop
	for _, p := range out.Props[ical.PropFreeBusy] {
		if truncated := TruncateProp(p, limit); truncated.Value != "" {
			kept = append(kept, truncated)
		}
	}
	if len(kept) == 0 {
		delete(out.Props, ical.PropFreeBusy)
	} else {
		out.Props[ical.PropFreeBusy] = kept
	}
	return out
}

// TruncateProp clips the periods of a FREEBUSY property to limit. The
// parameters, such as FBTYPE, are carried over unchanged. Values that do
// not parse as periods are dropped.
func TruncateProp(prop ical.Prop, limit recurrence.Period) ical.Prop {
	var periods []recurrence.Period
	for _, v := range strings.Split(prop.Value, ",") {
		if strings.TrimSpace(v) == "" {
			continue
		}
		p, err := recurrence.ParsePeriod(v, time.UTC)
		if err != nil {
			continue
		}
		periods = append(periods, p)
	}
	out := ical.Prop{Name: prop.Name, Params: make(ical.Params, len(prop.Params))}
	for k, v := range prop.Params {
		out.Params[k] = append([]string(nil), v...)
	}
	out.Value = formatPeriods(Truncate(periods, limit))
	return out
}

func formatPeriods(periods []recurrence.Period) string {
	values := make([]string, len(periods))
	for i, p := range periods {
		values[i] = p.UTC().String()
	}
	return strings.Join(values, ",")
}

func setValue(comp *ical.Component, name, value string, params map[string]string) {
	prop := ical.Prop{Name: name, Params: make(ical.Params), Value: value}
	for k, v := range params {
		prop.Params[k] = []string{v}
	}
	comp.Props[name] = []ical.Prop{prop}
}
