// Package report parses the CalDAV REPORT bodies that drive recurrence
// expansion and free/busy computation.
package report

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/cyp0633/calrecur/recurrence"
	"github.com/emersion/go-ical"
)

// Namespace definitions for CalDAV and WebDAV
const (
	// DAV is the WebDAV namespace
	DAV = "DAV:"
	// CalDAV is the CalDAV namespace
	CalDAV = "urn:ietf:params:xml:ns:caldav"
)

const timeFormat = "20060102T150405Z"

var (
	// ErrEmptyDocument is returned when the body has no root element
	ErrEmptyDocument = errors.New("empty document")
	// ErrUnsupportedReport is returned for REPORT types other than
	// calendar-query, calendar-multiget and free-busy-query
	ErrUnsupportedReport = errors.New("unsupported report type")
	// ErrInvalidWindow is returned when a time range cannot be used as a window
	ErrInvalidWindow = errors.New("invalid time range")
)

// TimeRange represents a start/end attribute pair such as <C:time-range>
// or <C:expand>
type TimeRange struct {
	Start *time.Time
	End   *time.Time
}

// Period converts the range into a UTC window. Both bounds are required
// and end must be after start.
func (tr *TimeRange) Period() (recurrence.Period, error) {
	if tr == nil || tr.Start == nil || tr.End == nil {
		return recurrence.Period{}, fmt.Errorf("%w: start and end are required", ErrInvalidWindow)
	}
	if !tr.End.After(*tr.Start) {
		return recurrence.Period{}, fmt.Errorf("%w: end %s is not after start %s",
			ErrInvalidWindow, tr.End.Format(timeFormat), tr.Start.Format(timeFormat))
	}
	return recurrence.NewPeriod(recurrence.DateTime(tr.Start.UTC()), recurrence.DateTime(tr.End.UTC())), nil
}

// CalendarData holds the options of a <C:calendar-data> request element
type CalendarData struct {
	// Comp selects the components and properties to return. nil returns
	// everything.
	Comp               *Comp
	Expand             *TimeRange
	LimitRecurrenceSet *TimeRange
	LimitFreeBusySet   *TimeRange
}

// Comp represents a <C:comp> element of calendar-data. Sub-components and
// properties are keyed by upper-case name; a property maps to true when
// only its name is wanted (novalue="yes").
type Comp struct {
	Name     string
	AllComps bool
	Comps    map[string]*Comp
	AllProps bool
	Props    map[string]bool
}

// Select returns a copy of comp holding only the properties and
// sub-components c asks for. comp is expected to be of type c.Name.
func (c *Comp) Select(comp *ical.Component) *ical.Component {
	out := &ical.Component{Name: comp.Name, Props: make(ical.Props)}
	for name, props := range comp.Props {
		noValue, ok := c.Props[strings.ToUpper(name)]
		if !c.AllProps && !ok {
			continue
		}
		for _, p := range props {
			copied := ical.Prop{Name: p.Name, Params: make(ical.Params, len(p.Params)), Value: p.Value}
			for k, v := range p.Params {
				copied.Params[k] = append([]string(nil), v...)
			}
			if noValue && !c.AllProps {
				copied.Value = ""
			}
			out.Props[name] = append(out.Props[name], copied)
		}
	}
	for _, child := range comp.Children {
		if c.AllComps {
			out.Children = append(out.Children, (&Comp{AllComps: true, AllProps: true}).Select(child))
			continue
		}
		if sub, ok := c.Comps[strings.ToUpper(child.Name)]; ok {
			out.Children = append(out.Children, sub.Select(child))
		}
	}
	return out
}

// Filter represents a calendar query comp-filter
type Filter struct {
	ComponentName string
	SubFilter     *Filter
	TimeRange     *TimeRange
}

// CalendarQuery represents a calendar-query REPORT request
type CalendarQuery struct {
	Data   *CalendarData
	Filter Filter
}

// ComponentType returns the component type the filter selects below
// VCALENDAR, e.g. VEVENT, or "" when it names none.
func (q *CalendarQuery) ComponentType() string {
	if q.Filter.SubFilter == nil {
		return ""
	}
	return strings.ToUpper(q.Filter.SubFilter.ComponentName)
}

// CalendarMultiget represents a calendar-multiget REPORT request
type CalendarMultiget struct {
	Data  *CalendarData
	Hrefs []string
}

// FreeBusyQuery represents a free-busy-query REPORT request
type FreeBusyQuery struct {
	TimeRange TimeRange
}

// Request represents a REPORT request. Exactly one field is set.
type Request struct {
	Query    *CalendarQuery
	MultiGet *CalendarMultiget
	FreeBusy *FreeBusyQuery
}

// ParseBytes parses a REPORT request body
func ParseBytes(body []byte) (*Request, error) {
	doc := etree.NewDocument()
	if len(body) > 0 {
		if err := doc.ReadFromBytes(body); err != nil {
			return nil, fmt.Errorf("failed to read report body: %w", err)
		}
	}
	return Parse(doc)
}

// Parse parses a REPORT request from an XML document
func Parse(doc *etree.Document) (*Request, error) {
	if doc == nil || doc.Root() == nil {
		return nil, ErrEmptyDocument
	}
	root := doc.Root()
	r := &Request{}

	var err error
	switch root.Tag {
	case "calendar-query":
		r.Query, err = parseCalendarQuery(root)
	case "calendar-multiget":
		r.MultiGet, err = parseCalendarMultiget(root)
	case "free-busy-query":
		r.FreeBusy, err = parseFreeBusyQuery(root)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedReport, root.Tag)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// CalendarData returns the calendar-data options of a query or multiget
// request, or nil.
func (r *Request) CalendarData() *CalendarData {
	switch {
	case r.Query != nil:
		return r.Query.Data
	case r.MultiGet != nil:
		return r.MultiGet.Data
	}
	return nil
}

// Window picks the time range a request applies to: the free-busy-query
// range, the expand or limit-recurrence-set range of calendar-data, or the
// time-range of the innermost comp-filter, in that order.
func (r *Request) Window() (recurrence.Period, error) {
	if r.FreeBusy != nil {
		return r.FreeBusy.TimeRange.Period()
	}
	if data := r.CalendarData(); data != nil {
		switch {
		case data.Expand != nil:
			return data.Expand.Period()
		case data.LimitRecurrenceSet != nil:
			return data.LimitRecurrenceSet.Period()
		}
	}
	if r.Query != nil {
		var tr *TimeRange
		for f := &r.Query.Filter; f != nil; f = f.SubFilter {
			if f.TimeRange != nil {
				tr = f.TimeRange
			}
		}
		return tr.Period()
	}
	return recurrence.Period{}, fmt.Errorf("%w: request carries no time range", ErrInvalidWindow)
}

func parseCalendarQuery(root *etree.Element) (*CalendarQuery, error) {
	q := &CalendarQuery{}

	if prop := findChild(root, "prop"); prop != nil {
		data, err := parseProp(prop)
		if err != nil {
			return nil, err
		}
		q.Data = data
	}

	if filter := findChild(root, "filter"); filter != nil {
		if err := parseFilter(filter, &q.Filter); err != nil {
			return nil, err
		}
	}
	return q, nil
}

func parseCalendarMultiget(root *etree.Element) (*CalendarMultiget, error) {
	m := &CalendarMultiget{}

	if prop := findChild(root, "prop"); prop != nil {
		data, err := parseProp(prop)
		if err != nil {
			return nil, err
		}
		m.Data = data
	}

	for _, href := range findChildren(root, "href") {
		m.Hrefs = append(m.Hrefs, href.Text())
	}
	return m, nil
}

func parseFreeBusyQuery(root *etree.Element) (*FreeBusyQuery, error) {
	q := &FreeBusyQuery{}
	if tr := findChild(root, "time-range"); tr != nil {
		parsed, err := parseTimeRange(tr)
		if err != nil {
			return nil, err
		}
		q.TimeRange = *parsed
	}
	return q, nil
}

// parseProp reads the calendar-data element of a <D:prop>. Other
// requested WebDAV properties only matter to multistatus responses.
func parseProp(prop *etree.Element) (*CalendarData, error) {
	p := findChild(prop, "calendar-data")
	if p == nil {
		return nil, nil
	}
	data := &CalendarData{}
	var err error
	if e := findChild(p, "comp"); e != nil {
		data.Comp = parseComp(e)
	}
	if e := findChild(p, "expand"); e != nil {
		if data.Expand, err = parseTimeRange(e); err != nil {
			return nil, err
		}
	}
	if e := findChild(p, "limit-recurrence-set"); e != nil {
		if data.LimitRecurrenceSet, err = parseTimeRange(e); err != nil {
			return nil, err
		}
	}
	if e := findChild(p, "limit-freebusy-set"); e != nil {
		if data.LimitFreeBusySet, err = parseTimeRange(e); err != nil {
			return nil, err
		}
	}
	return data, nil
}

func parseComp(elem *etree.Element) *Comp {
	c := &Comp{Name: strings.ToUpper(elem.SelectAttrValue("name", ""))}
	for _, child := range elem.ChildElements() {
		switch child.Tag {
		case "allprop":
			c.AllProps = true
		case "allcomp":
			c.AllComps = true
		case "prop":
			if c.Props == nil {
				c.Props = make(map[string]bool)
			}
			name := strings.ToUpper(child.SelectAttrValue("name", ""))
			c.Props[name] = strings.EqualFold(child.SelectAttrValue("novalue", "no"), "yes")
		case "comp":
			if c.Comps == nil {
				c.Comps = make(map[string]*Comp)
			}
			sub := parseComp(child)
			c.Comps[sub.Name] = sub
		}
	}
	return c
}

func parseFilter(elem *etree.Element, filter *Filter) error {
	compFilter := findChild(elem, "comp-filter")
	if compFilter == nil {
		return nil
	}
	filter.ComponentName = compFilter.SelectAttrValue("name", "")

	if tr := findChild(compFilter, "time-range"); tr != nil {
		parsed, err := parseTimeRange(tr)
		if err != nil {
			return err
		}
		filter.TimeRange = parsed
	}

	if nested := findChild(compFilter, "comp-filter"); nested != nil {
		filter.SubFilter = &Filter{}
		return parseFilter(compFilter, filter.SubFilter)
	}
	return nil
}

func parseTimeRange(elem *etree.Element) (*TimeRange, error) {
	tr := &TimeRange{}
	for _, attr := range []struct {
		name string
		dst  **time.Time
	}{{"start", &tr.Start}, {"end", &tr.End}} {
		v := elem.SelectAttrValue(attr.name, "")
		if v == "" {
			continue
		}
		t, err := time.Parse(timeFormat, v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s attribute on %s: %w", attr.name, elem.Tag, err)
		}
		*attr.dst = &t
	}
	return tr, nil
}

// findChild returns the first child element with the given local name,
// whatever its namespace prefix.
func findChild(elem *etree.Element, tag string) *etree.Element {
	for _, child := range elem.ChildElements() {
		if child.Tag == tag {
			return child
		}
	}
	return nil
}

func findChildren(elem *etree.Element, tag string) []*etree.Element {
	var out []*etree.Element
	for _, child := range elem.ChildElements() {
		if child.Tag == tag {
			out = append(out, child)
		}
	}
	return out
}
